package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acentrix/quotefunnel/internal/core"
)

// ReferenceHandler proxies the city/district reference data.
type ReferenceHandler struct {
	refdata core.ReferenceData
	log     *slog.Logger
}

func NewReferenceHandler(refdata core.ReferenceData, log *slog.Logger) *ReferenceHandler {
	return &ReferenceHandler{refdata: refdata, log: log}
}

func (h *ReferenceHandler) Mount(r chi.Router) {
	r.Route("/reference", func(r chi.Router) {
		r.Get("/cities", h.Cities)
		r.Get("/districts", h.Districts)
	})
}

func (h *ReferenceHandler) Cities(w http.ResponseWriter, r *http.Request) {
	items, err := h.refdata.ListCities(r.Context())
	if err != nil {
		writeError(r.Context(), h.log, w, err, "City lookup failed.")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ReferenceHandler) Districts(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if city == "" {
		writeError(r.Context(), h.log, w, core.ErrValidation, "The city query parameter is required.")
		return
	}
	items, err := h.refdata.ListDistricts(r.Context(), city)
	if err != nil {
		writeError(r.Context(), h.log, w, err, "District lookup failed.")
		return
	}
	writeJSON(w, http.StatusOK, items)
}
