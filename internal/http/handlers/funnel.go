package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/acentrix/quotefunnel/internal/core"
	"github.com/acentrix/quotefunnel/internal/funnel"
	"github.com/acentrix/quotefunnel/internal/platform/ids"
	"github.com/acentrix/quotefunnel/internal/polling"
	"github.com/acentrix/quotefunnel/internal/wizard"
	"github.com/acentrix/quotefunnel/pkg/problem"
)

// sessionHeader carries the funnel session id on every request after start.
const sessionHeader = "X-Funnel-Session"

// FunnelHandler exposes the quote funnel over HTTP: wizard steps, the poll
// snapshot, installment selection and the purchase hand-off.
type FunnelHandler struct {
	mgr *funnel.Manager
	log *slog.Logger
}

func NewFunnelHandler(mgr *funnel.Manager, log *slog.Logger) *FunnelHandler {
	return &FunnelHandler{mgr: mgr, log: log}
}

func (h *FunnelHandler) Mount(r chi.Router) {
	r.Route("/funnel/{line}", func(r chi.Router) {
		r.Post("/", h.Start)
		r.Delete("/", h.Restart)
		r.Get("/", h.Status)
		r.Post("/personal-info", h.PersonalInfo)
		r.Post("/otp", h.VerifyOTP)
		r.Post("/otp/resend", h.ResendOTP)
		r.Get("/profile", h.Profile)
		r.Post("/additional-info", h.AdditionalInfo)
		r.Get("/districts", h.Districts)
		r.Post("/product-info", h.ProductInfo)
		r.Get("/quotes", h.Quotes)
		r.Post("/quotes/{product_id}/installment", h.SelectInstallment)
		r.Get("/quotes/{product_id}/document", h.Document)
		r.Post("/purchase", h.Purchase)
	})
}

func (h *FunnelHandler) line(r *http.Request) core.LineCode {
	return core.LineCode(chi.URLParam(r, "line"))
}

func (h *FunnelHandler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		problem.Write(w, http.StatusBadRequest, "Missing Session",
			"The "+sessionHeader+" header is required.")
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		problem.Write(w, http.StatusBadRequest, "Malformed Request", "Request body is not valid JSON.")
		return false
	}
	return true
}

type startResponse struct {
	SessionID string      `json:"sessionId"`
	Step      wizard.Step `json:"step"`
}

// Start opens a funnel session for a product line and mints its session id.
func (h *FunnelHandler) Start(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		sessionID = ids.New()
	}
	step, err := h.mgr.Step(sessionID, h.line(r))
	if err != nil {
		writeError(r.Context(), h.log, w, err, "Unknown product line.")
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{SessionID: sessionID, Step: step})
}

type stepResponse struct {
	Step wizard.Step `json:"step"`
}

func (h *FunnelHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	step, err := h.mgr.Step(sessionID, h.line(r))
	if err != nil {
		writeError(r.Context(), h.log, w, err, "Unknown product line.")
		return
	}
	writeJSON(w, http.StatusOK, stepResponse{Step: step})
}

func (h *FunnelHandler) PersonalInfo(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	var in wizard.PersonalInfo
	if !decode(w, r, &in) {
		return
	}
	step, err := h.mgr.SubmitPersonalInfo(r.Context(), sessionID, h.line(r), in)
	if err != nil {
		writeError(r.Context(), h.log, w, err, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stepResponse{Step: step})
}

type otpRequest struct {
	Code string `json:"code"`
}

type otpResponse struct {
	Step wizard.Step      `json:"step"`
	Gaps core.ProfileGaps `json:"gaps"`
}

func (h *FunnelHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	var in otpRequest
	if !decode(w, r, &in) {
		return
	}
	step, gaps, err := h.mgr.VerifyOTP(r.Context(), sessionID, h.line(r), in.Code)
	if err != nil {
		writeError(r.Context(), h.log, w, err, "Passcode verification failed.")
		return
	}
	writeJSON(w, http.StatusOK, otpResponse{Step: step, Gaps: gaps})
}

func (h *FunnelHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.mgr.ResendOTP(r.Context(), sessionID, h.line(r)); err != nil {
		writeError(r.Context(), h.log, w, err, "Could not resend passcode.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type profileResponse struct {
	Profile core.CustomerProfile `json:"profile"`
	Gaps    core.ProfileGaps     `json:"gaps"`
}

func (h *FunnelHandler) Profile(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	profile, gaps, err := h.mgr.Profile(r.Context(), sessionID, h.line(r))
	if err != nil {
		writeError(r.Context(), h.log, w, err, "Profile unavailable.")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: profile, Gaps: gaps})
}

func (h *FunnelHandler) AdditionalInfo(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	var in wizard.AdditionalInfo
	if !decode(w, r, &in) {
		return
	}
	step, err := h.mgr.SubmitAdditionalInfo(r.Context(), sessionID, h.line(r), in)
	if err != nil {
		writeError(r.Context(), h.log, w, err, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stepResponse{Step: step})
}

func (h *FunnelHandler) Districts(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	items, err := h.mgr.Districts(r.Context(), sessionID, h.line(r), r.URL.Query().Get("city"))
	if err != nil {
		writeError(r.Context(), h.log, w, err, "District lookup failed.")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type productInfoRequest struct {
	Inputs map[string]string `json:"inputs"`
}

type proposalResponse struct {
	ProposalID string `json:"proposalId"`
}

func (h *FunnelHandler) ProductInfo(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	var in productInfoRequest
	if !decode(w, r, &in) {
		return
	}
	proposalID, err := h.mgr.SubmitProductInfo(r.Context(), sessionID, h.line(r), in.Inputs)
	if err != nil {
		writeError(r.Context(), h.log, w, err, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, proposalResponse{ProposalID: proposalID})
}

type quoteView struct {
	ID                  string                  `json:"id"`
	ProductID           string                  `json:"productId"`
	CompanyName         string                  `json:"companyName"`
	CompanyLogoURL      string                  `json:"companyLogoUrl"`
	Headline            []core.DisplayCoverage  `json:"headline"`
	FullCoverage        []core.DisplayCoverage  `json:"fullCoverage"`
	Premiums            []core.FormattedPremium `json:"premiums"`
	SelectedInstallment int                     `json:"selectedInstallment"`
}

type quotesResponse struct {
	Phase    polling.Phase `json:"phase"`
	Loading  bool          `json:"loading"`
	Progress float64       `json:"progress"`
	Error    string        `json:"error,omitempty"`
	Quotes   []quoteView   `json:"quotes"`
}

func (h *FunnelHandler) Quotes(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := h.mgr.Quotes(sessionID, h.line(r))
	if err != nil {
		writeError(r.Context(), h.log, w, err, "No quote poll in progress.")
		return
	}

	resp := quotesResponse{
		Phase:    snap.Phase,
		Loading:  snap.Loading,
		Progress: snap.Progress,
		Error:    snap.Err,
		Quotes:   make([]quoteView, 0, len(snap.Quotes)),
	}
	for _, q := range snap.Quotes {
		resp.Quotes = append(resp.Quotes, quoteView{
			ID:                  q.Product.ID,
			ProductID:           q.Product.ProductID,
			CompanyName:         q.CompanyName,
			CompanyLogoURL:      q.CompanyLogoURL,
			Headline:            q.Headline,
			FullCoverage:        q.FullCoverage,
			Premiums:            q.Premiums.Formatted(),
			SelectedInstallment: q.SelectedInstallment,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type installmentRequest struct {
	InstallmentCount int `json:"installmentCount"`
}

func (h *FunnelHandler) SelectInstallment(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	var in installmentRequest
	if !decode(w, r, &in) {
		return
	}
	err := h.mgr.SelectInstallment(r.Context(), sessionID, h.line(r),
		chi.URLParam(r, "product_id"), in.InstallmentCount)
	if err != nil {
		writeError(r.Context(), h.log, w, err, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type documentResponse struct {
	URL string `json:"url"`
}

func (h *FunnelHandler) Document(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	url, err := h.mgr.Document(r.Context(), sessionID, h.line(r), chi.URLParam(r, "product_id"))
	if err != nil {
		writeError(r.Context(), h.log, w, err, "Offer document unavailable.")
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{URL: url})
}

type purchaseRequest struct {
	ProductID        string `json:"productId"`
	InstallmentCount int    `json:"installmentCount"`
}

func (h *FunnelHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	var in purchaseRequest
	if !decode(w, r, &in) {
		return
	}
	err := h.mgr.Purchase(r.Context(), sessionID, h.line(r), in.ProductID, in.InstallmentCount)
	if err != nil {
		writeError(r.Context(), h.log, w, err, "Purchase hand-off failed.")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *FunnelHandler) Restart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.mgr.Restart(r.Context(), sessionID, h.line(r)); err != nil {
		writeError(r.Context(), h.log, w, err, "Restart failed.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
