// Command mockupstream serves fake identity, profile, reference, aggregator
// and checkout endpoints for local development. Quotes arrive staggered so
// the polling engine's early-unblock and settle behavior can be exercised
// without real insurers.
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/acentrix/quotefunnel/internal/platform/ids"
)

func main() {
	addr := flag.String("addr", ":9001", "listen address")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s := &server{
		log:       log,
		otp:       "123456",
		proposals: map[string]time.Time{},
	}

	r := chi.NewRouter()
	r.Post("/auth/login", s.login)
	r.Post("/auth/verify-otp", s.verifyOTP)
	r.Post("/auth/refresh", s.refresh)
	r.Post("/auth/logout", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Get("/customer/profile", s.profile)
	r.Put("/customer/profile/{id}", s.updateProfile)
	r.Get("/reference/cities", s.cities)
	r.Get("/reference/districts", s.districts)
	r.Post("/proposals", s.createProposal)
	r.Get("/proposals/{id}", s.getProposal)
	r.Get("/companies", s.companies)
	r.Get("/proposals/{id}/products/{pid}/document", s.document)
	r.Get("/cases/{customer}/{line}", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":"NOT_FOUND"}`, http.StatusNotFound)
	})
	r.Post("/cases", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) })
	r.Post("/checkout", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })

	log.Info("mock upstream listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Error("mock upstream failed", "err", err)
		os.Exit(1)
	}
}

type server struct {
	log *slog.Logger
	otp string

	mu        sync.Mutex
	proposals map[string]time.Time // proposal id -> creation time
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Phone string `json:"phone"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.Phone == "5000000000" {
		// Fixture for the phone-mismatch path.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    "CUSTOMER_PHONE_MISMATCH",
			"message": "no account for this identity and phone",
		})
		return
	}
	writeJSON(w, map[string]string{"challengeToken": ids.New()})
}

func (s *server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Code string `json:"code"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.Code != s.otp {
		http.Error(w, `{"code":"OTP_INVALID","message":"wrong passcode"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"accessToken": ids.New(), "refreshToken": ids.New()})
}

func (s *server) refresh(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"accessToken": ids.New(), "refreshToken": ids.New()})
}

func (s *server) profile(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{
		"customerId":   "cust-1",
		"customerType": "individual",
		"firstName":    "Ayse",
		"lastName":     "Demir",
		"email":        "ayse@example.com",
		"cityRef":      "34",
		// districtRef intentionally absent: drives the AdditionalInfo path.
	})
}

func (s *server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var p map[string]any
	_ = json.NewDecoder(r.Body).Decode(&p)
	writeJSON(w, p)
}

func (s *server) cities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, []map[string]string{
		{"value": "34", "text": "Istanbul"},
		{"value": "06", "text": "Ankara"},
		{"value": "35", "text": "Izmir"},
	})
}

func (s *server) districts(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("city") {
	case "34":
		writeJSON(w, []map[string]string{
			{"value": "34-1", "text": "Kadikoy"},
			{"value": "34-2", "text": "Besiktas"},
		})
	default:
		writeJSON(w, []map[string]string{{"value": "x-1", "text": "Merkez"}})
	}
}

func (s *server) createProposal(w http.ResponseWriter, _ *http.Request) {
	id := ids.New()
	s.mu.Lock()
	s.proposals[id] = time.Now()
	s.mu.Unlock()
	writeJSON(w, map[string]string{"proposalId": id})
}

// getProposal stages quote arrival: the first insurer answers after ~5s, the
// second after ~12s, the third fails after ~8s.
func (s *server) getProposal(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	created, ok := s.proposals[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		http.Error(w, `{"code":"NOT_FOUND"}`, http.StatusNotFound)
		return
	}

	age := time.Since(created)
	products := []map[string]any{
		productFixture("p-1", "co-1", "TSS-100", age > 5*time.Second, false),
		productFixture("p-2", "co-2", "TSS-150", age > 12*time.Second, false),
		productFixture("p-3", "co-3", "TSS-200", false, age > 8*time.Second),
	}
	writeJSON(w, map[string]any{"products": products})
}

func productFixture(id, company, productID string, active, failed bool) map[string]any {
	p := map[string]any{
		"id":        id,
		"companyId": company,
		"productId": productID,
		"state":     "WAITING",
	}
	switch {
	case failed:
		p["state"] = "FAILED"
		p["errorMessage"] = "provider declined the risk"
	case active:
		p["state"] = "ACTIVE"
		p["premiums"] = []map[string]any{
			{"installmentCount": 1, "netAmount": 4200.0, "grossAmount": 4830.0, "currency": "TRY"},
			{"installmentCount": 3, "netAmount": 4400.0, "grossAmount": 5060.0, "currency": "TRY"},
			{"installmentCount": 6, "netAmount": 4600.0, "grossAmount": 5290.0, "currency": "TRY"},
		}
		p["initialCoverage"] = map[string]any{
			"inPatientTreatment": map[string]any{"$type": "UNDEFINED"},
			"standardRoom":       true,
			"physiotherapy":      map[string]any{"$type": "COUNT", "count": 30, "unit": "sessions"},
			"treatmentMode":      map[string]any{"mode": "BOTH"},
			"emergencyCare":      map[string]any{"$type": "LIMITLESS"},
			"intensiveCare":      map[string]any{"$type": "DECIMAL", "value": 150000.0},
		}
		p["optimalCoverage"] = map[string]any{
			"inPatientTreatment": map[string]any{"$type": "INCLUDED"},
			"maternity":          map[string]any{"$type": "NOT_INCLUDED"},
		}
	}
	return p
}

func (s *server) companies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, []map[string]string{
		{"id": "co-1", "name": "Anadolu Sigorta", "logoUrl": "https://cdn.example.com/logos/co-1.png"},
		{"id": "co-2", "name": "Allianz", "logoUrl": "https://cdn.example.com/logos/co-2.png"},
		{"id": "co-3", "name": "Axa", "logoUrl": "https://cdn.example.com/logos/co-3.png"},
	})
}

func (s *server) document(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"url": "https://cdn.example.com/offers/" + chi.URLParam(r, "pid") + ".pdf",
	})
}
