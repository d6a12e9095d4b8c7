package engage

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// OutcomeRecord is one stored outcome with its recording time.
type OutcomeRecord struct {
	RecordedAt time.Time `json:"recorded_at"`
	Outcome    Outcome   `json:"outcome"`
}

// OutcomeStore is the ledger surface the API reads and writes. Kept as
// an interface here so the engage package does not depend on the
// storage layer.
type OutcomeStore interface {
	RecordOutcome(ctx context.Context, out *Outcome) error
	Attempted(ctx context.Context, domain string) (bool, error)
	Outcomes(ctx context.Context, limit int) ([]OutcomeRecord, error)
}

// API exposes the engine over HTTP.
type API struct {
	engine *Engine
	store  OutcomeStore
	logger *slog.Logger
}

// NewAPI creates the HTTP surface. store may be nil; outcomes are then
// neither persisted nor listable.
func NewAPI(engine *Engine, store OutcomeStore, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{engine: engine, store: store, logger: logger}
}

// Handler returns the API router:
//
//	POST /engage     — run one engagement attempt
//	GET  /outcomes   — list recent outcomes (?limit=)
//	GET  /healthz    — liveness
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/engage", a.handleEngage)
	r.Get("/outcomes", a.handleOutcomes)
	return r
}

func (a *API) handleEngage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	var req struct {
		URL     string `json:"url"`
		Site    bool   `json:"site"` // probe the site for a contact page first
		Subject string `json:"subject"`
		Body    string `json:"body"`
		Force   bool   `json:"force"` // engage even if the domain was already attempted
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		jsonErr(w, "body is required", http.StatusBadRequest)
		return
	}

	target, err := NewTarget(req.URL)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}

	if a.store != nil && !req.Force {
		attempted, err := a.store.Attempted(r.Context(), target.Domain)
		if err != nil {
			a.logger.Error("api: attempted check failed", "error", err)
			jsonErr(w, "internal error", http.StatusInternalServerError)
			return
		}
		if attempted {
			jsonErr(w, "domain already attempted: "+target.Domain, http.StatusConflict)
			return
		}
	}

	msg := Message{Subject: req.Subject, Body: req.Body}
	var out *Outcome
	if req.Site {
		out, err = a.engine.EngageSite(r.Context(), target, msg)
	} else {
		out, err = a.engine.Engage(r.Context(), target, msg)
	}
	if err != nil {
		a.logger.Error("api: engage failed", "url", req.URL, "error", err)
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}

	if a.store != nil {
		if err := a.store.RecordOutcome(r.Context(), out); err != nil {
			a.logger.Error("api: record outcome failed", "attempt_id", out.AttemptID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		jsonErr(w, "no ledger configured", http.StatusNotFound)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	records, err := a.store.Outcomes(r.Context(), limit)
	if err != nil {
		a.logger.Error("api: list outcomes failed", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
