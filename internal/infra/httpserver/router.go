package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appai "github.com/bryanwahyu/scanproof/internal/application/ai"
	apprecords "github.com/bryanwahyu/scanproof/internal/application/records"
	domai "github.com/bryanwahyu/scanproof/internal/domain/ai"
	domain "github.com/bryanwahyu/scanproof/internal/domain/records"
	"github.com/bryanwahyu/scanproof/internal/middleware"
)

type Router struct {
	recordsSvc *apprecords.Service
	aiSvc      *appai.Service
	version    string
	startedAt  time.Time
}

// NewRouter wires the HTTP surface. aiSvc may be nil when no AI
// provider is configured; the analyze routes then return 503.
func NewRouter(recordsSvc *apprecords.Service, aiSvc *appai.Service, version string, health map[string]middleware.HealthChecker) http.Handler {
	r := &Router{
		recordsSvc: recordsSvc,
		aiSvc:      aiSvc,
		version:    version,
		startedAt:  time.Now(),
	}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(health))
	mux.Get("/health/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/records", r.wrap(r.handleCreateRecord))
		rt.Get("/records", r.wrap(r.handleListRecords))
		rt.Get("/records/{correlationID}", r.wrap(r.handleGetRecord))

		rt.Post("/tokens", r.wrap(r.handleCreateToken))
		rt.Get("/tokens", r.wrap(r.handleListTokens))
		rt.Get("/tokens/{correlationID}", r.wrap(r.handleGetToken))
		rt.Get("/tokens/check/{correlationID}", r.wrap(r.handleCheckToken))

		rt.Get("/system/stats", r.wrap(r.handleStats))
		rt.Get("/system/info", r.wrap(r.handleInfo))

		rt.Post("/ai/analyze", r.wrap(r.handleAIAnalyze))
		rt.Get("/ai/analyze", r.wrap(r.handleAIAnalyzeList))
		rt.Get("/ai/analyze/{correlationID}", r.wrap(r.handleAIAnalyzeLatest))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			if domain.IsValidation(err) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			if errors.Is(err, domain.ErrDuplicateCorrelation) {
				http.Error(w, "correlation ID already exists", http.StatusConflict)
				return
			}
			if errors.Is(err, domain.ErrNoScanRecord) {
				http.Error(w, "no scan record for correlation ID", http.StatusUnprocessableEntity)
				return
			}
			if errors.Is(err, domai.ErrQuotaExceeded) {
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/records
// Body: the raw scan message {"correlationId": ..., "probe": ..., "payload": {...}}
func (r *Router) handleCreateRecord(w http.ResponseWriter, req *http.Request) error {
	body, err := readBody(req)
	if err != nil {
		return err
	}

	env, err := domain.ParseEnvelope(body)
	if err != nil {
		return err
	}

	rec, err := r.recordsSvc.CreateRecord(req.Context(), env)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	return json.NewEncoder(w).Encode(toRecordResponse(rec))
}

// GET /v1/records?offset=&limit=&q=
func (r *Router) handleListRecords(w http.ResponseWriter, req *http.Request) error {
	offset, limit := middleware.ParsePagination(
		req.URL.Query().Get("offset"),
		req.URL.Query().Get("limit"),
	)
	filter := req.URL.Query().Get("q")

	list, err := r.recordsSvc.ListRecords(req.Context(), offset, limit, filter)
	if err != nil {
		return err
	}

	out := make([]recordResponse, 0, len(list))
	for _, rec := range list {
		out = append(out, toRecordResponse(rec))
	}
	return writeJSON(w, out)
}

// GET /v1/records/{correlationID}
func (r *Router) handleGetRecord(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "correlationID")
	if err := middleware.ValidateCorrelationID(id); err != nil {
		return &domain.ValidationError{Field: "correlationID", Reason: err.Error()}
	}

	rec, err := r.recordsSvc.GetRecordByCorrelation(req.Context(), id)
	if err != nil {
		return err
	}
	return writeRecord(w, rec)
}

// POST /v1/tokens
// Body: {"correlation_id": "...", "token": "<base64 DER>"}
func (r *Router) handleCreateToken(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		CorrelationID string `json:"correlation_id"`
		Token         []byte `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes)).Decode(&body); err != nil {
		return &domain.ValidationError{Field: "body", Reason: err.Error()}
	}
	if err := middleware.ValidateCorrelationID(body.CorrelationID); err != nil {
		return &domain.ValidationError{Field: "correlation_id", Reason: err.Error()}
	}

	tok, err := r.recordsSvc.CreateToken(req.Context(), body.CorrelationID, body.Token)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	return json.NewEncoder(w).Encode(toTokenResponse(tok))
}

// GET /v1/tokens?offset=&limit=
func (r *Router) handleListTokens(w http.ResponseWriter, req *http.Request) error {
	offset, limit := middleware.ParsePagination(
		req.URL.Query().Get("offset"),
		req.URL.Query().Get("limit"),
	)

	list, err := r.recordsSvc.ListTokens(req.Context(), offset, limit)
	if err != nil {
		return err
	}

	out := make([]tokenResponse, 0, len(list))
	for _, tok := range list {
		out = append(out, toTokenResponse(tok))
	}
	return writeJSON(w, out)
}

// GET /v1/tokens/{correlationID}
func (r *Router) handleGetToken(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "correlationID")
	if err := middleware.ValidateCorrelationID(id); err != nil {
		return &domain.ValidationError{Field: "correlationID", Reason: err.Error()}
	}

	tok, err := r.recordsSvc.GetToken(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, toTokenResponse(tok))
}

// GET /v1/tokens/check/{correlationID}
// Re-derives the digest over the stored payload and verifies the stored
// token against it. A failed check is a 200 with valid=false, not an
// error: the request itself succeeded.
func (r *Router) handleCheckToken(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "correlationID")
	if err := middleware.ValidateCorrelationID(id); err != nil {
		return &domain.ValidationError{Field: "correlationID", Reason: err.Error()}
	}

	valid, err := r.recordsSvc.Verify(req.Context(), id)
	if err != nil {
		return err
	}

	middleware.IncrementVerifications()
	if !valid {
		middleware.IncrementVerificationsNegative()
	}

	return writeJSON(w, map[string]bool{"valid": valid})
}

// GET /v1/system/stats
func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) error {
	count, err := r.recordsSvc.CountRecords(req.Context())
	if err != nil {
		return err
	}

	return writeJSON(w, map[string]any{
		"records_total": count,
		"uptime":        time.Since(r.startedAt).String(),
	})
}

// GET /v1/system/info
func (r *Router) handleInfo(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, map[string]any{
		"version":    r.version,
		"go_version": runtime.Version(),
		"started_at": r.startedAt,
	})
}

// POST /v1/ai/analyze
// Body: {"correlation_id": "<id>"}
// Fetches the stored payload for that correlation ID and runs AI analysis on it.
func (r *Router) handleAIAnalyze(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		http.Error(w, "ai analysis is not configured", http.StatusServiceUnavailable)
		return nil
	}

	var body struct {
		CorrelationID string `json:"correlation_id"`
	}
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes)).Decode(&body); err != nil {
		return &domain.ValidationError{Field: "body", Reason: err.Error()}
	}
	if err := middleware.ValidateCorrelationID(body.CorrelationID); err != nil {
		return &domain.ValidationError{Field: "correlation_id", Reason: err.Error()}
	}

	a, err := r.aiSvc.AnalyzeAndStore(req.Context(), body.CorrelationID)
	if err != nil {
		return err
	}

	return writeJSON(w, a)
}

// GET /v1/ai/analyze?offset=&limit=
func (r *Router) handleAIAnalyzeList(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		http.Error(w, "ai analysis is not configured", http.StatusServiceUnavailable)
		return nil
	}

	offset, limit := middleware.ParsePagination(
		req.URL.Query().Get("offset"),
		req.URL.Query().Get("limit"),
	)

	list, err := r.aiSvc.ListAnalyses(req.Context(), offset, limit)
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

// GET /v1/ai/analyze/{correlationID}
func (r *Router) handleAIAnalyzeLatest(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		http.Error(w, "ai analysis is not configured", http.StatusServiceUnavailable)
		return nil
	}

	id := chi.URLParam(req, "correlationID")
	if err := middleware.ValidateCorrelationID(id); err != nil {
		return &domain.ValidationError{Field: "correlationID", Reason: err.Error()}
	}

	a, err := r.aiSvc.LatestAnalysis(req.Context(), id)
	if err != nil {
		return err
	}
	if a == nil {
		return domain.ErrNotFound
	}
	return writeJSON(w, a)
}
