package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/0Papitchu/GBPBot-sub003/internal/circuitbreaker"
	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/0Papitchu/GBPBot-sub003/internal/executor"
	"github.com/0Papitchu/GBPBot-sub003/internal/runtimecfg"
	"github.com/shopspring/decimal"
)

const (
	maxRequestBodyBytes = 1 << 20 // 1 MB
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// ExecutorAPI is the read side of the execution engine the admin server
// exposes. *executor.Engine satisfies it.
type ExecutorAPI interface {
	GetStatus(id string) (model.TxStatus, *model.TxDetails)
	GetHistory(limit, offset int, chain model.Chain) []model.HistoryEntry
	GetFeeParams(ctx context.Context, priority model.Priority) model.FeeEstimate
	EstimateCost(ctx context.Context, unitLimit uint64, priority model.Priority) decimal.Decimal
	Healthy() bool
	Health() []executor.HealthSnapshot
	Breakers() map[model.Chain]circuitbreaker.State
	MaxHistorySize() int
}

// HistoryArchive lists entries already evicted from the in-memory ledger.
type HistoryArchive interface {
	ListHistory(ctx context.Context, network string, chain model.Chain, limit int) ([]model.HistoryEntry, error)
}

// RuntimeConfigWriter persists runtime overrides picked up by the watcher.
type RuntimeConfigWriter interface {
	Set(ctx context.Context, network, key, value string) error
}

// Server provides an HTTP-based admin API for operational management.
type Server struct {
	network  string
	api      ExecutorAPI
	archive  HistoryArchive
	runtime  RuntimeConfigWriter
	onChange func(ctx context.Context)
	limiter  *clientLimiter
	logger   *slog.Logger
	audit    *slog.Logger
}

// NewServer creates a new admin API server. The archive and runtime config
// endpoints answer 503 until their dependency is set through an option.
func NewServer(network string, api ExecutorAPI, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		network: network,
		api:     api,
		limiter: newClientLimiter(DefaultRateLimits()),
		logger:  logger.With("component", "admin"),
		audit:   logger.With("component", "admin_audit"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServerOption configures optional dependencies for the admin server.
type ServerOption func(*Server)

// WithHistoryArchive enables ?source=archive on the history endpoint.
func WithHistoryArchive(a HistoryArchive) ServerOption {
	return func(s *Server) { s.archive = a }
}

// WithRuntimeConfig enables runtime config writes. onChange runs after a
// successful write so the new value applies without waiting for the next poll.
func WithRuntimeConfig(w RuntimeConfigWriter, onChange func(ctx context.Context)) ServerOption {
	return func(s *Server) {
		s.runtime = w
		s.onChange = onChange
	}
}

// WithRateLimits replaces the per-client budgets of DefaultRateLimits.
func WithRateLimits(l RateLimits) ServerOption {
	return func(s *Server) { s.limiter = newClientLimiter(l) }
}

// Handler returns the HTTP handler for the admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/v1/tx/{id}", s.limited(always(classLookup), s.handleGetTransaction))
	mux.HandleFunc("GET /admin/v1/history", s.limited(historyClass, s.handleHistory))
	mux.HandleFunc("GET /admin/v1/fees", s.limited(always(classLookup), s.handleFees))
	mux.HandleFunc("GET /admin/v1/health", s.limited(always(classLookup), s.handleHealth))
	mux.HandleFunc("GET /admin/v1/breakers", s.limited(always(classLookup), s.handleBreakers))
	mux.HandleFunc("POST /admin/v1/runtime-config", s.limited(always(classWrite), s.handleSetRuntimeConfig))
	return mux
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody(msg))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// decodeJSONBody reads a size-bounded JSON request body into v.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, key string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

type transactionResponse struct {
	ID      string           `json:"id"`
	Status  model.TxStatus   `json:"status"`
	Details *model.TxDetails `json:"details,omitempty"`
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, details := s.api.GetStatus(id)
	if status == model.TxStatusUnknown {
		writeJSON(w, http.StatusNotFound, transactionResponse{ID: id, Status: status})
		return
	}
	writeJSON(w, http.StatusOK, transactionResponse{ID: id, Status: status, Details: details})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var chain model.Chain
	if raw := r.URL.Query().Get("chain"); raw != "" {
		c, err := model.ParseChain(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid chain value")
			return
		}
		chain = c
	}
	limit, ok := queryInt(r, "limit", defaultHistoryLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if limit == 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	if r.URL.Query().Get("source") != "archive" {
		writeJSON(w, http.StatusOK, s.api.GetHistory(limit, offset, chain))
		return
	}

	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "history archive not configured")
		return
	}
	entries, err := s.archive.ListHistory(r.Context(), s.network, chain, limit)
	if err != nil {
		s.logger.Error("list archived history failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type feesResponse struct {
	Priority      model.Priority    `json:"priority"`
	Fee           model.FeeEstimate `json:"fee"`
	UnitLimit     uint64            `json:"unit_limit,omitempty"`
	EstimatedCost *decimal.Decimal  `json:"estimated_cost,omitempty"`
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	priority, err := model.ParsePriority(r.URL.Query().Get("priority"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid priority value")
		return
	}

	resp := feesResponse{
		Priority: priority,
		Fee:      s.api.GetFeeParams(r.Context(), priority),
	}
	if raw := r.URL.Query().Get("units"); raw != "" {
		units, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "units must be a non-negative integer")
			return
		}
		cost := s.api.EstimateCost(r.Context(), units, priority)
		resp.UnitLimit = units
		resp.EstimatedCost = &cost
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !s.api.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": status == http.StatusOK,
		"loops":   s.api.Health(),
	})
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	states := s.api.Breakers()
	resp := make(map[string]string, len(states))
	for c, st := range states {
		resp[c.String()] = st.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

type runtimeConfigRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type runtimeConfigResponse struct {
	Key            string `json:"key"`
	Value          string `json:"value"`
	MaxHistorySize int    `json:"max_history_size"`
}

// handleSetRuntimeConfig stores an override and applies it right away, so
// the response carries the bound the ledger enforces afterwards.
func (s *Server) handleSetRuntimeConfig(w http.ResponseWriter, r *http.Request) {
	audit := s.beginConfigAudit(r)
	respond := func(status int, v any) {
		audit.finish(status)
		writeJSON(w, status, v)
	}

	if s.runtime == nil {
		respond(http.StatusServiceUnavailable, errorBody("runtime config not available"))
		return
	}
	var req runtimeConfigRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respond(http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	audit.add("key", req.Key, "value", req.Value)
	if err := runtimecfg.Validate(req.Key, req.Value); err != nil {
		respond(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	audit.add("previous_max_history_size", s.api.MaxHistorySize())
	if err := s.runtime.Set(r.Context(), s.network, req.Key, req.Value); err != nil {
		s.logger.Error("set runtime config failed", "key", req.Key, "error", err)
		respond(http.StatusInternalServerError, errorBody("internal server error"))
		return
	}
	if s.onChange != nil {
		s.onChange(r.Context())
	}

	applied := s.api.MaxHistorySize()
	audit.add("max_history_size", applied)
	respond(http.StatusOK, runtimeConfigResponse{Key: req.Key, Value: req.Value, MaxHistorySize: applied})
}
