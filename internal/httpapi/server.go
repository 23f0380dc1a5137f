// Package httpapi exposes the matching engine and backtest orchestrator
// over the cross-cutting HTTP surface of spec.md §6, shared verbatim by
// the virtual and (eventually) real exchange backends. Every handler
// speaks decimal-as-string for monetary/size fields and integer Unix
// seconds for structured-payload timestamps.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/auth"
	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/orchestrator"
	"virtual-exchange/internal/riskpolicy"
	"virtual-exchange/internal/runtime"
)

// Deps bundles the shared, read-only collaborators a fresh Orchestrator
// is wired from. One Deps is configured per process; every orchestrate
// or run call builds its own Orchestrator against it.
type Deps struct {
	Source   runtime.CandleSource
	Symbols  *domain.SymbolTable
	News     runtime.TopNewsReader
	Cache    *runtime.Cache
	Enforcer *riskpolicy.Enforcer
	Store    orchestrator.SnapshotStore

	// Auth, if non-nil, gates every route except /health behind JWT
	// bearer authentication. A nil Auth leaves the surface unauthenticated,
	// e.g. for a single-operator local backtest run.
	Auth *auth.JWTManager

	// DefaultStartingCash seeds every orchestrate/run call's wallet;
	// zero falls back to 10 000.
	DefaultStartingCash decimal.Decimal
	FeeRate             decimal.Decimal
	SlippageModel       string
	EngineVersion       string
}

// startingCash returns the configured default, or 10 000 if unset.
func (s *Server) startingCash() decimal.Decimal {
	if s.deps.DefaultStartingCash.IsZero() {
		return decimal.NewFromInt(10_000)
	}
	return s.deps.DefaultStartingCash
}

// Server is the HTTP surface of one exchange process. It holds the one
// Orchestrator most recently started by POST /backtest/orchestrate as
// "current" — the target of every /exchange/*, /info and /gpt-latest
// call (/top-news reads Deps.News directly) — behind a mutex, since spec.md §9 forbids concurrency
// within a run but a new orchestrate call legitimately replaces it.
type Server struct {
	deps Deps
	mux  *http.ServeMux

	mu      sync.Mutex
	current *orchestrator.Orchestrator
}

// NewServer builds a Server wired against deps and registers every
// route.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/exchange/order", s.wrap(s.handleExchangeOrder))
	s.mux.HandleFunc("/exchange/cancel", s.wrap(s.handleExchangeCancel))
	s.mux.HandleFunc("/exchange/modify", s.wrap(s.handleExchangeModify))
	s.mux.HandleFunc("/info", s.wrap(s.handleInfo))
	s.mux.HandleFunc("/gpt-latest/", s.wrap(s.handleGPTLatest))
	s.mux.HandleFunc("/top-news", s.wrap(s.handleTopNews))
	s.mux.HandleFunc("/backtest/orchestrate", s.wrap(s.handleBacktestOrchestrate))
	s.mux.HandleFunc("/backtest/run", s.wrap(s.handleBacktestRun))
}

// wrap applies the JWT middleware when auth is configured, leaving the
// handler untouched otherwise.
func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	if s.deps.Auth == nil {
		return h
	}
	return s.deps.Auth.MiddlewareFunc(h)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "healthy"})
}

func (s *Server) setCurrent(o *orchestrator.Orchestrator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = o
}

func (s *Server) getCurrent() *orchestrator.Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

// noRunActive is written whenever a handler needs "current" and none has
// been started yet by a prior /backtest/orchestrate call.
func noRunActive(w http.ResponseWriter) {
	http.Error(w, "no backtest run is active", http.StatusConflict)
}
