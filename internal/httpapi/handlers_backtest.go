package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/orchestrator"
)

func parseRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_time: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_time must be after start_time")
	}
	return start, end, nil
}

func (s *Server) newOrchestratorError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, domain.ErrDataGap) {
		status = http.StatusUnprocessableEntity
	}
	http.Error(w, err.Error(), status)
}

// handleBacktestOrchestrate implements POST /backtest/orchestrate: wires
// a fresh Orchestrator, runs its full decision loop against the
// configured strategy service, and replaces "current" with it.
func (s *Server) handleBacktestOrchestrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req backtestOrchestrateRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	start, end, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	interval := orchestrator.DefaultDecisionInterval
	if req.MeetingIntervalHours > 0 {
		interval = time.Duration(req.MeetingIntervalHours * float64(time.Hour))
	}

	cfg := orchestrator.Config{
		Symbol:           req.Symbol,
		StartTime:        start,
		EndTime:          end,
		DecisionInterval: interval,
		StrategyURL:      req.StrategyAgentURL,
		FeeRate:          s.deps.FeeRate,
		SlippageModel:    s.deps.SlippageModel,
		StartingCash:     s.startingCash(),
		EngineVersion:    s.deps.EngineVersion,
	}

	o, err := orchestrator.New(r.Context(), cfg, s.deps.Source, s.deps.Symbols, s.deps.News, s.deps.Cache, s.deps.Enforcer, s.deps.Store)
	if err != nil {
		s.newOrchestratorError(w, err)
		return
	}

	result, err := o.Run(r.Context())
	if err != nil && !result.Failed {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.setCurrent(o)

	status := "ok"
	if result.Failed {
		status = "failed"
	}
	writeJSON(w, http.StatusOK, backtestResponse{Status: status, RunID: o.RunID(), Response: reportToWire(result.Report)})
}

// handleBacktestRun implements POST /backtest/run: a lower-level entry
// that performs matching only over a pre-built order list, with no
// strategy service consulted and without disturbing "current".
func (s *Server) handleBacktestRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req backtestRunRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	start, end, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg := orchestrator.Config{
		Symbol:           req.Symbol,
		StartTime:        start,
		EndTime:          end,
		DecisionInterval: end.Sub(start), // one step: matching only, no decision cadence
		FeeRate:          s.deps.FeeRate,
		SlippageModel:    s.deps.SlippageModel,
		StartingCash:     s.startingCash(),
		EngineVersion:    s.deps.EngineVersion,
	}

	o, err := orchestrator.New(r.Context(), cfg, s.deps.Source, s.deps.Symbols, s.deps.News, s.deps.Cache, s.deps.Enforcer, nil)
	if err != nil {
		s.newOrchestratorError(w, err)
		return
	}

	var diagnostics []orchestrator.Diagnostic
	for _, orderReq := range req.Orders {
		symbol, err := s.deps.Symbols.Symbol(orderReq.Coin)
		if err != nil {
			diagnostics = append(diagnostics, orchestrator.Diagnostic{At: start, IntentSummary: "placeOrder", Err: err})
			continue
		}
		orderType, err := translateOrderType(orderReq.OrderType)
		if err != nil {
			diagnostics = append(diagnostics, orchestrator.Diagnostic{At: start, IntentSummary: "placeOrder", Err: err})
			continue
		}
		placeReq := buildEntryRequest(symbol, orderReq, orderType)
		if _, err := o.PlaceManual(r.Context(), placeReq, start); err != nil {
			diagnostics = append(diagnostics, orchestrator.Diagnostic{At: start, IntentSummary: "placeOrder", Err: err})
		}
	}

	result, err := o.Run(r.Context())
	if err != nil && !result.Failed {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	result.Diagnostics = append(diagnostics, result.Diagnostics...)

	status := "ok"
	if result.Failed {
		status = "failed"
	}
	writeJSON(w, http.StatusOK, backtestResponse{Status: status, RunID: o.RunID(), Response: reportToWire(result.Report)})
}
