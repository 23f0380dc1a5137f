// Package orchestrator implements the outer loop of a backtest run:
// it advances the virtual clock in fixed decision intervals, consults
// an external strategy service between steps, extracts any intended
// orders from its reply, hands them to the matching engine, and
// produces a reproducible Report once the declared range is exhausted.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/engine"
	"virtual-exchange/internal/extraction"
	"virtual-exchange/internal/observability"
	"virtual-exchange/internal/report"
	"virtual-exchange/internal/riskpolicy"
	"virtual-exchange/internal/runtime"
	"virtual-exchange/internal/strategyclient"
	"virtual-exchange/internal/wallet"
)

// Config carries one run's inputs, spec.md §4.4.
type Config struct {
	Symbol           string
	StartTime        time.Time
	EndTime          time.Time
	DecisionInterval time.Duration // default 4h
	StrategyURL      string        // empty: no strategy calls, zero new orders every step
	FeeRate          decimal.Decimal
	SlippageModel    string
	StartingCash     decimal.Decimal
	EngineVersion    string
	StrategyConfig   string // logged verbatim into the reproducibility block
	StrategyTimeout  time.Duration
}

// DefaultDecisionInterval is spec.md §4.4's default meeting cadence.
const DefaultDecisionInterval = 4 * time.Hour

// DefaultStrategyTimeout bounds the outbound strategy call per spec.md §5.
const DefaultStrategyTimeout = 10 * time.Second

func (c *Config) withDefaults() {
	if c.DecisionInterval <= 0 {
		c.DecisionInterval = DefaultDecisionInterval
	}
	if c.StrategyTimeout <= 0 {
		c.StrategyTimeout = DefaultStrategyTimeout
	}
}

// Diagnostic records a placement-time error the orchestrator caught and
// annotated rather than let abort the run, per spec.md §7's propagation
// policy.
type Diagnostic struct {
	At            time.Time
	IntentSummary string
	Err           error
}

// SnapshotStore persists the wallet's complete state after every
// state-changing call, satisfied by internal/walletstore.Store.
type SnapshotStore interface {
	Save(ctx context.Context, runID string, state wallet.State) error
}

// Result is everything a run produces: the Report when the run reaches
// its end time uninterrupted, the diagnostics log of non-fatal
// placement errors, and Failed/FailureReason when a fatal error (§3.2's
// invariants, a DataGap, a ClockRegression, a malformed candle) aborted
// it early.
type Result struct {
	Report        report.Report
	Diagnostics   []Diagnostic
	Failed        bool
	FailureReason error
}

// Orchestrator drives exactly one backtest run. It exclusively owns the
// Engine and the Runner; nothing else advances either.
type Orchestrator struct {
	cfg      Config
	runID    string
	symbol   string
	symbols  *domain.SymbolTable
	strategy *strategyclient.Client
	enforcer *riskpolicy.Enforcer
	store    SnapshotStore

	wallet *wallet.Wallet
	runner *runtime.Runner
	engine *engine.Engine
}

// New wires a fresh Runner/Engine/Wallet triple for one run, rejecting a
// historical range the source cannot fully cover (ErrDataGap) before any
// order is ever accepted. symbols resolves the coin names the strategy
// service speaks; enforcer and store may be nil to disable risk gating
// and snapshot persistence respectively.
func New(
	ctx context.Context,
	cfg Config,
	source runtime.CandleSource,
	symbols *domain.SymbolTable,
	news runtime.TopNewsReader,
	cache *runtime.Cache,
	enforcer *riskpolicy.Enforcer,
	store SnapshotStore,
) (*Orchestrator, error) {
	cfg.withDefaults()

	w := wallet.New(cfg.StartingCash, cfg.FeeRate)

	runner, err := runtime.NewRunner(ctx, cfg.Symbol, cfg.StartTime, cfg.EndTime, source, w, news, cache)
	if err != nil {
		return nil, err
	}

	eng := engine.New(cfg.Symbol, source, w, cfg.StartTime)

	var client *strategyclient.Client
	if cfg.StrategyURL != "" {
		client = strategyclient.New(cfg.StrategyURL, cfg.StrategyTimeout)
	}

	return &Orchestrator{
		cfg:      cfg,
		runID:    uuid.NewString(),
		symbol:   cfg.Symbol,
		symbols:  symbols,
		strategy: client,
		enforcer: enforcer,
		store:    store,
		wallet:   w,
		runner:   runner,
		engine:   eng,
	}, nil
}

// RunID returns the identifier this run's wallet snapshots and report
// fragments are persisted under.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run drives the full loop of spec.md §4.4 from StartTime to EndTime and
// assembles the final Report. A fatal error aborts the loop and returns
// a Result with Failed set and whatever partial report can still be
// built from the trades and equity samples collected so far.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	ctx = observability.WithRunInfo(ctx, observability.RunInfo{RunID: o.runID, Symbol: o.symbol})

	var (
		diagnostics      []Diagnostic
		curve            []report.EquityPoint
		barsWithPosition int
		totalBars        int
		peakEquity       = o.cfg.StartingCash
		current          = o.cfg.StartTime
	)

	for current.Before(o.cfg.EndTime) {
		stepStart := time.Now()
		flowCtx := observability.WithFlowID(ctx, observability.NewFlowID())

		// The Runner's clock is created at StartTime, so the first step is
		// already positioned there; setting an equal time is a regression.
		if !current.Equal(o.runner.GetCurrentTime()) {
			if err := o.runner.SetCurrentTime(current); err != nil {
				return o.failed(diagnostics, curve, barsWithPosition, totalBars, err), err
			}
		}

		o.primeMarkPrice(flowCtx, current)

		ordersExtracted, ordersPlaced := o.step(flowCtx, current, &diagnostics, peakEquity)

		next := current.Add(o.cfg.DecisionInterval)
		if next.After(o.cfg.EndTime) {
			next = o.cfg.EndTime
		}

		if err := o.engine.AdvanceTo(flowCtx, next); err != nil {
			return o.failed(diagnostics, curve, barsWithPosition, totalBars, err), err
		}

		equity := o.wallet.Equity()
		curve = append(curve, report.EquityPoint{At: next, Equity: equity})
		if equity.GreaterThan(peakEquity) {
			peakEquity = equity
		}
		totalBars++
		if !o.wallet.Position(o.symbol).IsFlat() {
			barsWithPosition++
		}

		o.persistSnapshot(flowCtx)

		observability.RecordOrchestratorStep(flowCtx, time.Since(stepStart), ordersPlaced, nil)
		observability.LogStep(flowCtx, next, ordersExtracted, ordersPlaced)

		current = next
	}

	rep := o.buildReport(curve, barsWithPosition, totalBars)
	return Result{Report: rep, Diagnostics: diagnostics}, nil
}

// primeMarkPrice reads the most recent closed one-minute candle for
// equity accounting, per spec.md §4.4 step (b). A missing candle (the
// very first instant of a run before any bar has closed) leaves the
// mark price unset and is not itself an error.
func (o *Orchestrator) primeMarkPrice(ctx context.Context, at time.Time) {
	candles, err := o.runner.GetCandles(ctx, o.symbol, domain.Interval1m, 1)
	if err != nil || len(candles) == 0 {
		return
	}
	o.wallet.UpdateMarkPrice(o.symbol, candles[len(candles)-1].Close)
}

// step calls the external strategy service (if configured), extracts
// any intended orders from its reply, and places them. A failed
// strategy call or a rejected extraction is logged as a Diagnostic and
// never aborts the run.
func (o *Orchestrator) step(ctx context.Context, at time.Time, diagnostics *[]Diagnostic, peakEquity decimal.Decimal) (extracted, placed int) {
	if o.strategy == nil {
		return 0, 0
	}

	resp, err := o.strategy.Call(ctx, o.symbol, at)
	if err != nil {
		*diagnostics = append(*diagnostics, Diagnostic{At: at, IntentSummary: "strategy_call", Err: err})
		return 0, 0
	}

	places, cancels, rejections := extraction.Extract(resp.ToolCalls, o.symbols)
	extracted = len(places) + len(cancels)

	for _, rej := range rejections {
		*diagnostics = append(*diagnostics, Diagnostic{At: at, IntentSummary: rej.Tool, Err: rej.Reason})
	}

	for _, c := range cancels {
		if err := o.engine.Cancel(c.OrderID); err != nil {
			*diagnostics = append(*diagnostics, Diagnostic{At: at, IntentSummary: "cancelOrder", Err: err})
			continue
		}
		placed++
	}

	for _, p := range places {
		if violations := o.checkRisk(p, at, peakEquity); !violations.IsEmpty() {
			*diagnostics = append(*diagnostics, Diagnostic{At: at, IntentSummary: "placeOrder", Err: violations})
			continue
		}
		order, err := extraction.Apply(ctx, o.engine, p, at)
		if err != nil {
			*diagnostics = append(*diagnostics, Diagnostic{At: at, IntentSummary: "placeOrder", Err: err})
			continue
		}
		observability.LogEvent(ctx, "info", "order_placed", map[string]any{"order_id": order.ID, "symbol": order.Symbol})
		placed++
	}

	return extracted, placed
}

// checkRisk evaluates the configured riskpolicy (if any) against the
// intended entry before it ever reaches engine.Place.
func (o *Orchestrator) checkRisk(p extraction.PlaceCall, at time.Time, peakEquity decimal.Decimal) riskpolicy.Violations {
	if o.enforcer == nil {
		return nil
	}

	equity := o.wallet.Equity()
	drawdown := decimal.Zero
	if peakEquity.Sign() > 0 && equity.LessThan(peakEquity) {
		drawdown = peakEquity.Sub(equity).Div(peakEquity)
	}

	if vs := o.enforcer.CheckPortfolio(riskpolicy.PortfolioState{
		Equity:          equity,
		OpenPositions:   len(o.engine.OpenOrders()),
		CurrentDrawdown: drawdown,
	}); !vs.IsEmpty() {
		return vs
	}

	entryPrice := p.Entry.Price
	if entryPrice.IsZero() {
		entryPrice = o.wallet.Position(p.Entry.Symbol).AvgEntryPrice
	}
	stopPrice := decimal.Zero
	if p.StopLoss != nil {
		stopPrice = p.StopLoss.Price
	}

	return o.enforcer.CheckOrder(riskpolicy.OrderCheck{
		Symbol:        p.Entry.Symbol,
		EntryPrice:    entryPrice,
		StopPrice:     stopPrice,
		PositionValue: entryPrice.Mul(p.Entry.Size),
		AccountEquity: equity,
	})
}

func (o *Orchestrator) persistSnapshot(ctx context.Context) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, o.runID, o.wallet.Export()); err != nil {
		observability.LogEvent(ctx, "error", "snapshot_save_failed", map[string]any{"error": err.Error()})
	}
}

// failed finalizes whatever partial report the collected trades and
// equity samples support and flags the run as Failed, per spec.md §7's
// propagation policy for fatal errors.
func (o *Orchestrator) failed(diagnostics []Diagnostic, curve []report.EquityPoint, barsWithPosition, totalBars int, err error) Result {
	return Result{
		Report:        o.buildReport(curve, barsWithPosition, totalBars),
		Diagnostics:   diagnostics,
		Failed:        true,
		FailureReason: err,
	}
}

// buildReport assembles the end-of-run Report from the wallet's trade
// log and the equity samples collected this run.
func (o *Orchestrator) buildReport(curve []report.EquityPoint, barsWithPosition, totalBars int) report.Report {
	trades := o.wallet.Trades()

	tradedNotional := decimal.Zero
	for _, t := range trades {
		tradedNotional = tradedNotional.Add(t.Price.Mul(t.Size))
	}

	tradeRecords := report.BuildTrades(trades, nil)
	maxDD, mddDuration := report.MaxDrawdown(curve)
	winRate, avgWin, avgLoss, profitFactor, exposure, turnover := report.Metrics(
		tradeRecords, curve, barsWithPosition, totalBars, tradedNotional, o.cfg.StartingCash)

	barsPerYear := float64(0)
	if o.cfg.DecisionInterval > 0 {
		barsPerYear = (365 * 24 * time.Hour).Seconds() / o.cfg.DecisionInterval.Seconds()
	}

	return report.Report{
		Trades:       tradeRecords,
		EquityCurve:  curve,
		MaxDrawdown:  maxDD,
		MDDDuration:  mddDuration,
		WinRate:      winRate,
		AvgWin:       avgWin,
		AvgLoss:      avgLoss,
		ProfitFactor: profitFactor,
		Exposure:     exposure,
		Turnover:     turnover,
		SharpeRatio:  report.Sharpe(curve, barsPerYear),
		Reproducibility: report.Reproducibility{
			DataHash:       runtime.DataHash(o.engine.ConsumedCandles()),
			StrategyConfig: o.cfg.StrategyConfig,
			EngineVersion:  o.cfg.EngineVersion,
			FeeRate:        o.cfg.FeeRate,
			SlippageModel:  o.cfg.SlippageModel,
		},
	}
}

// PlaceManual lets a lower-level caller (the /backtest/run surface,
// which performs matching only, against a pre-built order list rather
// than a strategy service) place an order directly through the risk
// gate without going through the decision loop.
func (o *Orchestrator) PlaceManual(ctx context.Context, req engine.PlaceRequest, at time.Time) (*domain.Order, error) {
	if o.enforcer != nil {
		equity := o.wallet.Equity()
		if vs := o.enforcer.CheckPortfolio(riskpolicy.PortfolioState{
			Equity:        equity,
			OpenPositions: len(o.engine.OpenOrders()),
		}); !vs.IsEmpty() {
			return nil, fmt.Errorf("orchestrator: %w", vs)
		}
	}
	return o.engine.Place(ctx, req, at)
}

// Wallet exposes the account snapshot for a /info-style read.
func (o *Orchestrator) Wallet() *wallet.Wallet {
	return o.wallet
}

// Runner exposes the virtual clock and windowed reads for a
// /gpt-latest or /top-news-style surface.
func (o *Orchestrator) Runner() *runtime.Runner {
	return o.runner
}

// Engine exposes the matching engine for direct cancel/modify calls
// from the HTTP surface.
func (o *Orchestrator) Engine() *engine.Engine {
	return o.engine
}
