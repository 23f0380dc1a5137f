package observability

import (
	"context"
	"time"
)

// RecordStrategyCall logs one call to the external strategy service as a
// metric event, distinct from the start/end pair logged in real time.
func RecordStrategyCall(ctx context.Context, strategyURL string, duration time.Duration, ordersExtracted int, err error) {
	fields := map[string]any{
		"name":             "strategy_call",
		"strategy_url":     strategyURL,
		"latency_ms":       duration.Milliseconds(),
		"orders_extracted": ordersExtracted,
		"success":          err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", "metric", fields)
}

// RecordOrchestratorStep logs one advance of the virtual clock.
func RecordOrchestratorStep(ctx context.Context, duration time.Duration, ordersPlaced int, err error) {
	fields := map[string]any{
		"name":          "orchestrator_step",
		"latency_ms":    duration.Milliseconds(),
		"orders_placed": ordersPlaced,
		"success":       err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", "metric", fields)
}

// RecordFill logs one matching-engine fill.
func RecordFill(ctx context.Context, orderID int64, symbol string, notional float64) {
	LogEvent(ctx, "info", "metric", map[string]any{
		"name":     "fill",
		"order_id": orderID,
		"symbol":   symbol,
		"notional": notional,
	})
}

// RecordRunComplete logs the end of a backtest run.
func RecordRunComplete(ctx context.Context, duration time.Duration, trades int, err error) {
	fields := map[string]any{
		"name":       "run_complete",
		"latency_ms": duration.Milliseconds(),
		"trades":     trades,
		"success":    err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", "metric", fields)
}
