package observability

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// LogEvent writes one structured JSON line carrying whatever run/flow
// context is attached, plus the supplied fields.
func LogEvent(ctx context.Context, level string, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.FlowID != "" {
		payload["flow_id"] = info.FlowID
	}
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.TaskID != "" {
		payload["task_id"] = info.TaskID
	}
	if info.Symbol != "" {
		payload["symbol"] = info.Symbol
	}

	for key, value := range normalizeFields(fields) {
		payload[key] = value
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("{\"level\":\"error\",\"event\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	logger.Print(string(raw))
}

// LogStrategyCallStart records the beginning of an outbound call to the
// external strategy service, mirroring the start/end pairing every
// blocking collaborator call uses.
func LogStrategyCallStart(ctx context.Context, strategyURL string, backtestTimestamp time.Time) {
	LogEvent(ctx, "info", "strategy_call_start", map[string]any{
		"strategy_url":      strategyURL,
		"backtest_timestamp": backtestTimestamp.Unix(),
	})
}

// LogStrategyCallEnd records the completion of a strategy call, success
// or failure, with latency.
func LogStrategyCallEnd(ctx context.Context, strategyURL string, duration time.Duration, err error) {
	fields := map[string]any{
		"strategy_url": strategyURL,
		"latency_ms":   duration.Milliseconds(),
		"success":      err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", "strategy_call_end", fields)
}

// LogStep records one orchestrator decision-interval step: the virtual
// time it advanced to and how many orders were extracted and placed.
func LogStep(ctx context.Context, t time.Time, ordersExtracted, ordersPlaced int) {
	LogEvent(ctx, "info", "orchestrator_step", map[string]any{
		"t":                t.Unix(),
		"orders_extracted": ordersExtracted,
		"orders_placed":    ordersPlaced,
	})
}

// LogFill records a single fill produced by the matching engine.
func LogFill(ctx context.Context, orderID int64, symbol, side, barKind string, size, price any) {
	LogEvent(ctx, "info", "fill", map[string]any{
		"order_id": orderID,
		"symbol":   symbol,
		"side":     side,
		"bar_kind": barKind,
		"size":     size,
		"price":    price,
	})
}

func normalizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		switch key {
		case "input", "payload", "order_request":
			out[key] = RedactValue(value)
			continue
		}
		if err, ok := value.(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = value
	}
	return out
}
