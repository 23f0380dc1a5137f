// Package strategyclient calls the external strategy service the
// orchestrator consults once per decision step. The service is never
// trusted to mutate the wallet directly: it only returns a declared
// tool_calls channel that internal/extraction turns into engine
// requests.
package strategyclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/observability"
	"virtual-exchange/internal/resilience"
)

// ToolCall is one entry of a strategy reply's tool_calls channel.
type ToolCall struct {
	Tool      string   `json:"tool"`
	Arguments ToolArgs `json:"arguments"`
}

// ToolArgs mirrors the coin-denominated order shape a placeOrder/
// cancelOrder tool call carries. decimal.Decimal marshals as a quoted
// JSON string, matching the cross-language wire contract.
type ToolArgs struct {
	Coin       string           `json:"coin"`
	IsBuy      bool             `json:"is_buy"`
	Sz         decimal.Decimal  `json:"sz"`
	LimitPx    *decimal.Decimal `json:"limit_px,omitempty"`
	ReduceOnly bool             `json:"reduce_only,omitempty"`
	TpSl       *TpSl            `json:"tpsl,omitempty"`
	OrderID    int64            `json:"order_id,omitempty"` // cancelOrder target
}

// TpSl carries the optional take-profit/stop-loss trigger prices that
// expand a placeOrder call into a parent plus two OCO children.
type TpSl struct {
	TakeProfitPx *decimal.Decimal `json:"take_profit_px,omitempty"`
	StopLossPx   *decimal.Decimal `json:"stop_loss_px,omitempty"`
}

// Request is the body posted to the strategy service for one step.
type Request struct {
	Symbol            string    `json:"symbol"`
	BacktestTimestamp time.Time `json:"backtest_timestamp"`
}

// Response is the strategy service's structured reply. ToolCalls is the
// declared location the orchestrator extracts orders from.
type Response struct {
	ToolCalls []ToolCall `json:"tool_calls"`
}

// Client calls one strategy URL, wrapped in a circuit breaker so a
// misbehaving strategy service degrades the run instead of hanging it.
type Client struct {
	http    *resty.Client
	breaker *resilience.CircuitBreaker
	timeout time.Duration
}

// New builds a Client posting to url with the given per-call timeout.
func New(url string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(url).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    httpClient,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultConfig("strategy-service")),
		timeout: timeout,
	}
}

// Call invokes the strategy service for symbol at backtestTimestamp.
// Failures are classified into domain.ErrStrategyTimeout or
// domain.ErrStrategyUnavailable, matching the orchestrator's soft-failure
// contract: the step proceeds with zero new orders on either.
func (c *Client) Call(ctx context.Context, symbol string, backtestTimestamp time.Time) (Response, error) {
	start := time.Now()
	req := Request{Symbol: symbol, BacktestTimestamp: backtestTimestamp}

	observability.LogEvent(ctx, "info", "strategy_call_start", map[string]any{
		"symbol": symbol, "backtest_timestamp": backtestTimestamp,
	})

	var callErr error
	defer func() {
		observability.LogEvent(ctx, "info", "strategy_call_end", map[string]any{
			"symbol": symbol, "duration_ms": time.Since(start).Milliseconds(), "error": errString(callErr),
		})
	}()

	result, err := c.breaker.ExecuteWithContext(ctx, func() (any, error) {
		var resp Response
		httpResp, err := c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&resp).
			Post("/")
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("strategyclient: %w", domain.ErrStrategyTimeout)
			}
			return nil, fmt.Errorf("strategyclient: %w: %v", domain.ErrStrategyUnavailable, err)
		}
		if httpResp.StatusCode() >= 500 {
			return nil, fmt.Errorf("strategyclient: %w: status %d", domain.ErrStrategyUnavailable, httpResp.StatusCode())
		}
		if httpResp.StatusCode() >= 400 {
			return nil, fmt.Errorf("strategyclient: %w: status %d", domain.ErrStrategyUnavailable, httpResp.StatusCode())
		}
		return resp, nil
	})
	if err != nil {
		callErr = err
		return Response{}, callErr
	}

	resp, _ := result.(Response)
	return resp, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
