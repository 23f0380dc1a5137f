package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/httpapi"
	"virtual-exchange/internal/newsfeed"
	"virtual-exchange/internal/runtime"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func minuteCandles(symbol string, start time.Time, closes []int64) []domain.Candle {
	out := make([]domain.Candle, 0, len(closes))
	prevClose := closes[0]
	for i, c := range closes {
		open := prevClose
		high, low := open, open
		if c > high {
			high = c
		}
		if c < low {
			low = c
		}
		out = append(out, domain.Candle{
			Symbol: symbol, Interval: domain.Interval1m,
			StartTime: start.Add(time.Duration(i) * time.Minute),
			Open:      d(open), High: d(high), Low: d(low), Close: d(c), Volume: d(1),
		})
		prevClose = c
	}
	return out
}

func symbolTable(t *testing.T) *domain.SymbolTable {
	t.Helper()
	tbl, err := domain.NewSymbolTable(map[string]string{"BTC": "BTCUSDT"})
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

// TestOrchestrateThenInfo drives a full no-strategy orchestrate call and
// checks /info reports the unchanged starting cash.
func TestOrchestrateThenInfo(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	source := runtime.NewInMemoryCandleSource(minuteCandles("BTCUSDT", start, []int64{100, 101, 102, 103, 104}))

	srv := httpapi.NewServer(httpapi.Deps{
		Source:  source,
		Symbols: symbolTable(t),
	})

	orchestrateBody := map[string]any{
		"symbol":                "BTCUSDT",
		"start_time":            start.Format(time.RFC3339),
		"end_time":              start.Add(5 * time.Minute).Format(time.RFC3339),
		"meeting_interval_hours": 0.0,
	}
	rec, out := doJSON(t, srv, http.MethodPost, "/backtest/orchestrate", orchestrateBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("orchestrate status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if out["status"] != "ok" {
		t.Fatalf("status = %v, want ok", out["status"])
	}

	rec, out = doJSON(t, srv, http.MethodPost, "/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if out["cash"] != "10000" {
		t.Errorf("cash = %v, want 10000", out["cash"])
	}
}

// TestExchangeOrderPlaceCancel places a limit order manually through
// /exchange/order after a strategy-less orchestrate call establishes
// "current", then cancels it and confirms the refund via /info.
func TestExchangeOrderPlaceCancel(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	source := runtime.NewInMemoryCandleSource(minuteCandles("BTCUSDT", start, []int64{100, 101, 102, 103, 104}))

	srv := httpapi.NewServer(httpapi.Deps{
		Source:  source,
		Symbols: symbolTable(t),
	})

	doJSON(t, srv, http.MethodPost, "/backtest/orchestrate", map[string]any{
		"symbol":     "BTCUSDT",
		"start_time": start.Format(time.RFC3339),
		"end_time":   start.Add(5 * time.Minute).Format(time.RFC3339),
	})

	rec, out := doJSON(t, srv, http.MethodPost, "/exchange/order", map[string]any{
		"coin": "BTC", "is_buy": true, "sz": "1", "limit_px": "90", "order_type": "Limit",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("order status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if out["rejected"] == true {
		t.Fatalf("order rejected: %v", out["reason"])
	}
	oid, ok := out["oid"].(float64)
	if !ok || oid == 0 {
		t.Fatalf("missing oid in response: %v", out)
	}
	if out["state"] != "Open" {
		t.Errorf("state = %v, want Open", out["state"])
	}

	rec, out = doJSON(t, srv, http.MethodPost, "/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d", rec.Code)
	}
	if out["cash"] != "9910" {
		t.Errorf("cash after reserving a 90*1 limit buy = %v, want 9910", out["cash"])
	}

	cancelBody := map[string]any{"oid": int64(oid)}
	rec, out = doJSON(t, srv, http.MethodPost, "/exchange/cancel", cancelBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if out["state"] != "Cancelled" {
		t.Errorf("state after cancel = %v, want Cancelled", out["state"])
	}

	rec, out = doJSON(t, srv, http.MethodPost, "/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d", rec.Code)
	}
	if out["cash"] != "10000" {
		t.Errorf("cash after cancel refund = %v, want 10000", out["cash"])
	}
}

// TestExchangeOrderUnknownOrderTypeRejected confirms the order_type
// boundary is reified into the closed set at the HTTP layer.
func TestExchangeOrderUnknownOrderTypeRejected(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	source := runtime.NewInMemoryCandleSource(minuteCandles("BTCUSDT", start, []int64{100, 101}))

	srv := httpapi.NewServer(httpapi.Deps{Source: source, Symbols: symbolTable(t)})
	doJSON(t, srv, http.MethodPost, "/backtest/orchestrate", map[string]any{
		"symbol":     "BTCUSDT",
		"start_time": start.Format(time.RFC3339),
		"end_time":   start.Add(1 * time.Minute).Format(time.RFC3339),
	})

	rec, out := doJSON(t, srv, http.MethodPost, "/exchange/order", map[string]any{
		"coin": "BTC", "is_buy": true, "sz": "1", "order_type": "Bogus",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["rejected"] != true {
		t.Fatalf("expected a rejection, got %v", out)
	}
}

// TestBacktestRunMatchingOnly exercises the lower-level entry that
// performs matching only against a pre-built order list.
func TestBacktestRunMatchingOnly(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	source := runtime.NewInMemoryCandleSource(minuteCandles("BTCUSDT", start, []int64{100, 101, 102, 103, 104}))

	srv := httpapi.NewServer(httpapi.Deps{Source: source, Symbols: symbolTable(t)})

	rec, out := doJSON(t, srv, http.MethodPost, "/backtest/run", map[string]any{
		"symbol":     "BTCUSDT",
		"start_time": start.Format(time.RFC3339),
		"end_time":   start.Add(5 * time.Minute).Format(time.RFC3339),
		"orders": []map[string]any{
			{"coin": "BTC", "is_buy": true, "sz": "1", "order_type": "Market"},
			{"coin": "BTC", "is_buy": false, "sz": "1", "order_type": "Market"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if out["status"] != "ok" {
		t.Fatalf("status = %v, want ok, body = %s", out["status"], rec.Body.String())
	}
	resp, ok := out["response"].(map[string]any)
	if !ok {
		t.Fatalf("missing response field: %v", out)
	}
	trades, ok := resp["trades"].([]any)
	if !ok || len(trades) != 1 {
		t.Fatalf("trades = %v, want exactly one", resp["trades"])
	}
}

// TestGPTLatestReturnsIndicatorBundle checks that a symbol with enough
// one-minute history produces a populated 1m bundle (sma_20 set).
func TestGPTLatestReturnsIndicatorBundle(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := make([]int64, 0, 120)
	for i := int64(0); i < 120; i++ {
		closes = append(closes, 100+i%5)
	}
	source := runtime.NewInMemoryCandleSource(minuteCandles("BTCUSDT", start, closes))

	srv := httpapi.NewServer(httpapi.Deps{Source: source, Symbols: symbolTable(t)})
	doJSON(t, srv, http.MethodPost, "/backtest/orchestrate", map[string]any{
		"symbol":     "BTCUSDT",
		"start_time": start.Format(time.RFC3339),
		"end_time":   start.Add(119 * time.Minute).Format(time.RFC3339),
	})

	at := start.Add(100 * time.Minute).Unix()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/gpt-latest/BTCUSDT?timestamp="+strconv.FormatInt(at, 10), nil)
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	intervals, ok := out["intervals"].(map[string]any)
	if !ok {
		t.Fatalf("missing intervals: %v", out)
	}
	oneMin, ok := intervals["1m"].(map[string]any)
	if !ok {
		t.Fatalf("missing 1m bundle: %v", intervals)
	}
	if oneMin["sma_20"] == nil {
		t.Errorf("expected sma_20 to be populated with 100 candles of history")
	}
}

// TestTopNewsServesStaticSource checks the news surface works without
// any active backtest run.
func TestTopNewsServesStaticSource(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	feed := newsfeed.NewFeed()
	feed.Load([]newsfeed.Event{
		{ID: "1", Title: "CPI release", Source: "static", ScheduledAt: now.Add(-time.Hour), Impact: newsfeed.ImpactHigh},
		{ID: "2", Title: "Minor update", Source: "static", ScheduledAt: now.Add(-2 * time.Hour), Impact: newsfeed.ImpactLow},
	})

	srv := httpapi.NewServer(httpapi.Deps{News: feed})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/top-news?before_timestamp="+strconv.FormatInt(now.Unix(), 10)+"&k=1", nil)
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	news, ok := out["news"].([]any)
	if !ok || len(news) != 1 {
		t.Fatalf("news = %v, want exactly one (k=1)", out["news"])
	}
}

