package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"testing"
	"time"
)

func captureLog(fn func()) map[string]interface{} {
	old := logger
	defer func() { logger = old }()

	var buf bytes.Buffer
	logger = log.New(&buf, "", 0)

	fn()

	var result map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		return nil
	}
	return result
}

func TestRecordStrategyCall(t *testing.T) {
	ctx := WithRunInfo(context.Background(), RunInfo{
		RunID:  "run_123",
		Symbol: "BTCUSDT",
	})

	result := captureLog(func() {
		RecordStrategyCall(ctx, "http://strategy.local/decide", 120*time.Millisecond, 2, nil)
	})

	if result == nil {
		t.Fatal("expected JSON log output")
	}
	if result["name"] != "strategy_call" {
		t.Errorf("expected name=strategy_call, got %v", result["name"])
	}
	if result["orders_extracted"] != float64(2) {
		t.Errorf("expected orders_extracted=2, got %v", result["orders_extracted"])
	}
	if result["run_id"] != "run_123" {
		t.Errorf("expected run_id=run_123, got %v", result["run_id"])
	}
}

func TestRecordOrchestratorStep_Failure(t *testing.T) {
	ctx := context.Background()

	result := captureLog(func() {
		RecordOrchestratorStep(ctx, 50*time.Millisecond, 0, io.EOF)
	})

	if result == nil {
		t.Fatal("expected JSON log output")
	}
	if result["success"] != false {
		t.Errorf("expected success=false, got %v", result["success"])
	}
	if result["error"] != "EOF" {
		t.Errorf("expected error=EOF, got %v", result["error"])
	}
}

func TestRecordFill(t *testing.T) {
	ctx := WithRunInfo(context.Background(), RunInfo{RunID: "run_999"})

	result := captureLog(func() {
		RecordFill(ctx, 42, "ETHUSDT", 1234.5)
	})

	if result == nil {
		t.Fatal("expected JSON log output")
	}
	if result["order_id"] != float64(42) {
		t.Errorf("expected order_id=42, got %v", result["order_id"])
	}
	if result["symbol"] != "ETHUSDT" {
		t.Errorf("expected symbol=ETHUSDT, got %v", result["symbol"])
	}
}

func TestMain(m *testing.M) {
	if os.Getenv("VERBOSE") != "1" {
		logger = log.New(io.Discard, "", 0)
	}
	os.Exit(m.Run())
}
