package wallet

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestWallet_PlaceThenCancel_RestoresPreplaceState(t *testing.T) {
	w := New(d(10000), decimal.Zero)
	w.UpdateMarkPrice("BTCUSDT", d(100))

	before := w.Cash()
	order := &domain.Order{ID: 1, Symbol: "BTCUSDT", Side: domain.Buy, Type: domain.Limit, Size: d(1), Price: d(100)}

	if err := w.Reserve(order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Cash().Equal(before) {
		t.Fatal("expected cash to be debited on reserve")
	}

	w.Refund(order)
	if !w.Cash().Equal(before) {
		t.Fatalf("cash after cancel = %s, want %s (pre-place state)", w.Cash(), before)
	}
	if !order.Reserved.IsZero() {
		t.Fatalf("expected Reserved to be zeroed after refund, got %s", order.Reserved)
	}
}

func TestWallet_MarketUpSingleLong(t *testing.T) {
	w := New(d(10000), decimal.Zero)
	w.UpdateMarkPrice("BTCUSDT", d(100))

	order := &domain.Order{ID: 1, Symbol: "BTCUSDT", Side: domain.Buy, Type: domain.Market, Size: d(1)}
	if err := w.Reserve(order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trade := w.Fill(order, d(1), d(100), domain.BarOpen, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC))
	if !trade.Price.Equal(d(100)) {
		t.Fatalf("trade price = %s, want 100", trade.Price)
	}

	w.UpdateMarkPrice("BTCUSDT", d(104))
	if got := w.Equity(); !got.Equal(d(10004)) {
		t.Fatalf("equity = %s, want 10004", got)
	}

	pos := w.Position("BTCUSDT")
	if !pos.Size.Equal(d(1)) {
		t.Fatalf("position size = %s, want 1", pos.Size)
	}
}

func TestWallet_Reserve_InsufficientFunds(t *testing.T) {
	w := New(d(50), decimal.Zero)
	order := &domain.Order{ID: 1, Symbol: "BTCUSDT", Side: domain.Buy, Type: domain.Limit, Size: d(1), Price: d(100)}
	if err := w.Reserve(order); err != domain.ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestWallet_Reserve_ReduceOnlyRejectsWrongDirection(t *testing.T) {
	w := New(d(10000), decimal.Zero)
	// No position open; a reduce-only sell has nothing to reduce.
	order := &domain.Order{ID: 1, Symbol: "BTCUSDT", Side: domain.Sell, Type: domain.Limit, Size: d(1), Price: d(100), ReduceOnly: true}
	if err := w.Reserve(order); err != domain.ErrInvalidOrder {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
}

func TestWallet_ReduceOnlyClose_RealisesPnL(t *testing.T) {
	w := New(d(10000), decimal.Zero)
	w.UpdateMarkPrice("BTCUSDT", d(100))

	entry := &domain.Order{ID: 1, Symbol: "BTCUSDT", Side: domain.Buy, Type: domain.Market, Size: d(1)}
	if err := w.Reserve(entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Fill(entry, d(1), d(100), domain.BarOpen, time.Now().UTC())

	exit := &domain.Order{ID: 2, Symbol: "BTCUSDT", Side: domain.Sell, Type: domain.TakeProfit, Size: d(1), Price: d(105), ReduceOnly: true}
	if err := w.Reserve(exit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Fill(exit, d(1), d(105), domain.BarClose, time.Now().UTC())

	pos := w.Position("BTCUSDT")
	if !pos.IsFlat() {
		t.Fatalf("expected flat position, got size %s", pos.Size)
	}
	if !pos.RealisedPnL.Equal(d(5)) {
		t.Fatalf("realised PnL = %s, want 5", pos.RealisedPnL)
	}
	if got := w.Cash(); !got.Equal(d(10005)) {
		t.Fatalf("cash = %s, want 10005", got)
	}
}

func TestWallet_Fee_AppliedToNotional(t *testing.T) {
	w := New(d(10000), decimal.NewFromFloat(0.01))
	w.UpdateMarkPrice("BTCUSDT", d(100))

	order := &domain.Order{ID: 1, Symbol: "BTCUSDT", Side: domain.Buy, Type: domain.Market, Size: d(1)}
	if err := w.Reserve(order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	trade := w.Fill(order, d(1), d(100), domain.BarOpen, time.Now().UTC())
	if !trade.Fee.Equal(decimal.NewFromFloat(1)) {
		t.Fatalf("fee = %s, want 1", trade.Fee)
	}
	// 10000 - 100 (notional) - 1 (fee) = 9899
	if got := w.Cash(); !got.Equal(decimal.NewFromFloat(9899)) {
		t.Fatalf("cash = %s, want 9899", got)
	}
}

func TestWallet_Snapshot_ExcludesFlatPositions(t *testing.T) {
	w := New(d(10000), decimal.Zero)
	snap := w.Snapshot()
	if len(snap.Positions) != 0 {
		t.Fatalf("expected no positions in a fresh wallet, got %d", len(snap.Positions))
	}
	if !snap.Equity.Equal(d(10000)) {
		t.Fatalf("equity = %s, want 10000", snap.Equity)
	}
}
