package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/runtime"
	"virtual-exchange/internal/wallet"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func minuteCandle(symbol string, start time.Time, open, high, low, close_ decimal.Decimal) domain.Candle {
	return domain.Candle{
		Symbol:    symbol,
		Interval:  domain.Interval1m,
		StartTime: start,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close_,
		Volume:    d(1),
	}
}

func TestEngine_MarketOrder_FillsAtOpen(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []domain.Candle{
		minuteCandle("BTC-USD", start, d(100), d(104), d(99), d(104)),
	}
	src := runtime.NewInMemoryCandleSource(candles)
	w := wallet.New(d(10000), decimal.Zero)
	e := New("BTC-USD", src, w, start)

	ctx := context.Background()
	order, err := e.Place(ctx, PlaceRequest{
		Symbol: "BTC-USD",
		Side:   domain.Buy,
		Type:   domain.Market,
		Size:   d(1),
	}, start.Add(-time.Minute))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if err := e.AdvanceTo(ctx, start.Add(time.Minute)); err != nil {
		t.Fatalf("advance: %v", err)
	}

	got, ok := e.Order(order.ID)
	if !ok || got.State != domain.Filled {
		t.Fatalf("expected order filled, got %+v", got)
	}
	if !got.AvgFillPrice.Equal(d(100)) {
		t.Fatalf("avg fill price = %s, want 100", got.AvgFillPrice)
	}

	// spec.md acceptance scenario: fill@100, mark@104 -> equity 10004.
	if !w.Equity().Equal(d(10004)) {
		t.Fatalf("equity = %s, want 10004", w.Equity())
	}
}

func TestEngine_OCO_TakeProfitWinsOnTie(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entryBar := minuteCandle("BTC-USD", start, d(100), d(100), d(100), d(100))
	exitBar := minuteCandle("BTC-USD", start.Add(time.Minute), d(100), d(106), d(94), d(100))
	src := runtime.NewInMemoryCandleSource([]domain.Candle{entryBar, exitBar})
	w := wallet.New(d(10000), decimal.Zero)
	e := New("BTC-USD", src, w, start)
	ctx := context.Background()

	entry, err := e.Place(ctx, PlaceRequest{
		Symbol: "BTC-USD", Side: domain.Buy, Type: domain.Market, Size: d(1),
	}, start.Add(-time.Minute))
	if err != nil {
		t.Fatalf("place entry: %v", err)
	}
	if err := e.AdvanceTo(ctx, start.Add(time.Minute)); err != nil {
		t.Fatalf("advance 1: %v", err)
	}

	tp, err := e.Place(ctx, PlaceRequest{
		Symbol: "BTC-USD", Side: domain.Sell, Type: domain.TakeProfit, Size: d(1),
		Price: d(105), ReduceOnly: true, ParentID: entry.ID,
	}, start)
	if err != nil {
		t.Fatalf("place tp: %v", err)
	}
	sl, err := e.Place(ctx, PlaceRequest{
		Symbol: "BTC-USD", Side: domain.Sell, Type: domain.StopLoss, Size: d(1),
		Price: d(95), ReduceOnly: true, ParentID: entry.ID,
	}, start)
	if err != nil {
		t.Fatalf("place sl: %v", err)
	}

	if err := e.AdvanceTo(ctx, start.Add(2*time.Minute)); err != nil {
		t.Fatalf("advance 2: %v", err)
	}

	gotTP, _ := e.Order(tp.ID)
	gotSL, _ := e.Order(sl.ID)
	if gotTP.State != domain.Filled {
		t.Fatalf("expected TP filled, got %s", gotTP.State)
	}
	if gotSL.State != domain.Cancelled || gotSL.CancelReason != domain.CancelReasonOCO {
		t.Fatalf("expected SL cancelled via OCO, got state=%s reason=%s", gotSL.State, gotSL.CancelReason)
	}

	pos := w.Position("BTC-USD")
	if !pos.IsFlat() {
		t.Fatalf("expected flat position after OCO resolution, got %+v", pos)
	}
}

func TestEngine_SameCandlePlacement_Excluded(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bar := minuteCandle("BTC-USD", start, d(100), d(110), d(90), d(105))
	src := runtime.NewInMemoryCandleSource([]domain.Candle{bar})
	w := wallet.New(d(10000), decimal.Zero)
	e := New("BTC-USD", src, w, start)
	ctx := context.Background()

	order, err := e.Place(ctx, PlaceRequest{
		Symbol: "BTC-USD", Side: domain.Buy, Type: domain.Market, Size: d(1),
	}, start)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if err := e.AdvanceTo(ctx, start.Add(time.Minute)); err != nil {
		t.Fatalf("advance: %v", err)
	}

	got, _ := e.Order(order.ID)
	if got.State != domain.Open {
		t.Fatalf("expected order to remain open (excluded from same-bar match), got %s", got.State)
	}
}

func TestEngine_Cancel_RefundsReservation(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src := runtime.NewInMemoryCandleSource(nil)
	w := wallet.New(d(10000), decimal.Zero)
	e := New("BTC-USD", src, w, start)
	ctx := context.Background()

	order, err := e.Place(ctx, PlaceRequest{
		Symbol: "BTC-USD", Side: domain.Buy, Type: domain.Limit, Size: d(1), Price: d(100),
	}, start)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if !w.Cash().Equal(d(9900)) {
		t.Fatalf("cash after reserve = %s, want 9900", w.Cash())
	}

	if err := e.Cancel(order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !w.Cash().Equal(d(10000)) {
		t.Fatalf("cash after cancel = %s, want 10000", w.Cash())
	}

	if err := e.Cancel(order.ID); err != domain.ErrAlreadyTerminal {
		t.Fatalf("expected ErrAlreadyTerminal on double cancel, got %v", err)
	}
}

func TestEngine_Modify_PreservesParentID(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src := runtime.NewInMemoryCandleSource(nil)
	w := wallet.New(d(10000), decimal.Zero)
	e := New("BTC-USD", src, w, start)
	ctx := context.Background()

	order, err := e.Place(ctx, PlaceRequest{
		Symbol: "BTC-USD", Side: domain.Buy, Type: domain.Limit, Size: d(1), Price: d(100), ParentID: 42,
	}, start)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	newPrice := d(101)
	modified, err := e.Modify(ctx, order.ID, ModifyRequest{NewPrice: &newPrice}, start.Add(time.Second))
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if modified.ParentID != 42 {
		t.Fatalf("parent id = %d, want 42", modified.ParentID)
	}
	if !modified.Price.Equal(d(101)) {
		t.Fatalf("price = %s, want 101", modified.Price)
	}

	old, ok := e.Order(order.ID)
	if !ok || old.State != domain.Cancelled {
		t.Fatalf("expected original order cancelled, got %+v", old)
	}
}

func TestEngine_MalformedCandle_IsFatal(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bad := minuteCandle("BTC-USD", start, d(100), d(90), d(110), d(100)) // high < low
	src := runtime.NewInMemoryCandleSource([]domain.Candle{bad})
	w := wallet.New(d(10000), decimal.Zero)
	e := New("BTC-USD", src, w, start)
	ctx := context.Background()

	err := e.AdvanceTo(ctx, start.Add(time.Minute))
	if err == nil {
		t.Fatal("expected error for malformed candle")
	}
}

func TestEngine_TieBreak_IDAscending(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bar := minuteCandle("BTC-USD", start, d(100), d(100), d(100), d(100))
	src := runtime.NewInMemoryCandleSource([]domain.Candle{bar})
	w := wallet.New(d(1000), decimal.Zero)
	e := New("BTC-USD", src, w, start)
	ctx := context.Background()

	first, err := e.Place(ctx, PlaceRequest{
		Symbol: "BTC-USD", Side: domain.Buy, Type: domain.Market, Size: d(1),
	}, start.Add(-time.Minute))
	if err != nil {
		t.Fatalf("place first: %v", err)
	}
	second, err := e.Place(ctx, PlaceRequest{
		Symbol: "BTC-USD", Side: domain.Buy, Type: domain.Market, Size: d(1),
	}, start.Add(-time.Minute))
	if err != nil {
		t.Fatalf("place second: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("expected increasing order ids, got %d then %d", first.ID, second.ID)
	}

	if err := e.AdvanceTo(ctx, start.Add(time.Minute)); err != nil {
		t.Fatalf("advance: %v", err)
	}

	open := e.OpenOrders()
	if len(open) != 0 {
		t.Fatalf("expected no open orders remaining, got %d", len(open))
	}
}
