package indicators

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
)

func decimals(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		period int
		want   float64
		ok     bool
	}{
		{"exact window", []float64{1, 2, 3, 4, 5}, 5, 3, true},
		{"trailing window", []float64{10, 20, 30, 40}, 2, 35, true},
		{"insufficient data", []float64{1, 2}, 5, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SMA(decimals(tt.closes...), tt.period)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(decimal.NewFromFloat(tt.want)) {
				t.Fatalf("SMA = %s, want %v", got, tt.want)
			}
		})
	}
}

func TestEMA_SeedsFromSMA(t *testing.T) {
	closes := decimals(1, 2, 3, 4, 5)
	got, ok := EMA(closes, 5)
	if !ok {
		t.Fatal("expected ok")
	}
	// With only exactly `period` points the EMA is just the seeding SMA.
	want, _ := SMA(closes, 5)
	if !got.Equal(want) {
		t.Fatalf("EMA = %s, want %s", got, want)
	}
}

func TestEMA_InsufficientData(t *testing.T) {
	if _, ok := EMA(decimals(1, 2), 5); ok {
		t.Fatal("expected not ok")
	}
}

func TestRSI_AllGainsIsHundred(t *testing.T) {
	closes := decimals(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15)
	got, ok := RSI(closes, 14)
	if !ok {
		t.Fatal("expected ok")
	}
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("RSI = %s, want 100", got)
	}
}

func TestRSI_AllLossesIsZero(t *testing.T) {
	closes := decimals(15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1)
	got, ok := RSI(closes, 14)
	if !ok {
		t.Fatal("expected ok")
	}
	if !got.Equal(decimal.Zero) {
		t.Fatalf("RSI = %s, want 0", got)
	}
}

func mkCandles(closes []float64, highs, lows []float64) []domain.Candle {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, len(closes))
	for i := range closes {
		out[i] = domain.Candle{
			Symbol:    "BTCUSDT",
			Interval:  domain.Interval1m,
			StartTime: start.Add(time.Duration(i) * time.Minute),
			Open:      decimal.NewFromFloat(closes[i]),
			High:      decimal.NewFromFloat(highs[i]),
			Low:       decimal.NewFromFloat(lows[i]),
			Close:     decimal.NewFromFloat(closes[i]),
			Volume:    decimal.NewFromInt(1),
		}
	}
	return out
}

func TestComputeMACD_InsufficientData(t *testing.T) {
	candles := mkCandles([]float64{1, 2, 3}, []float64{1, 2, 3}, []float64{1, 2, 3})
	if _, ok := ComputeMACD(candles); ok {
		t.Fatal("expected not ok")
	}
}

func TestComputeMACD_FlatSeriesIsZero(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	candles := mkCandles(closes, closes, closes)
	got, ok := ComputeMACD(candles)
	if !ok {
		t.Fatal("expected ok")
	}
	if !got.Value.Equal(decimal.Zero) || !got.Signal.Equal(decimal.Zero) || !got.Histogram.Equal(decimal.Zero) {
		t.Fatalf("expected zero MACD on a flat series, got %+v", got)
	}
}

func TestComputeBollingerBands_FlatSeriesHasZeroWidth(t *testing.T) {
	closes := decimals(100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100)
	bands, ok := ComputeBollingerBands(closes, 20, 2)
	if !ok {
		t.Fatal("expected ok")
	}
	if !bands.Upper.Equal(bands.Middle) || !bands.Lower.Equal(bands.Middle) {
		t.Fatalf("expected zero-width bands on flat series, got %+v", bands)
	}
	if !bands.Middle.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("middle = %s, want 100", bands.Middle)
	}
}

func TestATR_InsufficientData(t *testing.T) {
	candles := mkCandles([]float64{1}, []float64{1}, []float64{1})
	if _, ok := ATR(candles, 14); ok {
		t.Fatal("expected not ok")
	}
}

func TestATR_FlatSeriesIsZero(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 50
	}
	candles := mkCandles(closes, closes, closes)
	got, ok := ATR(candles, 14)
	if !ok {
		t.Fatal("expected ok")
	}
	if !got.Equal(decimal.Zero) {
		t.Fatalf("ATR = %s, want 0", got)
	}
}
