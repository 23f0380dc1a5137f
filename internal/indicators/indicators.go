// Package indicators computes the technical indicators strategies read
// through get_candles-derived windows. Its caller is the /gpt-latest
// handler in internal/httpapi; the Runner's read APIs do not call it.
// Keeping it in one package means there is exactly one implementation
// to stay bit-identical against.
package indicators

import (
	"math"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
)

// MACD holds the three MACD outputs: the line itself, its signal EMA,
// and their difference.
type MACD struct {
	Value     decimal.Decimal `json:"value"`
	Signal    decimal.Decimal `json:"signal"`
	Histogram decimal.Decimal `json:"histogram"`
}

// BollingerBands holds the upper, middle (SMA) and lower band values.
type BollingerBands struct {
	Upper  decimal.Decimal `json:"upper"`
	Middle decimal.Decimal `json:"middle"`
	Lower  decimal.Decimal `json:"lower"`
}

func closesOf(candles []domain.Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SMA computes the simple moving average of the last period closes. The
// second return is false if fewer than period candles are available.
func SMA(closes []decimal.Decimal, period int) (decimal.Decimal, bool) {
	if period <= 0 || len(closes) < period {
		return decimal.Zero, false
	}
	window := closes[len(closes)-period:]
	sum := decimal.Zero
	for _, c := range window {
		sum = sum.Add(c)
	}
	return sum.DivRound(decimal.NewFromInt(int64(period)), 16), true
}

// EMA computes the exponential moving average over the full closes
// slice with the given period, seeded with the SMA of the first period
// values. Fewer than period closes returns false.
func EMA(closes []decimal.Decimal, period int) (decimal.Decimal, bool) {
	if period <= 0 || len(closes) < period {
		return decimal.Zero, false
	}
	multiplier := decimal.NewFromInt(2).DivRound(decimal.NewFromInt(int64(period+1)), 16)

	ema, ok := SMA(closes[:period], period)
	if !ok {
		return decimal.Zero, false
	}
	for i := period; i < len(closes); i++ {
		ema = closes[i].Sub(ema).Mul(multiplier).Add(ema)
	}
	return ema, true
}

// RSI computes the Relative Strength Index over the trailing period
// price changes using Wilder's original (non-smoothed) averaging: mean
// gain over mean loss across the window.
func RSI(closes []decimal.Decimal, period int) (decimal.Decimal, bool) {
	if period <= 0 || len(closes) < period+1 {
		return decimal.Zero, false
	}

	gain := decimal.Zero
	loss := decimal.Zero
	start := len(closes) - period
	for i := start; i < len(closes); i++ {
		change := closes[i].Sub(closes[i-1])
		if change.IsPositive() {
			gain = gain.Add(change)
		} else {
			loss = loss.Add(change.Abs())
		}
	}

	n := decimal.NewFromInt(int64(period))
	avgGain := gain.DivRound(n, 16)
	avgLoss := loss.DivRound(n, 16)

	if avgLoss.IsZero() {
		return decimal.NewFromInt(100), true
	}

	rs := avgGain.DivRound(avgLoss, 16)
	hundred := decimal.NewFromInt(100)
	rsi := hundred.Sub(hundred.DivRound(decimal.NewFromInt(1).Add(rs), 16))
	return rsi, true
}

// ComputeMACD returns the 12/26 EMA MACD line together with its 9-period
// EMA signal line, computed over the signal-line window rather than
// approximated.
func ComputeMACD(candles []domain.Candle) (MACD, bool) {
	closes := closesOf(candles)
	if len(closes) < 26+9 {
		return MACD{}, false
	}

	lines := make([]decimal.Decimal, 0, len(closes)-25)
	for i := 26; i <= len(closes); i++ {
		ema12, ok12 := EMA(closes[:i], 12)
		ema26, ok26 := EMA(closes[:i], 26)
		if !ok12 || !ok26 {
			return MACD{}, false
		}
		lines = append(lines, ema12.Sub(ema26))
	}

	signal, ok := EMA(lines, 9)
	if !ok {
		return MACD{}, false
	}

	macdValue := lines[len(lines)-1]
	return MACD{
		Value:     macdValue,
		Signal:    signal,
		Histogram: macdValue.Sub(signal),
	}, true
}

// ComputeBollingerBands returns the SMA-centred bands at numStdDev
// standard deviations. Standard deviation is computed via float64
// math.Sqrt and converted back, matching the project's convention of
// dropping to float64 only for the square root itself.
func ComputeBollingerBands(closes []decimal.Decimal, period int, numStdDev float64) (BollingerBands, bool) {
	middle, ok := SMA(closes, period)
	if !ok {
		return BollingerBands{}, false
	}

	window := closes[len(closes)-period:]
	sumSquares := decimal.Zero
	for _, c := range window {
		diff := c.Sub(middle)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}
	variance := sumSquares.DivRound(decimal.NewFromInt(int64(period)), 16)
	stdDev := decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))

	spread := stdDev.Mul(decimal.NewFromFloat(numStdDev))
	return BollingerBands{
		Upper:  middle.Add(spread),
		Middle: middle,
		Lower:  middle.Sub(spread),
	}, true
}

// ATR computes the Average True Range over the trailing period candles,
// averaging the true range (max of high-low, |high-prevClose|,
// |low-prevClose|) across the window.
func ATR(candles []domain.Candle, period int) (decimal.Decimal, bool) {
	if period <= 0 || len(candles) < period+1 {
		return decimal.Zero, false
	}

	sum := decimal.Zero
	start := len(candles) - period
	for i := start; i < len(candles); i++ {
		cur := candles[i]
		prevClose := candles[i-1].Close

		hl := cur.High.Sub(cur.Low)
		hc := cur.High.Sub(prevClose).Abs()
		lc := cur.Low.Sub(prevClose).Abs()

		tr := hl
		if hc.GreaterThan(tr) {
			tr = hc
		}
		if lc.GreaterThan(tr) {
			tr = lc
		}
		sum = sum.Add(tr)
	}
	return sum.DivRound(decimal.NewFromInt(int64(period)), 16), true
}
