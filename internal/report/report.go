// Package report assembles the end-of-run performance report: trade-level
// round trips, portfolio-level metrics and the reproducibility block
// that lets two runs over the same inputs be checked for an identical
// data_hash and equity curve.
package report

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
)

// TradeRecord is a closed round trip: a position going from flat to
// non-flat and back to exactly flat. Partial exits are folded into the
// trip that closes the position. A fill that takes the position through
// zero to the opposite side does not close the trip; it stays open
// until the running size is exactly zero again.
type TradeRecord struct {
	Symbol    string
	EntryTime time.Time
	ExitTime  time.Time
	Qty       decimal.Decimal
	Fees      decimal.Decimal
	Slippage  decimal.Decimal // always zero: the configured slippage model is the fill-price rule itself, not a separate adjustment
	PnL       decimal.Decimal
	RMultiple decimal.Decimal
}

// EquityPoint is one sample of the equity curve appended once per
// decision step.
type EquityPoint struct {
	At     time.Time
	Equity decimal.Decimal
}

// Reproducibility is the verbatim-inputs-plus-data-hash block every
// report carries so two runs over identical inputs can be compared.
type Reproducibility struct {
	DataHash       string
	StrategyConfig string
	EngineVersion  string
	FeeRate        decimal.Decimal
	SlippageModel  string
}

// Report is the complete end-of-run artifact.
type Report struct {
	Trades          []TradeRecord
	EquityCurve     []EquityPoint
	MaxDrawdown     decimal.Decimal
	MDDDuration     time.Duration
	WinRate         decimal.Decimal
	AvgWin          decimal.Decimal
	AvgLoss         decimal.Decimal
	ProfitFactor    decimal.Decimal
	Exposure        decimal.Decimal
	Turnover        decimal.Decimal
	SharpeRatio     float64
	Reproducibility Reproducibility
}

// BuildTrades pairs the wallet's fill log into round trips per symbol by
// tracking running signed position size: a fill that brings a symbol's
// running size to zero closes the trip open since the first fill that
// took it away from zero. riskPerUnit, if non-zero for a symbol, lets
// RMultiple be computed as pnl / (riskPerUnit * qty); zero otherwise.
func BuildTrades(trades []domain.Trade, riskPerUnit map[string]decimal.Decimal) []TradeRecord {
	type open struct {
		entryTime time.Time
		qty       decimal.Decimal
		fees      decimal.Decimal
		pnl       decimal.Decimal
	}
	running := make(map[string]decimal.Decimal)
	legs := make(map[string]*open)
	var out []TradeRecord

	for _, t := range trades {
		delta := t.Size
		if t.Side == domain.Sell {
			delta = t.Size.Neg()
		}

		leg, ok := legs[t.Symbol]
		wasFlat := running[t.Symbol].IsZero()
		if !ok || wasFlat {
			leg = &open{entryTime: t.Timestamp}
			legs[t.Symbol] = leg
		}
		leg.qty = leg.qty.Add(t.Size)
		leg.fees = leg.fees.Add(t.Fee)
		leg.pnl = leg.pnl.Add(t.RealizedPnL)

		running[t.Symbol] = running[t.Symbol].Add(delta)

		if running[t.Symbol].IsZero() {
			rMultiple := decimal.Zero
			if risk, ok := riskPerUnit[t.Symbol]; ok && risk.Sign() > 0 && leg.qty.Sign() != 0 {
				rMultiple = leg.pnl.Div(risk.Mul(leg.qty.Abs()))
			}
			out = append(out, TradeRecord{
				Symbol:    t.Symbol,
				EntryTime: leg.entryTime,
				ExitTime:  t.Timestamp,
				Qty:       leg.qty.Abs(),
				Fees:      leg.fees,
				PnL:       leg.pnl,
				RMultiple: rMultiple,
			})
			delete(legs, t.Symbol)
		}
	}

	return out
}

// MaxDrawdown walks equity and returns the largest peak-to-trough
// fraction and the duration spent underwater for that drawdown,
// generalizing the teacher's running-peak tracking from a per-trade
// capital series to an equity-curve sample series.
func MaxDrawdown(curve []EquityPoint) (decimal.Decimal, time.Duration) {
	if len(curve) == 0 {
		return decimal.Zero, 0
	}

	peak := curve[0].Equity
	peakAt := curve[0].At
	maxDD := decimal.Zero
	maxDuration := time.Duration(0)

	for _, pt := range curve {
		if pt.Equity.GreaterThan(peak) {
			peak = pt.Equity
			peakAt = pt.At
		}
		if peak.IsZero() {
			continue
		}
		drawdown := peak.Sub(pt.Equity).Div(peak)
		if drawdown.GreaterThan(maxDD) {
			maxDD = drawdown
			maxDuration = pt.At.Sub(peakAt)
		}
	}
	return maxDD, maxDuration
}

// Metrics computes the portfolio-level fields from a closed trade set,
// an equity curve, and exposure/turnover accumulators the orchestrator
// tracks step by step.
func Metrics(trades []TradeRecord, curve []EquityPoint, barsWithPosition, totalBars int, tradedNotional, startingEquity decimal.Decimal) (winRate, avgWin, avgLoss, profitFactor, exposure, turnover decimal.Decimal) {
	if len(trades) == 0 {
		if totalBars > 0 {
			exposure = decimal.NewFromInt(int64(barsWithPosition)).Div(decimal.NewFromInt(int64(totalBars)))
		}
		if startingEquity.Sign() > 0 {
			turnover = tradedNotional.Div(startingEquity)
		}
		return
	}

	var wins, losses int
	var totalWin, totalLoss decimal.Decimal
	for _, tr := range trades {
		switch {
		case tr.PnL.Sign() > 0:
			wins++
			totalWin = totalWin.Add(tr.PnL)
		case tr.PnL.Sign() < 0:
			losses++
			totalLoss = totalLoss.Add(tr.PnL.Neg())
		}
	}

	winRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(trades))))
	if wins > 0 {
		avgWin = totalWin.Div(decimal.NewFromInt(int64(wins)))
	}
	if losses > 0 {
		avgLoss = totalLoss.Div(decimal.NewFromInt(int64(losses)))
	}
	if totalLoss.Sign() > 0 {
		profitFactor = totalWin.Div(totalLoss)
	}
	if totalBars > 0 {
		exposure = decimal.NewFromInt(int64(barsWithPosition)).Div(decimal.NewFromInt(int64(totalBars)))
	}
	if startingEquity.Sign() > 0 {
		turnover = tradedNotional.Div(startingEquity)
	}
	return
}

// Sharpe computes an annualised Sharpe ratio from the per-step returns
// implied by curve, scaled by the square root of barsPerYear (the caller
// derives it from decision_interval; there is no default). Returns zero when fewer than two samples exist or
// the return series has no variance.
func Sharpe(curve []EquityPoint, barsPerYear float64) float64 {
	if len(curve) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev.IsZero() {
			continue
		}
		ret, _ := curve[i].Equity.Sub(prev).Div(prev).Float64()
		returns = append(returns, ret)
	}
	if len(returns) == 0 {
		return 0
	}

	mean, sd := meanStdDev(returns)
	if sd == 0 {
		return 0
	}
	return (mean / sd) * math.Sqrt(barsPerYear)
}

func meanStdDev(values []float64) (mean, sd float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
