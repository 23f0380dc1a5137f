package domain

import "github.com/shopspring/decimal"

// Position is netted per symbol: a single signed size, a VWAP entry
// price and a running realised-PnL accumulator. Liquidation and margin
// are out of scope.
type Position struct {
	Symbol        string
	Size          decimal.Decimal // signed: positive long, negative short
	AvgEntryPrice decimal.Decimal
	RealisedPnL   decimal.Decimal
}

// IsFlat reports whether the position currently carries no exposure.
func (p *Position) IsFlat() bool {
	return p.Size.IsZero()
}

// ApplyFill folds a fill into the position, updating VWAP entry on
// additions and realising PnL on reductions, flipping sign if the fill
// overshoots the remaining size. Returns the realised PnL delta from
// this fill.
func (p *Position) ApplyFill(side OrderSide, size, price decimal.Decimal) decimal.Decimal {
	delta := size
	if side == Sell {
		delta = size.Neg()
	}

	sameDirection := p.Size.Sign() == 0 || p.Size.Sign() == delta.Sign()

	if sameDirection {
		totalSize := p.Size.Add(delta)
		if totalSize.IsZero() {
			p.AvgEntryPrice = decimal.Zero
			p.Size = totalSize
			return decimal.Zero
		}
		notionalExisting := p.AvgEntryPrice.Mul(p.Size.Abs())
		notionalNew := price.Mul(delta.Abs())
		p.AvgEntryPrice = notionalExisting.Add(notionalNew).Div(totalSize.Abs())
		p.Size = totalSize
		return decimal.Zero
	}

	// Reducing or flipping: the portion up to |p.Size| realises PnL
	// against the existing entry price.
	closingSize := decimal.Min(delta.Abs(), p.Size.Abs())
	var pnl decimal.Decimal
	if p.Size.Sign() > 0 {
		pnl = price.Sub(p.AvgEntryPrice).Mul(closingSize)
	} else {
		pnl = p.AvgEntryPrice.Sub(price).Mul(closingSize)
	}
	p.RealisedPnL = p.RealisedPnL.Add(pnl)

	remaining := p.Size.Add(delta)
	p.Size = remaining
	if remaining.IsZero() {
		p.AvgEntryPrice = decimal.Zero
	} else if remaining.Sign() != 0 && (p.Size.Sign() != 0 && delta.Abs().GreaterThan(closingSize)) {
		// Position flipped sign: the excess opens a new position at the
		// fill price.
		p.AvgEntryPrice = price
	}
	return pnl
}

// MarketValue returns size * mark price, used in the equity identity of
// spec.md §3 invariant 1.
func (p *Position) MarketValue(markPrice decimal.Decimal) decimal.Decimal {
	return p.Size.Mul(markPrice)
}
