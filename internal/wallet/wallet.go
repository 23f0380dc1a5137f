// Package wallet implements the Virtual Wallet / Ledger: a single cash
// balance, one netted Position per symbol, and the reservation
// accounting that keeps spec's equity identity exact at every
// observable instant. The Wallet is exclusively owned and mutated by
// the matching engine; nothing else touches it.
package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/runtime"
)

// Wallet holds cash, netted positions and the reservation state of
// every still-open order. It is not safe for concurrent use — the
// concurrency model forbids mutation from more than one actor per run.
type Wallet struct {
	cash       decimal.Decimal
	feeRate    decimal.Decimal
	positions  map[string]*domain.Position
	markPrices map[string]decimal.Decimal
	openOrders map[int64]*domain.Order
	trades     []domain.Trade
}

// New creates a Wallet seeded with startingCash and a single fee_rate
// applied to every fill's notional.
func New(startingCash, feeRate decimal.Decimal) *Wallet {
	return &Wallet{
		cash:       startingCash,
		feeRate:    feeRate,
		positions:  make(map[string]*domain.Position),
		markPrices: make(map[string]decimal.Decimal),
		openOrders: make(map[int64]*domain.Order),
	}
}

// Cash returns the current settled cash balance.
func (w *Wallet) Cash() decimal.Decimal {
	return w.cash
}

// Position returns the netted position for symbol, or a zero-valued one
// if the symbol has never traded.
func (w *Wallet) Position(symbol string) domain.Position {
	if p, ok := w.positions[symbol]; ok {
		return *p
	}
	return domain.Position{Symbol: symbol}
}

// UpdateMarkPrice sets the reference price used for unrealised PnL and
// equity accounting. The Orchestrator sets it from the latest closed
// one-minute candle's close at each step; the Engine also sets it while
// placing Market orders and processing candles.
func (w *Wallet) UpdateMarkPrice(symbol string, price decimal.Decimal) {
	w.markPrices[symbol] = price
}

func (w *Wallet) positionFor(symbol string) *domain.Position {
	p, ok := w.positions[symbol]
	if !ok {
		p = &domain.Position{Symbol: symbol}
		w.positions[symbol] = p
	}
	return p
}

// Reserve validates and debits the funds or position units an order
// requires before it can go Open, per spec's immediate-reservation
// policy: reduce-only orders reserve position units (checked against
// the current netted position, direction and magnitude); all other
// orders reserve cash notional at (1+fee_rate). Market orders without
// an explicit price reserve against the last known mark price.
func (w *Wallet) Reserve(order *domain.Order) error {
	if order.Size.Sign() <= 0 {
		return domain.ErrInvalidOrder
	}

	if order.ReduceOnly {
		pos := w.positionFor(order.Symbol)
		if !canReduce(pos.Size, order.Side, order.Size) {
			return domain.ErrInvalidOrder
		}
		order.Reserved = order.Size
		w.openOrders[order.ID] = order
		return nil
	}

	price := order.Price
	if price.IsZero() {
		price = w.markPrices[order.Symbol]
	}
	if price.IsZero() {
		return domain.ErrInvalidOrder
	}

	reserved := price.Mul(order.Size).Mul(decimal.NewFromInt(1).Add(w.feeRate))
	if reserved.GreaterThan(w.cash) {
		return domain.ErrInsufficientFunds
	}

	w.cash = w.cash.Sub(reserved)
	order.Reserved = reserved
	w.openOrders[order.ID] = order
	return nil
}

// canReduce reports whether a reduce-only order of the given side and
// size is compatible with the current position: a reduce-only Sell can
// only shrink a long, a reduce-only Buy can only shrink a short, and
// neither may exceed the position's magnitude.
func canReduce(positionSize decimal.Decimal, side domain.OrderSide, size decimal.Decimal) bool {
	switch side {
	case domain.Sell:
		return positionSize.IsPositive() && size.LessThanOrEqual(positionSize)
	case domain.Buy:
		return positionSize.IsNegative() && size.LessThanOrEqual(positionSize.Abs())
	default:
		return false
	}
}

// Refund credits back whatever remains reserved against order —
// exactly what cancel leaves unconsumed by prior fills — and clears
// the reservation. No-op for orders with nothing left reserved.
func (w *Wallet) Refund(order *domain.Order) {
	if order.Reserved.IsZero() {
		return
	}
	if !order.ReduceOnly {
		w.cash = w.cash.Add(order.Reserved)
	}
	order.Reserved = decimal.Zero
	delete(w.openOrders, order.ID)
}

// Fill settles fillSize units of order at fillPrice: it consumes the
// proportional share of the order's reservation, trues up cash against
// the actual fill price (which may differ from the price reserved
// against, e.g. market slippage or a stop's worse-of-trigger-and-close
// rule), applies the fee, and folds the fill into the symbol's netted
// Position. Returns the settlement Trade.
func (w *Wallet) Fill(order *domain.Order, fillSize, fillPrice decimal.Decimal, barKind domain.BarKind, at time.Time) domain.Trade {
	notional := fillPrice.Mul(fillSize)
	fee := notional.Mul(w.feeRate)

	if order.ReduceOnly {
		order.Reserved = order.Reserved.Sub(fillSize)
		if order.Side == domain.Sell {
			w.cash = w.cash.Add(notional).Sub(fee)
		} else {
			w.cash = w.cash.Sub(notional).Sub(fee)
		}
	} else {
		fraction := fillSize.Div(order.Size)
		consumed := order.Reserved.Mul(fraction)
		order.Reserved = order.Reserved.Sub(consumed)
		w.cash = w.cash.Add(consumed)
		if order.Side == domain.Buy {
			w.cash = w.cash.Sub(notional).Sub(fee)
		} else {
			w.cash = w.cash.Add(notional).Sub(fee)
		}
	}

	pos := w.positionFor(order.Symbol)
	realized := pos.ApplyFill(order.Side, fillSize, fillPrice)

	if order.Reserved.IsZero() {
		delete(w.openOrders, order.ID)
	}

	trade := domain.Trade{
		OrderID:     order.ID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Size:        fillSize,
		Price:       fillPrice,
		Fee:         fee,
		Timestamp:   at,
		BarKind:     barKind,
		RealizedPnL: realized,
	}
	w.trades = append(w.trades, trade)
	return trade
}

// Trades returns the append-only settlement log.
func (w *Wallet) Trades() []domain.Trade {
	return w.trades
}

// Equity computes cash + Σ(position.size × mark_price) −
// Σ(open_order.reserved_margin), spec's accounting identity.
func (w *Wallet) Equity() decimal.Decimal {
	equity := w.cash
	for symbol, pos := range w.positions {
		equity = equity.Add(pos.MarketValue(w.markPrices[symbol]))
	}
	for _, o := range w.openOrders {
		if !o.ReduceOnly {
			equity = equity.Sub(o.Reserved)
		}
	}
	return equity
}

// State is the complete, serialisable wallet state persisted by
// internal/walletstore once per orchestrator decision step.
type State struct {
	Cash       decimal.Decimal
	FeeRate    decimal.Decimal
	Positions  map[string]domain.Position
	MarkPrices map[string]decimal.Decimal
	OpenOrders map[int64]domain.Order
	Trades     []domain.Trade
}

// Export captures the wallet's complete state for persistence.
func (w *Wallet) Export() State {
	positions := make(map[string]domain.Position, len(w.positions))
	for symbol, p := range w.positions {
		positions[symbol] = *p
	}
	openOrders := make(map[int64]domain.Order, len(w.openOrders))
	for id, o := range w.openOrders {
		openOrders[id] = *o
	}
	markPrices := make(map[string]decimal.Decimal, len(w.markPrices))
	for symbol, p := range w.markPrices {
		markPrices[symbol] = p
	}
	return State{
		Cash:       w.cash,
		FeeRate:    w.feeRate,
		Positions:  positions,
		MarkPrices: markPrices,
		OpenOrders: openOrders,
		Trades:     append([]domain.Trade(nil), w.trades...),
	}
}

// Restore rebuilds a Wallet from a previously exported State, the path
// used to recover a run's wallet from its persisted snapshot blob.
func Restore(s State) *Wallet {
	w := New(s.Cash, s.FeeRate)
	for symbol, p := range s.Positions {
		cp := p
		w.positions[symbol] = &cp
	}
	for symbol, p := range s.MarkPrices {
		w.markPrices[symbol] = p
	}
	for id, o := range s.OpenOrders {
		co := o
		w.openOrders[id] = &co
	}
	w.trades = append([]domain.Trade(nil), s.Trades...)
	return w
}

// Snapshot implements runtime.AccountSnapshotter, the shape served by
// get_account_info.
func (w *Wallet) Snapshot() runtime.AccountInfo {
	positions := make([]domain.Position, 0, len(w.positions))
	for _, p := range w.positions {
		if !p.IsFlat() {
			positions = append(positions, *p)
		}
	}

	openOrders := make([]domain.Order, 0, len(w.openOrders))
	totalMargin := decimal.Zero
	for _, o := range w.openOrders {
		openOrders = append(openOrders, *o)
		if !o.ReduceOnly {
			totalMargin = totalMargin.Add(o.Reserved)
		}
	}

	return runtime.AccountInfo{
		Equity:          w.Equity(),
		Cash:            w.cash,
		TotalMarginUsed: totalMargin,
		Positions:       positions,
		OpenOrders:      openOrders,
	}
}
