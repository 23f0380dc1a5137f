// Package engine implements the Matching Engine: the one component
// that mutates orders, positions and the wallet. It owns the Wallet
// exclusively and feeds it fills candle by candle, in the fixed event
// order the determinism contract requires.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/runtime"
	"virtual-exchange/internal/wallet"
)

// Engine matches one symbol's orders against its one-minute candle
// stream. Each backtest run owns exactly one Engine.
type Engine struct {
	symbol string
	source runtime.CandleSource
	wallet *wallet.Wallet

	processedUpTo time.Time
	nextOrderID   int64
	orders        map[int64]*domain.Order
	ocoGroup      map[int64][]int64 // parentID -> child order IDs sharing the group

	consumed []domain.Candle
}

// New creates an Engine scoped to symbol, reading candles from source
// and settling fills against w. start is the virtual time the run
// begins at; no candle before it is ever matched.
func New(symbol string, source runtime.CandleSource, w *wallet.Wallet, start time.Time) *Engine {
	return &Engine{
		symbol:        symbol,
		source:        source,
		wallet:        w,
		processedUpTo: start,
		orders:        make(map[int64]*domain.Order),
		ocoGroup:      make(map[int64][]int64),
	}
}

// Place validates req, reserves funds or position units against the
// wallet, assigns an id and transitions the order to Open. `at` is the
// current virtual time; orders placed at `at` are excluded from any
// candle whose start time is not strictly after `at` (spec's same-bar
// placement exclusion).
func (e *Engine) Place(ctx context.Context, req PlaceRequest, at time.Time) (*domain.Order, error) {
	if req.Symbol != e.symbol {
		return nil, domain.ErrUnknownSymbol
	}
	if req.Size.Sign() <= 0 {
		return nil, domain.ErrInvalidOrder
	}
	if req.Type != domain.Market && req.Price.Sign() <= 0 {
		return nil, domain.ErrInvalidOrder
	}
	if req.PostOnly {
		if crosses, err := e.wouldCrossImmediately(ctx, req); err != nil {
			return nil, err
		} else if crosses {
			return nil, domain.ErrInvalidOrder
		}
	}
	if req.Type == domain.Market && req.Price.IsZero() && !req.ReduceOnly {
		if err := e.primeMarkPriceForReservation(ctx, at); err != nil {
			return nil, err
		}
	}

	e.nextOrderID++
	order := &domain.Order{
		ID:           e.nextOrderID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         req.Type,
		Size:         req.Size,
		Price:        req.Price,
		ReduceOnly:   req.ReduceOnly,
		PostOnly:     req.PostOnly,
		ParentID:     req.ParentID,
		State:        domain.New,
		CreatedAt:    at,
		LastUpdateAt: at,
	}

	if err := e.wallet.Reserve(order); err != nil {
		e.nextOrderID--
		return nil, err
	}

	order.State = domain.Open
	e.orders[order.ID] = order
	if order.ParentID != 0 {
		e.ocoGroup[order.ParentID] = append(e.ocoGroup[order.ParentID], order.ID)
	}
	return order, nil
}

// wouldCrossImmediately reports whether a post-only Limit would match
// the most recent known candle's range at placement time.
func (e *Engine) wouldCrossImmediately(ctx context.Context, req PlaceRequest) (bool, error) {
	if req.Type != domain.Limit {
		return false, nil
	}
	recent, err := e.source.GetCandles(ctx, e.symbol, e.processedUpTo.Add(-time.Minute), e.processedUpTo.Add(time.Minute))
	if err != nil || len(recent) == 0 {
		return false, nil
	}
	last := recent[len(recent)-1]
	return !req.Price.LessThan(last.Low) && !req.Price.GreaterThan(last.High), nil
}

// primeMarkPriceForReservation makes sure the wallet has some reference
// price to reserve a zero-price Market order against. A run that places
// its very first order before any one-minute candle has closed would
// otherwise have no mark price at all; fall back to the nearest known
// candle close, preferring the latest one at or before `at`.
func (e *Engine) primeMarkPriceForReservation(ctx context.Context, at time.Time) error {
	const lookaround = 48 * time.Hour
	candles, err := e.source.GetCandles(ctx, e.symbol, at.Add(-lookaround), at.Add(lookaround))
	if err != nil {
		return fmt.Errorf("engine: prime mark price: %w", err)
	}
	if len(candles) == 0 {
		return domain.ErrInvalidOrder
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].StartTime.Before(candles[j].StartTime) })
	best := candles[0]
	for _, c := range candles {
		if !c.StartTime.After(at) {
			best = c
			continue
		}
		break
	}
	e.wallet.UpdateMarkPrice(e.symbol, best.Close)
	return nil
}

// Cancel refunds whatever is reserved against id and transitions it to
// Cancelled. Cancelling one leg of an OCO pair cancels its siblings
// too. A no-op on an already-terminal order returns ErrAlreadyTerminal.
func (e *Engine) Cancel(id int64) error {
	order, ok := e.orders[id]
	if !ok {
		return domain.ErrAlreadyTerminal
	}
	if order.State.Terminal() {
		return domain.ErrAlreadyTerminal
	}

	e.cancelOrder(order, domain.CancelReasonRequest)
	e.cancelSiblings(order, domain.CancelReasonRequest)
	return nil
}

func (e *Engine) cancelOrder(order *domain.Order, reason domain.CancelReason) {
	e.wallet.Refund(order)
	order.State = domain.Cancelled
	order.CancelReason = reason
}

func (e *Engine) cancelSiblings(order *domain.Order, reason domain.CancelReason) {
	if order.ParentID == 0 {
		return
	}
	for _, siblingID := range e.ocoGroup[order.ParentID] {
		if siblingID == order.ID {
			continue
		}
		sibling, ok := e.orders[siblingID]
		if !ok || sibling.State.Terminal() {
			continue
		}
		e.cancelOrder(sibling, reason)
	}
}

// Modify cancels id and places a fresh order carrying the merged
// price/size, preserving parent_id. Only valid while id is Open or
// PartiallyFilled.
func (e *Engine) Modify(ctx context.Context, id int64, mod ModifyRequest, at time.Time) (*domain.Order, error) {
	order, ok := e.orders[id]
	if !ok {
		return nil, domain.ErrAlreadyTerminal
	}
	if order.State != domain.Open && order.State != domain.PartiallyFilled {
		return nil, domain.ErrInvalidOrder
	}

	req := PlaceRequest{
		Symbol:     order.Symbol,
		Side:       order.Side,
		Type:       order.Type,
		Size:       order.Remaining(),
		Price:      order.Price,
		ReduceOnly: order.ReduceOnly,
		PostOnly:   order.PostOnly,
		ParentID:   order.ParentID,
	}
	if mod.NewPrice != nil {
		req.Price = *mod.NewPrice
	}
	if mod.NewSize != nil {
		req.Size = *mod.NewSize
	}

	if err := e.Cancel(id); err != nil {
		return nil, err
	}
	return e.Place(ctx, req, at)
}

// AdvanceTo feeds every one-minute candle with close time <= tNext
// through the matching algorithm, in strict chronological order.
func (e *Engine) AdvanceTo(ctx context.Context, tNext time.Time) error {
	candles, err := e.source.GetCandles(ctx, e.symbol, e.processedUpTo, tNext.Add(time.Minute))
	if err != nil {
		return fmt.Errorf("engine: advance_to: %w", err)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].StartTime.Before(candles[j].StartTime) })

	for _, c := range candles {
		if c.CloseTime().After(tNext) {
			break
		}
		if err := e.processCandle(c); err != nil {
			return err
		}
	}
	e.processedUpTo = tNext
	return nil
}

func (e *Engine) processCandle(c domain.Candle) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEngineInvariant, err)
	}

	e.consumed = append(e.consumed, c)

	open := e.openOrdersSnapshot(c.StartTime)

	// Step 2: Market orders fill at open.
	for _, o := range open {
		if o.Type == domain.Market && !o.State.Terminal() {
			e.settle(o, o.Remaining(), c.Open, domain.BarOpen, c.CloseTime())
		}
	}

	// Step 3: triggered protective orders, TP wins on an OCO tie.
	triggeredTP := make(map[int64]bool)
	for _, o := range open {
		if o.Type == domain.TakeProfit && !o.State.Terminal() && triggered(o, c) {
			triggeredTP[o.ID] = true
		}
	}
	for _, o := range open {
		if o.Type != domain.TakeProfit || o.State.Terminal() || !triggeredTP[o.ID] {
			continue
		}
		e.settle(o, o.Remaining(), o.Price, domain.Intrabar, c.CloseTime())
		e.cancelSiblings(o, domain.CancelReasonOCO)
	}
	for _, o := range open {
		if o.Type != domain.StopLoss || o.State.Terminal() || !triggered(o, c) {
			continue
		}
		e.settle(o, o.Remaining(), stopFillPrice(o, c), domain.Intrabar, c.CloseTime())
		e.cancelSiblings(o, domain.CancelReasonOCO)
	}

	// Step 4: limit fills. Only TakeProfit/StopLoss ever carry an OCO
	// sibling, so a plain Limit fill never needs to cancel anything.
	for _, o := range open {
		if o.Type == domain.Limit && !o.State.Terminal() && withinRange(o.Price, c) {
			e.settle(o, o.Remaining(), o.Price, domain.Intrabar, c.CloseTime())
		}
	}

	e.wallet.UpdateMarkPrice(c.Symbol, c.Close)
	return nil
}

// openOrdersSnapshot returns the open orders for the symbol eligible to
// participate in a candle starting at candleStart — excluding any order
// created at or after candleStart — sorted by id ascending.
func (e *Engine) openOrdersSnapshot(candleStart time.Time) []*domain.Order {
	out := make([]*domain.Order, 0, len(e.orders))
	for _, o := range e.orders {
		if o.State.Terminal() {
			continue
		}
		if !o.CreatedAt.Before(candleStart) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Engine) settle(order *domain.Order, size, price decimal.Decimal, barKind domain.BarKind, at time.Time) {
	trade := e.wallet.Fill(order, size, price, barKind, at)
	order.FilledSize = order.FilledSize.Add(size)
	order.AvgFillPrice = price
	order.LastUpdateAt = at
	if order.Remaining().Sign() <= 0 {
		order.State = domain.Filled
	} else {
		order.State = domain.PartiallyFilled
	}
	_ = trade
}

// triggered reports whether order's trigger price was touched by
// candle c, direction-aware per order side: a protective order closing
// a long (Sell) triggers on the low side for a stop / high side for a
// target; one closing a short (Buy) triggers the opposite way.
func triggered(order *domain.Order, c domain.Candle) bool {
	switch order.Type {
	case domain.TakeProfit:
		if order.Side == domain.Sell {
			return c.High.GreaterThanOrEqual(order.Price)
		}
		return c.Low.LessThanOrEqual(order.Price)
	case domain.StopLoss:
		if order.Side == domain.Sell {
			return c.Low.LessThanOrEqual(order.Price)
		}
		return c.High.GreaterThanOrEqual(order.Price)
	default:
		return false
	}
}

// stopFillPrice returns the worse of the trigger price and the
// candle's close, worse meaning less favourable to the order's side.
func stopFillPrice(order *domain.Order, c domain.Candle) decimal.Decimal {
	if order.Side == domain.Sell {
		return decimal.Min(order.Price, c.Close)
	}
	return decimal.Max(order.Price, c.Close)
}

func withinRange(price decimal.Decimal, c domain.Candle) bool {
	return !price.LessThan(c.Low) && !price.GreaterThan(c.High)
}

// Order returns the current state of a previously placed order.
func (e *Engine) Order(id int64) (*domain.Order, bool) {
	o, ok := e.orders[id]
	return o, ok
}

// OpenOrders returns every order not yet in a terminal state.
func (e *Engine) OpenOrders() []domain.Order {
	out := make([]domain.Order, 0, len(e.orders))
	for _, o := range e.orders {
		if !o.State.Terminal() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConsumedCandles returns every candle the engine has matched so far,
// in chronological order — the row set the reproducibility data_hash
// is computed over.
func (e *Engine) ConsumedCandles() []domain.Candle {
	return e.consumed
}
