package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is a closed tagged set; the HTTP boundary reifies free-form
// strings into one of these two values and rejects anything else with
// ErrInvalidOrder.
type OrderSide string

const (
	Buy  OrderSide = "Buy"
	Sell OrderSide = "Sell"
)

// OrderType is a closed tagged set per spec.md §9 "Polymorphism".
type OrderType string

const (
	Market     OrderType = "Market"
	Limit      OrderType = "Limit"
	TakeProfit OrderType = "TakeProfit"
	StopLoss   OrderType = "StopLoss"
)

// OrderState never regresses: Filled and Cancelled are terminal.
type OrderState string

const (
	New             OrderState = "New"
	Open            OrderState = "Open"
	PartiallyFilled OrderState = "PartiallyFilled"
	Filled          OrderState = "Filled"
	Cancelled       OrderState = "Cancelled"
	Rejected        OrderState = "Rejected"
)

func (s OrderState) Terminal() bool {
	return s == Filled || s == Cancelled || s == Rejected
}

// CancelReason records why an order was cancelled, surfaced for
// diagnostics; the OCO reason is observable per spec.md §3 invariant 4.
type CancelReason string

const (
	CancelReasonNone    CancelReason = ""
	CancelReasonOCO     CancelReason = "OCO"
	CancelReasonRequest CancelReason = "Requested"
)

// Order is the closed representation of a trading intent. Monetary and
// size fields are decimal.Decimal end to end so that repeated runs over
// the same inputs produce byte-identical fills — spec.md §3 invariant 6.
type Order struct {
	ID             int64
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Size           decimal.Decimal
	Price          decimal.Decimal
	ReduceOnly     bool
	PostOnly       bool
	ParentID       int64 // 0 when the order has no OCO sibling
	State          OrderState
	CreatedAt      time.Time
	LastUpdateAt   time.Time
	FilledSize     decimal.Decimal
	AvgFillPrice   decimal.Decimal
	Reserved       decimal.Decimal // funds or position debited at place, refunded at cancel
	CancelReason   CancelReason
	RejectedReason string
}

// IsOCOChild reports whether this order is one of a TakeProfit/StopLoss
// pair sharing a parent.
func (o *Order) IsOCOChild() bool {
	return o.ParentID != 0 && (o.Type == TakeProfit || o.Type == StopLoss)
}

// Remaining returns the size still unfilled.
func (o *Order) Remaining() decimal.Decimal {
	return o.Size.Sub(o.FilledSize)
}
