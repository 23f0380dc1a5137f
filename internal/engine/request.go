package engine

import (
	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
)

// PlaceRequest describes an order to place. ParentID is non-zero only
// for the two legs of an OCO pair produced by tpsl expansion.
type PlaceRequest struct {
	Symbol     string
	Side       domain.OrderSide
	Type       domain.OrderType
	Size       decimal.Decimal
	Price      decimal.Decimal // required for Limit/TakeProfit/StopLoss
	ReduceOnly bool
	PostOnly   bool
	ParentID   int64
}

// ModifyRequest carries the optional replacement fields for modify; a
// nil field leaves the corresponding order field unchanged.
type ModifyRequest struct {
	NewPrice *decimal.Decimal
	NewSize  *decimal.Decimal
}
