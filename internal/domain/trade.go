package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BarKind records which phase of the matching algorithm produced a
// fill, for diagnostics only.
type BarKind string

const (
	BarOpen  BarKind = "BarOpen"
	Intrabar BarKind = "Intrabar"
	BarClose BarKind = "BarClose"
)

// Trade is the append-only settlement log entry for a single fill.
type Trade struct {
	OrderID     int64
	Symbol      string
	Side        OrderSide
	Size        decimal.Decimal
	Price       decimal.Decimal
	Fee         decimal.Decimal
	Timestamp   time.Time // bar close
	BarKind     BarKind
	RealizedPnL decimal.Decimal // PnL this fill realised against the prior position, zero for pure entries
}
