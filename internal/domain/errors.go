// Package domain holds the core types shared by the matching engine, the
// wallet, the backtest runner and the orchestrator: orders, positions,
// trades, candles and the symbol table, plus the error taxonomy every
// other package wraps with a package-prefixed message.
package domain

import "errors"

// Rejected at the call site; the run continues.
var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownSymbol     = errors.New("unknown symbol")
	ErrAlreadyTerminal   = errors.New("order already terminal")
)

// Fatal to the run; the orchestrator finalizes a partial report and flags
// the run as Failed.
var (
	ErrDataGap         = errors.New("data gap in candle source")
	ErrClockRegression = errors.New("clock regression")
	ErrMalformedCandle = errors.New("malformed candle")
)

// Soft, per-step failures from the external strategy collaborator. The
// step produces zero new orders and the run continues.
var (
	ErrStrategyUnavailable = errors.New("strategy service unavailable")
	ErrStrategyTimeout     = errors.New("strategy service timeout")
)

// ErrEngineInvariant is panic-class: one of the invariants in the data
// model was violated. The run aborts and refuses to commit further state.
var ErrEngineInvariant = errors.New("engine invariant violated")
