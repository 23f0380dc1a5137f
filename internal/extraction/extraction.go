// Package extraction turns a strategy service's declared tool_calls
// channel into engine requests. Only placeOrder and cancelOrder ever
// produce an engine call; everything else is ignored. The engine is
// never trusted with the coin naming the strategy speaks — every
// extracted request carries the resolved internal symbol.
package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/engine"
	"virtual-exchange/internal/strategyclient"
)

// PlaceCall is an accepted placeOrder tool call, expanded when it
// carries tpsl into the entry plus its two not-yet-placed OCO legs.
type PlaceCall struct {
	Entry    engine.PlaceRequest
	TakeProfit *engine.PlaceRequest // nil unless tpsl.take_profit_px was set
	StopLoss   *engine.PlaceRequest // nil unless tpsl.stop_loss_px was set
}

// CancelCall is an accepted cancelOrder tool call.
type CancelCall struct {
	OrderID int64
}

// Rejection records a tool call the extractor refused to turn into an
// engine request, for diagnostics accumulation by the orchestrator.
type Rejection struct {
	Tool   string
	Reason error
}

// Extract walks calls in declaration order and splits them into accepted
// Place/Cancel calls and Rejections. Unknown coins are rejected with
// ErrUnknownSymbol; tool names other than placeOrder/cancelOrder are
// silently dropped (not a rejection — they were never engine-directed).
func Extract(calls []strategyclient.ToolCall, symbols *domain.SymbolTable) ([]PlaceCall, []CancelCall, []Rejection) {
	var places []PlaceCall
	var cancels []CancelCall
	var rejections []Rejection

	for _, call := range calls {
		switch call.Tool {
		case "placeOrder":
			place, err := extractPlace(call.Arguments, symbols)
			if err != nil {
				rejections = append(rejections, Rejection{Tool: call.Tool, Reason: err})
				continue
			}
			places = append(places, place)
		case "cancelOrder":
			cancels = append(cancels, CancelCall{OrderID: call.Arguments.OrderID})
		default:
			// Other tool invocations (memory, research, ...) are not
			// engine-directed and are ignored here.
		}
	}

	return places, cancels, rejections
}

func extractPlace(args strategyclient.ToolArgs, symbols *domain.SymbolTable) (PlaceCall, error) {
	symbol, err := symbols.Symbol(args.Coin)
	if err != nil {
		return PlaceCall{}, err
	}

	side := domain.Sell
	if args.IsBuy {
		side = domain.Buy
	}

	orderType := domain.Market
	price := decimal.Zero
	if args.LimitPx != nil {
		orderType = domain.Limit
		price = *args.LimitPx
	}

	entry := engine.PlaceRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       orderType,
		Size:       args.Sz,
		Price:      price,
		ReduceOnly: args.ReduceOnly,
	}

	place := PlaceCall{Entry: entry}
	if args.TpSl == nil {
		return place, nil
	}

	exitSide := opposite(side)
	if args.TpSl.TakeProfitPx != nil {
		tp := engine.PlaceRequest{
			Symbol: symbol, Side: exitSide, Type: domain.TakeProfit,
			Size: args.Sz, Price: *args.TpSl.TakeProfitPx, ReduceOnly: true,
		}
		place.TakeProfit = &tp
	}
	if args.TpSl.StopLossPx != nil {
		sl := engine.PlaceRequest{
			Symbol: symbol, Side: exitSide, Type: domain.StopLoss,
			Size: args.Sz, Price: *args.TpSl.StopLossPx, ReduceOnly: true,
		}
		place.StopLoss = &sl
	}
	return place, nil
}

func opposite(side domain.OrderSide) domain.OrderSide {
	if side == domain.Buy {
		return domain.Sell
	}
	return domain.Buy
}

// Placer is the subset of *engine.Engine this package drives.
type Placer interface {
	Place(ctx context.Context, req engine.PlaceRequest, at time.Time) (*domain.Order, error)
	Cancel(id int64) error
}

// Apply places call's entry and, only if accepted, its OCO children
// sharing the entry's id as parent_id. A rejected entry yields zero
// engine calls for its children, per spec's "children only accepted if
// the parent is accepted" rule.
func Apply(ctx context.Context, eng Placer, call PlaceCall, at time.Time) (*domain.Order, error) {
	entry, err := eng.Place(ctx, call.Entry, at)
	if err != nil {
		return nil, err
	}

	if call.TakeProfit != nil {
		req := *call.TakeProfit
		req.ParentID = entry.ID
		if _, err := eng.Place(ctx, req, at); err != nil {
			return entry, fmt.Errorf("extraction: take_profit child: %w", err)
		}
	}
	if call.StopLoss != nil {
		req := *call.StopLoss
		req.ParentID = entry.ID
		if _, err := eng.Place(ctx, req, at); err != nil {
			return entry, fmt.Errorf("extraction: stop_loss child: %w", err)
		}
	}
	return entry, nil
}
