package httpapi

import (
	"net/http"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/engine"
	"virtual-exchange/internal/observability"
)

// translateOrderType reifies the wire's free-form order_type string into
// the closed OrderType set, per spec.md §9's "Polymorphism" note:
// unknown types reject with InvalidOrder.
func translateOrderType(raw string) (domain.OrderType, error) {
	switch domain.OrderType(raw) {
	case domain.Market, domain.Limit, domain.TakeProfit, domain.StopLoss:
		return domain.OrderType(raw), nil
	default:
		return "", domain.ErrInvalidOrder
	}
}

func buildEntryRequest(symbol string, req exchangeOrderRequest, orderType domain.OrderType) engine.PlaceRequest {
	side := domain.Sell
	if req.IsBuy {
		side = domain.Buy
	}
	price := decimal.Zero
	if req.LimitPx != nil {
		price = *req.LimitPx
	}
	return engine.PlaceRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       orderType,
		Size:       req.Sz,
		Price:      price,
		ReduceOnly: req.ReduceOnly,
	}
}

func opposite(side domain.OrderSide) domain.OrderSide {
	if side == domain.Buy {
		return domain.Sell
	}
	return domain.Buy
}

// handleExchangeOrder implements POST /exchange/order. A tpsl block
// expands the entry into a parent plus up to two OCO legs, placed
// directly through the engine (not the risk gate — only the entry is
// risk-checked, matching the orchestrator's own step loop).
func (s *Server) handleExchangeOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	o := s.getCurrent()
	if o == nil {
		noRunActive(w)
		return
	}

	var req exchangeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	symbol, err := s.deps.Symbols.Symbol(req.Coin)
	if err != nil {
		writeJSON(w, http.StatusOK, rejectionResponse{Rejected: true, Reason: err.Error()})
		return
	}
	orderType, err := translateOrderType(req.OrderType)
	if err != nil {
		writeJSON(w, http.StatusOK, rejectionResponse{Rejected: true, Reason: err.Error()})
		return
	}

	at := o.Runner().GetCurrentTime()
	entryReq := buildEntryRequest(symbol, req, orderType)

	entry, err := o.PlaceManual(r.Context(), entryReq, at)
	if err != nil {
		writeJSON(w, http.StatusOK, rejectionResponse{Rejected: true, Reason: err.Error()})
		return
	}

	if req.TpSl != nil {
		exitSide := opposite(entryReq.Side)
		if req.TpSl.TakeProfitPx != nil {
			tp := engine.PlaceRequest{
				Symbol: symbol, Side: exitSide, Type: domain.TakeProfit,
				Size: req.Sz, Price: *req.TpSl.TakeProfitPx, ReduceOnly: true, ParentID: entry.ID,
			}
			if _, err := o.Engine().Place(r.Context(), tp, at); err != nil {
				observability.LogEvent(r.Context(), "warn", "tpsl_leg_rejected", map[string]any{"order_id": entry.ID, "leg": "take_profit", "error": err.Error()})
			}
		}
		if req.TpSl.StopLossPx != nil {
			sl := engine.PlaceRequest{
				Symbol: symbol, Side: exitSide, Type: domain.StopLoss,
				Size: req.Sz, Price: *req.TpSl.StopLossPx, ReduceOnly: true, ParentID: entry.ID,
			}
			if _, err := o.Engine().Place(r.Context(), sl, at); err != nil {
				observability.LogEvent(r.Context(), "warn", "tpsl_leg_rejected", map[string]any{"order_id": entry.ID, "leg": "stop_loss", "error": err.Error()})
			}
		}
	}

	writeJSON(w, http.StatusOK, orderToWire(entry))
}

// handleExchangeCancel implements POST /exchange/cancel.
func (s *Server) handleExchangeCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	o := s.getCurrent()
	if o == nil {
		noRunActive(w)
		return
	}

	var req exchangeCancelRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := o.Engine().Cancel(req.OID); err != nil {
		writeJSON(w, http.StatusOK, rejectionResponse{Rejected: true, Reason: err.Error()})
		return
	}

	order, ok := o.Engine().Order(req.OID)
	if !ok {
		http.Error(w, "cancelled order vanished from the book", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orderToWire(order))
}

// handleExchangeModify implements POST /exchange/modify.
func (s *Server) handleExchangeModify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	o := s.getCurrent()
	if o == nil {
		noRunActive(w)
		return
	}

	var req exchangeModifyRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	at := o.Runner().GetCurrentTime()
	order, err := o.Engine().Modify(r.Context(), req.OID, engine.ModifyRequest{NewPrice: req.NewPrice, NewSize: req.NewSize}, at)
	if err != nil {
		writeJSON(w, http.StatusOK, rejectionResponse{Rejected: true, Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, orderToWire(order))
}
