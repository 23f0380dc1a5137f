package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/indicators"
	"virtual-exchange/internal/report"
	"virtual-exchange/internal/runtime"
)

// exchangeOrderRequest is the wire body of POST /exchange/order.
type exchangeOrderRequest struct {
	Coin       string           `json:"coin"`
	IsBuy      bool             `json:"is_buy"`
	Sz         decimal.Decimal  `json:"sz"`
	LimitPx    *decimal.Decimal `json:"limit_px,omitempty"`
	OrderType  string           `json:"order_type"`
	ReduceOnly bool             `json:"reduce_only,omitempty"`
	TpSl       *tpSlRequest     `json:"tpsl,omitempty"`
}

type tpSlRequest struct {
	TakeProfitPx *decimal.Decimal `json:"take_profit_px,omitempty"`
	StopLossPx   *decimal.Decimal `json:"stop_loss_px,omitempty"`
}

type exchangeCancelRequest struct {
	OID int64 `json:"oid"`
}

type exchangeModifyRequest struct {
	OID      int64            `json:"oid"`
	NewPrice *decimal.Decimal `json:"new_price,omitempty"`
	NewSize  *decimal.Decimal `json:"new_size,omitempty"`
}

// rejectionResponse is returned in place of a wireOrder when the engine
// refuses the order at the call site (spec.md §7's InvalidOrder,
// InsufficientFunds, UnknownSymbol, AlreadyTerminal class).
type rejectionResponse struct {
	Rejected bool   `json:"rejected"`
	Reason   string `json:"reason"`
}

// wireOrder is the cross-cutting Order shape served by /exchange/order,
// /exchange/modify and embedded in /info's open_orders.
type wireOrder struct {
	OID          int64           `json:"oid"`
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	Type         string          `json:"type"`
	Sz           decimal.Decimal `json:"sz"`
	Px           decimal.Decimal `json:"px"`
	ReduceOnly   bool            `json:"reduce_only"`
	State        string          `json:"state"`
	FilledSize   decimal.Decimal `json:"filled_size"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
	ParentID     int64           `json:"parent_id,omitempty"`
	CancelReason string          `json:"cancel_reason,omitempty"`
}

func orderToWire(o *domain.Order) wireOrder {
	return wireOrder{
		OID:          o.ID,
		Symbol:       o.Symbol,
		Side:         string(o.Side),
		Type:         string(o.Type),
		Sz:           o.Size,
		Px:           o.Price,
		ReduceOnly:   o.ReduceOnly,
		State:        string(o.State),
		FilledSize:   o.FilledSize,
		AvgFillPrice: o.AvgFillPrice,
		ParentID:     o.ParentID,
		CancelReason: string(o.CancelReason),
	}
}

type wirePosition struct {
	Symbol        string          `json:"symbol"`
	Size          decimal.Decimal `json:"size"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	RealisedPnL   decimal.Decimal `json:"realised_pnl"`
}

// wireAccountInfo is the body served by POST /info, spec.md §4.3.
type wireAccountInfo struct {
	Equity          decimal.Decimal `json:"equity"`
	Cash            decimal.Decimal `json:"cash"`
	TotalMarginUsed decimal.Decimal `json:"total_margin_used"`
	Positions       []wirePosition  `json:"positions"`
	OpenOrders      []wireOrder     `json:"open_orders"`
	Timestamp       int64           `json:"timestamp"`
}

func accountInfoToWire(info runtime.AccountInfo, at time.Time) wireAccountInfo {
	positions := make([]wirePosition, 0, len(info.Positions))
	for _, p := range info.Positions {
		positions = append(positions, wirePosition{
			Symbol:        p.Symbol,
			Size:          p.Size,
			AvgEntryPrice: p.AvgEntryPrice,
			RealisedPnL:   p.RealisedPnL,
		})
	}
	orders := make([]wireOrder, 0, len(info.OpenOrders))
	for _, o := range info.OpenOrders {
		o := o
		orders = append(orders, orderToWire(&o))
	}
	return wireAccountInfo{
		Equity:          info.Equity,
		Cash:            info.Cash,
		TotalMarginUsed: info.TotalMarginUsed,
		Positions:       positions,
		OpenOrders:      orders,
		Timestamp:       at.Unix(),
	}
}

type infoRequest struct {
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// wireNewsItem is one entry of GET /top-news's response.
type wireNewsItem struct {
	Title       string  `json:"title"`
	Source      string  `json:"source"`
	PublishedAt int64   `json:"published_at"`
	Importance  float64 `json:"importance"`
}

func newsItemToWire(n runtime.NewsItem) wireNewsItem {
	return wireNewsItem{
		Title:       n.Title,
		Source:      n.Source,
		PublishedAt: n.PublishedAt.Unix(),
		Importance:  n.Importance,
	}
}

// indicatorBundle is the multi-field indicator snapshot computed for one
// interval as of T, served by GET /gpt-latest/{symbol}.
type indicatorBundle struct {
	SMA20     *decimal.Decimal            `json:"sma_20,omitempty"`
	EMA20     *decimal.Decimal            `json:"ema_20,omitempty"`
	RSI14     *decimal.Decimal            `json:"rsi_14,omitempty"`
	MACD      *indicators.MACD            `json:"macd,omitempty"`
	Bollinger *indicators.BollingerBands  `json:"bollinger,omitempty"`
	ATR14     *decimal.Decimal            `json:"atr_14,omitempty"`
	Candles   int                         `json:"candles_available"`
}

// gptLatestResponse is the multi-timeframe indicator bundle served by
// GET /gpt-latest/{symbol}?timestamp=T.
type gptLatestResponse struct {
	Symbol    string                      `json:"symbol"`
	Timestamp int64                       `json:"timestamp"`
	Intervals map[domain.Interval]indicatorBundle `json:"intervals"`
}

// wireTrade is one closed round trip in a wireReport.
type wireTrade struct {
	Symbol    string          `json:"symbol"`
	EntryTime int64           `json:"entry_time"`
	ExitTime  int64           `json:"exit_time"`
	Qty       decimal.Decimal `json:"qty"`
	Fees      decimal.Decimal `json:"fees"`
	PnL       decimal.Decimal `json:"pnl"`
	RMultiple decimal.Decimal `json:"r_multiple"`
}

type wireEquityPoint struct {
	At     int64           `json:"at"`
	Equity decimal.Decimal `json:"equity"`
}

type wireReproducibility struct {
	DataHash       string          `json:"data_hash"`
	StrategyConfig string          `json:"strategy_config"`
	EngineVersion  string          `json:"engine_version"`
	FeeRate        decimal.Decimal `json:"fee_rate"`
	SlippageModel  string          `json:"slippage_model"`
}

// wireReport is the on-wire shape of report.Report: monetary/size
// fields as decimal strings, timestamps as integer Unix seconds.
type wireReport struct {
	Trades            []wireTrade         `json:"trades"`
	EquityCurve       []wireEquityPoint   `json:"equity_curve"`
	MaxDrawdown       decimal.Decimal     `json:"max_drawdown"`
	MDDDurationSeconds int64              `json:"mdd_duration_seconds"`
	WinRate           decimal.Decimal     `json:"win_rate"`
	AvgWin            decimal.Decimal     `json:"avg_win"`
	AvgLoss           decimal.Decimal     `json:"avg_loss"`
	ProfitFactor      decimal.Decimal     `json:"profit_factor"`
	Exposure          decimal.Decimal     `json:"exposure"`
	Turnover          decimal.Decimal     `json:"turnover"`
	SharpeRatio       float64             `json:"sharpe_ratio"`
	Reproducibility   wireReproducibility `json:"reproducibility"`
}

func reportToWire(rep report.Report) wireReport {
	trades := make([]wireTrade, 0, len(rep.Trades))
	for _, t := range rep.Trades {
		trades = append(trades, wireTrade{
			Symbol:    t.Symbol,
			EntryTime: t.EntryTime.Unix(),
			ExitTime:  t.ExitTime.Unix(),
			Qty:       t.Qty,
			Fees:      t.Fees,
			PnL:       t.PnL,
			RMultiple: t.RMultiple,
		})
	}
	curve := make([]wireEquityPoint, 0, len(rep.EquityCurve))
	for _, e := range rep.EquityCurve {
		curve = append(curve, wireEquityPoint{At: e.At.Unix(), Equity: e.Equity})
	}
	return wireReport{
		Trades:             trades,
		EquityCurve:        curve,
		MaxDrawdown:        rep.MaxDrawdown,
		MDDDurationSeconds: int64(rep.MDDDuration.Seconds()),
		WinRate:            rep.WinRate,
		AvgWin:             rep.AvgWin,
		AvgLoss:            rep.AvgLoss,
		ProfitFactor:       rep.ProfitFactor,
		Exposure:           rep.Exposure,
		Turnover:           rep.Turnover,
		SharpeRatio:        rep.SharpeRatio,
		Reproducibility: wireReproducibility{
			DataHash:       rep.Reproducibility.DataHash,
			StrategyConfig: rep.Reproducibility.StrategyConfig,
			EngineVersion:  rep.Reproducibility.EngineVersion,
			FeeRate:        rep.Reproducibility.FeeRate,
			SlippageModel:  rep.Reproducibility.SlippageModel,
		},
	}
}

type backtestOrchestrateRequest struct {
	Symbol               string  `json:"symbol"`
	StartTime            string  `json:"start_time"`
	EndTime              string  `json:"end_time"`
	MeetingIntervalHours float64 `json:"meeting_interval_hours"`
	StrategyAgentURL     string  `json:"strategy_agent_url,omitempty"`
}

type backtestResponse struct {
	Status   string     `json:"status"`
	RunID    string     `json:"run_id"`
	Response wireReport `json:"response"`
}

type backtestRunRequest struct {
	Symbol    string                 `json:"symbol"`
	StartTime string                 `json:"start_time"`
	EndTime   string                 `json:"end_time"`
	Orders    []exchangeOrderRequest `json:"orders"`
}
