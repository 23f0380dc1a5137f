package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/indicators"
)

// handleInfo implements POST /info: the account snapshot as of the
// active run's virtual clock, spec.md §4.3. An optional {timestamp}
// body field repositions the clock before the snapshot is taken.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	o := s.getCurrent()
	if o == nil {
		noRunActive(w)
		return
	}

	var req infoRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // no body, or one with no timestamp, is fine

	if req.Timestamp != nil {
		if err := o.Runner().SetCurrentTime(time.Unix(*req.Timestamp, 0).UTC()); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	info := o.Runner().GetAccountInfo()
	writeJSON(w, http.StatusOK, accountInfoToWire(info, o.Runner().GetCurrentTime()))
}

// computeBundle runs every indicator in internal/indicators over one
// interval's trailing closed candles. Indicators that don't yet have
// enough history are simply omitted from the bundle.
func computeBundle(candles []domain.Candle) indicatorBundle {
	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	bundle := indicatorBundle{Candles: len(candles)}
	if v, ok := indicators.SMA(closes, 20); ok {
		bundle.SMA20 = &v
	}
	if v, ok := indicators.EMA(closes, 20); ok {
		bundle.EMA20 = &v
	}
	if v, ok := indicators.RSI(closes, 14); ok {
		bundle.RSI14 = &v
	}
	if m, ok := indicators.ComputeMACD(candles); ok {
		bundle.MACD = &m
	}
	if b, ok := indicators.ComputeBollingerBands(closes, 20, 2); ok {
		bundle.Bollinger = &b
	}
	if v, ok := indicators.ATR(candles, 14); ok {
		bundle.ATR14 = &v
	}
	return bundle
}

// handleGPTLatest implements GET /gpt-latest/{symbol}?timestamp=T: the
// multi-timeframe indicator bundle as of T, computed from the 1m, 15m,
// 4h and 1d windows the active run's Runner serves.
func (s *Server) handleGPTLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	o := s.getCurrent()
	if o == nil {
		noRunActive(w)
		return
	}

	symbol := strings.Trim(strings.TrimPrefix(r.URL.Path, "/gpt-latest/"), "/")
	if symbol == "" {
		http.NotFound(w, r)
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("timestamp"))
	if raw == "" {
		http.Error(w, "timestamp is required", http.StatusBadRequest)
		return
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid timestamp", http.StatusBadRequest)
		return
	}
	at := time.Unix(ts, 0).UTC()
	if err := o.Runner().SetCurrentTime(at); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	intervals := []domain.Interval{domain.Interval1m, domain.Interval15m, domain.Interval4h, domain.Interval1d}
	bundles := make(map[domain.Interval]indicatorBundle, len(intervals))
	for _, interval := range intervals {
		candles, err := o.Runner().GetCandles(r.Context(), symbol, interval, 60)
		if err != nil {
			continue
		}
		bundles[interval] = computeBundle(candles)
	}

	writeJSON(w, http.StatusOK, gptLatestResponse{Symbol: symbol, Timestamp: ts, Intervals: bundles})
}

// handleTopNews implements GET /top-news?before_timestamp=T&k=…. News is
// a read-only collaborator independent of any backtest run, so this
// route works even with no active orchestrate call.
func (s *Server) handleTopNews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.deps.News == nil {
		writeJSON(w, http.StatusOK, map[string]any{"news": []wireNewsItem{}})
		return
	}

	q := r.URL.Query()
	before := time.Now().UTC()
	if raw := strings.TrimSpace(q.Get("before_timestamp")); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid before_timestamp", http.StatusBadRequest)
			return
		}
		before = time.Unix(ts, 0).UTC()
	}
	k := 10
	if raw := strings.TrimSpace(q.Get("k")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid k", http.StatusBadRequest)
			return
		}
		k = n
	}

	items, err := s.deps.News.TopNews(r.Context(), before, k)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	wire := make([]wireNewsItem, 0, len(items))
	for _, it := range items {
		wire = append(wire, newsItemToWire(it))
	}
	writeJSON(w, http.StatusOK, map[string]any{"news": wire})
}
