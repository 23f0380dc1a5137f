package runtime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
)

// AccountInfo is the wallet snapshot shape returned by get_account_info,
// with decimal amounts serialised as strings on the wire (handled by
// decimal.Decimal's own JSON marshalling).
type AccountInfo struct {
	Equity          decimal.Decimal
	Cash            decimal.Decimal
	TotalMarginUsed decimal.Decimal
	Positions       []domain.Position
	OpenOrders      []domain.Order
}

// AccountSnapshotter is satisfied by the wallet; the Runner depends only
// on this narrow read.
type AccountSnapshotter interface {
	Snapshot() AccountInfo
}

// NewsItem is one ranked news/event row returned by get_top_news.
type NewsItem struct {
	Title       string
	PublishedAt time.Time
	Importance  float64
	Source      string
}

// TopNewsReader is satisfied by internal/newsfeed's Feed.
type TopNewsReader interface {
	TopNews(ctx context.Context, before time.Time, k int) ([]NewsItem, error)
}

// Runner owns the virtual clock and per-symbol candle windowing; every
// read-side API answers "as of T". One Runner exists per backtest run.
type Runner struct {
	clock   *VirtualClock
	source  CandleSource
	cache   *Cache
	wallet  AccountSnapshotter
	news    TopNewsReader
	rangeLo time.Time
	rangeHi time.Time
}

// NewRunner initialises the Runner with the historical data range the
// run declares up front. It rejects ranges the CandleSource cannot fully
// cover for the given symbol with ErrDataGap.
func NewRunner(ctx context.Context, symbol string, start, end time.Time, source CandleSource, wallet AccountSnapshotter, news TopNewsReader, cache *Cache) (*Runner, error) {
	covers, err := source.Covers(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("runtime: check coverage: %w", err)
	}
	if !covers {
		return nil, fmt.Errorf("runtime: %s %s..%s: %w", symbol, start, end, domain.ErrDataGap)
	}

	return &Runner{
		clock:   NewVirtualClock(start),
		source:  source,
		cache:   cache,
		wallet:  wallet,
		news:    news,
		rangeLo: start,
		rangeHi: end,
	}, nil
}

// SetCurrentTime moves T forward; see VirtualClock.SetCurrentTime.
func (r *Runner) SetCurrentTime(t time.Time) error {
	return r.clock.SetCurrentTime(t)
}

// GetCurrentTime returns T.
func (r *Runner) GetCurrentTime() time.Time {
	return r.clock.Now()
}

// GetCandles returns the most recent limit closed candles of interval
// whose close time <= T. Partial in-progress candles are never
// returned. 1m is served directly from the source; derived intervals
// are resampled (and cached) on demand.
func (r *Runner) GetCandles(ctx context.Context, symbol string, interval domain.Interval, limit int) ([]domain.Candle, error) {
	t := r.clock.Now()

	if interval == domain.Interval1m {
		raw, err := r.source.GetCandles(ctx, symbol, r.rangeLo, t.Add(time.Minute))
		if err != nil {
			return nil, fmt.Errorf("runtime: get candles: %w", err)
		}
		return tailClosed(raw, t, limit), nil
	}

	if r.cache != nil {
		if cached, err := r.cache.GetCandles(ctx, symbol, interval, t); err == nil {
			return tailClosed(cached, t, limit), nil
		}
	}

	raw, err := r.source.GetCandles(ctx, symbol, r.rangeLo, t.Add(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("runtime: get candles: %w", err)
	}
	resampled := Resample(raw, interval, t)

	if r.cache != nil {
		_ = r.cache.SetCandles(ctx, symbol, interval, t, resampled)
	}

	return tailClosed(resampled, t, limit), nil
}

// tailClosed returns up to the last `limit` candles whose close time is
// <= asOf, preserving chronological order.
func tailClosed(candles []domain.Candle, asOf time.Time, limit int) []domain.Candle {
	closed := make([]domain.Candle, 0, len(candles))
	for _, c := range candles {
		if !c.CloseTime().After(asOf) {
			closed = append(closed, c)
		}
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].StartTime.Before(closed[j].StartTime) })
	if limit > 0 && len(closed) > limit {
		closed = closed[len(closed)-limit:]
	}
	return closed
}

// GetTopNews returns at most k news items published at or before T,
// ranked by the source's importance score descending then publication
// time descending.
func (r *Runner) GetTopNews(ctx context.Context, k int) ([]NewsItem, error) {
	if r.news == nil {
		return nil, nil
	}
	return r.news.TopNews(ctx, r.clock.Now(), k)
}

// GetAccountInfo returns the wallet snapshot at virtual time T.
func (r *Runner) GetAccountInfo() AccountInfo {
	return r.wallet.Snapshot()
}
