// Package runtime implements the Backtest Runner: the virtual clock and
// per-symbol candle windowing that makes every read-side API answer "as
// if now were T".
package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/domain"
)

// CandleSource is the abstract, read-only historical-data collaborator.
// Historical-data acquisition and on-disk storage layout are out of
// scope; this is the only shape the core ever depends on. Implementers
// must be safe for concurrent reads across runs.
type CandleSource interface {
	// GetCandles returns one-minute candles for symbol whose bar-start
	// time falls in [start, end), sorted ascending.
	GetCandles(ctx context.Context, symbol string, start, end time.Time) ([]domain.Candle, error)
	// Covers reports whether the source has complete one-minute coverage
	// for symbol over [start, end), used to detect a DataGap up front.
	Covers(ctx context.Context, symbol string, start, end time.Time) (bool, error)
}

// InMemoryCandleSource is a CandleSource backed by a pre-loaded slice,
// the model used by tests and by any adapter that loads a dataset
// eagerly (mirroring the eager in-memory load of a CSV-backed source).
type InMemoryCandleSource struct {
	bySymbol map[string][]domain.Candle // sorted by StartTime ascending
}

// NewInMemoryCandleSource builds a source from one-minute candles. Each
// symbol's candles are sorted by start time on construction.
func NewInMemoryCandleSource(candles []domain.Candle) *InMemoryCandleSource {
	src := &InMemoryCandleSource{bySymbol: make(map[string][]domain.Candle)}
	for _, c := range candles {
		src.bySymbol[c.Symbol] = append(src.bySymbol[c.Symbol], c)
	}
	for symbol := range src.bySymbol {
		rows := src.bySymbol[symbol]
		sort.Slice(rows, func(i, j int) bool { return rows[i].StartTime.Before(rows[j].StartTime) })
		src.bySymbol[symbol] = rows
	}
	return src
}

func (s *InMemoryCandleSource) GetCandles(_ context.Context, symbol string, start, end time.Time) ([]domain.Candle, error) {
	rows := s.bySymbol[symbol]
	out := make([]domain.Candle, 0, len(rows))
	for _, c := range rows {
		if !c.StartTime.Before(start) && c.StartTime.Before(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Covers reports whether every one-minute bar in [start, end) is
// present, by checking contiguity of bar-start timestamps rather than a
// mere count, so an interior gap is caught as well as a missing edge.
func (s *InMemoryCandleSource) Covers(_ context.Context, symbol string, start, end time.Time) (bool, error) {
	rows := s.bySymbol[symbol]
	expected := start
	for _, c := range rows {
		if c.StartTime.Before(start) {
			continue
		}
		if !c.StartTime.Before(end) {
			break
		}
		if !c.StartTime.Equal(expected) {
			return false, nil
		}
		expected = expected.Add(time.Minute)
	}
	return !expected.Before(end), nil
}

// LoadCandlesCSV reads one-minute OHLCV rows for symbol from the CSV at
// filePath and returns them sorted ascending by start time, ready to
// hand to NewInMemoryCandleSource. Recognised columns (case-insensitive
// header): date (or timestamp), open, high, low, close, volume, and an
// optional symbol column overriding the symbol argument per row.
func LoadCandlesCSV(filePath, symbol string) ([]domain.Candle, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("runtime: load candles csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("runtime: load candles csv: read header: %w", err)
	}
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idx := func(names ...string) (int, error) {
		for _, n := range names {
			if i, ok := colIdx[n]; ok {
				return i, nil
			}
		}
		return 0, fmt.Errorf("runtime: load candles csv: missing column %v", names)
	}

	dateCol, err := idx("date", "timestamp")
	if err != nil {
		return nil, err
	}
	openCol, err := idx("open")
	if err != nil {
		return nil, err
	}
	highCol, err := idx("high")
	if err != nil {
		return nil, err
	}
	lowCol, err := idx("low")
	if err != nil {
		return nil, err
	}
	closeCol, err := idx("close")
	if err != nil {
		return nil, err
	}
	volCol, err := idx("volume")
	if err != nil {
		return nil, err
	}
	symCol := -1
	if i, ok := colIdx["symbol"]; ok {
		symCol = i
	}

	dateFormats := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}
	parseDate := func(s string) (time.Time, error) {
		s = strings.TrimSpace(s)
		for _, layout := range dateFormats {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised date format %q", s)
	}

	var out []domain.Candle
	lineNo := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("runtime: load candles csv: line %d: %w", lineNo+1, err)
		}
		lineNo++

		rowSymbol := symbol
		if symCol >= 0 && symCol < len(row) {
			rowSymbol = strings.ToUpper(strings.TrimSpace(row[symCol]))
		}
		start, err := parseDate(row[dateCol])
		if err != nil {
			return nil, fmt.Errorf("runtime: load candles csv: line %d date: %w", lineNo, err)
		}
		open, err := decimal.NewFromString(strings.TrimSpace(row[openCol]))
		if err != nil {
			return nil, fmt.Errorf("runtime: load candles csv: line %d open: %w", lineNo, err)
		}
		high, err := decimal.NewFromString(strings.TrimSpace(row[highCol]))
		if err != nil {
			return nil, fmt.Errorf("runtime: load candles csv: line %d high: %w", lineNo, err)
		}
		low, err := decimal.NewFromString(strings.TrimSpace(row[lowCol]))
		if err != nil {
			return nil, fmt.Errorf("runtime: load candles csv: line %d low: %w", lineNo, err)
		}
		closeP, err := decimal.NewFromString(strings.TrimSpace(row[closeCol]))
		if err != nil {
			return nil, fmt.Errorf("runtime: load candles csv: line %d close: %w", lineNo, err)
		}
		vol, err := decimal.NewFromString(strings.TrimSpace(row[volCol]))
		if err != nil {
			return nil, fmt.Errorf("runtime: load candles csv: line %d volume: %w", lineNo, err)
		}

		c := domain.Candle{
			Symbol:    rowSymbol,
			Interval:  domain.Interval1m,
			StartTime: start,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    vol,
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("runtime: load candles csv: line %d: %w", lineNo, err)
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// CanonicalRow renders a candle as "symbol|close_ts|open|high|low|close|volume"
// with fixed decimal precision, the row shape data_hash is computed over.
func CanonicalRow(c domain.Candle) string {
	return fmt.Sprintf("%s|%d|%s|%s|%s|%s|%s",
		c.Symbol,
		c.CloseTime().Unix(),
		c.Open.StringFixed(8),
		c.High.StringFixed(8),
		c.Low.StringFixed(8),
		c.Close.StringFixed(8),
		c.Volume.StringFixed(8),
	)
}

// DataHash computes the SHA-256 reproducibility hash over candles, which
// must already be in chronological order.
func DataHash(candles []domain.Candle) string {
	h := sha256.New()
	for _, c := range candles {
		h.Write([]byte(CanonicalRow(c)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
