package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Interval is a free-form string identifying a candle's aggregation
// period. The one-minute interval is the matching primitive; 15m, 4h
// and 1d are derived for read APIs.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval15m Interval = "15m"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// Candle is keyed by symbol + interval + bar-start timestamp.
type Candle struct {
	Symbol    string
	Interval  Interval
	StartTime time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// CloseTime returns the bar-close timestamp given the interval's
// duration.
func (c Candle) CloseTime() time.Time {
	return c.StartTime.Add(intervalDuration(c.Interval))
}

func intervalDuration(i Interval) time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval4h:
		return 4 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Validate reports ErrMalformedCandle for a candle whose OHLC values are
// not internally consistent (engine faults per spec.md §4.2 are fatal).
func (c Candle) Validate() error {
	if c.Low.GreaterThan(c.High) {
		return ErrMalformedCandle
	}
	if c.Open.LessThan(c.Low) || c.Open.GreaterThan(c.High) {
		return ErrMalformedCandle
	}
	if c.Close.LessThan(c.Low) || c.Close.GreaterThan(c.High) {
		return ErrMalformedCandle
	}
	return nil
}
