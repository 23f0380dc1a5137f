package runtime

import (
	"time"

	"virtual-exchange/internal/domain"
)

// Resample aggregates chronologically sorted one-minute candles into
// bars of the given interval. Bars use the convention:
// open = first.open, high = max.high, low = min.low, close = last.close,
// volume = sum(volume). A partial trailing bucket is included only if
// its bar-close time is <= asOf — resampled reads must never surface an
// in-progress bar.
func Resample(oneMin []domain.Candle, interval domain.Interval, asOf time.Time) []domain.Candle {
	if len(oneMin) == 0 {
		return nil
	}

	bucketStart := func(t time.Time) time.Time {
		switch interval {
		case domain.Interval15m:
			d := 15 * time.Minute
			return t.Truncate(d)
		case domain.Interval4h:
			d := 4 * time.Hour
			return t.Truncate(d)
		case domain.Interval1d:
			y, m, day := t.Date()
			return time.Date(y, m, day, 0, 0, 0, 0, t.Location())
		default:
			return t
		}
	}

	var out []domain.Candle
	var cur domain.Candle
	open := false

	flush := func() {
		if open && !cur.CloseTime().After(asOf) {
			out = append(out, cur)
		}
	}

	for _, c := range oneMin {
		bs := bucketStart(c.StartTime)
		if !open || !bs.Equal(cur.StartTime) {
			flush()
			cur = domain.Candle{
				Symbol:    c.Symbol,
				Interval:  interval,
				StartTime: bs,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			}
			open = true
			continue
		}
		if c.High.GreaterThan(cur.High) {
			cur.High = c.High
		}
		if c.Low.LessThan(cur.Low) {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume = cur.Volume.Add(c.Volume)
	}
	flush()

	return out
}
