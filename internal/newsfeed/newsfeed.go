// Package newsfeed provides the NewsSource collaborator: a ranked,
// read-only view over economic/news events as of a point in virtual
// time, consumed through the Runner's get_top_news surface.
package newsfeed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"virtual-exchange/internal/runtime"
)

// Impact is the expected market-moving severity of an event.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// importance maps an Impact to the numeric score TopNews ranks by.
// Ties within an Impact band are broken by recency.
func (i Impact) importance() float64 {
	switch i {
	case ImpactHigh:
		return 1.0
	case ImpactMedium:
		return 0.5
	default:
		return 0.1
	}
}

// Event is a single economic release or scheduled announcement.
type Event struct {
	ID          string
	Title       string
	Source      string
	ScheduledAt time.Time
	Impact      Impact
}

// Source is implemented by any event provider (CSV import, API poll,
// static fixture). FetchEvents must return events in [from, to].
type Source interface {
	Name() string
	FetchEvents(ctx context.Context, from, to time.Time) ([]Event, error)
}

// Feed is a thread-safe, in-memory store of events merged from one or
// more Sources, with deduplication by event ID — the Source that
// contributes an event first wins.
type Feed struct {
	mu     sync.RWMutex
	events map[string]Event
}

// NewFeed creates an empty Feed.
func NewFeed() *Feed {
	return &Feed{events: make(map[string]Event)}
}

// Ingest pulls events from every source across [from, to] and merges
// them into the feed, deduplicating by ID. A source error is reported
// but does not prevent the remaining sources from contributing.
func (f *Feed) Ingest(ctx context.Context, sources []Source, from, to time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for _, src := range sources {
		events, err := src.FetchEvents(ctx, from, to)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("newsfeed: source %q: %w", src.Name(), err)
			}
			continue
		}
		for _, e := range events {
			if _, exists := f.events[e.ID]; !exists {
				f.events[e.ID] = e
			}
		}
	}
	return firstErr
}

// Load seeds the feed directly from a fixed set of events, the path
// used by deterministic backtest fixtures that don't poll a live
// source.
func (f *Feed) Load(events []Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range events {
		f.events[e.ID] = e
	}
}

// TopNews returns the top k events scheduled at or before `before`,
// ranked by importance descending then scheduled time descending,
// satisfying runtime.TopNewsReader.
func (f *Feed) TopNews(_ context.Context, before time.Time, k int) ([]runtime.NewsItem, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	eligible := make([]Event, 0, len(f.events))
	for _, e := range f.events {
		if !e.ScheduledAt.After(before) {
			eligible = append(eligible, e)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		si, sj := eligible[i].Impact.importance(), eligible[j].Impact.importance()
		if si != sj {
			return si > sj
		}
		return eligible[i].ScheduledAt.After(eligible[j].ScheduledAt)
	})

	if k > 0 && len(eligible) > k {
		eligible = eligible[:k]
	}

	out := make([]runtime.NewsItem, len(eligible))
	for i, e := range eligible {
		out[i] = runtime.NewsItem{
			Title:       e.Title,
			PublishedAt: e.ScheduledAt,
			Importance:  e.Impact.importance(),
			Source:      e.Source,
		}
	}
	return out, nil
}

// StaticSource is a Source backed by a fixed in-memory slice, used by
// deterministic backtest fixtures and tests.
type StaticSource struct {
	name   string
	events []Event
}

// NewStaticSource wraps a fixed slice of events as a Source.
func NewStaticSource(name string, events []Event) *StaticSource {
	return &StaticSource{name: name, events: events}
}

func (s *StaticSource) Name() string { return s.name }

func (s *StaticSource) FetchEvents(_ context.Context, from, to time.Time) ([]Event, error) {
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		if !e.ScheduledAt.Before(from) && !e.ScheduledAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}
