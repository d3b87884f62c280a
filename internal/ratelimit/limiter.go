// Package ratelimit caps how often one identity may submit scores. It is a
// sliding window over recent submission times, kept either in process memory
// or in Redis behind the same Limiter interface.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter checks a key against its window and, when allowed, records the
// attempt in the same call.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// SlidingWindow is the in-process Limiter. A single mutex covers the whole
// map, so the prune-count-append sequence of one key never interleaves with
// another call.
type SlidingWindow struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
	now    func() time.Time
}

func NewSlidingWindow(max int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		hits:   make(map[string][]time.Time),
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// WithClock replaces the time source; tests use it to step past the window.
func (sw *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	sw.now = now
	return sw
}

func (sw *SlidingWindow) Allow(_ context.Context, key string) (Decision, error) {
	now := sw.now()
	sw.mu.Lock()
	defer sw.mu.Unlock()

	hits := prune(sw.hits[key], now.Add(-sw.window))
	if len(hits) >= sw.max {
		sw.hits[key] = hits
		return Decision{Allowed: false, RetryAfter: hits[0].Add(sw.window).Sub(now)}, nil
	}
	hits = append(hits, now)
	sw.hits[key] = hits
	return Decision{Allowed: true, Remaining: sw.max - len(hits)}, nil
}

// prune drops timestamps at or before cutoff. hits is in arrival order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0:0], hits[i:]...)
}

// Sweep forgets keys whose newest hit has left the window.
func (sw *SlidingWindow) Sweep() {
	cutoff := sw.now().Add(-sw.window)
	sw.mu.Lock()
	defer sw.mu.Unlock()
	for k, hits := range sw.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(sw.hits, k)
		}
	}
}

// Run sweeps idle keys until ctx is done.
func (sw *SlidingWindow) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.Sweep()
		}
	}
}

func (sw *SlidingWindow) keys() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.hits)
}
