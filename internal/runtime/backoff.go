package runtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// BackoffScheduler turns a single bounded-exponential-backoff delay into
// a one-shot robfig/cron/v3 entry that fires fn once and then removes
// itself. It exists for MCP stdio-server reconnects and the outer
// retry-policy's backoff timer — not for user-facing recurring cron
// jobs, which have no home in this package.
//
// robfig/cron/v3 has no "run once after N seconds" primitive; its entries
// are recurring schedules. This wraps cron.New()+cron.AddFunc with a
// schedule built from the backoff duration and removes the entry from
// inside the callback, keeping the actual semantics one-shot.
type BackoffScheduler struct {
	mu   sync.Mutex
	c    *cron.Cron
	base time.Duration
	max  time.Duration
}

// NewBackoffScheduler creates a scheduler whose delays grow
// exponentially from base, capped at max.
func NewBackoffScheduler(base, max time.Duration) *BackoffScheduler {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	s := &BackoffScheduler{
		c:    cron.New(cron.WithSeconds()),
		base: base,
		max:  max,
	}
	s.c.Start()
	return s
}

// Delay computes the backoff delay for the given attempt (0-indexed),
// doubling each attempt and capped at max.
func (s *BackoffScheduler) Delay(attempt int) time.Duration {
	d := s.base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= s.max {
			return s.max
		}
	}
	return d
}

// ScheduleRetry runs fn once after the backoff delay for attempt, using a
// cron entry parsed from the delay rather than a bare time.AfterFunc, so
// the same scheduling engine used for recurring jobs also owns this
// one-shot deferral.
func (s *BackoffScheduler) ScheduleRetry(attempt int, fn func()) error {
	delay := s.Delay(attempt)
	fireAt := time.Now().Add(delay)
	spec := fmt.Sprintf("%d %d %d %d %d *",
		fireAt.Second(), fireAt.Minute(), fireAt.Hour(), fireAt.Day(), int(fireAt.Month()))

	s.mu.Lock()
	defer s.mu.Unlock()

	var entryID cron.EntryID
	entryID, err := s.c.AddFunc(spec, func() {
		fn()
		s.c.Remove(entryID)
	})
	if err != nil {
		// spec parsing failure (e.g. minute already passed) — fall back to
		// a plain timer, the one case this was judged not worth forcing
		// through cron/v3's schedule grammar.
		time.AfterFunc(delay, fn)
		return nil
	}
	return nil
}

// Stop shuts down the underlying cron runner.
func (s *BackoffScheduler) Stop() {
	s.c.Stop()
}
