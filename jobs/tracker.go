// Package jobs tracks asynchronous scrape jobs and runs them in process.
package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aluiziolira/go-scrape-quotes/models"
)

// ErrAlreadyTracked is returned when a job ID is registered twice.
var ErrAlreadyTracked = errors.New("job already tracked")

// Tracker maps issued job IDs to their ticker. Polled IDs are matched on
// their first prefixLen characters; a prefixLen of 0 matches exactly.
type Tracker struct {
	prefixLen int

	mu      sync.Mutex
	tickers map[string]string
	ids     []string
}

// NewTracker returns an empty tracker.
func NewTracker(prefixLen int) *Tracker {
	if prefixLen < 0 {
		prefixLen = 0
	}
	return &Tracker{
		prefixLen: prefixLen,
		tickers:   make(map[string]string),
	}
}

// Track registers the ticker for an issued job.
func (t *Tracker) Track(id, ticker string) error {
	if id == "" {
		return fmt.Errorf("track %s: empty job id", ticker)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.key(id)
	if _, ok := t.tickers[key]; ok {
		return fmt.Errorf("track %s: %w", id, ErrAlreadyTracked)
	}
	t.tickers[key] = ticker
	t.ids = append(t.ids, id)
	return nil
}

// Forget stops tracking the given jobs. Unknown IDs are ignored.
func (t *Tracker) Forget(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		key := t.key(id)
		drop[key] = struct{}{}
		delete(t.tickers, key)
	}
	kept := t.ids[:0]
	for _, id := range t.ids {
		if _, ok := drop[t.key(id)]; !ok {
			kept = append(kept, id)
		}
	}
	t.ids = kept
}

// IDs returns the tracked job IDs in registration order.
func (t *Tracker) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

// Len returns the number of tracked jobs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}

// Ticker resolves a job ID to its ticker.
func (t *Tracker) Ticker(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ticker, ok := t.tickers[t.key(id)]
	return ticker, ok
}

// MergeStatus resolves polled jobs to their tickers. Jobs that were never
// tracked are dropped. The result is sorted by ticker.
func (t *Tracker) MergeStatus(polled []models.PolledJob) []models.JobView {
	t.mu.Lock()
	defer t.mu.Unlock()

	views := make([]models.JobView, 0, len(polled))
	for _, job := range polled {
		ticker, ok := t.tickers[t.key(job.ID)]
		if !ok {
			continue
		}
		views = append(views, models.JobView{
			Ticker:         ticker,
			Status:         job.Status,
			ExtendedStatus: job.ExtendedStatus,
		})
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].Ticker < views[j].Ticker })
	return views
}

func (t *Tracker) key(id string) string {
	if t.prefixLen > 0 && len(id) > t.prefixLen {
		return id[:t.prefixLen]
	}
	return id
}
