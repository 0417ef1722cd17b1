// Package pipeline holds the pending record batch and the batch exporters.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-quotes/metrics"
	"github.com/aluiziolira/go-scrape-quotes/models"
	"github.com/aluiziolira/go-scrape-quotes/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultDedupeSize = 10000

// Persister stores a batch and reports which (ticker, date) pairs were duplicates.
type Persister interface {
	Persist(ctx context.Context, records []*models.StockRecord) (*models.PersistResult, error)
}

// PersistenceError is a batch-level failure; the batch stays pending.
type PersistenceError struct {
	Pending int
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist batch of %d record(s): %v", e.Pending, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Option configures a Session.
type Option func(*Session)

// WithExporter writes every inserted batch to w.
func WithExporter(w OutputWriter) Option {
	return func(s *Session) {
		s.exporter = w
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithDedupeSize bounds the number of submitted keys remembered.
func WithDedupeSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.dedupeSize = n
		}
	}
}

// Session accumulates records across calls until they are finalized.
type Session struct {
	persister Persister
	exporter  OutputWriter
	metrics   *metrics.Metrics

	dedupeSize int
	submitted  *lru.Cache[models.RecordKey, struct{}]

	mu          sync.Mutex
	pending     []*models.StockRecord
	pendingKeys map[models.RecordKey]struct{}
	stats       stats
}

// NewSession builds a session around a persistence collaborator.
func NewSession(p Persister, opts ...Option) (*Session, error) {
	if p == nil {
		return nil, fmt.Errorf("persister is required")
	}
	s := &Session{
		persister:   p,
		dedupeSize:  defaultDedupeSize,
		pendingKeys: make(map[models.RecordKey]struct{}),
		stats:       newStats(),
	}
	for _, opt := range opts {
		opt(s)
	}

	submitted, err := lru.New[models.RecordKey, struct{}](s.dedupeSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	s.submitted = submitted
	return s, nil
}

// Stage adds records to the pending batch and returns how many were accepted.
// Invalid records, pairs already pending and pairs already submitted by this
// session are skipped.
func (s *Session) Stage(records ...*models.StockRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted := 0
	for _, record := range records {
		if err := parser.ValidateRecord(record); err != nil {
			s.stats.reject("invalid_record")
			continue
		}
		key := record.Key()
		if _, ok := s.pendingKeys[key]; ok {
			s.stats.reject("duplicate_pending")
			continue
		}
		if s.submitted.Contains(key) {
			s.stats.reject("already_submitted")
			continue
		}
		s.pending = append(s.pending, record)
		s.pendingKeys[key] = struct{}{}
		s.stats.staged++
		accepted++
	}
	return accepted
}

// Pending returns a copy of the pending batch.
func (s *Session) Pending() []*models.StockRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.StockRecord, len(s.pending))
	copy(out, s.pending)
	return out
}

// Len returns the number of pending records.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Finalize hands the pending batch to the persister. An empty batch is a
// no-op. On failure the batch is kept for retry; on success it is cleared
// even when the result lists duplicates.
func (s *Session) Finalize(ctx context.Context) (*models.PersistResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return &models.PersistResult{}, nil
	}

	batch := make([]*models.StockRecord, len(s.pending))
	copy(batch, s.pending)

	result, err := s.persister.Persist(ctx, batch)
	if err != nil {
		return nil, &PersistenceError{Pending: len(batch), Err: err}
	}
	if result == nil {
		result = &models.PersistResult{}
	}

	duplicates := make(map[models.RecordKey]struct{}, len(result.Duplicates))
	for _, key := range result.Duplicates {
		duplicates[key] = struct{}{}
	}

	inserted := make([]*models.StockRecord, 0, len(batch))
	for _, record := range batch {
		key := record.Key()
		s.submitted.Add(key, struct{}{})
		if _, dup := duplicates[key]; !dup {
			inserted = append(inserted, record)
		}
	}

	s.pending = nil
	s.pendingKeys = make(map[models.RecordKey]struct{})
	s.stats.persisted += int64(len(inserted))
	s.metrics.IncBatch()
	s.metrics.AddDuplicates(len(result.Duplicates))

	if s.exporter != nil && len(inserted) > 0 {
		if err := s.exporter.Write(inserted); err != nil {
			return result, fmt.Errorf("export batch: %w", err)
		}
	}
	return result, nil
}

// GetMetrics returns a snapshot of the internal counters.
func (s *Session) GetMetrics() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.snapshot()
}

type stats struct {
	staged    int64
	persisted int64
	rejected  map[string]int
}

func newStats() stats {
	return stats{rejected: make(map[string]int)}
}

func (st *stats) reject(kind string) {
	st.rejected[kind]++
}

func (st *stats) snapshot() map[string]interface{} {
	rejected := make(map[string]int, len(st.rejected))
	for k, v := range st.rejected {
		rejected[k] = v
	}
	return map[string]interface{}{
		"staged_records":    st.staged,
		"persisted_records": st.persisted,
		"rejected_records":  rejected,
	}
}
