package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-scrape-quotes/metrics"
	"github.com/aluiziolira/go-scrape-quotes/models"
	"github.com/google/uuid"
)

// ErrClosed is returned when a job is issued after Close.
var ErrClosed = errors.New("executor closed")

// WorkFunc scrapes one ticker. A non-nil record with a non-nil error is a
// partial success.
type WorkFunc func(ctx context.Context, req models.TickerRequest) (*models.StockRecord, error)

// Result is the outcome of a finished job.
type Result struct {
	Ticker string
	Record *models.StockRecord
	Err    error
}

type jobState struct {
	job    models.ScrapeJob
	result *Result
}

// Executor runs scrape jobs on a bounded set of goroutines. Issued jobs run
// to completion; there is no way to withdraw one.
type Executor struct {
	work    WorkFunc
	sem     chan struct{}
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	jobs   map[string]*jobState
	closed bool
	wg     sync.WaitGroup
}

// NewExecutor returns an executor that runs at most workers jobs at once.
func NewExecutor(work WorkFunc, workers int, m *metrics.Metrics, logger *slog.Logger) *Executor {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		work:    work,
		sem:     make(chan struct{}, workers),
		metrics: m,
		logger:  logger,
		jobs:    make(map[string]*jobState),
	}
}

// IssueAsyncJob queues a job for req and returns its ID without waiting.
func (e *Executor) IssueAsyncJob(ctx context.Context, req models.TickerRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Ticker == "" {
		return "", fmt.Errorf("issue job: empty ticker")
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrClosed
	}
	id := uuid.NewString()
	e.jobs[id] = &jobState{job: models.ScrapeJob{ID: id, Ticker: req.Ticker, Status: models.JobQueued}}
	e.wg.Add(1)
	e.mu.Unlock()

	e.metrics.IncJob(string(models.JobQueued))
	go e.run(context.WithoutCancel(ctx), id, req)
	return id, nil
}

func (e *Executor) run(ctx context.Context, id string, req models.TickerRequest) {
	defer e.wg.Done()

	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	e.setStatus(id, models.JobProcessing, "", nil)

	record, err := e.work(ctx, req)
	result := &Result{Ticker: req.Ticker, Record: record, Err: err}

	switch {
	case record != nil && err != nil:
		e.setStatus(id, models.JobCompleted, fmt.Sprintf("Completed with warnings: %v", err), result)
	case record != nil:
		e.setStatus(id, models.JobCompleted, "", result)
	default:
		if err == nil {
			err = fmt.Errorf("no record produced")
			result.Err = err
		}
		e.setStatus(id, models.JobFailed, fmt.Sprintf("First error: %v", err), result)
		e.logger.Warn("job failed",
			slog.String("job_id", id),
			slog.String("ticker", req.Ticker),
			slog.Any("error", err),
		)
	}
}

func (e *Executor) setStatus(id string, status models.JobStatus, extended string, result *Result) {
	e.mu.Lock()
	state := e.jobs[id]
	state.job.Status = status
	state.job.ExtendedStatus = extended
	if result != nil {
		state.result = result
	}
	e.mu.Unlock()

	e.metrics.IncJob(string(status))
}

// PollJobs reports the current status of ids. Unknown IDs are omitted.
func (e *Executor) PollJobs(ctx context.Context, ids []string) ([]models.PolledJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	polled := make([]models.PolledJob, 0, len(ids))
	for _, id := range ids {
		state, ok := e.jobs[id]
		if !ok {
			continue
		}
		polled = append(polled, models.PolledJob{
			ID:             id,
			Status:         state.job.Status,
			ExtendedStatus: state.job.ExtendedStatus,
		})
	}
	return polled, nil
}

// Job returns a snapshot of one job.
func (e *Executor) Job(id string) (models.ScrapeJob, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.jobs[id]
	if !ok {
		return models.ScrapeJob{}, false
	}
	return state.job, true
}

// Result returns the outcome of a finished job. The second value is false
// while the job is still queued or running.
func (e *Executor) Result(id string) (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.jobs[id]
	if !ok || state.result == nil {
		return Result{}, false
	}
	return *state.result, true
}

// Wait blocks until every issued job has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Close stops accepting jobs and waits for running ones.
func (e *Executor) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}
