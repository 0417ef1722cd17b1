// Package orchestrator validates scrape submissions, checks them against
// persisted records and fans ticker work out synchronously or as jobs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-quotes/calendar"
	"github.com/aluiziolira/go-scrape-quotes/config"
	"github.com/aluiziolira/go-scrape-quotes/jobs"
	"github.com/aluiziolira/go-scrape-quotes/metrics"
	"github.com/aluiziolira/go-scrape-quotes/models"
	"github.com/aluiziolira/go-scrape-quotes/parser"
	"github.com/aluiziolira/go-scrape-quotes/pipeline"
	"golang.org/x/sync/errgroup"
)

// Fetcher downloads the page sections of one ticker.
type Fetcher interface {
	Fetch(ctx context.Context, req models.TickerRequest) (*models.RawScrapeResult, error)
}

// Extractor turns fetched sections into a record.
type Extractor interface {
	Extract(raw *models.RawScrapeResult, date calendar.TradingDate) (*models.StockRecord, error)
}

// DuplicateChecker reports which tickers already have a record for date.
type DuplicateChecker interface {
	QueryExisting(ctx context.Context, tickers []string, date time.Time) (map[string]struct{}, error)
}

// JobIssuer is an asynchronous execution facility.
type JobIssuer interface {
	IssueAsyncJob(ctx context.Context, req models.TickerRequest) (string, error)
	PollJobs(ctx context.Context, ids []string) ([]models.PolledJob, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithSession sets the pending batch used by Stage, FinalizeBatch and Submit.
func WithSession(s *pipeline.Session) Option {
	return func(o *Orchestrator) {
		o.session = s
	}
}

// WithJobIssuer enables the async path.
func WithJobIssuer(j JobIssuer) Option {
	return func(o *Orchestrator) {
		o.issuer = j
	}
}

// WithClock overrides the current time used for date checks and ScrapedAt.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator drives one scrape submission at a time per call. It is safe
// for concurrent use; shared state lives in the session and the tracker.
type Orchestrator struct {
	cfg       *config.Config
	cal       *calendar.Calendar
	fetcher   Fetcher
	extractor Extractor
	checker   DuplicateChecker
	issuer    JobIssuer
	session   *pipeline.Session
	tracker   *jobs.Tracker
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	options   map[string]struct{}
}

// New wires an orchestrator around its collaborators.
func New(cfg *config.Config, cal *calendar.Calendar, fetcher Fetcher, extractor Extractor, checker DuplicateChecker, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cal == nil || fetcher == nil || extractor == nil || checker == nil {
		return nil, fmt.Errorf("calendar, fetcher, extractor and duplicate checker are required")
	}

	o := &Orchestrator{
		cfg:       cfg,
		cal:       cal,
		fetcher:   fetcher,
		extractor: extractor,
		checker:   checker,
		tracker:   jobs.NewTracker(cfg.JobIDPrefixLen),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	if len(cfg.Tickers) > 0 {
		o.options = make(map[string]struct{}, len(cfg.Tickers))
		for _, t := range cfg.Tickers {
			o.options[normalizeTicker(t.Value)] = struct{}{}
		}
	}
	return o, nil
}

// Tracker exposes the job tracking table.
func (o *Orchestrator) Tracker() *jobs.Tracker {
	return o.tracker
}

// Request builds the immutable request for one ticker.
func (o *Orchestrator) Request(ticker string, date time.Time) models.TickerRequest {
	return models.TickerRequest{
		Ticker: normalizeTicker(ticker),
		Window: o.cal.Window(date),
	}
}

// ValidateInput normalizes tickers and checks the date. It returns the
// classified date and the de-duplicated upper-case tickers.
func (o *Orchestrator) ValidateInput(tickers []string, date time.Time) (calendar.TradingDate, []string, error) {
	seen := make(map[string]struct{}, len(tickers))
	normalized := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = normalizeTicker(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		if o.options != nil {
			if _, ok := o.options[t]; !ok {
				return calendar.TradingDate{}, nil, &UnknownTickerError{Ticker: t}
			}
		}
		seen[t] = struct{}{}
		normalized = append(normalized, t)
	}
	if len(normalized) == 0 {
		return calendar.TradingDate{}, nil, ErrNoTickers
	}

	if date.IsZero() {
		return calendar.TradingDate{}, nil, &InvalidDateError{Reason: "no date selected"}
	}
	td := o.cal.Date(date)
	switch {
	case td.IsWeekend:
		return td, nil, &InvalidDateError{Date: td.Date, Reason: "falls on a weekend"}
	case td.IsHoliday:
		return td, nil, &InvalidDateError{Date: td.Date, Reason: "is a market holiday"}
	case td.Date.After(calendar.Truncate(o.now())):
		return td, nil, &InvalidDateError{Date: td.Date, Reason: "is in the future"}
	}
	return td, normalized, nil
}

// CheckDuplicates returns, sorted, the tickers already persisted for date.
func (o *Orchestrator) CheckDuplicates(ctx context.Context, tickers []string, date time.Time) ([]string, error) {
	existing, err := o.checker.QueryExisting(ctx, tickers, calendar.Truncate(date))
	if err != nil {
		return nil, fmt.Errorf("check duplicates: %w", err)
	}

	var dups []string
	for _, t := range tickers {
		if _, ok := existing[t]; ok {
			dups = append(dups, t)
		}
	}
	sort.Strings(dups)
	return dups, nil
}

// ScrapeTicker fetches and extracts one ticker. When only optional company
// fields are missing and partial records are allowed, the record is returned
// together with the extraction error.
func (o *Orchestrator) ScrapeTicker(ctx context.Context, req models.TickerRequest) (*models.StockRecord, error) {
	raw, err := o.fetcher.Fetch(ctx, req)
	if err != nil {
		o.metrics.IncRecord(metrics.OutcomeFailed)
		return nil, err
	}

	record, err := o.extractor.Extract(raw, req.Target)
	if record == nil || (err != nil && !(o.cfg.AllowPartial && parser.Partial(err))) {
		if err == nil {
			err = parser.ErrIncompleteInput
		}
		o.metrics.IncRecord(metrics.OutcomeFailed)
		return nil, err
	}

	record.GivenDate = req.Target.Date
	record.ScrapedAt = o.now().UTC()
	if err != nil {
		o.metrics.IncRecord(metrics.OutcomePartial)
		o.logger.Warn("partial record",
			slog.String("ticker", req.Ticker),
			slog.Any("error", err),
		)
		return record, err
	}
	o.metrics.IncRecord(metrics.OutcomeOK)
	return record, nil
}

// RunSync scrapes every ticker with at most Parallelism in flight. A
// ticker's failure never stops the others. Tickers not yet started when ctx
// is done are reported with the context error.
func (o *Orchestrator) RunSync(ctx context.Context, tickers []string, date time.Time) *models.BatchResult {
	result := &models.BatchResult{}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(max(o.cfg.Parallelism, 1))

	for _, ticker := range tickers {
		req := o.Request(ticker, date)
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, models.TickerError{Ticker: req.Ticker, Err: err})
			continue
		}
		g.Go(func() error {
			var (
				record *models.StockRecord
				err    error
			)
			if err = ctx.Err(); err == nil {
				record, err = o.ScrapeTicker(ctx, req)
			}

			mu.Lock()
			defer mu.Unlock()
			if record != nil {
				result.Records = append(result.Records, record)
				if err != nil {
					result.Warnings = append(result.Warnings, models.TickerError{Ticker: req.Ticker, Err: err})
				}
				return nil
			}
			o.logger.Warn("ticker failed",
				slog.String("ticker", req.Ticker),
				slog.Any("error", err),
			)
			result.Errors = append(result.Errors, models.TickerError{Ticker: req.Ticker, Err: err})
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Records, func(i, j int) bool { return result.Records[i].Ticker < result.Records[j].Ticker })
	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Ticker < result.Errors[j].Ticker })
	sort.Slice(result.Warnings, func(i, j int) bool { return result.Warnings[i].Ticker < result.Warnings[j].Ticker })
	return result
}

// RunAsync issues one job per ticker and tracks it without waiting. An
// issuance failure is reported and does not stop the remaining tickers.
func (o *Orchestrator) RunAsync(ctx context.Context, tickers []string, date time.Time) ([]models.ScrapeJob, []models.TickerError) {
	var (
		issued []models.ScrapeJob
		errs   []models.TickerError
	)
	if o.issuer == nil {
		for _, t := range tickers {
			errs = append(errs, models.TickerError{Ticker: normalizeTicker(t), Err: ErrNoJobIssuer})
		}
		return nil, errs
	}

	for _, ticker := range tickers {
		req := o.Request(ticker, date)
		id, err := o.issuer.IssueAsyncJob(ctx, req)
		if err == nil {
			err = o.tracker.Track(id, req.Ticker)
		}
		if err != nil {
			o.logger.Warn("job issuance failed",
				slog.String("ticker", req.Ticker),
				slog.Any("error", err),
			)
			errs = append(errs, models.TickerError{Ticker: req.Ticker, Err: err})
			continue
		}
		o.logger.Debug("job issued", slog.String("ticker", req.Ticker), slog.String("job_id", id))
		issued = append(issued, models.ScrapeJob{ID: id, Ticker: req.Ticker, Status: models.JobQueued})
	}
	return issued, errs
}

// PollJobs fetches the status of every tracked job and resolves it to its
// ticker.
func (o *Orchestrator) PollJobs(ctx context.Context) ([]models.JobView, error) {
	if o.issuer == nil {
		return nil, ErrNoJobIssuer
	}
	ids := o.tracker.IDs()
	if len(ids) == 0 {
		return nil, nil
	}
	polled, err := o.issuer.PollJobs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("poll jobs: %w", err)
	}
	return o.tracker.MergeStatus(polled), nil
}

// Stage adds records to the pending batch.
func (o *Orchestrator) Stage(records ...*models.StockRecord) (int, error) {
	if o.session == nil {
		return 0, ErrNoSession
	}
	return o.session.Stage(records...), nil
}

// FinalizeBatch persists the pending batch.
func (o *Orchestrator) FinalizeBatch(ctx context.Context) (*models.PersistResult, error) {
	if o.session == nil {
		return nil, ErrNoSession
	}
	return o.session.Finalize(ctx)
}

// Report describes one submission.
type Report struct {
	Date      calendar.TradingDate
	Tickers   []string
	Skipped   []string
	Records   []*models.StockRecord
	Errors    []models.TickerError
	Warnings  []models.TickerError
	Jobs      []models.ScrapeJob
	Persisted *models.PersistResult
	Trace     []State
}

// State returns the state the submission ended in.
func (r *Report) State() State {
	if len(r.Trace) == 0 {
		return StateIdle
	}
	return r.Trace[len(r.Trace)-1]
}

// Submit validates, checks duplicates, scrapes every ticker and persists the
// records. Per-ticker failures are in Report.Errors and partial records
// are in Report.Warnings; batch-level failures are returned as the error.
func (o *Orchestrator) Submit(ctx context.Context, tickers []string, date time.Time) (*Report, error) {
	m := newMachine()
	report := &Report{}
	defer func() { report.Trace = m.trace }()

	td, selected, err := o.admit(ctx, m, report, tickers, date)
	if err != nil {
		return report, err
	}

	if err := m.advance(StateFetching); err != nil {
		return report, err
	}
	batch := o.RunSync(ctx, selected, td.Date)
	report.Records = batch.Records
	report.Errors = batch.Errors
	report.Warnings = batch.Warnings

	if err := m.advance(StateExtracting); err != nil {
		return report, err
	}
	if o.session == nil {
		return report, m.advance(StateDone)
	}

	if err := m.advance(StatePersisting); err != nil {
		return report, err
	}
	o.session.Stage(batch.Records...)
	persisted, err := o.session.Finalize(ctx)
	report.Persisted = persisted
	if err != nil {
		var persistErr *pipeline.PersistenceError
		if errors.As(err, &persistErr) {
			m.fail()
		} else {
			// Export failed after a successful insert; the batch is committed.
			o.logger.Error("export failed", slog.Any("error", err))
			_ = m.advance(StateDone)
		}
		return report, err
	}

	if persisted != nil && len(persisted.Duplicates) > 0 {
		o.logger.Warn("duplicates reported by store", slog.Int("count", len(persisted.Duplicates)))
	}
	return report, m.advance(StateDone)
}

// SubmitAsync validates, checks duplicates and issues one job per ticker.
func (o *Orchestrator) SubmitAsync(ctx context.Context, tickers []string, date time.Time) (*Report, error) {
	m := newMachine()
	report := &Report{}
	defer func() { report.Trace = m.trace }()

	if o.issuer == nil {
		m.fail()
		return report, ErrNoJobIssuer
	}

	td, selected, err := o.admit(ctx, m, report, tickers, date)
	if err != nil {
		return report, err
	}

	if err := m.advance(StateFetching); err != nil {
		return report, err
	}
	report.Jobs, report.Errors = o.RunAsync(ctx, selected, td.Date)
	return report, m.advance(StateDone)
}

// admit runs validation and the duplicate check, leaving m in
// CheckingDuplicates on success.
func (o *Orchestrator) admit(ctx context.Context, m *machine, report *Report, tickers []string, date time.Time) (calendar.TradingDate, []string, error) {
	if err := m.advance(StateValidatingInput); err != nil {
		return calendar.TradingDate{}, nil, err
	}
	td, selected, err := o.ValidateInput(tickers, date)
	report.Date = td
	if err != nil {
		m.fail()
		return td, nil, err
	}
	report.Tickers = selected

	if err := m.advance(StateCheckingDuplicates); err != nil {
		return td, nil, err
	}
	dups, err := o.CheckDuplicates(ctx, selected, td.Date)
	if err != nil {
		m.fail()
		return td, nil, err
	}
	if len(dups) == 0 {
		return td, selected, nil
	}

	o.metrics.AddDuplicates(len(dups))
	dupErr := &DuplicateTickerError{Tickers: dups, Date: td.Date}
	if o.cfg.DuplicatePolicy != config.DuplicatePolicyFilter {
		_ = m.advance(StateRejected)
		return td, nil, dupErr
	}

	report.Skipped = dups
	remaining := make([]string, 0, len(selected))
	skip := make(map[string]struct{}, len(dups))
	for _, d := range dups {
		skip[d] = struct{}{}
	}
	for _, t := range selected {
		if _, ok := skip[t]; !ok {
			remaining = append(remaining, t)
		}
	}
	if len(remaining) == 0 {
		_ = m.advance(StateRejected)
		return td, nil, dupErr
	}
	o.logger.Info("skipping tickers already persisted",
		slog.String("date", td.String()),
		slog.String("tickers", strings.Join(dups, ",")),
	)
	report.Tickers = remaining
	return td, remaining, nil
}

func normalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}
