// Package scheduler runs the daily scrape on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-quotes/calendar"
	"github.com/aluiziolira/go-scrape-quotes/orchestrator"
	"github.com/robfig/cron/v3"
)

// Submitter runs one end-to-end submission.
type Submitter interface {
	Submit(ctx context.Context, tickers []string, date time.Time) (*orchestrator.Report, error)
}

// Scheduler triggers a submission for the configured tickers on every tick.
type Scheduler struct {
	Cron      *cron.Cron
	Calendar  *calendar.Calendar
	Submitter Submitter
	Tickers   []string
	Logger    *slog.Logger
	Now       func() time.Time
	Ctx       context.Context
}

// New returns a scheduler using a seconds-aware cron parser.
func New(ctx context.Context, cal *calendar.Calendar, sub Submitter, tickers []string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Calendar:  cal,
		Submitter: sub,
		Tickers:   tickers,
		Logger:    logger,
		Now:       time.Now,
		Ctx:       ctx,
	}
}

// Register adds the daily scrape under spec.
func (s *Scheduler) Register(spec string) error {
	if len(s.Tickers) == 0 {
		return fmt.Errorf("register daily scrape: no tickers configured")
	}
	if _, err := s.Cron.AddFunc(spec, s.dailyScrape); err != nil {
		return fmt.Errorf("register daily scrape: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.Info("scheduler started", slog.Int("entries", len(s.Cron.Entries())))
}

// Stop stops the scheduler and waits for a running scrape to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Logger.Info("scheduler stopped")
}

// RunNow executes the daily scrape immediately.
func (s *Scheduler) RunNow() (*orchestrator.Report, error) {
	return s.run()
}

// TargetDate is today when today is a trading day, otherwise the closest
// trading day before it.
func TargetDate(cal *calendar.Calendar, now time.Time) calendar.TradingDate {
	today := cal.Date(now)
	if today.Valid() {
		return today
	}
	return cal.PreviousTradingDay(today.Date)
}

func (s *Scheduler) dailyScrape() {
	_, _ = s.run()
}

func (s *Scheduler) run() (*orchestrator.Report, error) {
	target := TargetDate(s.Calendar, s.Now())
	s.Logger.Info("running daily scrape",
		slog.String("date", target.String()),
		slog.Int("tickers", len(s.Tickers)),
	)

	report, err := s.Submitter.Submit(s.Ctx, s.Tickers, target.Date)
	if err != nil {
		var dupErr *orchestrator.DuplicateTickerError
		if errors.As(err, &dupErr) {
			s.Logger.Info("daily scrape already persisted", slog.Any("tickers", dupErr.Tickers))
		} else {
			s.Logger.Error("daily scrape failed", slog.Any("error", err))
		}
		return report, err
	}

	s.Logger.Info("daily scrape finished",
		slog.Int("records", len(report.Records)),
		slog.Int("errors", len(report.Errors)),
	)
	return report, nil
}
