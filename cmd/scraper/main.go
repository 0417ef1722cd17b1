package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-quotes/calendar"
	"github.com/aluiziolira/go-scrape-quotes/config"
	"github.com/aluiziolira/go-scrape-quotes/jobs"
	"github.com/aluiziolira/go-scrape-quotes/metrics"
	"github.com/aluiziolira/go-scrape-quotes/models"
	"github.com/aluiziolira/go-scrape-quotes/orchestrator"
	"github.com/aluiziolira/go-scrape-quotes/parser"
	"github.com/aluiziolira/go-scrape-quotes/pipeline"
	"github.com/aluiziolira/go-scrape-quotes/scheduler"
	"github.com/aluiziolira/go-scrape-quotes/scraper"
	"github.com/aluiziolira/go-scrape-quotes/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	tickersFlag := flag.String("tickers", "", "Comma-separated tickers (default: configured ticker options)")
	dateFlag := flag.String("date", "", "Trade date YYYY-MM-DD (default: latest trading day)")
	async := flag.Bool("async", false, "Issue one background job per ticker and poll until they finish")
	schedule := flag.Bool("schedule", false, "Run the daily scrape on the configured cron schedule")
	runOnStart := flag.Bool("run-on-start", false, "With -schedule, run one scrape immediately")
	parallelism := flag.Int("parallel", 0, "Number of tickers scraped concurrently")
	maxRetries := flag.Int("max-retries", 0, "Maximum retry attempts per page")
	baseURL := flag.String("base-url", "", "Base URL of the quote site")
	outputFile := flag.String("output", "", "Output file path")
	outputFormat := flag.String("format", "", "Output format: csv, json, or dual")
	dbPath := flag.String("db", "", "SQLite database path")
	duplicatePolicy := flag.String("duplicate-policy", "", "Duplicate policy: block or filter")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		slog.Error("invalid environment", slog.Any("error", err))
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "parallel":
			cfg.Parallelism = *parallelism
		case "max-retries":
			cfg.MaxRetries = *maxRetries
		case "base-url":
			cfg.BaseURL = *baseURL
		case "output":
			cfg.OutputFile = *outputFile
		case "format":
			cfg.OutputFormat = strings.ToLower(*outputFormat)
		case "db":
			cfg.DatabasePath = *dbPath
		case "duplicate-policy":
			cfg.DuplicatePolicy = strings.ToLower(*duplicatePolicy)
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "v":
			cfg.Verbose = *verbose
		}
	})
	if cfg.Verbose {
		level.Set(slog.LevelDebug)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	cal, err := cfg.Calendar()
	if err != nil {
		slog.Error("building calendar", slog.Any("error", err))
		os.Exit(1)
	}

	tickers := selectedTickers(*tickersFlag, cfg.Tickers)
	if len(tickers) == 0 {
		slog.Error("no tickers selected; use -tickers or configure ticker options")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	m := metrics.New()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}
	defer func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}()

	if err := run(ctx, cfg, cal, m, tickers, *dateFlag, *async, *schedule, *runOnStart); err != nil {
		slog.Error("scrape failed", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, cal *calendar.Calendar, m *metrics.Metrics, tickers []string, dateFlag string, async, schedule, runOnStart bool) error {
	s, err := scraper.NewScraper(cfg, m)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	session, err := pipeline.NewSession(db,
		pipeline.WithExporter(writer),
		pipeline.WithMetrics(m),
		pipeline.WithDedupeSize(cfg.DedupeMaxSize),
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	var o *orchestrator.Orchestrator
	executor := jobs.NewExecutor(func(ctx context.Context, req models.TickerRequest) (*models.StockRecord, error) {
		return o.ScrapeTicker(ctx, req)
	}, cfg.JobWorkers, m, slog.Default())
	defer executor.Close()

	o, err = orchestrator.New(cfg, cal, s, parser.NewExtractor(parser.Locators{}), db,
		orchestrator.WithSession(session),
		orchestrator.WithJobIssuer(executor),
		orchestrator.WithMetrics(m),
		orchestrator.WithLogger(slog.Default()),
	)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	if schedule {
		return runScheduled(ctx, cfg, cal, o, tickers, runOnStart)
	}

	date := scheduler.TargetDate(cal, time.Now()).Date
	if dateFlag != "" {
		if date, err = calendar.ParseDate(dateFlag); err != nil {
			return err
		}
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.String("date", date.Format(calendar.DateLayout)),
		slog.String("tickers", strings.Join(tickers, ",")),
		slog.Bool("async", async),
	)

	startTime := time.Now()
	var report *orchestrator.Report
	if async {
		report, err = runAsync(ctx, cfg, o, executor, tickers, date)
	} else {
		report, err = o.Submit(ctx, tickers, date)
	}
	if report != nil {
		printSummary(report, time.Since(startTime), cfg.OutputFile, session.GetMetrics())
	}
	if err != nil {
		return err
	}

	if report.Persisted != nil && len(report.Persisted.InsertedIDs) > 0 {
		if err := writer.Validate(); err != nil {
			return fmt.Errorf("output validation failed: %w", err)
		}
	}
	return nil
}

// runAsync issues the jobs, polls until every job is terminal, then stages
// the finished records and persists them as one batch.
func runAsync(ctx context.Context, cfg *config.Config, o *orchestrator.Orchestrator, executor *jobs.Executor, tickers []string, date time.Time) (*orchestrator.Report, error) {
	report, err := o.SubmitAsync(ctx, tickers, date)
	if err != nil {
		return report, err
	}
	ids := make([]string, 0, len(report.Jobs))
	for _, job := range report.Jobs {
		ids = append(ids, job.ID)
		slog.Info("job issued", slog.String("ticker", job.Ticker), slog.String("job_id", job.ID))
	}
	defer o.Tracker().Forget(ids...)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	last := make(map[string]models.JobStatus, len(report.Jobs))
	for {
		views, err := o.PollJobs(ctx)
		if err != nil {
			return report, err
		}
		done := 0
		for _, v := range views {
			if last[v.Ticker] != v.Status {
				slog.Info("job status",
					slog.String("ticker", v.Ticker),
					slog.String("status", string(v.Status)),
					slog.String("detail", v.ExtendedStatus),
				)
				last[v.Ticker] = v.Status
			}
			if v.Status.Terminal() {
				done++
			}
		}
		if done == len(report.Jobs) {
			break
		}

		select {
		case <-ctx.Done():
			slog.Info("polling stopped; issued jobs keep running until the process exits")
			return report, ctx.Err()
		case <-ticker.C:
		}
	}

	for _, job := range report.Jobs {
		result, ok := executor.Result(job.ID)
		if !ok {
			continue
		}
		if result.Record == nil {
			report.Errors = append(report.Errors, models.TickerError{Ticker: job.Ticker, Err: result.Err})
			continue
		}
		report.Records = append(report.Records, result.Record)
		if result.Err != nil {
			report.Warnings = append(report.Warnings, models.TickerError{Ticker: job.Ticker, Err: result.Err})
		}
	}
	if _, err := o.Stage(report.Records...); err != nil {
		return report, err
	}
	report.Persisted, err = o.FinalizeBatch(ctx)
	return report, err
}

func runScheduled(ctx context.Context, cfg *config.Config, cal *calendar.Calendar, o *orchestrator.Orchestrator, tickers []string, runOnStart bool) error {
	sched := scheduler.New(ctx, cal, o, tickers, slog.Default())
	if err := sched.Register(cfg.ScheduleCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if runOnStart {
		if _, err := sched.RunNow(); err != nil {
			var dupErr *orchestrator.DuplicateTickerError
			if !errors.As(err, &dupErr) {
				slog.Error("initial scrape failed", slog.Any("error", err))
			}
		}
	}

	<-ctx.Done()
	return nil
}

func selectedTickers(flagValue string, options []models.TickerOption) []string {
	var tickers []string
	if flagValue != "" {
		for _, t := range strings.Split(flagValue, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickers = append(tickers, t)
			}
		}
		return tickers
	}
	for _, opt := range options {
		tickers = append(tickers, opt.Value)
	}
	return tickers
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(report *orchestrator.Report, duration time.Duration, outputFile string, stats map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Scrape %s\n", strings.ToLower(report.State().String()))

	if len(report.Tickers) > 0 {
		fmt.Printf("  Date:          %s\n", report.Date)
		fmt.Printf("  Tickers:       %s\n", strings.Join(report.Tickers, ", "))
	}
	if len(report.Skipped) > 0 {
		fmt.Printf("  Skipped:       %s (already persisted)\n", strings.Join(report.Skipped, ", "))
	}
	if len(report.Jobs) > 0 {
		fmt.Printf("  Jobs issued:   %d\n", len(report.Jobs))
	}
	fmt.Printf("  Records:       %d\n", len(report.Records))
	if report.Persisted != nil {
		fmt.Printf("  Inserted:      %d\n", len(report.Persisted.InsertedIDs))
		if n := len(report.Persisted.Duplicates); n > 0 {
			fmt.Printf("  Duplicates:    %d\n", n)
		}
	}
	if len(report.Errors) > 0 {
		fmt.Printf("  Failed:        %d\n", len(report.Errors))
		errs := append([]models.TickerError(nil), report.Errors...)
		sort.Slice(errs, func(i, j int) bool { return errs[i].Ticker < errs[j].Ticker })
		for _, e := range errs {
			fmt.Printf("    %-8s %s: %v\n", e.Ticker, errorKind(e.Err), e.Err)
		}
	}
	if len(report.Warnings) > 0 {
		fmt.Printf("  Partial:       %d\n", len(report.Warnings))
		for _, w := range report.Warnings {
			fmt.Printf("    %-8s %s: %v\n", w.Ticker, errorKind(w.Err), w.Err)
		}
	}
	if rejected, ok := stats["rejected_records"].(map[string]int); ok && len(rejected) > 0 {
		fmt.Printf("  Rejected:      %v\n", rejected)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func errorKind(err error) string {
	var missing *parser.MissingFieldError
	if errors.As(err, &missing) {
		return "missing_field"
	}
	return scraper.ErrorTypeLabel(err)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
