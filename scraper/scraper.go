// Package scraper fetches the quote site's page sections with colly.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-quotes/config"
	"github.com/aluiziolira/go-scrape-quotes/metrics"
	"github.com/aluiziolira/go-scrape-quotes/models"
	"github.com/gocolly/colly/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Scraper wraps the colly collector, retry policy and page cache.
type Scraper struct {
	cfg       *config.Config
	baseURL   string
	collector *colly.Collector
	cache     *expirable.LRU[string, string]
	metrics   *metrics.Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, m *metrics.Metrics) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	s := &Scraper{
		cfg:       cfg,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		collector: collector,
		metrics:   m,
	}
	if cfg.PageCacheSize > 0 {
		s.cache = expirable.NewLRU[string, string](cfg.PageCacheSize, nil, cfg.PageCacheTTL)
	}
	return s, nil
}

// Fetch downloads the three sections for one ticker request. The quote
// history covers the half-open window [Target, Comparison).
func (s *Scraper) Fetch(ctx context.Context, req models.TickerRequest) (*models.RawScrapeResult, error) {
	stockData, err := s.FetchPage(ctx, models.PageQuote, req.Ticker, req.Target.Date, req.Comparison.Date)
	if err != nil {
		return nil, err
	}
	companyInfo, err := s.FetchPage(ctx, models.PageProfile, req.Ticker, req.Target.Date, req.Comparison.Date)
	if err != nil {
		return nil, err
	}
	marketCap, err := s.FetchPage(ctx, models.PageMarketCap, req.Ticker, req.Target.Date, req.Comparison.Date)
	if err != nil {
		return nil, err
	}

	return &models.RawScrapeResult{
		Ticker:          req.Ticker,
		StockDataHTML:   stockData,
		CompanyInfoHTML: companyInfo,
		MarketCapHTML:   marketCap,
	}, nil
}

// FetchPage returns the raw HTML of one page section. Profile and market cap
// pages do not depend on the window and are served from cache when possible.
func (s *Scraper) FetchPage(ctx context.Context, kind models.PageKind, ticker string, start, end time.Time) (string, error) {
	target := s.PageURL(kind, ticker, start, end)
	cacheable := s.cache != nil && kind != models.PageQuote

	if cacheable {
		if body, ok := s.cache.Get(target); ok {
			s.metrics.IncCacheHit()
			return body, nil
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		body, err := s.visit(kind, target)
		if err == nil {
			if cacheable {
				s.cache.Add(target, body)
			}
			return body, nil
		}

		lastErr = err
		category := ErrorTypeLabel(err)
		s.metrics.IncError(category)
		slog.Debug("fetch failed",
			slog.String("ticker", ticker),
			slog.String("page", string(kind)),
			slog.String("category", category),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)

		if attempt >= s.cfg.MaxRetries || !retryable(err) {
			break
		}
		s.metrics.IncRetries()
		if err := sleep(ctx, s.backoff(attempt+1)); err != nil {
			lastErr = err
			break
		}
	}

	return "", &FetchError{Kind: kind, Ticker: ticker, URL: target, Err: lastErr}
}

// PageURL builds the address of a page section.
func (s *Scraper) PageURL(kind models.PageKind, ticker string, start, end time.Time) string {
	upper := strings.ToUpper(strings.TrimSpace(ticker))
	symbol := url.PathEscape(upper)
	query := url.Values{}
	switch kind {
	case models.PageQuote:
		query.Set("period1", fmt.Sprint(start.Unix()))
		query.Set("period2", fmt.Sprint(end.Unix()))
		return fmt.Sprintf("%s/quote/%s/history?%s", s.baseURL, symbol, query.Encode())
	case models.PageProfile:
		query.Set("p", upper)
		return fmt.Sprintf("%s/quote/%s/profile?%s", s.baseURL, symbol, query.Encode())
	default:
		query.Set("p", upper)
		return fmt.Sprintf("%s/quote/%s?%s", s.baseURL, symbol, query.Encode())
	}
}

func (s *Scraper) visit(kind models.PageKind, target string) (string, error) {
	c := s.collector.Clone()

	var (
		body     []byte
		status   int
		visitErr error
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		visitErr = err
	})

	s.metrics.IncRequest(string(kind))
	start := time.Now()
	err := c.Visit(target)
	c.Wait()
	s.metrics.ObserveDuration(time.Since(start))

	if err == nil {
		err = visitErr
	}
	if err != nil || status >= http.StatusBadRequest {
		return "", classifyError(err, status)
	}
	return string(body), nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrServer{Err: wrapped}
		}
	}

	if err == nil {
		return fmt.Errorf("http status %d", statusCode)
	}
	return err
}

func (s *Scraper) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := s.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := s.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
