package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-quotes/calendar"
	"github.com/aluiziolira/go-scrape-quotes/config"
	"github.com/aluiziolira/go-scrape-quotes/metrics"
	"github.com/aluiziolira/go-scrape-quotes/models"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test/"
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	return cfg
}

func newTestScraper(t *testing.T, cfg *config.Config) (*Scraper, *httpmock.MockTransport) {
	t.Helper()
	s, err := NewScraper(cfg, metrics.New())
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	transport := httpmock.NewMockTransport()
	s.collector.WithTransport(transport)
	return s, transport
}

func testRequest(ticker string) models.TickerRequest {
	cal := calendar.Default()
	return models.TickerRequest{
		Ticker: ticker,
		Window: cal.Window(time.Date(2023, time.July, 10, 0, 0, 0, 0, time.UTC)),
	}
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestPageURL(t *testing.T) {
	s, _ := newTestScraper(t, testConfig())
	req := testRequest("aapl")

	got := s.PageURL(models.PageQuote, req.Ticker, req.Target.Date, req.Comparison.Date)
	want := fmt.Sprintf("http://example.test/quote/AAPL/history?period1=%d&period2=%d", req.Target.Date.Unix(), req.Comparison.Date.Unix())
	if got != want {
		t.Fatalf("quote url=%q, want %q", got, want)
	}
	if got := s.PageURL(models.PageProfile, "AAPL", req.Target.Date, req.Comparison.Date); got != "http://example.test/quote/AAPL/profile?p=AAPL" {
		t.Fatalf("profile url=%q", got)
	}
	if got := s.PageURL(models.PageMarketCap, "AAPL", req.Target.Date, req.Comparison.Date); got != "http://example.test/quote/AAPL?p=AAPL" {
		t.Fatalf("market cap url=%q", got)
	}
}

func TestFetchAllSections(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())
	req := testRequest("AAPL")

	transport.RegisterResponder("GET", s.PageURL(models.PageQuote, "AAPL", req.Target.Date, req.Comparison.Date), htmlResponder("<p>quote</p>"))
	transport.RegisterResponder("GET", s.PageURL(models.PageProfile, "AAPL", req.Target.Date, req.Comparison.Date), htmlResponder("<p>profile</p>"))
	transport.RegisterResponder("GET", s.PageURL(models.PageMarketCap, "AAPL", req.Target.Date, req.Comparison.Date), htmlResponder("<p>cap</p>"))

	raw, err := s.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if raw.Ticker != "AAPL" || raw.StockDataHTML != "<p>quote</p>" || raw.CompanyInfoHTML != "<p>profile</p>" || raw.MarketCapHTML != "<p>cap</p>" {
		t.Fatalf("unexpected raw result %+v", raw)
	}
}

func TestFetchPageNotFoundIsNotRetried(t *testing.T) {
	cfg := testConfig()
	s, transport := newTestScraper(t, cfg)
	req := testRequest("NOPE")

	transport.RegisterResponder("GET", s.PageURL(models.PageQuote, "NOPE", req.Target.Date, req.Comparison.Date), httpmock.NewStringResponder(http.StatusNotFound, ""))

	_, err := s.Fetch(context.Background(), req)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error=%v, want FetchError", err)
	}
	if fetchErr.Kind != models.PageQuote || fetchErr.Ticker != "NOPE" {
		t.Fatalf("unexpected fetch error %+v", fetchErr)
	}
	if got := ErrorTypeLabel(err); got != "not_found" {
		t.Fatalf("label=%q, want not_found", got)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("calls=%d, want 1", got)
	}
}

func TestFetchPageRetriesServerErrors(t *testing.T) {
	cfg := testConfig()
	s, transport := newTestScraper(t, cfg)
	req := testRequest("AAPL")

	transport.RegisterResponder("GET", s.PageURL(models.PageMarketCap, "AAPL", req.Target.Date, req.Comparison.Date), httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))

	_, err := s.FetchPage(context.Background(), models.PageMarketCap, "AAPL", req.Target.Date, req.Comparison.Date)
	if got := ErrorTypeLabel(err); got != "server" {
		t.Fatalf("label=%q, want server (err=%v)", got, err)
	}
	if got, want := transport.GetTotalCallCount(), cfg.MaxRetries+1; got != want {
		t.Fatalf("calls=%d, want %d", got, want)
	}
	if got := testutil.ToFloat64(s.metrics.RetriesTotal); got != float64(cfg.MaxRetries) {
		t.Fatalf("retries=%v, want %d", got, cfg.MaxRetries)
	}
}

func TestFetchPageCachesProfile(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())
	req := testRequest("AAPL")

	transport.RegisterResponder("GET", s.PageURL(models.PageProfile, "AAPL", req.Target.Date, req.Comparison.Date), htmlResponder("<p>profile</p>"))

	for i := 0; i < 2; i++ {
		body, err := s.FetchPage(context.Background(), models.PageProfile, "AAPL", req.Target.Date, req.Comparison.Date)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if body != "<p>profile</p>" {
			t.Fatalf("body=%q", body)
		}
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("calls=%d, want 1", got)
	}
}

func TestFetchPageCancelledContext(t *testing.T) {
	s, transport := newTestScraper(t, testConfig())
	req := testRequest("AAPL")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FetchPage(ctx, models.PageQuote, "AAPL", req.Target.Date, req.Comparison.Date)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error=%v, want context.Canceled", err)
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("calls=%d, want 0", got)
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	s, _ := newTestScraper(t, cfg)

	if got := s.backoff(1); got != 200*time.Millisecond {
		t.Fatalf("backoff(1)=%v, want 200ms", got)
	}
	if delay := s.backoff(4); delay > cfg.RetryBackoffMax {
		t.Fatalf("delay %v exceeds max %v", delay, cfg.RetryBackoffMax)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server", err: errors.New("Bad Gateway"), statusCode: http.StatusBadGateway, expected: "server"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}
