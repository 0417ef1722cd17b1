package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-quotes/calendar"
	"github.com/aluiziolira/go-scrape-quotes/orchestrator"
)

func TestTargetDate(t *testing.T) {
	cal := calendar.Default()

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "trading day",
			now:  time.Date(2023, time.July, 10, 18, 30, 0, 0, time.UTC),
			want: time.Date(2023, time.July, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "saturday",
			now:  time.Date(2023, time.July, 8, 18, 30, 0, 0, time.UTC),
			want: time.Date(2023, time.July, 7, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "holiday",
			now:  time.Date(2023, time.July, 4, 18, 30, 0, 0, time.UTC),
			want: time.Date(2023, time.July, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TargetDate(cal, tt.now)
			if !got.Date.Equal(tt.want) || !got.Valid() {
				t.Fatalf("TargetDate(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

type fakeSubmitter struct {
	tickers []string
	date    time.Time
	err     error
}

func (f *fakeSubmitter) Submit(_ context.Context, tickers []string, date time.Time) (*orchestrator.Report, error) {
	f.tickers = tickers
	f.date = date
	return &orchestrator.Report{}, f.err
}

func TestRunNowSubmitsTargetDate(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New(context.Background(), calendar.Default(), sub, []string{"AAPL"}, nil)
	s.Now = func() time.Time { return time.Date(2023, time.July, 9, 12, 0, 0, 0, time.UTC) }

	if _, err := s.RunNow(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if want := time.Date(2023, time.July, 7, 0, 0, 0, 0, time.UTC); !sub.date.Equal(want) {
		t.Fatalf("date=%v, want %v", sub.date, want)
	}
	if len(sub.tickers) != 1 || sub.tickers[0] != "AAPL" {
		t.Fatalf("tickers=%v", sub.tickers)
	}
}

func TestRunNowReportsDuplicates(t *testing.T) {
	sub := &fakeSubmitter{err: &orchestrator.DuplicateTickerError{Tickers: []string{"AAPL"}}}
	s := New(context.Background(), calendar.Default(), sub, []string{"AAPL"}, nil)

	_, err := s.RunNow()
	var dupErr *orchestrator.DuplicateTickerError
	if !errors.As(err, &dupErr) {
		t.Fatalf("error=%v, want DuplicateTickerError", err)
	}
}

func TestRegister(t *testing.T) {
	s := New(context.Background(), calendar.Default(), &fakeSubmitter{}, []string{"AAPL"}, nil)
	if err := s.Register("0 30 18 * * 1-5"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(s.Cron.Entries()) != 1 {
		t.Fatalf("entries=%d, want 1", len(s.Cron.Entries()))
	}
	if err := s.Register("not a cron"); err == nil {
		t.Fatalf("expected error for invalid spec")
	}

	empty := New(context.Background(), calendar.Default(), &fakeSubmitter{}, nil, nil)
	if err := empty.Register("0 30 18 * * 1-5"); err == nil {
		t.Fatalf("expected error without tickers")
	}
}
