package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-quotes/models"
)

var testDate = time.Date(2023, time.July, 10, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "quotes.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(ticker string, date time.Time) *models.StockRecord {
	return &models.StockRecord{
		Ticker:     ticker,
		GivenDate:  date,
		OpenPrice:  "150.00",
		ClosePrice: "152.30",
		MarketCap:  "2.87T",
		Industry:   "Consumer Electronics",
		ScrapedAt:  time.Date(2023, time.July, 10, 18, 30, 0, 0, time.UTC),
	}
}

func TestPersistInsertsAndReportsDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Persist(ctx, []*models.StockRecord{record("AAPL", testDate), record("MSFT", testDate)})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(first.InsertedIDs) != 2 || len(first.Duplicates) != 0 {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := s.Persist(ctx, []*models.StockRecord{record("AAPL", testDate), record("GOOG", testDate)})
	if err != nil {
		t.Fatalf("persist again: %v", err)
	}
	if len(second.InsertedIDs) != 1 {
		t.Fatalf("inserted=%v, want 1", second.InsertedIDs)
	}
	if len(second.Duplicates) != 1 || second.Duplicates[0] != (models.RecordKey{Ticker: "AAPL", Date: "2023-07-10"}) {
		t.Fatalf("duplicates=%v, want AAPL@2023-07-10", second.Duplicates)
	}
}

func TestPersistSameTickerDifferentDate(t *testing.T) {
	s := newTestStore(t)

	result, err := s.Persist(context.Background(), []*models.StockRecord{
		record("AAPL", testDate),
		record("AAPL", testDate.AddDate(0, 0, 1)),
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(result.InsertedIDs) != 2 {
		t.Fatalf("inserted=%v, want 2", result.InsertedIDs)
	}
}

func TestQueryExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Persist(ctx, []*models.StockRecord{record("AAPL", testDate)}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	existing, err := s.QueryExisting(ctx, []string{"AAPL", "MSFT"}, testDate)
	if err != nil {
		t.Fatalf("query existing: %v", err)
	}
	if len(existing) != 1 {
		t.Fatalf("existing=%v, want only AAPL", existing)
	}
	if _, ok := existing["AAPL"]; !ok {
		t.Fatalf("existing=%v, want AAPL", existing)
	}

	other, err := s.QueryExisting(ctx, []string{"AAPL"}, testDate.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("query other date: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("existing=%v on other date, want none", other)
	}

	empty, err := s.QueryExisting(ctx, nil, testDate)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty query=%v, %v", empty, err)
	}
}

func TestRecordsRoundTripOptionalFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	employees := 164000
	address := "123 Main St, Anytown, CA, 94000, United States"
	full := record("AAPL", testDate)
	full.EmployeeCount = &employees
	full.CompanyAddress = &address

	if _, err := s.Persist(ctx, []*models.StockRecord{full, record("MSFT", testDate)}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	got, err := s.Records(ctx, testDate)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records=%d, want 2", len(got))
	}
	if got[0].Ticker != "AAPL" || got[0].EmployeeCount == nil || *got[0].EmployeeCount != employees {
		t.Fatalf("unexpected AAPL record %+v", got[0])
	}
	if got[0].CompanyAddress == nil || *got[0].CompanyAddress != address {
		t.Fatalf("address=%v, want %q", got[0].CompanyAddress, address)
	}
	if got[1].EmployeeCount != nil || got[1].CompanyAddress != nil {
		t.Fatalf("MSFT optional fields should be nil: %+v", got[1])
	}
	if !got[1].GivenDate.Equal(testDate) {
		t.Fatalf("given date=%v, want %v", got[1].GivenDate, testDate)
	}
}

func TestPersistCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Persist(ctx, []*models.StockRecord{record("AAPL", testDate)}); err == nil {
		t.Fatalf("expected error for cancelled context")
	}

	existing, err := s.QueryExisting(context.Background(), []string{"AAPL"}, testDate)
	if err != nil {
		t.Fatalf("query existing: %v", err)
	}
	if len(existing) != 0 {
		t.Fatalf("cancelled persist must not insert, got %v", existing)
	}
}
