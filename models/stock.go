// Package models defines the value types shared by the scraper packages.
package models

import (
	"time"

	"github.com/aluiziolira/go-scrape-quotes/calendar"
)

// PageKind names one section of the remote quote site.
type PageKind string

const (
	PageQuote     PageKind = "quote"
	PageProfile   PageKind = "profile"
	PageMarketCap PageKind = "market_cap"
)

// TickerOption is one selectable ticker.
type TickerOption struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// TickerRequest is the immutable input of one ticker scrape.
type TickerRequest struct {
	Ticker string
	calendar.Window
}

// RawScrapeResult holds the three fragments fetched for one ticker.
type RawScrapeResult struct {
	Ticker          string
	StockDataHTML   string
	CompanyInfoHTML string
	MarketCapHTML   string
}

// StockRecord is the normalized unit handed to persistence.
type StockRecord struct {
	Ticker         string    `csv:"ticker" json:"ticker"`
	GivenDate      time.Time `csv:"given_date" json:"given_date"`
	OpenPrice      string    `csv:"open_price" json:"open_price"`
	ClosePrice     string    `csv:"close_price" json:"close_price"`
	MarketCap      string    `csv:"market_cap" json:"market_cap"`
	EmployeeCount  *int      `csv:"employee_count" json:"employee_count,omitempty"`
	CompanyAddress *string   `csv:"company_address" json:"company_address,omitempty"`
	Industry       string    `csv:"industry" json:"industry"`
	ScrapedAt      time.Time `csv:"scraped_at" json:"scraped_at"`
}

// Key returns the (ticker, date) identity of the record.
func (r *StockRecord) Key() RecordKey {
	return RecordKey{Ticker: r.Ticker, Date: r.GivenDate.Format(calendar.DateLayout)}
}

// RecordKey identifies a record by ticker and trade date (YYYY-MM-DD).
type RecordKey struct {
	Ticker string `json:"ticker"`
	Date   string `json:"date"`
}

func (k RecordKey) String() string {
	return k.Ticker + "@" + k.Date
}

// TickerError is a per-ticker failure collected next to successful records.
type TickerError struct {
	Ticker string
	Err    error
}

func (e TickerError) Error() string {
	return e.Ticker + ": " + e.Err.Error()
}

func (e TickerError) Unwrap() error {
	return e.Err
}

// BatchResult is the outcome of a synchronous scrape.
// Warnings pairs accepted partial records with the optional fields they
// lack.
type BatchResult struct {
	Records  []*StockRecord
	Errors   []TickerError
	Warnings []TickerError
}

// PersistResult is what the persistence collaborator reports for a batch.
type PersistResult struct {
	InsertedIDs []string
	Duplicates  []RecordKey
}
