// Package parser extracts stock records from quote site HTML fragments.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-quotes/calendar"
	"github.com/aluiziolira/go-scrape-quotes/models"
)

// StockFields are the prices read from the quote history table.
type StockFields struct {
	OpenPrice  string
	ClosePrice string
}

// CompanyFields are read from the company profile section.
type CompanyFields struct {
	EmployeeCount *int
	Address       *Address
	Industry      string
}

// Extractor turns raw fragments into records using a set of locators.
type Extractor struct {
	locators Locators
}

// NewExtractor builds an extractor; unset locators use DefaultLocators.
func NewExtractor(locators Locators) *Extractor {
	return &Extractor{locators: locators.merge(DefaultLocators())}
}

func parseFragment(fragment string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return doc, nil
}

func locateText(doc *goquery.Document, l Locator) string {
	sel := l.Locate(doc)
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(sel.Text())
}

// ExtractStockFields reads the first-row open and close prices.
func (e *Extractor) ExtractStockFields(fragment string) (*StockFields, error) {
	doc, err := parseFragment(fragment)
	if err != nil {
		return nil, err
	}

	open := NormalizePrice(locateText(doc, e.locators.OpenPrice))
	closePrice := NormalizePrice(locateText(doc, e.locators.ClosePrice))

	var missing []string
	if !isNumeric(open) {
		missing = append(missing, "open_price")
	}
	if !isNumeric(closePrice) {
		missing = append(missing, "close_price")
	}
	if len(missing) > 0 {
		return nil, &MissingFieldError{Section: models.PageQuote, Fields: missing, Required: true}
	}

	return &StockFields{OpenPrice: open, ClosePrice: closePrice}, nil
}

// ExtractCompanyFields reads industry, employee count and address. A missing
// industry fails the section; missing optional fields come back as a
// non-required MissingFieldError next to the partial fields.
func (e *Extractor) ExtractCompanyFields(fragment string) (*CompanyFields, error) {
	doc, err := parseFragment(fragment)
	if err != nil {
		return nil, err
	}

	fields := &CompanyFields{Industry: locateText(doc, e.locators.Industry)}
	var missing []string

	if count, err := ParseEmployeeCount(locateText(doc, e.locators.EmployeeCount)); err == nil {
		fields.EmployeeCount = &count
	} else {
		missing = append(missing, "employee_count")
	}

	if address, err := e.locateAddress(doc); err == nil {
		fields.Address = address
	} else {
		missing = append(missing, "company_address")
	}

	if fields.Industry == "" {
		return nil, &MissingFieldError{
			Section:  models.PageProfile,
			Fields:   append([]string{"industry"}, missing...),
			Required: true,
		}
	}
	if len(missing) > 0 {
		return fields, &MissingFieldError{Section: models.PageProfile, Fields: missing}
	}
	return fields, nil
}

func (e *Extractor) locateAddress(doc *goquery.Document) (*Address, error) {
	sel := e.locators.Address.Locate(doc)
	if sel == nil || sel.Length() == 0 {
		return nil, errors.New("address block not found")
	}
	block, err := sel.Html()
	if err != nil {
		return nil, fmt.Errorf("render address block: %w", err)
	}
	return ParseAddress(block)
}

// ExtractMarketCap returns the market cap cell as its display string.
func (e *Extractor) ExtractMarketCap(fragment string) (string, error) {
	doc, err := parseFragment(fragment)
	if err != nil {
		return "", err
	}
	value := locateText(doc, e.locators.MarketCap)
	if value == "" {
		return "", &MissingFieldError{Section: models.PageMarketCap, Fields: []string{"market_cap"}, Required: true}
	}
	return value, nil
}

// AssembleRecord merges the extracted sections into a record.
func AssembleRecord(ticker string, date calendar.TradingDate, stock *StockFields, company *CompanyFields, marketCap string) (*models.StockRecord, error) {
	if ticker == "" || date.Date.IsZero() || stock == nil || company == nil || marketCap == "" {
		return nil, ErrIncompleteInput
	}

	record := &models.StockRecord{
		Ticker:     ticker,
		GivenDate:  date.Date,
		OpenPrice:  stock.OpenPrice,
		ClosePrice: stock.ClosePrice,
		MarketCap:  marketCap,
		Industry:   company.Industry,
	}
	if company.EmployeeCount != nil {
		count := *company.EmployeeCount
		record.EmployeeCount = &count
	}
	if company.Address != nil {
		address := company.Address.String()
		record.CompanyAddress = &address
	}
	return record, nil
}

// Extract runs the three section extractors independently and assembles the
// record. A non-nil record may come with an error for which Partial is true.
func (e *Extractor) Extract(raw *models.RawScrapeResult, date calendar.TradingDate) (*models.StockRecord, error) {
	if raw == nil {
		return nil, ErrIncompleteInput
	}

	var errs []error
	stock, err := e.ExtractStockFields(raw.StockDataHTML)
	if err != nil {
		errs = append(errs, err)
	}
	company, err := e.ExtractCompanyFields(raw.CompanyInfoHTML)
	if err != nil {
		errs = append(errs, err)
	}
	marketCap, err := e.ExtractMarketCap(raw.MarketCapHTML)
	if err != nil {
		errs = append(errs, err)
	}

	if stock == nil || company == nil || marketCap == "" {
		return nil, errors.Join(errs...)
	}

	record, err := AssembleRecord(raw.Ticker, date, stock, company, marketCap)
	if err != nil {
		return nil, err
	}
	return record, errors.Join(errs...)
}
