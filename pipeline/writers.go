package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-quotes/calendar"
	"github.com/aluiziolira/go-scrape-quotes/models"
)

// OutputWriter exports persisted records.
type OutputWriter interface {
	Write(records []*models.StockRecord) error
	Close() error
	Validate() error
}

// ErrNoRecordsWritten is returned by Validate when nothing was exported.
var ErrNoRecordsWritten = errors.New("no records written")

var csvHeader = []string{
	"ticker", "given_date", "open_price", "close_price", "market_cap",
	"employee_count", "company_address", "industry", "scraped_at",
}

// csvRow flattens a record; missing optional fields become empty cells.
func csvRow(r *models.StockRecord) []string {
	employees, address := "", ""
	if r.EmployeeCount != nil {
		employees = strconv.Itoa(*r.EmployeeCount)
	}
	if r.CompanyAddress != nil {
		address = *r.CompanyAddress
	}
	return []string{
		r.Ticker,
		r.GivenDate.Format(calendar.DateLayout),
		r.OpenPrice,
		r.ClosePrice,
		r.MarketCap,
		employees,
		address,
		r.Industry,
		r.ScrapedAt.UTC().Format(time.RFC3339),
	}
}

// CSVWriter writes one row per record under a fixed header.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	rows   int
}

// NewCSVWriter creates filename (and its directory) and writes the header.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	f, err := createFile(filename)
	if err != nil {
		return nil, err
	}

	cw := &CSVWriter{file: f, writer: csv.NewWriter(f)}
	if err := cw.writeRows([][]string{csvHeader}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return cw, nil
}

// Write appends records and flushes them to disk.
func (cw *CSVWriter) Write(records []*models.StockRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, csvRow(r))
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if err := cw.writeRows(rows); err != nil {
		return fmt.Errorf("write csv records: %w", err)
	}
	cw.rows += len(rows)
	return nil
}

func (cw *CSVWriter) writeRows(rows [][]string) error {
	if err := cw.writer.WriteAll(rows); err != nil {
		return err
	}
	return cw.writer.Error()
}

// Close flushes and closes the file.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate reports ErrNoRecordsWritten until at least one row follows the header.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.rows == 0 {
		return fmt.Errorf("csv %s: %w", cw.file.Name(), ErrNoRecordsWritten)
	}
	return nil
}

// JSONWriter writes newline-delimited JSON, one record per line.
type JSONWriter struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	encoder *json.Encoder
	rows    int
}

// NewJSONWriter creates filename (and its directory).
func NewJSONWriter(filename string) (*JSONWriter, error) {
	f, err := createFile(filename)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &JSONWriter{file: f, buf: buf, encoder: json.NewEncoder(buf)}, nil
}

// Write appends records and flushes them to disk.
func (jw *JSONWriter) Write(records []*models.StockRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, r := range records {
		if err := jw.encoder.Encode(r); err != nil {
			return fmt.Errorf("encode %s: %w", r.Key(), err)
		}
		jw.rows++
	}
	if err := jw.buf.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.buf.Flush(); err != nil {
		jw.file.Close()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate reports ErrNoRecordsWritten until a record has been written.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.rows == 0 {
		return fmt.Errorf("json %s: %w", jw.file.Name(), ErrNoRecordsWritten)
	}
	return nil
}

func createFile(filename string) (*os.File, error) {
	if dir := filepath.Dir(filename); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filename, err)
	}
	return f, nil
}
