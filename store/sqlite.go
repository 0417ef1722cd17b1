// Package store persists stock records in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-quotes/calendar"
	"github.com/aluiziolira/go-scrape-quotes/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a duplicate-aware record store. The (ticker, given_date)
// pair is unique; conflicting inserts are reported, not failed.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("sqlite store opened", slog.String("path", path))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stock_records (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker          TEXT NOT NULL,
			given_date      TEXT NOT NULL,
			open_price      TEXT NOT NULL,
			close_price     TEXT NOT NULL,
			market_cap      TEXT NOT NULL,
			employee_count  INTEGER,
			company_address TEXT,
			industry        TEXT NOT NULL,
			scraped_at      INTEGER NOT NULL,
			UNIQUE(ticker, given_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_records_date ON stock_records(given_date)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Persist inserts records in one transaction. Pairs that already exist are
// returned in Duplicates; any other failure rolls the whole batch back.
func (s *SQLiteStore) Persist(ctx context.Context, records []*models.StockRecord) (*models.PersistResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &models.PersistResult{}
	if len(records) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO stock_records
		(ticker, given_date, open_price, close_price, market_cap,
		 employee_count, company_address, industry, scraped_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(ticker, given_date) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		key := r.Key()
		scrapedAt := r.ScrapedAt
		if scrapedAt.IsZero() {
			scrapedAt = time.Now()
		}

		res, err := stmt.ExecContext(ctx,
			r.Ticker, key.Date, r.OpenPrice, r.ClosePrice, r.MarketCap,
			nullInt(r.EmployeeCount), nullString(r.CompanyAddress),
			r.Industry, scrapedAt.Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", key, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected %s: %w", key, err)
		}
		if affected == 0 {
			result.Duplicates = append(result.Duplicates, key)
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id %s: %w", key, err)
		}
		result.InsertedIDs = append(result.InsertedIDs, strconv.FormatInt(id, 10))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

// QueryExisting returns the subset of tickers already stored for date.
func (s *SQLiteStore) QueryExisting(ctx context.Context, tickers []string, date time.Time) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(tickers) == 0 {
		return existing, nil
	}

	args := make([]any, 0, len(tickers)+1)
	args = append(args, date.Format(calendar.DateLayout))
	for _, t := range tickers {
		args = append(args, t)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tickers)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker FROM stock_records WHERE given_date = ? AND ticker IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query existing: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		existing[ticker] = struct{}{}
	}
	return existing, rows.Err()
}

// Records returns every stored record for date, ordered by ticker.
func (s *SQLiteStore) Records(ctx context.Context, date time.Time) ([]*models.StockRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker, given_date, open_price, close_price,
		market_cap, employee_count, company_address, industry, scraped_at
		FROM stock_records WHERE given_date = ? ORDER BY ticker`,
		date.Format(calendar.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []*models.StockRecord
	for rows.Next() {
		var (
			r         models.StockRecord
			given     string
			employees sql.NullInt64
			address   sql.NullString
			scrapedAt int64
		)
		if err := rows.Scan(&r.Ticker, &given, &r.OpenPrice, &r.ClosePrice,
			&r.MarketCap, &employees, &address, &r.Industry, &scrapedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if r.GivenDate, err = calendar.ParseDate(given); err != nil {
			return nil, fmt.Errorf("parse given date %q: %w", given, err)
		}
		if employees.Valid {
			n := int(employees.Int64)
			r.EmployeeCount = &n
		}
		if address.Valid {
			a := address.String
			r.CompanyAddress = &a
		}
		r.ScrapedAt = time.Unix(scrapedAt, 0).UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
