package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-quotes/models"
)

// ValidateRecord ensures the extraction captured the required fields.
func ValidateRecord(r *models.StockRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.Ticker) == "" {
		return fmt.Errorf("record missing ticker")
	}
	if r.GivenDate.IsZero() {
		return fmt.Errorf("record missing date for %s", r.Ticker)
	}
	if strings.TrimSpace(r.OpenPrice) == "" || strings.TrimSpace(r.ClosePrice) == "" {
		return fmt.Errorf("record missing prices for %s", r.Ticker)
	}
	if strings.TrimSpace(r.MarketCap) == "" {
		return fmt.Errorf("record missing market cap for %s", r.Ticker)
	}
	if strings.TrimSpace(r.Industry) == "" {
		return fmt.Errorf("record missing industry for %s", r.Ticker)
	}
	return nil
}

// NormalizePrice removes thousands separators and surrounding whitespace.
func NormalizePrice(price string) string {
	price = strings.TrimSpace(price)
	price = strings.ReplaceAll(price, ",", "")
	return strings.TrimSpace(price)
}

// ParseEmployeeCount converts "164,000" style counts to an int.
func ParseEmployeeCount(text string) (int, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty employee count")
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parse employee count %q: %w", text, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative employee count %d", n)
	}
	return n, nil
}

var decimal = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)

// isNumeric accepts plain decimals only; NaN, Inf and hex floats are rejected.
func isNumeric(value string) bool {
	return decimal.MatchString(value)
}
