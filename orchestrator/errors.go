package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-quotes/calendar"
)

var (
	// ErrNoTickers is returned when a submission selects no ticker.
	ErrNoTickers = errors.New("no tickers selected")
	// ErrNoJobIssuer is returned by async operations when no issuer is wired.
	ErrNoJobIssuer = errors.New("no async job issuer configured")
	// ErrNoSession is returned by batch operations when no session is wired.
	ErrNoSession = errors.New("no batch session configured")
)

// DuplicateTickerError blocks a submission whose tickers already have a
// record for the date.
type DuplicateTickerError struct {
	Tickers []string
	Date    time.Time
}

func (e *DuplicateTickerError) Error() string {
	return fmt.Sprintf("records already exist for %s on %s", strings.Join(e.Tickers, ", "), e.Date.Format(calendar.DateLayout))
}

// InvalidDateError rejects a date before any fetch is attempted.
type InvalidDateError struct {
	Date   time.Time
	Reason string
}

func (e *InvalidDateError) Error() string {
	if e.Date.IsZero() {
		return "invalid date: " + e.Reason
	}
	return fmt.Sprintf("invalid date %s: %s", e.Date.Format(calendar.DateLayout), e.Reason)
}

// UnknownTickerError is returned for a ticker outside the configured options.
type UnknownTickerError struct {
	Ticker string
}

func (e *UnknownTickerError) Error() string {
	return fmt.Sprintf("unknown ticker %q", e.Ticker)
}

// IllegalTransitionError reports a state change the run does not allow.
type IllegalTransitionError struct {
	From State
	To   State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}
