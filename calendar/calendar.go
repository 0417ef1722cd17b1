// Package calendar resolves U.S. trading days from a fixed holiday set.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the layout used for all user-facing dates.
const DateLayout = "2006-01-02"

// maxLookback bounds PreviousTradingDay when the holiday set is pathological.
const maxLookback = 366

// DefaultHolidays lists the observed market holidays as month/day pairs.
// Floating holidays are pinned to their 2023 dates.
var DefaultHolidays = []string{
	"1/1",   // New Year's Day
	"1/16",  // Martin Luther King Jr. Day
	"2/20",  // Presidents' Day
	"5/29",  // Memorial Day
	"7/4",   // Independence Day
	"9/4",   // Labor Day
	"9/10",  // Patriot Day
	"10/7",  // national day of observance
	"11/23", // Thanksgiving
	"12/25", // Christmas
}

// MonthDay is a year-independent calendar position.
type MonthDay struct {
	Month time.Month
	Day   int
}

func (md MonthDay) String() string {
	return fmt.Sprintf("%d/%d", int(md.Month), md.Day)
}

// ParseMonthDay parses "M/D" entries such as "7/4".
func ParseMonthDay(s string) (MonthDay, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return MonthDay{}, fmt.Errorf("holiday %q: want month/day", s)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return MonthDay{}, fmt.Errorf("holiday %q: invalid month", s)
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil || day < 1 || day > 31 {
		return MonthDay{}, fmt.Errorf("holiday %q: invalid day", s)
	}
	return MonthDay{Month: time.Month(month), Day: day}, nil
}

// TradingDate is a calendar date with its trading-day classification.
type TradingDate struct {
	Date      time.Time
	IsWeekend bool
	IsHoliday bool
}

// Valid reports whether the date is a trading day.
func (d TradingDate) Valid() bool {
	return !d.IsWeekend && !d.IsHoliday
}

func (d TradingDate) String() string {
	return d.Date.Format(DateLayout)
}

// Window holds the dates derived from one target date.
type Window struct {
	Target          TradingDate
	Comparison      TradingDate
	Previous        TradingDate
	PreviousPlusOne TradingDate
}

// Calendar classifies dates against a configured holiday set.
type Calendar struct {
	holidays map[MonthDay]struct{}
}

// New builds a calendar from month/day entries.
func New(holidays []MonthDay) *Calendar {
	set := make(map[MonthDay]struct{}, len(holidays))
	for _, h := range holidays {
		set[h] = struct{}{}
	}
	return &Calendar{holidays: set}
}

// Parse builds a calendar from "M/D" strings.
func Parse(entries []string) (*Calendar, error) {
	holidays := make([]MonthDay, 0, len(entries))
	for _, entry := range entries {
		md, err := ParseMonthDay(entry)
		if err != nil {
			return nil, err
		}
		holidays = append(holidays, md)
	}
	return New(holidays), nil
}

// Default returns a calendar using DefaultHolidays.
func Default() *Calendar {
	cal, err := Parse(DefaultHolidays)
	if err != nil {
		panic(err)
	}
	return cal
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Truncate drops the clock part, keeping the wall-clock calendar date.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func (c *Calendar) IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsHoliday reports whether t's month/day is in the holiday set.
func (c *Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.holidays[MonthDay{Month: t.Month(), Day: t.Day()}]
	return ok
}

// IsTradingDay reports whether t is neither a weekend nor a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	return !c.IsWeekend(t) && !c.IsHoliday(t)
}

// Date classifies t.
func (c *Calendar) Date(t time.Time) TradingDate {
	day := Truncate(t)
	return TradingDate{
		Date:      day,
		IsWeekend: c.IsWeekend(day),
		IsHoliday: c.IsHoliday(day),
	}
}

// PreviousTradingDay returns the closest trading day strictly before t.
func (c *Calendar) PreviousTradingDay(t time.Time) TradingDate {
	day := Truncate(t)
	for i := 0; i < maxLookback; i++ {
		day = day.AddDate(0, 0, -1)
		if c.IsTradingDay(day) {
			break
		}
	}
	return c.Date(day)
}

// NextCalendarDay returns the day after t with no trading-day awareness.
func (c *Calendar) NextCalendarDay(t time.Time) TradingDate {
	return c.Date(Truncate(t).AddDate(0, 0, 1))
}

// Window derives the query window and previous trading window for t.
func (c *Calendar) Window(t time.Time) Window {
	prev := c.PreviousTradingDay(t)
	return Window{
		Target:          c.Date(t),
		Comparison:      c.NextCalendarDay(t),
		Previous:        prev,
		PreviousPlusOne: c.NextCalendarDay(prev.Date),
	}
}
