package parser

import (
	"github.com/PuerkitoBio/goquery"
)

// Locator finds the node holding a single field.
type Locator interface {
	Locate(doc *goquery.Document) *goquery.Selection
}

// Selector locates the first node matching a CSS path.
type Selector string

func (s Selector) Locate(doc *goquery.Document) *goquery.Selection {
	return doc.Find(string(s)).First()
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(doc *goquery.Document) *goquery.Selection

func (f LocatorFunc) Locate(doc *goquery.Document) *goquery.Selection {
	return f(doc)
}

// Locators holds one locator per extracted field.
type Locators struct {
	OpenPrice     Locator
	ClosePrice    Locator
	EmployeeCount Locator
	Industry      Locator
	Address       Locator
	MarketCap     Locator
}

const (
	historyRow  = `section > div[class~="Pb(10px)"] > table > tbody > tr:nth-child(1)`
	profileInfo = `section > div.asset-profile-container > div > div > p[class~="Va(t)"]`
)

// DefaultLocators encodes the quote site's page shape.
func DefaultLocators() Locators {
	return Locators{
		OpenPrice:     Selector(historyRow + ` > td:nth-child(2) > span`),
		ClosePrice:    Selector(historyRow + ` > td:nth-child(5) > span`),
		EmployeeCount: Selector(profileInfo + ` > span:nth-child(8) > span`),
		Industry:      Selector(profileInfo + ` > span:nth-child(5)`),
		Address:       Selector(`section > div.asset-profile-container > div > div > p[class~="Pend(40px)"]`),
		MarketCap:     Selector(`#quote-summary > div[class~="Pstart(12px)"] > table > tbody > tr:nth-child(1) > td[class~="Ta(end)"]`),
	}
}

// merge fills unset locators from defaults.
func (l Locators) merge(defaults Locators) Locators {
	if l.OpenPrice == nil {
		l.OpenPrice = defaults.OpenPrice
	}
	if l.ClosePrice == nil {
		l.ClosePrice = defaults.ClosePrice
	}
	if l.EmployeeCount == nil {
		l.EmployeeCount = defaults.EmployeeCount
	}
	if l.Industry == nil {
		l.Industry = defaults.Industry
	}
	if l.Address == nil {
		l.Address = defaults.Address
	}
	if l.MarketCap == nil {
		l.MarketCap = defaults.MarketCap
	}
	return l
}
