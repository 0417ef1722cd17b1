package parser

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// AddressFormat records which pattern produced an Address.
type AddressFormat int

const (
	// AddressCanonical is street, city, state, postal code and country.
	AddressCanonical AddressFormat = iota
	// AddressLines is the first three lines joined verbatim.
	AddressLines
)

var (
	lineBreak = regexp.MustCompile(`(?i)<br\s*/?>`)
	markup    = regexp.MustCompile(`<[^>]*>`)
	cityLine  = regexp.MustCompile(`^(.+), ([A-Z]{2}) (\d{5}(?:-\d{4})?)$`)
)

const minAddress = 3

// Address is a company address parsed from a free-text profile block.
type Address struct {
	Format     AddressFormat
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	Lines      []string
}

func (a *Address) String() string {
	if a.Format == AddressCanonical {
		return strings.Join([]string{a.Street, a.City, a.State, a.PostalCode, a.Country}, ", ")
	}
	return strings.Join(a.Lines, ", ")
}

// ParseAddress reads a <br>-separated block. The canonical US pattern is
// tried first; blocks with at least three lines fall back to AddressLines.
func ParseAddress(block string) (*Address, error) {
	lines := addressLines(block)

	for i := 0; i+2 < len(lines); i++ {
		m := cityLine.FindStringSubmatch(lines[i+1])
		if m == nil {
			continue
		}
		return &Address{
			Format:     AddressCanonical,
			Street:     strings.Join(lines[:i+1], ", "),
			City:       m[1],
			State:      m[2],
			PostalCode: m[3],
			Country:    lines[i+2],
		}, nil
	}

	if len(lines) < minAddress {
		return nil, fmt.Errorf("address block has %d line(s), want at least %d", len(lines), minAddress)
	}
	return &Address{
		Format: AddressLines,
		Lines:  append([]string(nil), lines[:minAddress]...),
	}, nil
}

func addressLines(block string) []string {
	var out []string
	for _, raw := range lineBreak.Split(block, -1) {
		line := html.UnescapeString(markup.ReplaceAllString(raw, ""))
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
