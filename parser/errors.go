package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-quotes/models"
)

// ErrIncompleteInput is returned by AssembleRecord when a section is absent.
var ErrIncompleteInput = errors.New("parser: incomplete record input")

// MissingFieldError reports fields whose nodes did not match the expected page shape.
type MissingFieldError struct {
	Section  models.PageKind
	Fields   []string
	Required bool
}

func (e *MissingFieldError) Error() string {
	kind := "optional"
	if e.Required {
		kind = "required"
	}
	return fmt.Sprintf("%s: missing %s field(s) %s", e.Section, kind, strings.Join(e.Fields, ", "))
}

// Partial reports whether err consists only of optional MissingFieldErrors.
func Partial(err error) bool {
	if err == nil {
		return false
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		var missing *MissingFieldError
		if !errors.As(e, &missing) || missing.Required {
			return false
		}
	}
	return true
}
