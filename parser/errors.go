package parser

import (
	"errors"
	"fmt"
)

var errPageRange = errors.New("page out of range")

// PageError reports a failure to read one page.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }
