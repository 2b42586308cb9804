package scraper

import (
	"fmt"

	"golang.org/x/xerrors"
)

// ErrTooManyFailures aborts a run once the failure ceiling is exceeded.
var ErrTooManyFailures = xerrors.New("Too many failures, aborting")

// InterruptedRunError aborts a run once the progress ceiling is reached.
type InterruptedRunError struct {
	Limit int
}

func (e *InterruptedRunError) Error() string {
	return fmt.Sprintf("Reached progress limit of %d items", e.Limit)
}

// UnknownScraperError is returned by the factory for unregistered ids.
type UnknownScraperError struct {
	ID string
}

func (e *UnknownScraperError) Error() string {
	return fmt.Sprintf("unknown scraper id: %s", e.ID)
}

// ParseError reports a malformed vendor payload.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unable to parse %s: %s", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
