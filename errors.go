package keyset

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCursor is returned for any cursor token that cannot be
	// accepted: malformed encoding, failed authentication, unparseable
	// payload or unsupported version. The reasons are deliberately not
	// distinguished for the caller.
	ErrInvalidCursor = errors.New("invalid pagination cursor")

	// ErrExpiredCursor is returned for a well-formed token older than the
	// codec TTL. It wraps ErrInvalidCursor, so boundaries that do not care
	// about the distinction can match both with a single errors.Is.
	ErrExpiredCursor = fmt.Errorf("%w: cursor expired", ErrInvalidCursor)
)

// QueryError wraps a data source failure surfaced while fetching a page.
// The engine never retries; the wrapped error is preserved for the caller's
// own retry or reporting policy.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("keyset: query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func newQueryError(err error) error {
	if err == nil {
		return nil
	}

	return &QueryError{Err: err}
}
