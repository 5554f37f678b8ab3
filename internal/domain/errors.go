package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDataUnavailable is returned when market data cannot be obtained:
	// network failure, non-2xx status, malformed body or unknown coin id.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrInvalidQuery is returned when user input is rejected before any fetch.
	ErrInvalidQuery = errors.New("invalid query")
)

// FetchError describes a failed upstream fetch. It matches ErrDataUnavailable.
type FetchError struct {
	Op         string        // upstream operation, e.g. "markets"
	CoinID     string        // coin involved, empty when not coin specific
	StatusCode int           // HTTP status, 0 for transport or decode failures
	RetryAfter time.Duration // upstream Retry-After hint, 0 if none
	Err        error
}

func (e *FetchError) Error() string {
	msg := ErrDataUnavailable.Error() + ": " + e.Op
	if e.CoinID != "" {
		msg += " " + e.CoinID
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports ErrDataUnavailable as a match.
func (e *FetchError) Is(target error) bool {
	return target == ErrDataUnavailable
}

// RateLimited reports whether the upstream rejected the request with 429.
func (e *FetchError) RateLimited() bool {
	return e.StatusCode == 429
}

// invalidQuery wraps a validation message with ErrInvalidQuery.
func invalidQuery(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
