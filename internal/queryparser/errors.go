package queryparser

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery indicates the query expression is malformed. Every
// compile failure wraps this sentinel; callers can match it with
// errors.Is.
var ErrInvalidQuery = errors.New("invalid query")

// failf builds a compile error carrying a human-readable reason.
func failf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
