package retrieval

import (
	"errors"
	"fmt"
)

var (
	// ErrRetrievalUnavailable marks a failed call to an external store.
	// It is never used to signal "no results".
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrMalformedHit marks a vector hit or triple missing a required field.
	ErrMalformedHit = errors.New("malformed hit")
)

// unavailable wraps cause so that both errors.Is(err, ErrRetrievalUnavailable)
// and errors.Is(err, cause) hold.
func unavailable(op string, cause error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrRetrievalUnavailable, cause))
}
