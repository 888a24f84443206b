package progression

import "errors"

var (
	// ErrInvalidAmount is returned for negative experience grants.
	ErrInvalidAmount = errors.New("invalid experience amount")
	// ErrOverflow is returned when a grant would overflow the experience counter.
	ErrOverflow = errors.New("experience overflow")
)
