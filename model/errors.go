package model

import (
	"errors"
	"fmt"
)

var (
	// An unknown stop, route or trip ID.
	ErrNotFound = errors.New("not found")

	// Malformed or out of range coordinate, radius, limit or time.
	ErrInvalidInput = errors.New("invalid input")

	// Journey planning constraints out of range. Also matches
	// ErrInvalidInput.
	ErrInvalidConstraint = fmt.Errorf("%w: invalid constraint", ErrInvalidInput)

	// No snapshot has been published yet.
	ErrFeedUnavailable = errors.New("no feed available")

	// A search was cut short by its expansion budget or deadline.
	ErrBudgetExceeded = errors.New("computation budget exceeded")
)
