package order

import "github.com/go-faster/errors"

// Sentinel errors for order submission.
var (
	ErrEmptySelection = errors.New("no items selected")
	ErrNegativeAmount = errors.New("amount must not be negative")
)
