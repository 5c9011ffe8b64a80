package domain

import "errors"

var (
	ErrNoRates           = errors.New("no rates available")
	ErrEmptyPayload      = errors.New("source returned no rate items")
	ErrMalformedSnapshot = errors.New("rendered snapshot is not well-formed")
	ErrNoSnapshot        = errors.New("no snapshot exported yet")
)
