package rawtx

import "errors"

var (
	// ErrTruncatedInput is returned when the buffer ends before a field is complete.
	ErrTruncatedInput = errors.New("truncated input")

	// ErrMalformedTransaction is returned when bytes remain after the locktime.
	ErrMalformedTransaction = errors.New("malformed transaction")
)
