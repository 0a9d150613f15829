package numerator

import "errors"

var (
	// ErrCounterNotFound is returned by Store.Get when no record exists for the key.
	ErrCounterNotFound = errors.New("counter not found")

	// ErrUnparseableNumber is returned when a stored number does not match the counter template.
	ErrUnparseableNumber = errors.New("number does not match template")

	// ErrMissingFiscalYear is returned when tenant settings carry no fiscal year.
	ErrMissingFiscalYear = errors.New("fiscal year is not configured")
)
