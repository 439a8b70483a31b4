package variant

import "errors"

// Errors returned by variant operations.
var (
	// ErrInvalidData is returned when auxiliary data is not valid JSON.
	ErrInvalidData = errors.New("variant data is not valid JSON")

	// ErrConsumeOverflow is returned when more text is consumed than remains.
	ErrConsumeOverflow = errors.New("consume length exceeds remaining text")

	// ErrRestoreOverflow is returned when more text is restored than was consumed.
	ErrRestoreOverflow = errors.New("restore length exceeds consumed text")
)
