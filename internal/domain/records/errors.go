package records

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: no record/token for the requested identifier.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateCorrelation: a record or token with the same
	// correlation id already exists. Writes are append-only, so this is
	// always a rejection, never an overwrite.
	ErrDuplicateCorrelation = errors.New("duplicate correlation id")

	// ErrNoScanRecord: a token may not be created before its record.
	ErrNoScanRecord = errors.New("no scan record for correlation id")
)

// ValidationError reports a malformed probe message. The message is
// dropped by the caller; nothing is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
