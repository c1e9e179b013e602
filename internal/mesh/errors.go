package mesh

import (
	"errors"
	"fmt"
)

// Domain errors for mesh primitives.
var (
	// ErrTruncated is returned when composition data ends mid-record.
	ErrTruncated = errors.New("mesh: composition data truncated")

	// ErrInvalidAddress is returned when an address is outside the expected range.
	ErrInvalidAddress = errors.New("mesh: invalid address")

	// ErrInvalidKeyIndex is returned for key indexes wider than 12 bits.
	ErrInvalidKeyIndex = errors.New("mesh: key index out of range")

	// ErrInvalidKey is returned when key material has the wrong length.
	ErrInvalidKey = errors.New("mesh: key must be 16 bytes")
)

// StatusError reports a non-success Foundation status returned by a node.
// Use errors.As to tell it apart from transport failures.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mesh: %s rejected: %s", e.Op, e.Status)
}

// CheckStatus returns nil for StatusSuccess and a *StatusError otherwise.
func CheckStatus(op string, s Status) error {
	if s == StatusSuccess {
		return nil
	}
	return &StatusError{Op: op, Status: s}
}
