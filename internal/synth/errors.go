package synth

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuitableDonor is returned when no user other than the victim holds
	// enough records to fill the compromised window.
	ErrNoSuitableDonor = errors.New("no suitable donor")

	// ErrMalformedRecord is returned in strict mode for records that cannot be
	// written to the dataset.
	ErrMalformedRecord = errors.New("malformed record")
)

// NoSuitableDonorError identifies the victim that could not be paired with a donor.
type NoSuitableDonorError struct {
	Victim int
	Needed int // minimum number of records a donor must hold
}

func (e *NoSuitableDonorError) Error() string {
	return fmt.Sprintf("%s for user %d: need another user with at least %d records", ErrNoSuitableDonor, e.Victim, e.Needed)
}

func (e *NoSuitableDonorError) Is(target error) bool { return target == ErrNoSuitableDonor }

// MalformedRecordError describes a corpus line with fewer than two payload fields.
type MalformedRecordError struct {
	Line   int64
	User   string
	Fields int
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s at line %d (user %q): %d payload field(s), want at least 2", ErrMalformedRecord, e.Line, e.User, e.Fields)
}

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }
