package replay

import (
	"errors"
	"fmt"
)

var ErrInvalidPolicy = errors.New("replay: invalid policy")

// ValidationErrorKind classifies a well-formed replay that cannot be ranked.
type ValidationErrorKind string

const (
	ValidationMissingField         ValidationErrorKind = "missing-field"
	ValidationMalformedField       ValidationErrorKind = "malformed-field"
	ValidationTooFewParticipants   ValidationErrorKind = "too-few-participants"
	ValidationNoTurns              ValidationErrorKind = "no-turns"
	ValidationTooShort             ValidationErrorKind = "too-short"
	ValidationAmbiguousResult      ValidationErrorKind = "ambiguous-result"
	ValidationWinnerNotParticipant ValidationErrorKind = "winner-not-participant"
	ValidationNotRanked            ValidationErrorKind = "not-ranked"
	ValidationDesynced             ValidationErrorKind = "desynced"
)

type ValidationError struct {
	Kind   ValidationErrorKind
	Field  string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := "replay rejected: " + string(e.Kind)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsKind reports whether err carries a ValidationError of kind k.
func IsKind(err error, k ValidationErrorKind) bool {
	var verr *ValidationError
	return errors.As(err, &verr) && verr.Kind == k
}

func missing(field string) error {
	return &ValidationError{Kind: ValidationMissingField, Field: field}
}

func malformed(field string, err error) error {
	return &ValidationError{Kind: ValidationMalformedField, Field: field, Err: err}
}
