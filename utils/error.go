package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// FieldError marks invalid caller input at the model layer; handlers map it
// to a 400.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func ErrorValidation(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}
