package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDataset marks every rejection of a dataset document.
var ErrInvalidDataset = errors.New("invalid dataset")

// FieldError is one problem at a path inside the document.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every problem found in a document.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:")
	for i, fe := range e.Errors {
		fmt.Fprintf(&sb, "\n  %d. %s: %s", i+1, fe.Field, fe.Message)
	}
	return sb.String()
}

func (e *ValidationError) Unwrap() error { return ErrInvalidDataset }

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}
