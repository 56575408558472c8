package todo

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown categories, tasks, profiles and
	// share codes.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyMember is returned when a user joins a category twice.
	ErrAlreadyMember = errors.New("already a member of this category")
	// ErrForbidden is returned when the acting user may not touch a category.
	ErrForbidden = errors.New("access denied")
)

// ValidationError reports a rejected input value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// PartialFailureError reports a multi-step operation where some steps failed
// and others were applied.
type PartialFailureError struct {
	Op     string
	Failed int
	Total  int
	Err    error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: %d of %d steps failed: %v", e.Op, e.Failed, e.Total, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// requireText trims v and rejects blank input.
func requireText(field, v string) (string, error) {
	v = trim(v)
	if v == "" {
		return "", &ValidationError{Field: field, Message: "must not be empty"}
	}
	return v, nil
}
