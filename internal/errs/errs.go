package errs

import (
	"errors"
	"fmt"
)

type Category string

const (
	CategoryNotFound            Category = "not_found"
	CategoryInvalidInput        Category = "invalid_input"
	CategoryIntegrityFailure    Category = "integrity_failure"
	CategorySigningFailure      Category = "signing_failure"
	CategoryUpstreamUnavailable Category = "upstream_unavailable"
	CategoryInternal            Category = "internal_failure"
)

type classifiedError struct {
	category  Category
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// Wrap attaches a category to cause. A nil cause yields nil.
func Wrap(cause error, category Category, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		retryable: retryable,
		cause:     cause,
	}
}

func NotFoundf(format string, args ...any) error {
	return Wrap(fmt.Errorf(format, args...), CategoryNotFound, false)
}

func InvalidInputf(format string, args ...any) error {
	return Wrap(fmt.Errorf(format, args...), CategoryInvalidInput, false)
}

// Unavailable marks cause as a transient upstream failure.
func Unavailable(cause error) error {
	return Wrap(cause, CategoryUpstreamUnavailable, true)
}

// CategoryOf returns the innermost-wrapping category, or "" if unclassified.
func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}

func IsNotFound(err error) bool {
	return CategoryOf(err) == CategoryNotFound
}

func IsInvalidInput(err error) bool {
	return CategoryOf(err) == CategoryInvalidInput
}
