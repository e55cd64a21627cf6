package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorMapper maps driver and SDK errors onto the tabletalk taxonomy.
type ErrorMapper interface {
	MapError(err error) error
	IsRetryable(err error) bool
	Category(err error) string
}

// DefaultErrorMapper classifies errors by sentinel first, then by message content.
type DefaultErrorMapper struct{}

func NewDefaultErrorMapper() *DefaultErrorMapper {
	return &DefaultErrorMapper{}
}

// MapError maps a provider or driver error to a category. Errors that already
// carry a tabletalk category are returned unchanged.
func (m *DefaultErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if Category(err) != "Unknown" {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timeout: %v: %w", err, ErrTransient)
	}

	msg := strings.ToLower(err.Error())
	for _, r := range messageRules {
		for _, needle := range r.needles {
			if strings.Contains(msg, needle) {
				return fmt.Errorf("%s: %v: %w", r.label, err, r.category)
			}
		}
	}
	return fmt.Errorf("internal error: %v: %w", err, ErrInternal)
}

// messageRules are checked in order; the first matching needle wins.
var messageRules = []struct {
	label    string
	category error
	needles  []string
}{
	{"rate limited", ErrTransient, []string{"rate limit", "too many requests", "429", "overloaded"}},
	{"request timeout", ErrTransient, []string{"timeout", "deadline exceeded"}},
	{"network error", ErrTransient, []string{"connection refused", "connection reset", "unreachable", "eof", "502", "503", "504"}},
	{"resource not found", ErrNotFound, []string{"not found", "does not exist"}},
	{"invalid request", ErrInvalidInput, []string{"invalid request", "bad request", "unauthorized", "401"}},
}

func (m *DefaultErrorMapper) IsRetryable(err error) bool {
	return IsRetryable(err)
}

func (m *DefaultErrorMapper) Category(err error) string {
	return Category(err)
}

// Category returns the taxonomy name for an error.
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnresolvableTool):
		return "ErrUnresolvableTool"
	case errors.Is(err, ErrMalformedArguments):
		return "ErrMalformedArguments"
	case errors.Is(err, ErrInvalidArguments):
		return "ErrInvalidArguments"
	case errors.Is(err, ErrToolFailed):
		return "ErrToolFailed"
	case errors.Is(err, ErrGateway):
		return "ErrGateway"
	case errors.Is(err, ErrQueryRejected):
		return "ErrQueryRejected"
	case errors.Is(err, ErrInvalidInput):
		return "ErrInvalidInput"
	case errors.Is(err, ErrNotFound):
		return "ErrNotFound"
	case errors.Is(err, ErrTransient):
		return "ErrTransient"
	case errors.Is(err, ErrInternal):
		return "ErrInternal"
	default:
		return "Unknown"
	}
}

// Wrap adds context to an error while keeping its category.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory wraps an error with a specific category. Both the original
// error and the category remain reachable through errors.Is.
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w: %w", message, err, category)
}

func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

// IsRetryable reports whether a gateway call that failed with err may be attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient)
}
