package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrInvalidInput - invalid input (operator configuration, CLI arguments, bad target)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - resource not found (missing side file, unknown model)
	ErrNotFound = errors.New("not found")

	// ErrTransient - transient error (retry with backoff on gateway calls)
	ErrTransient = errors.New("transient error")

	// ErrInternal - internal error (generic message + trace id)
	ErrInternal = errors.New("internal error")

	// ErrUnresolvableTool - model requested a tool name that is not registered
	ErrUnresolvableTool = errors.New("unresolvable tool")

	// ErrMalformedArguments - tool arguments are not a JSON object
	ErrMalformedArguments = errors.New("malformed arguments")

	// ErrInvalidArguments - tool arguments do not match the declared parameter schema
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrToolFailed - executor returned an error or panicked
	ErrToolFailed = errors.New("tool execution failed")

	// ErrGateway - the LLM gateway call failed after all attempts
	ErrGateway = errors.New("gateway failure")

	// ErrQueryRejected - the read-only guard refused a generated statement
	ErrQueryRejected = errors.New("query rejected")
)
