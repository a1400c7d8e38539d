// Package errors provides the runtime's error taxonomy. Every failure
// that crosses the plugin boundary carries a stable numeric code so hosts
// in any language can branch on it without parsing messages.
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/gobridge-dev/gobridge/domain/entities"
)

// Code is a stable numeric error category. The assigned values are part
// of the boundary contract and must never be renumbered; new categories
// take unused values.
type Code int32

const (
	// CodeInitialization covers failures while creating or starting a
	// plugin.
	CodeInitialization Code = 1

	// CodeInvalidInput covers malformed arguments handed to the boundary:
	// unknown handles, nil type tags, oversized requests.
	CodeInvalidInput Code = 2

	// CodeShutdown covers failures during plugin shutdown.
	CodeShutdown Code = 3

	// CodeInvalidState means the operation is not legal in the plugin's
	// current lifecycle state.
	CodeInvalidState Code = 4

	// CodeSerialization covers encode and decode failures in either
	// transport mode.
	CodeSerialization Code = 5

	// CodeUnknownMessageType means no handler is registered for the
	// request's type tag or message id.
	CodeUnknownMessageType Code = 6

	// CodeHandler covers errors and panics raised by plugin handlers.
	CodeHandler Code = 7

	// CodeInternal covers unexpected runtime failures.
	CodeInternal Code = 8

	// CodeTooManyRequests means the concurrency gate rejected the request.
	CodeTooManyRequests Code = 13
)

func (c Code) String() string {
	switch c {
	case CodeInitialization:
		return "initialization"
	case CodeInvalidInput:
		return "invalid_input"
	case CodeShutdown:
		return "shutdown"
	case CodeInvalidState:
		return "invalid_state"
	case CodeSerialization:
		return "serialization"
	case CodeUnknownMessageType:
		return "unknown_message_type"
	case CodeHandler:
		return "handler"
	case CodeInternal:
		return "internal"
	case CodeTooManyRequests:
		return "too_many_requests"
	default:
		return fmt.Sprintf("code(%d)", int32(c))
	}
}

// PluginError is the error type crossing the plugin boundary. It supports
// errors.As and unwrapping of a causal error.
type PluginError struct {
	Err     error
	Message string
	Code    Code
}

func (e *PluginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// New creates a PluginError with the given code and message.
func New(code Code, message string) *PluginError {
	return &PluginError{Code: code, Message: message}
}

// Newf creates a PluginError with a formatted message.
func Newf(code Code, format string, args ...any) *PluginError {
	return &PluginError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a PluginError carrying a causal error. A nil cause yields
// a plain PluginError.
func Wrap(code Code, message string, err error) *PluginError {
	return &PluginError{Code: code, Message: message, Err: err}
}

// Initialization wraps a plugin start failure.
func Initialization(err error) *PluginError {
	return Wrap(CodeInitialization, "plugin initialization failed", err)
}

// InvalidInput reports a malformed boundary argument.
func InvalidInput(message string) *PluginError {
	return New(CodeInvalidInput, message)
}

// InvalidHandle reports an unrecognized plugin handle.
func InvalidHandle(handle uint64) *PluginError {
	return Newf(CodeInvalidInput, "invalid plugin handle %d", handle)
}

// Shutdown wraps a stop hook failure.
func Shutdown(err error) *PluginError {
	return Wrap(CodeShutdown, "plugin shutdown failed", err)
}

// NotActive reports an operation attempted outside the Active state.
func NotActive(state entities.State) *PluginError {
	return Newf(CodeInvalidState, "plugin is %s, not active", state)
}

// Serialization wraps a codec failure, preserving the decoder's message.
func Serialization(err error) *PluginError {
	return Wrap(CodeSerialization, "message serialization failed", err)
}

// UnknownType reports an unregistered type tag.
func UnknownType(typeTag string) *PluginError {
	return Newf(CodeUnknownMessageType, "no handler for message type %q", typeTag)
}

// UnknownMessageID reports an unregistered binary message id.
func UnknownMessageID(id uint32) *PluginError {
	return Newf(CodeUnknownMessageType, "no handler for message id %d", id)
}

// Handler wraps an error returned by a plugin handler.
func Handler(err error) *PluginError {
	return Wrap(CodeHandler, "handler failed", err)
}

// HandlerPanic converts a recovered panic value into a handler error.
func HandlerPanic(v any) *PluginError {
	return Newf(CodeHandler, "handler panicked: %v", v)
}

// TooManyRequests reports a concurrency gate rejection.
func TooManyRequests(limit int) *PluginError {
	return Newf(CodeTooManyRequests, "concurrency limit of %d reached", limit)
}

// CodeOf extracts the boundary code from an error chain. Errors that are
// not PluginErrors categorize as internal; nil has no code and reports 0.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var pe *PluginError
	if stdErrors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternal
}

// MessageOf extracts the human-readable message from an error chain,
// falling back to Error() for foreign errors.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var pe *PluginError
	if stdErrors.As(err, &pe) {
		if pe.Err != nil {
			return fmt.Sprintf("%s: %v", pe.Message, pe.Err)
		}
		return pe.Message
	}
	return err.Error()
}
