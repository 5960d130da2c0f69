// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrAuthExpired      = errors.New("auth expired")
	ErrFetch            = errors.New("fetch failed")
	ErrInvalidBalance   = errors.New("invalid balance")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrNoInstrument     = errors.New("no instrument selected")
	ErrSymbolNotFound   = errors.New("symbol not found")
	ErrCacheMiss        = errors.New("cache miss")
	ErrChannelBusy      = errors.New("channel busy")
	ErrConnectionFailed = errors.New("connection failed")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrInputValidation  = errors.New("input validation failed")
	ErrOrderRejected    = errors.New("order rejected")
)

// FetchError is returned when a remote resource (catalog, balance) could not be retrieved.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error [%s]: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrFetch) match any FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// NewFetchError creates a new FetchError.
func NewFetchError(source string, err error) *FetchError {
	return &FetchError{
		Source: source,
		Err:    err,
	}
}

// StreamError represents a transport failure on a named stream channel.
type StreamError struct {
	Channel string
	Op      string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error [%s] %s: %v", e.Channel, e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// NewStreamError creates a new StreamError.
func NewStreamError(channel, op string, err error) *StreamError {
	return &StreamError{
		Channel: channel,
		Op:      op,
		Err:     err,
	}
}

// MalformedMessageError is reported for inbound payloads that could not be decoded.
type MalformedMessageError struct {
	Channel string
	Payload string
	Err     error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message on %s: %v", e.Channel, e.Err)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// NewMalformedMessageError creates a new MalformedMessageError. The payload is
// truncated so log lines stay bounded.
func NewMalformedMessageError(channel string, payload []byte, err error) *MalformedMessageError {
	p := string(payload)
	if len(p) > 128 {
		p = p[:128] + "..."
	}
	return &MalformedMessageError{
		Channel: channel,
		Payload: p,
		Err:     err,
	}
}

// OrderError represents an error from the GTT placement endpoint.
type OrderError struct {
	Instrument string
	Reason     string
	Err        error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s]: %s: %v", e.Instrument, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s]: %s", e.Instrument, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(instrument, reason string, err error) *OrderError {
	return &OrderError{
		Instrument: instrument,
		Reason:     reason,
		Err:        err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
