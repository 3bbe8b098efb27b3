package schemas

import (
	"errors"
	"fmt"
)

// -- Error Taxonomy --
//
// Four error classes cover every failure mode in the pipeline:
//
//   - InputError: the caller gave us nothing usable. Fails the whole run.
//   - ExternalServiceError: an upstream dependency (LLM API, retrieval
//     index, container runtime) misbehaved. Degrades the affected item or
//     tier, never the run.
//   - TimeoutError: an external call exceeded its deadline. It unwraps to
//     an ExternalServiceError, so handlers that degrade on external
//     failures treat timeouts the same way; callers that retry check for
//     it specifically.
//   - ValidationError: a payload we received was malformed. The item is
//     marked failed and the run continues.

// InputError reports invalid or missing caller input.
type InputError struct {
	Msg string
	Err error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input error: %s: %v", e.Msg, e.Err)
	}
	return "input error: " + e.Msg
}

func (e *InputError) Unwrap() error { return e.Err }

// NewInputError builds an InputError with a formatted message.
func NewInputError(format string, args ...any) *InputError {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// ExternalServiceError reports a failure in an upstream dependency.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %q failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// NewExternalServiceError wraps err as a failure of the named service.
func NewExternalServiceError(service string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Err: err}
}

// TimeoutError reports that an external call ran out of time. Its unwrap
// chain contains an ExternalServiceError, then the underlying cause
// (usually context.DeadlineExceeded).
type TimeoutError struct {
	Service string
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting on %q: %v", e.Service, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NewTimeoutError wraps err so the result matches both *TimeoutError and
// *ExternalServiceError under errors.As.
func NewTimeoutError(service string, err error) *TimeoutError {
	return &TimeoutError{
		Service: service,
		Err:     &ExternalServiceError{Service: service, Err: err},
	}
}

// ValidationError reports a malformed external payload.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Msg, e.Err)
	}
	return "validation error: " + e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsInput reports whether err is an InputError anywhere in its chain.
func IsInput(err error) bool {
	var target *InputError
	return errors.As(err, &target)
}

// IsExternal reports whether err is an ExternalServiceError anywhere in its
// chain. TimeoutError satisfies this through its unwrap chain.
func IsExternal(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is a TimeoutError anywhere in its chain.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsValidation reports whether err is a ValidationError anywhere in its
// chain.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
