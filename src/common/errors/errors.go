// Package errors provides a structured error system for the rtk tools.
// It supports error domains, error codes, process exit-code mapping, error
// wrapping, and consistent error text across every rtk command.
package errors

import (
	"errors"
	"fmt"
)

// Code represents a unique error code within a domain
type Code string

// Domain represents an error domain (e.g., "tools", "source", "deploy")
type Domain string

// Common error domains
const (
	DomainConfig   Domain = "config"
	DomainTools    Domain = "tools"
	DomainSource   Domain = "source"
	DomainKconfig  Domain = "kconfig"
	DomainBuild    Domain = "build"
	DomainDeploy   Domain = "deploy"
	DomainVerify   Domain = "verify"
	DomainStorage  Domain = "storage"
	DomainDatabase Domain = "database"
	DomainInternal Domain = "internal"
)

// Process exit codes. The tools distinguish only success and fatal
// failure; warnings never change the exit code.
const (
	ExitOK    = 0
	ExitFatal = 1
)

// Error represents a structured error with domain, code, and exit status
type Error struct {
	// Domain categorizes the error (e.g., "build", "deploy")
	Domain Domain `json:"domain"`

	// Code is a unique identifier within the domain (e.g., "not_found")
	Code Code `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// Remedy is optional operator guidance printed alongside the message
	Remedy string `json:"remedy,omitempty"`

	// ExitCode is the process exit status this error maps to
	ExitCode int `json:"-"`

	// cause is the underlying error if this error wraps another
	cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is and errors.As support
func (e *Error) Unwrap() error {
	return e.cause
}

// Is implements error comparison for errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Domain == t.Domain && e.Code == t.Code
}

// WithCause returns a copy of the error with the underlying cause attached
func (e *Error) WithCause(cause error) *Error {
	dup := *e
	dup.cause = cause
	return &dup
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	dup := *e
	dup.Message = message
	return &dup
}

// WithMessagef returns a copy of the error with a formatted custom message
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithRemedy returns a copy of the error with operator guidance attached
func (e *Error) WithRemedy(remedy string) *Error {
	dup := *e
	dup.Remedy = remedy
	return &dup
}

// New creates a new fatal Error with the given parameters
func New(domain Domain, code Code, message string) *Error {
	return &Error{
		Domain:   domain,
		Code:     code,
		Message:  message,
		ExitCode: ExitFatal,
	}
}

// Wrap wraps an existing error with an Error
func Wrap(err error, domain Domain, code Code, message string) *Error {
	return &Error{
		Domain:   domain,
		Code:     code,
		Message:  message,
		ExitCode: ExitFatal,
		cause:    err,
	}
}

// GetExitCode returns the process exit code for an error. A nil error maps
// to ExitOK; an unstructured error maps to ExitFatal.
func GetExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.ExitCode
	}
	return ExitFatal
}

// GetCode returns the error code if the error is an *Error, otherwise empty string
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetDomain returns the error domain if the error is an *Error, otherwise empty string
func GetDomain(err error) Domain {
	var e *Error
	if errors.As(err, &e) {
		return e.Domain
	}
	return ""
}

// GetRemedy returns the operator guidance attached to an error, if any
func GetRemedy(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Remedy
	}
	return ""
}

// Is checks if an error matches a target error (delegates to errors.Is)
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target (delegates to errors.As)
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
