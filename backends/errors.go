package backends

import (
	"errors"
	"fmt"
)

// ErrorCode classifies storage failures.
type ErrorCode int

const (
	// CodeProviderFailure wraps transport or provider-internal failures.
	CodeProviderFailure ErrorCode = iota
	// CodeInvalidParameters is a nil or empty required argument.
	CodeInvalidParameters
	// CodeInvalidFileOrDirectoryName is a path that had to be rooted but was not,
	// or an entry of the wrong kind.
	CodeInvalidFileOrDirectoryName
	// CodeFileNotFound is a failed path resolution or child lookup.
	CodeFileNotFound
	// CodeCreateOperationFailed is a failed step of a recursive folder creation.
	CodeCreateOperationFailed
	// CodeNoProviderFound means no provider is registered for a configuration kind.
	CodeNoProviderFound
	// CodeProviderInstantiationFailed means the provider factory failed.
	CodeProviderInstantiationFailed
	// CodeOpenedConnectionNeeded means the operation needs an open session.
	CodeOpenedConnectionNeeded
	// CodeUnexpectedPayloadShape means a token payload is not a flat string map.
	CodeUnexpectedPayloadShape
	// CodeUnauthorizedAccess means the provider rejected the credentials.
	CodeUnauthorizedAccess
)

var codeNames = map[ErrorCode]string{
	CodeProviderFailure:             "provider failure",
	CodeInvalidParameters:           "invalid parameters",
	CodeInvalidFileOrDirectoryName:  "invalid file or directory name",
	CodeFileNotFound:                "file not found",
	CodeCreateOperationFailed:       "create operation failed",
	CodeNoProviderFound:             "no provider found",
	CodeProviderInstantiationFailed: "provider instantiation failed",
	CodeOpenedConnectionNeeded:      "opened connection needed",
	CodeUnexpectedPayloadShape:      "unexpected payload shape",
	CodeUnauthorizedAccess:          "unauthorized access",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error code %d", int(c))
}

// StorageError is the error type returned by the storage layer.
type StorageError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is matches any StorageError carrying the same code, so the sentinels below
// work with errors.Is regardless of message or cause.
func (e *StorageError) Is(target error) bool {
	other, ok := target.(*StorageError)
	return ok && other.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrProviderFailure             = &StorageError{Code: CodeProviderFailure}
	ErrInvalidParameters           = &StorageError{Code: CodeInvalidParameters}
	ErrInvalidFileOrDirectoryName  = &StorageError{Code: CodeInvalidFileOrDirectoryName}
	ErrFileNotFound                = &StorageError{Code: CodeFileNotFound}
	ErrCreateOperationFailed       = &StorageError{Code: CodeCreateOperationFailed}
	ErrNoProviderFound             = &StorageError{Code: CodeNoProviderFound}
	ErrProviderInstantiationFailed = &StorageError{Code: CodeProviderInstantiationFailed}
	ErrOpenedConnectionNeeded      = &StorageError{Code: CodeOpenedConnectionNeeded}
	ErrUnexpectedPayloadShape      = &StorageError{Code: CodeUnexpectedPayloadShape}
	ErrUnauthorizedAccess          = &StorageError{Code: CodeUnauthorizedAccess}
)

// NewError creates a StorageError with the given code.
func NewError(code ErrorCode, message string, cause error) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrap wraps a provider failure. Errors that already carry a code are
// returned unchanged so their classification survives.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return NewError(CodeProviderFailure, message, err)
}

// CodeOf returns the code carried by err, or CodeProviderFailure.
func CodeOf(err error) ErrorCode {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeProviderFailure
}
