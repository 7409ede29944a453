package errors

import (
	"context"
	goerrors "errors"
)

// CheckContext returns an error if the context is canceled or timed out.
// This provides a standardized way to check and wrap context errors.
func CheckContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return Wrap(err, Canceled, operation+" canceled")
	}
	return nil
}

// CodeOf extracts the ErrorCode from an error chain, returning Unknown
// when no structured error is present.
func CodeOf(err error) ErrorCode {
	var e *Error
	if goerrors.As(err, &e) {
		return e.Code()
	}
	return Unknown
}

// IsNotFound reports whether the error chain contains a ResourceNotFound error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ResourceNotFound
}

// IsInvalidSignature reports whether the error chain contains an InvalidSignature error.
func IsInvalidSignature(err error) bool {
	return CodeOf(err) == InvalidSignature
}
