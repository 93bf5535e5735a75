package common

import "errors"

// AppError represents a failure with an attached machine code and the
// human-readable message shown to the operator. Backend failures carry the
// HTTP status and whatever detail payload the server returned.
type AppError struct {
	Code    string
	Message string
	Status  int
	Details any
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UserMessage extracts the most specific human-readable message from an error
// chain, falling back to the provided default. The single toast the UI shows
// comes from here.
func UserMessage(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}
