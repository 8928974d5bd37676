package captures

import (
	"fmt"
	"net/http"
)

// ValidationError is a problem with the request itself. It is reported to the
// client with its status and never affects the process.
type ValidationError struct {
	Status  int
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StorageError wraps disk and database failures.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

func ErrNoImage() *ValidationError {
	return &ValidationError{
		Status:  http.StatusBadRequest,
		Code:    "No image file provided",
		Message: `Please provide an image file in the "image" field`,
	}
}

func ErrInvalidFileType(mimeType string) *ValidationError {
	return &ValidationError{
		Status:  http.StatusBadRequest,
		Code:    "Invalid file type",
		Message: fmt.Sprintf("Only image files (JPEG, PNG, GIF, WebP) are allowed, got %q", mimeType),
	}
}

func ErrInvalidFaceCoordinates(reason string) *ValidationError {
	return &ValidationError{
		Status:  http.StatusBadRequest,
		Code:    "Invalid face coordinates",
		Message: reason,
	}
}

func errInvalidTimestamp(value string) *ValidationError {
	return &ValidationError{
		Status:  http.StatusBadRequest,
		Code:    "Invalid timestamp",
		Message: fmt.Sprintf("timestamp %q is not an ISO-8601 date-time", value),
	}
}

func errInvalidDateFilter(name, value string) *ValidationError {
	return &ValidationError{
		Status:  http.StatusBadRequest,
		Code:    "Invalid date filter",
		Message: fmt.Sprintf("%s %q is not an ISO-8601 date or date-time", name, value),
	}
}

func errDuplicateID(id string) *ValidationError {
	return &ValidationError{
		Status:  http.StatusConflict,
		Code:    "Duplicate capture id",
		Message: fmt.Sprintf("a capture with id %q already exists", id),
	}
}

func errCaptureNotFound(id string) *ValidationError {
	return &ValidationError{
		Status:  http.StatusNotFound,
		Code:    "Capture not found",
		Message: fmt.Sprintf("no capture with id %q", id),
	}
}
