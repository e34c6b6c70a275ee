// Package errors defines the error taxonomy shared by the indexing and
// search packages and maps it onto HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrIngest        = errors.New("ingest failed")
	ErrPersistence   = errors.New("persistence failed")
	ErrIndexNotFound = errors.New("index not found")
	ErrQuerySyntax   = errors.New("query syntax error")
	ErrInvalidInput  = errors.New("invalid input")
	ErrWriterLocked  = errors.New("index is locked by another writer")
	ErrUnavailable   = errors.New("service unavailable")
	ErrInternal      = errors.New("internal error")
)

// IngestError reports a single document that could not be ingested. The
// batch it belongs to continues.
type IngestError struct {
	DocID string
	Cause error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingesting %s: %v", e.DocID, e.Cause)
}

func (e *IngestError) Unwrap() error { return e.Cause }

func (e *IngestError) Is(target error) bool { return target == ErrIngest }

// PersistenceError reports a failed write or read of committed index state.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// IndexNotFoundError is returned when no committed snapshot exists in Dir.
type IndexNotFoundError struct {
	Dir string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("no committed index in %q", e.Dir)
}

func (e *IndexNotFoundError) Is(target error) bool { return target == ErrIndexNotFound }

// QuerySyntaxError points at the offending byte offset of a query.
type QuerySyntaxError struct {
	Query string
	Pos   int
	Msg   string
}

func (e *QuerySyntaxError) Error() string {
	return fmt.Sprintf("query %q at offset %d: %s", e.Query, e.Pos, e.Msg)
}

func (e *QuerySyntaxError) Is(target error) bool { return target == ErrQuerySyntax }

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrQuerySyntax), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrWriterLocked):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
