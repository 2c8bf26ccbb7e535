// Package pipeerr defines the typed failures raised by the staging pipeline.
// Every error wraps its cause so callers can use errors.Is and errors.As.
package pipeerr

import (
	"errors"
	"fmt"
)

var (
	// ErrTableExists is returned when writing with fail mode onto an existing table
	ErrTableExists = errors.New("table already exists")
	// ErrNotReadOnly is returned when Query receives a statement that is not a read
	ErrNotReadOnly = errors.New("statement is not read-only")
	// ErrDivisionByZero is returned when a percentage has a zero average as divisor
	ErrDivisionByZero = errors.New("division by zero")
	// ErrEmptyResult is returned when a comparison has no sensor present in both windows
	ErrEmptyResult = errors.New("empty result")
)

// NetworkError reports a page fetch that failed
type NetworkError struct {
	Endpoint   string
	Offset     int
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s (offset %d): status %d: %v", e.Endpoint, e.Offset, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s (offset %d): %v", e.Endpoint, e.Offset, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
// Client errors (4xx) are final.
func (e *NetworkError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}

// FormatError reports a value whose layout does not match what the pipeline expects
type FormatError struct {
	Field string
	Value string
	// Row is the zero-based data row, or -1 when not applicable
	Row int
	Err error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("unexpected format for %s %q", e.Field, e.Value)
	if e.Row >= 0 {
		msg = fmt.Sprintf("row %d: %s", e.Row, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// StoreError reports a failed staging store operation
type StoreError struct {
	Table string
	Op    string
	Err   error
}

func (e *StoreError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ComputationError reports a statistic that cannot be computed from the staged data
type ComputationError struct {
	Stat     string
	SensorID int64
	Err      error
}

func (e *ComputationError) Error() string {
	if e.SensorID != 0 {
		return fmt.Sprintf("compute %s (sensor %d): %v", e.Stat, e.SensorID, e.Err)
	}
	return fmt.Sprintf("compute %s: %v", e.Stat, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// WithRow returns a copy of err annotated with a row index when err is a FormatError
func WithRow(err error, row int) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		c := *fe
		c.Row = row
		return &c
	}
	return err
}
