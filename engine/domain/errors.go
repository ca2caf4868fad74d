package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/WessleyAI/rdsgraph/engine/codes"
)

// Sentinel errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidScope  = errors.New("invalid scope")
	ErrSelfRelation  = errors.New("self relation")
	ErrEmptyRow      = errors.New("row has no identifier or name")
	ErrInvalidObject = errors.New("invalid object")
	ErrUnknownAspect = errors.New("unknown aspect type")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// RowError is a soft, per-row failure collected during import. It encodes
// as {sheet, row, code, message}; decoding restores Err as a known sentinel
// when the message matches one.
type RowError struct {
	Sheet string
	Row   int
	Code  string
	Err   error
}

func (e RowError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("sheet %q row %d (%s): %s", e.Sheet, e.Row, e.Code, e.message())
	}
	return fmt.Sprintf("sheet %q row %d: %s", e.Sheet, e.Row, e.message())
}

func (e RowError) Unwrap() error { return e.Err }

func (e RowError) message() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

type rowErrorJSON struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

var rowSentinels = []error{ErrEmptyRow, ErrNotFound, ErrInvalidObject, ErrUnknownAspect, codes.ErrNotParseable}

func (e RowError) MarshalJSON() ([]byte, error) {
	return json.Marshal(rowErrorJSON{Sheet: e.Sheet, Row: e.Row, Code: e.Code, Message: e.message()})
}

func (e *RowError) UnmarshalJSON(b []byte) error {
	var j rowErrorJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	*e = RowError{Sheet: j.Sheet, Row: j.Row, Code: j.Code, Err: errors.New(j.Message)}
	for _, s := range rowSentinels {
		if s.Error() == j.Message {
			e.Err = s
			break
		}
	}
	return nil
}
