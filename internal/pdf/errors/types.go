package errors

import (
	"fmt"
)

// PDFError is a field-coordination error with enough context for the caller to fix the request
type PDFError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Context    string    `json:"context,omitempty"`
	Field      string    `json:"field,omitempty"`
	Row        int       `json:"row,omitempty"`
	PageNumber int       `json:"page_number,omitempty"`
	Err        error     `json:"-"`
}

// ErrorType represents the categories of engine errors
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeUnreadableDocument
	ErrorTypeInvalidFieldReference
	ErrorTypeGeometryOutOfBounds
	ErrorTypeUnsupportedKind
	ErrorTypeInvalidZoom
	ErrorTypeUnknownField
	ErrorTypeOverlappingFields
	ErrorTypeFieldOverflow
	ErrorTypeInvalidRowRule
	ErrorTypeInvalidRequest
)

// ErrorClass groups error types the way callers are expected to react to them
type ErrorClass int

const (
	// ClassInput covers malformed documents and bad references; fix the request
	ClassInput ErrorClass = iota
	// ClassGeometric covers contract violations caught before any byte is written
	ClassGeometric
	// ClassRendering covers limitations whose per-kind policy demands hard failure
	ClassRendering
)

// Sentinel values for errors.Is matching. Only the Type is compared.
var (
	ErrUnreadableDocument    = &PDFError{Type: ErrorTypeUnreadableDocument}
	ErrInvalidFieldReference = &PDFError{Type: ErrorTypeInvalidFieldReference}
	ErrGeometryOutOfBounds   = &PDFError{Type: ErrorTypeGeometryOutOfBounds}
	ErrUnsupportedKind       = &PDFError{Type: ErrorTypeUnsupportedKind}
	ErrInvalidZoom           = &PDFError{Type: ErrorTypeInvalidZoom}
	ErrUnknownField          = &PDFError{Type: ErrorTypeUnknownField}
	ErrOverlappingFields     = &PDFError{Type: ErrorTypeOverlappingFields}
	ErrFieldOverflow         = &PDFError{Type: ErrorTypeFieldOverflow}
	ErrInvalidRowRule        = &PDFError{Type: ErrorTypeInvalidRowRule}
	ErrInvalidRequest        = &PDFError{Type: ErrorTypeInvalidRequest}
)

// Error implements the error interface
func (e *PDFError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Type.String()
	}
	if e.Context != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Context)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type.String(), msg)
}

// Unwrap returns the underlying cause, if any
func (e *PDFError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a PDFError of the same type
func (e *PDFError) Is(target error) bool {
	t, ok := target.(*PDFError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeUnreadableDocument:
		return "UNREADABLE_DOCUMENT"
	case ErrorTypeInvalidFieldReference:
		return "INVALID_FIELD_REFERENCE"
	case ErrorTypeGeometryOutOfBounds:
		return "GEOMETRY_OUT_OF_BOUNDS"
	case ErrorTypeUnsupportedKind:
		return "UNSUPPORTED_KIND"
	case ErrorTypeInvalidZoom:
		return "INVALID_ZOOM"
	case ErrorTypeUnknownField:
		return "UNKNOWN_FIELD"
	case ErrorTypeOverlappingFields:
		return "OVERLAPPING_FIELDS"
	case ErrorTypeFieldOverflow:
		return "FIELD_OVERFLOW"
	case ErrorTypeInvalidRowRule:
		return "INVALID_ROW_RULE"
	case ErrorTypeInvalidRequest:
		return "INVALID_REQUEST"
	default:
		return "UNKNOWN"
	}
}

// Class returns how a caller should treat the error type
func (et ErrorType) Class() ErrorClass {
	switch et {
	case ErrorTypeGeometryOutOfBounds, ErrorTypeInvalidZoom, ErrorTypeOverlappingFields, ErrorTypeInvalidRowRule:
		return ClassGeometric
	case ErrorTypeFieldOverflow:
		return ClassRendering
	default:
		return ClassInput
	}
}

// New creates a PDFError of the given type
func New(errorType ErrorType, message string) *PDFError {
	return &PDFError{
		Type:    errorType,
		Message: message,
	}
}

// Newf creates a PDFError with a formatted message
func Newf(errorType ErrorType, format string, args ...any) *PDFError {
	return New(errorType, fmt.Sprintf(format, args...))
}

// Wrap wraps a standard error as a PDFError
func Wrap(errorType ErrorType, message string, err error) *PDFError {
	return &PDFError{
		Type:    errorType,
		Message: message,
		Err:     err,
	}
}

// WithContext adds context to an existing PDFError
func (e *PDFError) WithContext(context string) *PDFError {
	e.Context = context
	return e
}

// WithField records the field the error refers to
func (e *PDFError) WithField(name string) *PDFError {
	e.Field = name
	return e
}

// WithRow records the batch row (0-based) the error refers to
func (e *PDFError) WithRow(row int) *PDFError {
	e.Row = row
	return e
}

// WithPage adds page number information to an existing PDFError
func (e *PDFError) WithPage(pageNumber int) *PDFError {
	e.PageNumber = pageNumber
	return e
}

// TypeOf extracts the ErrorType from err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	for err != nil {
		if pe, ok := err.(*PDFError); ok {
			return pe.Type
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrorTypeUnknown
}

// Warnings collects non-fatal problems seen during an operation
type Warnings struct {
	items []string
}

// Addf appends a formatted warning
func (w *Warnings) Addf(format string, args ...any) {
	w.items = append(w.items, fmt.Sprintf(format, args...))
}

// List returns the collected warnings in insertion order
func (w *Warnings) List() []string {
	if len(w.items) == 0 {
		return nil
	}
	out := make([]string, len(w.items))
	copy(out, w.items)
	return out
}
