package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPDFError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *PDFError
		want string
	}{
		{"message", New(ErrorTypeUnknownField, "no field named \"x\""), `[UNKNOWN_FIELD] no field named "x"`},
		{"no message", &PDFError{Type: ErrorTypeInvalidZoom}, "[INVALID_ZOOM] INVALID_ZOOM"},
		{"context", New(ErrorTypeInvalidRowRule, "rows overlap").WithContext("row 2"), "[INVALID_ROW_RULE] rows overlap: row 2"},
		{"cause", Wrap(ErrorTypeUnreadableDocument, "cannot parse", errors.New("bad xref")), "[UNREADABLE_DOCUMENT] cannot parse: bad xref"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestPDFError_Is(t *testing.T) {
	err := fmt.Errorf("stamping: %w", Newf(ErrorTypeFieldOverflow, "date %q is too wide", "2024-05-01").WithField("date").WithRow(3))

	assert.ErrorIs(t, err, ErrFieldOverflow)
	assert.NotErrorIs(t, err, ErrOverlappingFields)
	assert.Equal(t, ErrorTypeFieldOverflow, TypeOf(err))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(nil))

	var pe *PDFError
	if assert.ErrorAs(t, err, &pe) {
		assert.Equal(t, "date", pe.Field)
		assert.Equal(t, 3, pe.Row)
	}

	cause := errors.New("eof")
	assert.ErrorIs(t, Wrap(ErrorTypeUnreadableDocument, "truncated", cause), cause)
}

func TestErrorType_Class(t *testing.T) {
	tests := map[ErrorType]ErrorClass{
		ErrorTypeUnreadableDocument:    ClassInput,
		ErrorTypeInvalidFieldReference: ClassInput,
		ErrorTypeUnsupportedKind:       ClassInput,
		ErrorTypeUnknownField:          ClassInput,
		ErrorTypeInvalidRequest:        ClassInput,
		ErrorTypeGeometryOutOfBounds:   ClassGeometric,
		ErrorTypeInvalidZoom:           ClassGeometric,
		ErrorTypeOverlappingFields:     ClassGeometric,
		ErrorTypeInvalidRowRule:        ClassGeometric,
		ErrorTypeFieldOverflow:         ClassRendering,
	}
	for et, want := range tests {
		assert.Equal(t, want, et.Class(), et.String())
	}
	assert.Equal(t, "UNKNOWN", ErrorType(99).String())
}

func TestWarnings(t *testing.T) {
	var w Warnings
	assert.Nil(t, w.List())

	w.Addf("page %d is rotated by %d degrees", 1, 90)
	w.Addf("widget without a name skipped")
	list := w.List()
	assert.Equal(t, []string{"page 1 is rotated by 90 degrees", "widget without a name skipped"}, list)

	list[0] = "changed"
	assert.Equal(t, "page 1 is rotated by 90 degrees", w.List()[0], "List returns a copy")
}
