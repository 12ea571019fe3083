package stamp

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/document"
	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/mapping"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/pdftest"
)

func template(t *testing.T) []byte {
	t.Helper()
	b := pdftest.New()
	b.AddPage(pdftest.A4Width, pdftest.A4Height, pdftest.Text(50, 760, 12, "Safety inspection"))
	b.AddPage(pdftest.A4Width, pdftest.A4Height, "")
	return b.Bytes()
}

func textField(name string, x, y, w, h float64) extraction.DetectedField {
	return extraction.DetectedField{
		Name:     name,
		Kind:     extraction.KindText,
		Geometry: geometry.Rect{X: x, Y: y, Width: w, Height: h},
	}
}

func withKind(f extraction.DetectedField, kind extraction.FieldKind) extraction.DetectedField {
	f.Kind = kind
	return f
}

func appended(t *testing.T, tmpl []byte, res *Result) string {
	t.Helper()
	require.True(t, bytes.HasPrefix(res.Output, tmpl), "output must start with the template bytes")
	return string(res.Output[len(tmpl):])
}

func TestStamp_PreservesTemplate(t *testing.T) {
	tmpl := template(t)
	pristine := append([]byte(nil), tmpl...)

	res, err := NewEngine(nil).Stamp(tmpl,
		[]extraction.DetectedField{textField("name", 50, 700, 200, 20)},
		[]mapping.ValueRecord{{"name": "Kim Minsu"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, pristine, tmpl, "template slice must not be modified")
	assert.Greater(t, len(res.Output), len(tmpl))
	assert.True(t, bytes.HasPrefix(res.Output, tmpl))
	assert.Equal(t, []int{0}, res.Pages)
	assert.Equal(t, 1, res.Rows)
	assert.Empty(t, res.Flags)

	doc, err := document.Open(res.Output)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.PageCount())

	pageDict, err := doc.PageDict(0)
	require.NoError(t, err)
	contentsObj, found := pageDict.Find("Contents")
	require.True(t, found)
	contents, ok := contentsObj.(types.Array)
	require.True(t, ok, "stamped page contents must be an array")
	assert.Len(t, contents, 3)

	untouched, err := doc.PageDict(1)
	require.NoError(t, err)
	_, isArray := mustFind(t, untouched, "Contents").(types.Array)
	assert.False(t, isArray, "pages without values keep their original contents")
}

func mustFind(t *testing.T, d types.Dict, key string) types.Object {
	t.Helper()
	obj, found := d.Find(key)
	require.True(t, found, key)
	return obj
}

func TestStamp_A4ExamplePosition(t *testing.T) {
	tmpl := template(t)
	res, err := NewEngine(nil).Stamp(tmpl,
		[]extraction.DetectedField{textField("name", 50, 700, 200, 20)},
		[]mapping.ValueRecord{{"name": "Kim Minsu"}}, nil)
	require.NoError(t, err)

	update := appended(t, tmpl, res)
	assert.Contains(t, update, "q 50 700 200 20 re W n")
	assert.Contains(t, update, "BT /FSHelvetica 12 Tf 0 g 52 705.8 Td (Kim Minsu) Tj ET")
	assert.Contains(t, update, "/BaseFont/Helvetica/Encoding/WinAnsiEncoding")
}

func TestStamp_BatchRowsAreLinear(t *testing.T) {
	tmpl := template(t)
	fields := []extraction.DetectedField{
		textField("worker", 50, 700, 200, 18),
		textField("site", 300, 780, 200, 18),
	}
	records := []mapping.ValueRecord{
		{"worker": "Alpha", "site": "Block A"},
		{"worker": "Bravo", "site": "Ignored"},
		{"worker": "Charlie"},
	}

	res, err := NewEngine(nil).Stamp(tmpl, fields, records, &RowRule{RowHeight: 20, Static: []string{"site"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)

	update := appended(t, tmpl, res)
	assert.Contains(t, update, "52 704.8 Td (Alpha)")
	assert.Contains(t, update, "52 684.8 Td (Bravo)")
	assert.Contains(t, update, "52 664.8 Td (Charlie)")
	assert.Contains(t, update, "302 784.8 Td (Block A)")
	assert.NotContains(t, update, "Ignored")
}

func TestStamp_ExplicitRowOffsets(t *testing.T) {
	tmpl := template(t)
	res, err := NewEngine(nil).Stamp(tmpl,
		[]extraction.DetectedField{textField("worker", 50, 700, 200, 18)},
		[]mapping.ValueRecord{{"worker": "A"}, {"worker": "B"}, {"worker": "C"}},
		&RowRule{Offsets: []float64{0, 30, 45}})
	require.NoError(t, err)

	update := appended(t, tmpl, res)
	assert.Contains(t, update, "52 704.8 Td (A)")
	assert.Contains(t, update, "52 674.8 Td (B)")
	assert.Contains(t, update, "52 659.8 Td (C)")
}

func TestStamp_Rejections(t *testing.T) {
	name := textField("name", 50, 700, 200, 20)
	low := textField("low", 50, 30, 200, 18)

	tests := []struct {
		name    string
		fields  []extraction.DetectedField
		records []mapping.ValueRecord
		rule    *RowRule
		errType pdferrors.ErrorType
		row     int
		field   string
	}{
		{
			name:    "no records",
			fields:  []extraction.DetectedField{name},
			errType: pdferrors.ErrorTypeInvalidRequest,
		},
		{
			name:    "unknown field in record",
			fields:  []extraction.DetectedField{name},
			records: []mapping.ValueRecord{{"name": "a"}, {"nope": "b"}},
			rule:    &RowRule{RowHeight: 20},
			errType: pdferrors.ErrorTypeInvalidFieldReference,
			row:     1,
			field:   "nope",
		},
		{
			name:    "batch without rule",
			fields:  []extraction.DetectedField{name},
			records: []mapping.ValueRecord{{"name": "a"}, {"name": "b"}},
			errType: pdferrors.ErrorTypeInvalidRowRule,
		},
		{
			name:    "too few offsets",
			fields:  []extraction.DetectedField{name},
			records: []mapping.ValueRecord{{"name": "a"}, {"name": "b"}},
			rule:    &RowRule{Offsets: []float64{0}},
			errType: pdferrors.ErrorTypeInvalidRowRule,
		},
		{
			name:    "rows overlap",
			fields:  []extraction.DetectedField{name},
			records: []mapping.ValueRecord{{"name": "a"}, {"name": "b"}},
			rule:    &RowRule{RowHeight: 10},
			errType: pdferrors.ErrorTypeInvalidRowRule,
			row:     1,
			field:   "name",
		},
		{
			name:    "unknown static field",
			fields:  []extraction.DetectedField{name},
			records: []mapping.ValueRecord{{"name": "a"}},
			rule:    &RowRule{RowHeight: 20, Static: []string{"site"}},
			errType: pdferrors.ErrorTypeInvalidFieldReference,
			field:   "site",
		},
		{
			name:    "row leaves the page",
			fields:  []extraction.DetectedField{low},
			records: []mapping.ValueRecord{{"low": "a"}, {"low": "b"}, {"low": "c"}},
			rule:    &RowRule{RowHeight: 20},
			errType: pdferrors.ErrorTypeGeometryOutOfBounds,
			row:     2,
			field:   "low",
		},
		{
			name:    "base geometry out of bounds",
			fields:  []extraction.DetectedField{textField("wide", 500, 700, 200, 20)},
			records: []mapping.ValueRecord{{"wide": "a"}},
			errType: pdferrors.ErrorTypeGeometryOutOfBounds,
			field:   "wide",
		},
		{
			name:    "overlapping fields",
			fields:  []extraction.DetectedField{name, textField("other", 100, 710, 50, 20)},
			records: []mapping.ValueRecord{{"name": "a"}},
			errType: pdferrors.ErrorTypeOverlappingFields,
		},
		{
			name: "row lands on a static field",
			fields: []extraction.DetectedField{
				textField("a", 50, 700, 200, 20),
				textField("b", 50, 680, 200, 20),
			},
			records: []mapping.ValueRecord{{"a": "AAAA", "b": "BBBB"}, {"a": "CCCC", "b": "DDDD"}},
			rule:    &RowRule{RowHeight: 20, Static: []string{"b"}},
			errType: pdferrors.ErrorTypeOverlappingFields,
			row:     1,
			field:   "a",
		},
		{
			name: "row lands on an empty field",
			fields: []extraction.DetectedField{
				textField("a", 50, 700, 200, 20),
				textField("c", 50, 660, 200, 20),
			},
			records: []mapping.ValueRecord{{"a": "x"}, {"a": "y"}},
			rule:    &RowRule{RowHeight: 40},
			errType: pdferrors.ErrorTypeOverlappingFields,
			row:     1,
			field:   "a",
		},
		{
			name:    "unsupported kind",
			fields:  []extraction.DetectedField{withKind(name, "barcode")},
			records: []mapping.ValueRecord{{"name": "a"}},
			errType: pdferrors.ErrorTypeUnsupportedKind,
			field:   "name",
		},
		{
			name:    "date overflow",
			fields:  []extraction.DetectedField{withKind(textField("when", 50, 700, 30, 20), extraction.KindDate)},
			records: []mapping.ValueRecord{{"when": "2024-05-01 08:30"}},
			errType: pdferrors.ErrorTypeFieldOverflow,
			field:   "when",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewEngine(nil).Stamp(template(t), tt.fields, tt.records, tt.rule)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.errType, pdferrors.TypeOf(err))

			var pe *pdferrors.PDFError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.row, pe.Row)
			if tt.field != "" {
				assert.Equal(t, tt.field, pe.Field)
			}
		})
	}
}

func TestStamp_Unreadable(t *testing.T) {
	_, err := NewEngine(nil).Stamp([]byte("not a pdf"),
		[]extraction.DetectedField{textField("name", 50, 700, 200, 20)},
		[]mapping.ValueRecord{{"name": "a"}}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pdferrors.ErrUnreadableDocument))
}

func TestStamp_Flags(t *testing.T) {
	tmpl := template(t)
	fields := []extraction.DetectedField{
		textField("short", 50, 700, 40, 20),
		textField("korean", 50, 650, 200, 20),
		withKind(textField("sig", 50, 600, 40, 20), extraction.KindSignature),
		{
			Name:      "remarks",
			Kind:      extraction.KindText,
			Multiline: true,
			Geometry:  geometry.Rect{X: 50, Y: 400, Width: 120, Height: 60},
		},
	}
	records := []mapping.ValueRecord{{
		"short":   "A very long worker name",
		"korean":  "김민수",
		"sig":     "Kim Minsu Supervisor",
		"remarks": strings.Repeat("scaffold checked and tagged ", 12),
	}}

	res, err := NewEngine(nil).Stamp(tmpl, fields, records, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []Flag{
		{Field: "short", Row: 0, Kind: FlagTruncated},
		{Field: "korean", Row: 0, Kind: FlagUnencodable},
		{Field: "sig", Row: 0, Kind: FlagTruncated},
		{Field: "remarks", Row: 0, Kind: FlagWrapped},
		{Field: "remarks", Row: 0, Kind: FlagTruncated},
	}, res.Flags)

	update := appended(t, tmpl, res)
	assert.Contains(t, update, "(???) Tj")
	assert.Contains(t, update, "/FSTimesItalic 12 Tf")
	assert.Contains(t, update, "/BaseFont/Times-Italic")
}

func TestStamp_CheckboxAndRadio(t *testing.T) {
	tmpl := template(t)
	fields := []extraction.DetectedField{
		withKind(textField("helmet", 50, 700, 12, 12), extraction.KindCheckbox),
		withKind(textField("harness", 80, 700, 12, 12), extraction.KindCheckbox),
		withKind(textField("ppe.full", 110, 700, 12, 12), extraction.KindRadio),
	}

	res, err := NewEngine(nil).Stamp(tmpl, fields,
		[]mapping.ValueRecord{{"helmet": "Yes", "harness": "no", "ppe.full": "x"}}, nil)
	require.NoError(t, err)

	update := appended(t, tmpl, res)
	assert.Equal(t, 1, strings.Count(update, "(4) Tj"))
	assert.Equal(t, 1, strings.Count(update, "(l) Tj"))
	assert.Contains(t, update, "/BaseFont/ZapfDingbats>>")

	res, err = NewEngine(nil).Stamp(tmpl, fields, []mapping.ValueRecord{{"harness": "off"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, tmpl, res.Output, "nothing to draw leaves the template unchanged")
	assert.Empty(t, res.Pages)
}

func TestStamp_XRefStreamTemplate(t *testing.T) {
	b := pdftest.New().WithXRefStream()
	b.AddPage(pdftest.A4Width, pdftest.A4Height, pdftest.Text(50, 760, 12, "Toolbox talk"))
	tmpl := b.Bytes()

	res, err := NewEngine(nil).Stamp(tmpl,
		[]extraction.DetectedField{textField("topic", 50, 700, 200, 20)},
		[]mapping.ValueRecord{{"topic": "Working at height"}}, nil)
	require.NoError(t, err)

	update := appended(t, tmpl, res)
	assert.Contains(t, update, "/Type/XRef")
	assert.NotContains(t, update, "\nxref\n")

	doc, err := document.Open(res.Output)
	require.NoError(t, err)
	pageDict, err := doc.PageDict(0)
	require.NoError(t, err)
	contents, ok := mustFind(t, pageDict, "Contents").(types.Array)
	require.True(t, ok)
	assert.Len(t, contents, 3)
}

func TestStamp_RestampKeepsChain(t *testing.T) {
	tmpl := template(t)
	fields := []extraction.DetectedField{
		textField("name", 50, 700, 200, 20),
		textField("date", 50, 650, 200, 20),
	}
	engine := NewEngine(nil)

	first, err := engine.Stamp(tmpl, fields, []mapping.ValueRecord{{"name": "Kim"}}, nil)
	require.NoError(t, err)
	second, err := engine.Stamp(first.Output, fields, []mapping.ValueRecord{{"date": "2024-05-01"}}, nil)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(second.Output, first.Output))
	assert.True(t, bytes.HasPrefix(second.Output, tmpl))

	doc, err := document.Open(second.Output)
	require.NoError(t, err)
	pageDict, err := doc.PageDict(0)
	require.NoError(t, err)
	contents, ok := mustFind(t, pageDict, "Contents").(types.Array)
	require.True(t, ok)
	assert.Len(t, contents, 5)
}

func TestStamp_DropsCoveredWidgets(t *testing.T) {
	b := pdftest.New()
	b.AddPage(pdftest.A4Width, pdftest.A4Height, "")
	b.AddField(pdftest.Field{Name: "name", FT: "Tx", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{50, 700, 250, 720}}}})
	b.AddField(pdftest.Field{Name: "remarks", FT: "Tx", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{50, 600, 250, 620}}}})
	tmpl := b.Bytes()

	fields := []extraction.DetectedField{
		textField("name", 50, 700, 200, 20),
		textField("remarks", 50, 600, 200, 20),
	}
	res, err := NewEngine(nil).Stamp(tmpl, fields, []mapping.ValueRecord{{"name": "Kim"}}, nil)
	require.NoError(t, err)

	doc, err := document.Open(res.Output)
	require.NoError(t, err)
	pageDict, err := doc.PageDict(0)
	require.NoError(t, err)
	annots, err := doc.Ctx.DereferenceArray(mustFind(t, pageDict, "Annots"))
	require.NoError(t, err)
	require.Len(t, annots, 1, "the stamped widget leaves the page")
	remaining, err := doc.Ctx.DereferenceDict(annots[0])
	require.NoError(t, err)
	title := remaining.StringEntry("T")
	require.NotNil(t, title)
	assert.Equal(t, "remarks", *title)

	res, err = NewEngine(nil).Stamp(tmpl, fields, []mapping.ValueRecord{{"name": "Kim", "remarks": "ok"}}, nil)
	require.NoError(t, err)
	doc, err = document.Open(res.Output)
	require.NoError(t, err)
	pageDict, err = doc.PageDict(0)
	require.NoError(t, err)
	_, found := pageDict.Find("Annots")
	assert.False(t, found, "no widgets remain once every field is stamped")

	outlined, err := NewEngine(nil).Outline(tmpl, fields)
	require.NoError(t, err)
	doc, err = document.Open(outlined.Output)
	require.NoError(t, err)
	pageDict, err = doc.PageDict(0)
	require.NoError(t, err)
	annots, err = doc.Ctx.DereferenceArray(mustFind(t, pageDict, "Annots"))
	require.NoError(t, err)
	assert.Len(t, annots, 2, "outlines keep every widget")
}

func TestOutline(t *testing.T) {
	tmpl := template(t)
	fields := []extraction.DetectedField{
		textField("name", 50, 700, 200, 20),
		{Name: "sig", Kind: extraction.KindSignature, Geometry: geometry.Rect{X: 50, Y: 100, Width: 200, Height: 40, Page: 1}},
	}

	res, err := NewEngine(nil).Outline(tmpl, fields)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, res.Pages)

	update := appended(t, tmpl, res)
	assert.Contains(t, update, "50 700 200 20 re S")
	assert.Contains(t, update, "(name) Tj")
	assert.Contains(t, update, "(sig) Tj")

	_, err = NewEngine(nil).Outline(tmpl, []extraction.DetectedField{textField("wide", 500, 700, 200, 20)})
	assert.Equal(t, pdferrors.ErrorTypeGeometryOutOfBounds, pdferrors.TypeOf(err))
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"true", "YES", "y", "On", "1", "x", "X", "checked", " yes "} {
		assert.True(t, Truthy(v), v)
	}
	for _, v := range []string{"", "no", "false", "0", "off", "maybe"} {
		assert.False(t, Truthy(v), v)
	}
}
