package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/pdftest"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultOptions())
	require.NoError(t, err)
	return d
}

func fieldsByName(fields []DetectedField) map[string]DetectedField {
	out := make(map[string]DetectedField, len(fields))
	for _, f := range fields {
		out[f.Name] = f
	}
	return out
}

func TestDetector_Widgets(t *testing.T) {
	b := pdftest.New()
	b.AddPage(pdftest.A4Width, pdftest.A4Height, "")
	b.AddPage(pdftest.A4Width, pdftest.A4Height, "")
	b.AddField(pdftest.Field{Name: "worker", FT: "Tx", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{60, 700, 300, 724}}}})
	b.AddField(pdftest.Field{Name: "remarks", FT: "Tx", Ff: 4096, Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{60, 500, 500, 600}}}})
	b.AddField(pdftest.Field{Name: "helmet", FT: "Btn", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{60, 450, 72, 462}}}})
	b.AddField(pdftest.Field{Name: "ppe", FT: "Btn", Ff: 32768, Widgets: []pdftest.Widget{
		{Page: 0, Rect: [4]float64{100, 450, 112, 462}},
		{Page: 0, Rect: [4]float64{140, 450, 152, 462}},
	}})
	b.AddField(pdftest.Field{Name: "inspected", FT: "Tx", DateFormat: "yyyy-mm-dd", Widgets: []pdftest.Widget{{Page: 1, Rect: [4]float64{60, 700, 200, 720}}}})
	b.AddField(pdftest.Field{Name: "start_date", FT: "Tx", Widgets: []pdftest.Widget{{Page: 1, Rect: [4]float64{300, 700, 400, 720}}}})
	b.AddField(pdftest.Field{Name: "supervisor_sig", FT: "Sig", Widgets: []pdftest.Widget{{Page: 1, Rect: [4]float64{60, 100, 260, 140}}}})
	b.AddField(pdftest.Field{Name: "trade", FT: "Ch", Widgets: []pdftest.Widget{{Page: 1, Rect: [4]float64{60, 300, 200, 320}}}})
	b.AddField(pdftest.Field{Name: "reset", FT: "Btn", Ff: 65536, Widgets: []pdftest.Widget{{Page: 1, Rect: [4]float64{60, 50, 120, 70}}}})

	result, err := newTestDetector(t).Detect(b.Bytes())
	require.NoError(t, err)

	assert.Equal(t, SourceWidgets, result.Source)
	require.Len(t, result.Pages, 2)

	names := make([]string, len(result.Fields))
	for i, f := range result.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"worker", "remarks", "helmet", "ppe.1", "ppe.2", "inspected", "start_date", "supervisor_sig"}, names)

	byName := fieldsByName(result.Fields)

	worker := byName["worker"]
	assert.Equal(t, KindText, worker.Kind)
	assert.False(t, worker.Multiline)
	assert.Equal(t, 0, worker.Geometry.Page)
	assert.InDelta(t, 60, worker.Geometry.X, 1e-9)
	assert.InDelta(t, 700, worker.Geometry.Y, 1e-9)
	assert.InDelta(t, 240, worker.Geometry.Width, 1e-9)
	assert.InDelta(t, 24, worker.Geometry.Height, 1e-9)
	require.NotNil(t, worker.Confidence)
	assert.Equal(t, 1.0, *worker.Confidence)

	assert.True(t, byName["remarks"].Multiline)
	assert.Equal(t, KindCheckbox, byName["helmet"].Kind)
	assert.Equal(t, KindRadio, byName["ppe.1"].Kind)
	assert.Equal(t, KindRadio, byName["ppe.2"].Kind)
	assert.Equal(t, KindDate, byName["inspected"].Kind)
	assert.Equal(t, 1, byName["inspected"].Geometry.Page)
	assert.Equal(t, KindDate, byName["start_date"].Kind)
	assert.Equal(t, KindSignature, byName["supervisor_sig"].Kind)

	assert.Len(t, result.Warnings, 2)
	assert.Empty(t, result.Conflicts)
}

func TestDetector_WidgetOutOfBoundsIsSkipped(t *testing.T) {
	b := pdftest.New()
	b.AddPage(pdftest.A4Width, pdftest.A4Height, "")
	b.AddField(pdftest.Field{Name: "inside", FT: "Tx", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{60, 700, 200, 720}}}})
	b.AddField(pdftest.Field{Name: "outside", FT: "Tx", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{500, 700, 700, 720}}}})

	result, err := newTestDetector(t).Detect(b.Bytes())
	require.NoError(t, err)

	require.Len(t, result.Fields, 1)
	assert.Equal(t, "inside", result.Fields[0].Name)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "outside")
}

func TestDetector_WidgetConflictsAreReported(t *testing.T) {
	b := pdftest.New()
	b.AddPage(pdftest.A4Width, pdftest.A4Height, "")
	b.AddField(pdftest.Field{Name: "a", FT: "Tx", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{60, 700, 200, 720}}}})
	b.AddField(pdftest.Field{Name: "b", FT: "Tx", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{150, 710, 300, 730}}}})

	result, err := newTestDetector(t).Detect(b.Bytes())
	require.NoError(t, err)

	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, Conflict{First: "b", Second: "a", Page: 0}, result.Conflicts[0])
}

func TestDetector_Deterministic(t *testing.T) {
	widgets := pdftest.New()
	widgets.AddPage(pdftest.A4Width, pdftest.A4Height, "")
	widgets.AddField(pdftest.Field{Name: "a", FT: "Tx", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{60, 700, 200, 720}}}})
	widgets.AddField(pdftest.Field{Name: "b", FT: "Tx", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{150, 710, 300, 730}}}})
	widgets.AddField(pdftest.Field{Name: "helmet", FT: "Btn", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{60, 450, 72, 462}}}})
	widgets.AddField(pdftest.Field{Name: "trade", FT: "Ch", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{60, 300, 200, 320}}}})

	layout := pdftest.New()
	layout.AddPage(pdftest.A4Width, pdftest.A4Height,
		pdftest.Text(50, 760, 12, "Worker name: ____________")+
			pdftest.Text(300, 760, 12, "Date: __________")+
			pdftest.Text(50, 730, 12, "Worker name: ____________")+
			pdftest.Box(50, 600, 10, 10)+
			pdftest.Text(65, 602, 12, "I agree")+
			pdftest.Text(50, 400, 12, "Supervisor:")+
			pdftest.Rule(140, 398, 150))

	tests := []struct {
		name   string
		data   []byte
		source Source
	}{
		{name: "widgets", data: widgets.Bytes(), source: SourceWidgets},
		{name: "layout", data: layout.Bytes(), source: SourceLayout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := newTestDetector(t).Detect(tt.data)
			require.NoError(t, err)
			require.Equal(t, tt.source, first.Source)
			require.NotEmpty(t, first.Fields)

			for i := 0; i < 3; i++ {
				again, err := newTestDetector(t).Detect(tt.data)
				require.NoError(t, err)
				assert.Equal(t, first.Fields, again.Fields)
				assert.Equal(t, first.Conflicts, again.Conflicts)
				assert.Equal(t, first.Warnings, again.Warnings)
				assert.Equal(t, first.Pages, again.Pages)
			}
		})
	}
}

func TestDetector_XRefStreamTemplate(t *testing.T) {
	b := pdftest.New().WithXRefStream()
	b.AddPage(pdftest.A4Width, pdftest.A4Height, "")
	b.AddField(pdftest.Field{Name: "worker", FT: "Tx", Widgets: []pdftest.Widget{{Page: 0, Rect: [4]float64{60, 700, 300, 724}}}})

	result, err := newTestDetector(t).Detect(b.Bytes())
	require.NoError(t, err)
	require.Len(t, result.Fields, 1)
	assert.Equal(t, "worker", result.Fields[0].Name)
}

func TestDetector_LayoutUnderscoreBlank(t *testing.T) {
	b := pdftest.New()
	b.AddPage(pdftest.A4Width, pdftest.A4Height, pdftest.Text(50, 700, 12, "Name: ____________"))

	result, err := newTestDetector(t).Detect(b.Bytes())
	require.NoError(t, err)

	assert.Equal(t, SourceLayout, result.Source)
	require.Len(t, result.Fields, 1)

	f := result.Fields[0]
	cw := 12 * pdftest.CharWidth
	assert.Equal(t, "name", f.Name)
	assert.Equal(t, "Name", f.Label)
	assert.Equal(t, KindText, f.Kind)
	assert.InDelta(t, 50+6*cw, f.Geometry.X, 0.01)
	assert.InDelta(t, 700-0.25*12, f.Geometry.Y, 0.01)
	assert.InDelta(t, 12*cw, f.Geometry.Width, 0.01)
	assert.InDelta(t, 15, f.Geometry.Height, 0.01)
	require.NotNil(t, f.Confidence)
	assert.InDelta(t, 0.964, *f.Confidence, 0.002)
}

func TestDetector_LayoutKindsAndNames(t *testing.T) {
	content := pdftest.Text(50, 760, 12, "Worker name: ____________") +
		pdftest.Text(50, 730, 12, "Date: __________") +
		pdftest.Text(50, 700, 12, "Signature: ____________") +
		pdftest.Text(50, 670, 12, "Worker name: ____________") +
		pdftest.Box(50, 600, 10, 10) +
		pdftest.Text(65, 602, 12, "I agree") +
		pdftest.Text(50, 400, 12, "Supervisor:") +
		pdftest.Rule(140, 398, 150)

	b := pdftest.New()
	b.AddPage(pdftest.A4Width, pdftest.A4Height, content)

	result, err := newTestDetector(t).Detect(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, SourceLayout, result.Source)

	names := make([]string, len(result.Fields))
	for i, f := range result.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"worker_name", "date", "signature", "worker_name_2", "i_agree", "supervisor"}, names)

	byName := fieldsByName(result.Fields)
	assert.Equal(t, KindDate, byName["date"].Kind)
	assert.Equal(t, KindSignature, byName["signature"].Kind)
	assert.Equal(t, KindCheckbox, byName["i_agree"].Kind)
	assert.InDelta(t, 50, byName["i_agree"].Geometry.X, 0.01)
	assert.InDelta(t, 600, byName["i_agree"].Geometry.Y, 0.01)

	supervisor := byName["supervisor"]
	assert.Equal(t, KindText, supervisor.Kind)
	assert.InDelta(t, 140, supervisor.Geometry.X, 0.01)
	assert.InDelta(t, 398.5, supervisor.Geometry.Y, 0.01)

	for _, f := range result.Fields {
		require.NotNil(t, f.Confidence, f.Name)
		assert.GreaterOrEqual(t, *f.Confidence, DefaultConfidenceFloor, f.Name)
	}
	assert.Empty(t, result.Conflicts)
}

func TestDetector_ConfidenceFloor(t *testing.T) {
	cw := 12 * pdftest.CharWidth
	content := pdftest.Text(50, 500, 12, "Remarks") +
		pdftest.Text(50+7*cw+110, 500, 12, "__________")

	b := pdftest.New()
	b.AddPage(pdftest.A4Width, pdftest.A4Height, content)
	data := b.Bytes()

	result, err := newTestDetector(t).Detect(data)
	require.NoError(t, err)
	assert.Empty(t, result.Fields)
	assert.Equal(t, SourceNone, result.Source)

	lenient, err := NewDetector(Options{ConfidenceFloor: 0.3})
	require.NoError(t, err)
	result, err = lenient.Detect(data)
	require.NoError(t, err)
	require.Len(t, result.Fields, 1)
	assert.Equal(t, "remarks", result.Fields[0].Name)
	assert.Less(t, *result.Fields[0].Confidence, DefaultConfidenceFloor)
}

func TestDetector_BlankPage(t *testing.T) {
	result, err := newTestDetector(t).Detect(pdftest.Blank())
	require.NoError(t, err)

	assert.Empty(t, result.Fields)
	assert.NotNil(t, result.Fields)
	assert.Equal(t, SourceNone, result.Source)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, pdftest.A4Height, result.Pages[0].Height)
}

func TestDetector_EmptyAcroFormFallsBackToLayout(t *testing.T) {
	b := pdftest.New().WithEmptyAcroForm()
	b.AddPage(pdftest.A4Width, pdftest.A4Height, pdftest.Text(50, 700, 12, "Site: __________"))

	result, err := newTestDetector(t).Detect(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, SourceLayout, result.Source)
	require.Len(t, result.Fields, 1)
	assert.Equal(t, "site", result.Fields[0].Name)
}

func TestDetector_Unreadable(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "not a pdf", data: []byte("hello world")},
		{name: "truncated", data: pdftest.Blank()[:40]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestDetector(t).Detect(tt.data)
			require.Error(t, err)
			assert.Equal(t, pdferrors.ErrorTypeUnreadableDocument, pdferrors.TypeOf(err))
		})
	}
}

func TestNewDetector_InvalidFloor(t *testing.T) {
	_, err := NewDetector(Options{ConfidenceFloor: 1.5})
	require.Error(t, err)
	assert.Equal(t, pdferrors.ErrorTypeInvalidRequest, pdferrors.TypeOf(err))
}
