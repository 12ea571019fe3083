// Package extraction finds fillable fields in PDF templates, either from the
// AcroForm widget annotations or, when a template has none, from the printed
// layout of labels and blanks.
package extraction

import (
	"io"
	"log"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/document"
	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
)

// Default detection settings
const (
	DefaultConfidenceFloor = 0.5
	DefaultMaxLabelGap     = 120.0
)

// Options tune the detector
type Options struct {
	ConfidenceFloor float64     // layout results scoring below are dropped
	MaxLabelGap     float64     // farthest a label may sit from its blank, in points
	Logger          *log.Logger // nil discards debug output
}

// DefaultOptions returns the standard detector settings
func DefaultOptions() Options {
	return Options{
		ConfidenceFloor: DefaultConfidenceFloor,
		MaxLabelGap:     DefaultMaxLabelGap,
	}
}

// Detector discovers the fields of a template
type Detector struct {
	opts   Options
	logger *log.Logger
}

// NewDetector validates opts and creates a detector
func NewDetector(opts Options) (*Detector, error) {
	if opts.ConfidenceFloor < 0 || opts.ConfidenceFloor > 1 {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest,
			"confidence floor must be within [0, 1], got %v", opts.ConfidenceFloor)
	}
	if opts.MaxLabelGap <= 0 {
		opts.MaxLabelGap = DefaultMaxLabelGap
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Detector{opts: opts, logger: logger}, nil
}

// Detect parses data and returns its fields
func (d *Detector) Detect(data []byte) (*DetectionResult, error) {
	doc, err := document.Open(data)
	if err != nil {
		return nil, err
	}
	return d.DetectDocument(doc)
}

// DetectDocument returns the fields of an opened document. Widget fields take
// precedence; the layout heuristic only runs when the template has none.
// Results are named uniquely and sorted in reading order.
func (d *Detector) DetectDocument(doc *document.Document) (*DetectionResult, error) {
	warnings := &pdferrors.Warnings{}
	for i := range doc.Pages {
		if r := doc.Rotation(i); r != 0 {
			warnings.Addf("page %d is rotated by %d degrees; geometry is reported unrotated", i+1, r)
		}
	}

	result := &DetectionResult{Pages: doc.Pages, Source: SourceNone}

	widgets, err := newWidgetReader(doc, warnings).read()
	if err != nil {
		warnings.Addf("form fields could not be read: %v", err)
	}

	var fields []DetectedField
	if len(widgets) > 0 {
		fields = MergeByName(widgets)
		result.Source = SourceWidgets
		d.logger.Printf("Detected %d widget fields", len(fields))
	} else {
		fields = d.detectLayout(doc, warnings)
		if len(fields) > 0 {
			result.Source = SourceLayout
		}
		d.logger.Printf("Detected %d layout fields", len(fields))
	}

	SortReadingOrder(fields)
	if result.Source == SourceLayout {
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = f.Name
		}
		for i, name := range Uniquify(names) {
			fields[i].Name = name
		}
	}

	if fields == nil {
		fields = []DetectedField{}
	}
	result.Fields = fields
	result.Conflicts = FindConflicts(fields)
	result.Warnings = warnings.List()
	return result, nil
}

func (d *Detector) detectLayout(doc *document.Document, warnings *pdferrors.Warnings) []DetectedField {
	analyzer := &layoutAnalyzer{floor: d.opts.ConfidenceFloor, maxLabelGap: d.opts.MaxLabelGap}

	var fields []DetectedField
	for i := range doc.Pages {
		content, err := doc.Content(i)
		if err != nil {
			warnings.Addf("page %d text could not be read: %v", i+1, err)
			continue
		}
		found := analyzer.analyzePage(content)
		d.logger.Printf("Page %d: %d glyphs, %d rects, %d fields", i+1, len(content.Glyphs), len(content.Rects), len(found))
		fields = append(fields, found...)
	}
	return fields
}
