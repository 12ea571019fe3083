// Package stamp writes values into a PDF template at exact field positions.
// The template bytes are never changed: the output is the template followed by
// an incremental update that adds the stamped content.
package stamp

import (
	"io"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/document"
	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/mapping"
)

// FlagKind names a rendering compromise
type FlagKind string

const (
	FlagTruncated   FlagKind = "truncated"
	FlagWrapped     FlagKind = "wrapped"
	FlagUnencodable FlagKind = "unencodable"
)

// Flag reports that a value was not drawn exactly as given
type Flag struct {
	Field string   `json:"field"`
	Row   int      `json:"row"`
	Kind  FlagKind `json:"kind"`
}

// Result is the output of a stamping run
type Result struct {
	Output []byte `json:"-"`
	Flags  []Flag `json:"flags,omitempty"`
	Rows   int    `json:"rows"`
	Pages  []int  `json:"pages"` // 0-based indexes of the pages that received content
}

// Engine stamps values into templates. It keeps no state between calls.
type Engine struct {
	logger *log.Logger
}

// NewEngine creates an engine. A nil logger discards debug output.
func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{logger: logger}
}

// draw is one value placed at one computed position
type draw struct {
	field extraction.DetectedField
	rect  geometry.Rect
	value string
	row   int
}

// Stamp draws records into template. A single record fills the fields at their
// own geometry; several records need a row rule. Every reference and every
// computed position is checked before any output is produced.
func (e *Engine) Stamp(template []byte, fields []extraction.DetectedField, records []mapping.ValueRecord, rule *RowRule) (*Result, error) {
	if len(records) == 0 {
		return nil, pdferrors.New(pdferrors.ErrorTypeInvalidRequest, "at least one value record is required")
	}

	doc, err := openForStamping(template)
	if err != nil {
		return nil, err
	}

	if err := extraction.ValidateFields(fields, doc.Pages); err != nil {
		return nil, err
	}

	draws, err := plan(fields, records, rule, doc.Pages)
	if err != nil {
		return nil, err
	}

	result := &Result{Rows: len(records)}
	w := newIncrementalWriter(doc)
	canvases, err := e.canvases(w, doc, pagesOf(draws))
	if err != nil {
		return nil, err
	}

	for _, d := range draws {
		flags, err := render(canvases[d.rect.Page], d)
		if err != nil {
			return nil, err
		}
		result.Flags = append(result.Flags, flags...)
		if c, ok := canvases[d.field.Geometry.Page]; ok && d.value != "" {
			c.cover(d.field.Geometry)
		}
	}

	output, pages, err := finish(w, canvases)
	if err != nil {
		return nil, err
	}
	result.Output = output
	result.Pages = pages

	e.logger.Printf("Stamped %d records (%d values) onto %d pages, %d flags",
		len(records), len(draws), len(pages), len(result.Flags))
	return result, nil
}

// Outline draws every field as a thin box labelled with its name. No values
// are stamped; overlapping fields are drawn as they are.
func (e *Engine) Outline(template []byte, fields []extraction.DetectedField) (*Result, error) {
	doc, err := openForStamping(template)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if err := geometry.ValidateRect(f.Geometry, doc.Pages); err != nil {
			if pe, ok := err.(*pdferrors.PDFError); ok {
				return nil, pe.WithField(f.Name)
			}
			return nil, err
		}
	}

	pageSet := make([]int, 0, len(fields))
	for _, f := range fields {
		pageSet = append(pageSet, f.Geometry.Page)
	}

	w := newIncrementalWriter(doc)
	canvases, err := e.canvases(w, doc, uniqueSorted(pageSet))
	if err != nil {
		return nil, err
	}

	for _, f := range fields {
		c := canvases[f.Geometry.Page]
		r := f.Geometry
		c.strokeRect(r, 0.5, 0.5)
		name, _ := winAnsi(singleLine(f.Name))
		size := minFontSize
		c.clip(r, func() {
			c.text(fontText, size, r.X+1, r.Top()-float64(size)-0.5, name)
		})
	}

	output, pages, err := finish(w, canvases)
	if err != nil {
		return nil, err
	}
	e.logger.Printf("Outlined %d fields on %d pages", len(fields), len(pages))
	return &Result{Output: output, Pages: pages}, nil
}

func openForStamping(template []byte) (*document.Document, error) {
	doc, err := document.Open(template)
	if err != nil {
		return nil, err
	}
	if doc.Encrypted() {
		return nil, pdferrors.New(pdferrors.ErrorTypeUnreadableDocument, "encrypted templates cannot be stamped").
			WithContext("encrypted")
	}
	return doc, nil
}

func (e *Engine) canvases(w *incrementalWriter, doc *document.Document, pages []int) (map[int]*canvas, error) {
	canvases := make(map[int]*canvas, len(pages))
	for _, idx := range pages {
		page, _ := doc.Page(idx)
		fonts, err := w.newPageFonts(idx)
		if err != nil {
			return nil, pdferrors.Wrap(pdferrors.ErrorTypeUnreadableDocument, "failed to read page resources", err).WithPage(idx)
		}
		if r := doc.Rotation(idx); r != 0 {
			e.logger.Printf("Page %d is rotated by %d degrees; values are drawn in unrotated page space", idx+1, r)
		}
		canvases[idx] = newCanvas(page, fonts)
	}
	return canvases, nil
}

func finish(w *incrementalWriter, canvases map[int]*canvas) ([]byte, []int, error) {
	pages := make([]int, 0, len(canvases))
	for idx, c := range canvases {
		if !c.empty() {
			pages = append(pages, idx)
		}
	}
	sort.Ints(pages)

	for _, idx := range pages {
		c := canvases[idx]
		if err := w.stampPage(idx, c); err != nil {
			return nil, nil, pdferrors.Wrap(pdferrors.ErrorTypeUnreadableDocument, "failed to update page", err).WithPage(idx)
		}
	}

	output, err := w.write()
	if err != nil {
		return nil, nil, pdferrors.Wrap(pdferrors.ErrorTypeUnreadableDocument, "failed to append update", err)
	}
	return output, pages, nil
}

// plan validates the records against the fields and computes every position
func plan(fields []extraction.DetectedField, records []mapping.ValueRecord, rule *RowRule, pages []geometry.Page) ([]draw, error) {
	byName := make(map[string]extraction.DetectedField, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	for row, rec := range records {
		names := make([]string, 0, len(rec))
		for name := range rec {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, ok := byName[name]; !ok {
				return nil, pdferrors.Newf(pdferrors.ErrorTypeInvalidFieldReference,
					"record %d names unknown field %q", row, name).WithField(name).WithRow(row)
			}
		}
	}

	if len(records) > 1 && rule == nil {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeInvalidRowRule,
			"%d records need a row rule", len(records))
	}
	if rule != nil {
		if err := rule.Validate(len(records)); err != nil {
			return nil, err
		}
		for _, name := range rule.Static {
			if _, ok := byName[name]; !ok {
				return nil, pdferrors.Newf(pdferrors.ErrorTypeInvalidFieldReference,
					"row rule names unknown static field %q", name).WithField(name)
			}
		}
	}

	var draws []draw
	var slots []slot
	for row, rec := range records {
		for _, f := range fields {
			static := rule.IsStatic(f.Name)
			if static && row > 0 {
				continue
			}

			rect := f.Geometry
			if !static {
				rect = f.Geometry.Offset(rule.Offset(row))
				if err := geometry.ValidateRect(rect, pages); err != nil {
					if pe, ok := err.(*pdferrors.PDFError); ok {
						return nil, pe.WithField(f.Name).WithRow(row)
					}
					return nil, err
				}
			}
			slots = append(slots, slot{name: f.Name, row: row, rect: rect})

			value, ok := rec[f.Name]
			if !ok || value == "" {
				continue
			}
			draws = append(draws, draw{field: f, rect: rect, value: value, row: row})
		}
	}
	if err := checkSlots(slots); err != nil {
		return nil, err
	}
	return draws, nil
}

// slot is the area one field occupies in one row, stamped or left empty
type slot struct {
	name string
	row  int
	rect geometry.Rect
}

// checkSlots rejects any two slots sharing an area. Rows of one field that
// collide are a bad row rule; anything else is an overlap between fields.
func checkSlots(slots []slot) error {
	for i := 0; i < len(slots); i++ {
		for j := i + 1; j < len(slots); j++ {
			a, b := slots[i], slots[j]
			if !a.rect.Overlaps(b.rect) {
				continue
			}
			if a.name == b.name {
				return pdferrors.Newf(pdferrors.ErrorTypeInvalidRowRule,
					"rows %d and %d of field %q overlap", a.row, b.row, a.name).WithField(a.name).WithRow(b.row)
			}
			return pdferrors.Newf(pdferrors.ErrorTypeOverlappingFields,
				"field %q in row %d overlaps field %q in row %d on page %d",
				b.name, b.row, a.name, a.row, b.rect.Page).WithField(b.name).WithRow(b.row)
		}
	}
	return nil
}

func pagesOf(draws []draw) []int {
	pages := make([]int, 0, len(draws))
	for _, d := range draws {
		pages = append(pages, d.rect.Page)
	}
	return uniqueSorted(pages)
}

func uniqueSorted(in []int) []int {
	sort.Ints(in)
	out := in[:0]
	for i, v := range in {
		if i == 0 || v != in[i-1] {
			out = append(out, v)
		}
	}
	return out
}

var truthy = map[string]bool{
	"true": true, "yes": true, "y": true, "on": true, "1": true, "x": true, "checked": true,
}

// Truthy reports whether a checkbox or radio value means "selected"
func Truthy(value string) bool {
	return truthy[strings.ToLower(strings.TrimSpace(value))]
}

// render draws one value and returns the compromises made
func render(c *canvas, d draw) ([]Flag, error) {
	flag := func(kind FlagKind) Flag {
		return Flag{Field: d.field.Name, Row: d.row, Kind: kind}
	}
	r := d.rect

	switch d.field.Kind {
	case extraction.KindCheckbox, extraction.KindRadio:
		if !Truthy(d.value) {
			return nil, nil
		}
		mark := []byte("4")
		if d.field.Kind == extraction.KindRadio {
			mark = []byte("l")
		}
		size := fontSizeFor(math.Min(r.Width, r.Height))
		markWidth := textWidth(mark, fontSymbols, size)
		x := r.X + (r.Width-markWidth)/2
		y := r.Y + (r.Height-capHeight*float64(size))/2
		c.text(fontSymbols, size, x, y, mark)
		return nil, nil

	case extraction.KindText, extraction.KindDate, extraction.KindSignature:
		fontName := fontText
		if d.field.Kind == extraction.KindSignature {
			fontName = fontSignature
		}
		if d.field.Kind == extraction.KindText && d.field.Multiline {
			return renderMultiline(c, d, flag)
		}

		var flags []Flag
		enc, lossy := winAnsi(singleLine(d.value))
		if lossy {
			flags = append(flags, flag(FlagUnencodable))
		}
		size := fontSizeFor(r.Height)
		maxWidth := r.Width - 2*padding

		fitted, truncated := truncate(enc, fontName, size, maxWidth)
		if truncated {
			if d.field.Kind == extraction.KindDate {
				return nil, pdferrors.Newf(pdferrors.ErrorTypeFieldOverflow,
					"date %q is wider than field %q", d.value, d.field.Name).WithField(d.field.Name).WithRow(d.row)
			}
			flags = append(flags, flag(FlagTruncated))
		}

		y := r.Y + (r.Height-capHeight*float64(size))/2
		c.clip(r, func() {
			c.text(fontName, size, r.X+padding, y, fitted)
		})
		return flags, nil
	}

	return nil, pdferrors.Newf(pdferrors.ErrorTypeUnsupportedKind,
		"field %q has unsupported kind %q", d.field.Name, d.field.Kind).WithField(d.field.Name)
}

func renderMultiline(c *canvas, d draw, flag func(FlagKind) Flag) ([]Flag, error) {
	r := d.rect
	var flags []Flag

	enc, lossy := winAnsi(d.value)
	if lossy {
		flags = append(flags, flag(FlagUnencodable))
	}

	size := fontSizeFor(r.Height)
	leading := lineSpacing * float64(size)
	maxLines := int(math.Floor((r.Height - 2*padding) / leading))
	if maxLines < 1 {
		maxLines = 1
	}

	lines, wrapped := wrap(enc, fontText, size, r.Width-2*padding)
	if wrapped {
		flags = append(flags, flag(FlagWrapped))
	}
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		flags = append(flags, flag(FlagTruncated))
	}

	first := r.Top() - padding - (1-descent)*float64(size)
	c.clip(r, func() {
		for i, line := range lines {
			if len(line) == 0 {
				continue
			}
			c.text(fontText, size, r.X+padding, first-float64(i)*leading, line)
		}
	})
	return flags, nil
}
