package document

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ledongthuc/pdf"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
)

// Glyph is a single positioned character. X/Y are relative to the page origin;
// Y is the text baseline.
type Glyph struct {
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	FontSize float64 `json:"font_size"`
	Font     string  `json:"font,omitempty"`
}

// PageContent is the positioned content of one page
type PageContent struct {
	Page   geometry.Page
	Glyphs []Glyph
	Rects  []geometry.Rect // rectangles drawn with the re operator
}

// Content interprets the content stream of a page (0-based index).
// Glyphs are returned in reading order: top to bottom, then left to right.
func (d *Document) Content(index int) (content *PageContent, err error) {
	page, ok := d.Page(index)
	if !ok {
		return nil, fmt.Errorf("page %d does not exist", index)
	}

	// The reader panics on malformed objects and operators.
	defer func() {
		if r := recover(); r != nil {
			content = nil
			err = fmt.Errorf("content stream of page %d is malformed: %v", index+1, r)
		}
	}()

	reader, err := d.textReader()
	if err != nil {
		return nil, err
	}
	if index+1 > reader.NumPage() {
		return nil, fmt.Errorf("content reader sees %d pages, wanted page %d", reader.NumPage(), index+1)
	}

	p := reader.Page(index + 1)
	if p.V.IsNull() {
		return &PageContent{Page: page}, nil
	}

	raw := p.Content()
	content = &PageContent{Page: page}

	for _, t := range raw.Text {
		if t.S == "" {
			continue
		}
		content.Glyphs = append(content.Glyphs, Glyph{
			Text:     t.S,
			X:        t.X - page.OriginX,
			Y:        t.Y - page.OriginY,
			Width:    t.W,
			FontSize: t.FontSize,
			Font:     t.Font,
		})
	}

	for _, r := range raw.Rect {
		minX, maxX := r.Min.X, r.Max.X
		minY, maxY := r.Min.Y, r.Max.Y
		if minX > maxX {
			minX, maxX = maxX, minX
		}
		if minY > maxY {
			minY, maxY = maxY, minY
		}
		content.Rects = append(content.Rects, geometry.Rect{
			X:      minX - page.OriginX,
			Y:      minY - page.OriginY,
			Width:  maxX - minX,
			Height: maxY - minY,
			Page:   index,
		})
	}

	sort.SliceStable(content.Glyphs, func(i, j int) bool {
		gi, gj := content.Glyphs[i], content.Glyphs[j]
		if gi.Y != gj.Y {
			return gi.Y > gj.Y
		}
		return gi.X < gj.X
	})
	sort.SliceStable(content.Rects, func(i, j int) bool {
		ri, rj := content.Rects[i], content.Rects[j]
		if ri.Top() != rj.Top() {
			return ri.Top() > rj.Top()
		}
		return ri.X < rj.X
	})

	return content, nil
}

// textReader opens the content reader once per document. A failure is
// remembered so later pages report it without parsing again.
func (d *Document) textReader() (r *pdf.Reader, err error) {
	if d.text != nil || d.textErr != nil {
		return d.text, d.textErr
	}
	defer func() {
		if rec := recover(); rec != nil {
			d.textErr = fmt.Errorf("failed to open content reader: %v", rec)
			r, err = nil, d.textErr
		}
	}()

	d.text, err = pdf.NewReader(bytes.NewReader(d.data), int64(len(d.data)))
	if err != nil {
		d.textErr = fmt.Errorf("failed to open content reader: %w", err)
		d.text = nil
	}
	return d.text, d.textErr
}
