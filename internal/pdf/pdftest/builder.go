// Package pdftest assembles small, valid PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Widget is one visual occurrence of a form field
type Widget struct {
	Page int        // 0-based
	Rect [4]float64 // llx lly urx ury
}

// Field is an AcroForm field. A single widget is merged into the field dictionary;
// several widgets become unnamed kids of the field.
type Field struct {
	Name       string
	FT         string // Tx, Btn, Ch, Sig
	Ff         int
	DateFormat string // adds an AFDate_FormatEx keystroke action when set
	Widgets    []Widget
}

type page struct {
	width, height float64
	content       string
}

// Builder collects pages and fields and renders them as a PDF
type Builder struct {
	pages      []page
	fields     []Field
	xrefStream bool
	emptyForm  bool
}

// New creates an empty builder
func New() *Builder {
	return &Builder{}
}

// AddPage appends a page and returns its 0-based index
func (b *Builder) AddPage(width, height float64, content string) int {
	b.pages = append(b.pages, page{width: width, height: height, content: content})
	return len(b.pages) - 1
}

// AddField registers an AcroForm field
func (b *Builder) AddField(f Field) *Builder {
	b.fields = append(b.fields, f)
	return b
}

// WithXRefStream writes a cross-reference stream instead of a classic table
func (b *Builder) WithXRefStream() *Builder {
	b.xrefStream = true
	return b
}

// WithEmptyAcroForm adds an AcroForm dictionary even when there are no fields
func (b *Builder) WithEmptyAcroForm() *Builder {
	b.emptyForm = true
	return b
}

// Text draws s with the built-in monospaced font at baseline (x, y)
func Text(x, y, size float64, s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return fmt.Sprintf("BT /F1 %g Tf %g %g Td (%s) Tj ET\n", size, x, y, r.Replace(s))
}

// Box strokes a rectangle
func Box(x, y, w, h float64) string {
	return fmt.Sprintf("%g %g %g %g re S\n", x, y, w, h)
}

// Rule fills a thin horizontal line, the way printed forms draw blanks
func Rule(x, y, w float64) string {
	return fmt.Sprintf("%g %g %g 0.5 re f\n", x, y, w)
}

// CharWidth is the advance of every glyph of the built-in font at size 1
const CharWidth = 0.6

type object struct {
	num  int
	body string
}

// Bytes renders the document
func (b *Builder) Bytes() []byte {
	const (
		catalogNr = 1
		pagesNr   = 2
		fontNr    = 3
		firstPage = 4
	)

	pageNr := func(i int) int { return firstPage + 2*i }
	contentNr := func(i int) int { return firstPage + 2*i + 1 }

	next := firstPage + 2*len(b.pages)

	// Allocate field and widget objects.
	type widgetObj struct {
		num   int
		field int
		w     Widget
	}
	fieldNrs := make([]int, len(b.fields))
	var widgets []widgetObj
	for i, f := range b.fields {
		fieldNrs[i] = next
		next++
		if len(f.Widgets) == 1 {
			widgets = append(widgets, widgetObj{num: fieldNrs[i], field: i, w: f.Widgets[0]})
			continue
		}
		for _, w := range f.Widgets {
			widgets = append(widgets, widgetObj{num: next, field: i, w: w})
			next++
		}
	}

	acroFormNr := 0
	if len(b.fields) > 0 || b.emptyForm {
		acroFormNr = next
		next++
	}

	var objects []object

	catalog := fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R", pagesNr)
	if acroFormNr > 0 {
		catalog += fmt.Sprintf(" /AcroForm %d 0 R", acroFormNr)
	}
	objects = append(objects, object{catalogNr, catalog + " >>"})

	kids := make([]string, len(b.pages))
	for i := range b.pages {
		kids[i] = fmt.Sprintf("%d 0 R", pageNr(i))
	}
	objects = append(objects, object{pagesNr, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(kids, " "), len(b.pages))})

	widths := make([]string, 95)
	for i := range widths {
		widths[i] = "600"
	}
	objects = append(objects, object{fontNr, fmt.Sprintf(
		"<< /Type /Font /Subtype /Type1 /BaseFont /Courier /Encoding /WinAnsiEncoding "+
			"/FirstChar 32 /LastChar 126 /Widths [%s] >>", strings.Join(widths, " "))})

	for i, p := range b.pages {
		var annots []string
		for _, w := range widgets {
			if w.w.Page == i {
				annots = append(annots, fmt.Sprintf("%d 0 R", w.num))
			}
		}
		dict := fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %g %g] "+
			"/Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R",
			pagesNr, p.width, p.height, fontNr, contentNr(i))
		if len(annots) > 0 {
			dict += fmt.Sprintf(" /Annots [%s]", strings.Join(annots, " "))
		}
		objects = append(objects, object{pageNr(i), dict + " >>"})
		objects = append(objects, object{contentNr(i), stream(p.content)})
	}

	widgetDict := func(w Widget) string {
		return fmt.Sprintf("/Type /Annot /Subtype /Widget /F 4 /Rect [%g %g %g %g] /P %d 0 R",
			w.Rect[0], w.Rect[1], w.Rect[2], w.Rect[3], pageNr(w.Page))
	}

	for i, f := range b.fields {
		body := fmt.Sprintf("/FT /%s /T (%s)", f.FT, f.Name)
		if f.Ff != 0 {
			body += fmt.Sprintf(" /Ff %d", f.Ff)
		}
		if f.DateFormat != "" {
			body += fmt.Sprintf(" /AA << /K << /S /JavaScript /JS (AFDate_KeystrokeEx\\(\"%s\"\\);) >> >>", f.DateFormat)
		}
		if len(f.Widgets) == 1 {
			objects = append(objects, object{fieldNrs[i], "<< " + body + " " + widgetDict(f.Widgets[0]) + " >>"})
			continue
		}
		var kidRefs []string
		for _, w := range widgets {
			if w.field == i {
				kidRefs = append(kidRefs, fmt.Sprintf("%d 0 R", w.num))
				objects = append(objects, object{w.num, fmt.Sprintf("<< %s /Parent %d 0 R >>", widgetDict(w.w), fieldNrs[i])})
			}
		}
		objects = append(objects, object{fieldNrs[i], fmt.Sprintf("<< %s /Kids [%s] >>", body, strings.Join(kidRefs, " "))})
	}

	if acroFormNr > 0 {
		refs := make([]string, len(fieldNrs))
		for i, n := range fieldNrs {
			refs[i] = fmt.Sprintf("%d 0 R", n)
		}
		objects = append(objects, object{acroFormNr, fmt.Sprintf("<< /Fields [%s] /DA (/Helv 0 Tf 0 g) >>",
			strings.Join(refs, " "))})
	}

	return b.render(objects, next)
}

func stream(content string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
}

func (b *Builder) render(objects []object, size int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, size)
	byNum := make(map[int]string, len(objects))
	for _, o := range objects {
		byNum[o.num] = o.body
	}
	for n := 1; n < size; n++ {
		body, ok := byNum[n]
		if !ok {
			continue
		}
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}

	if b.xrefStream {
		xrefNr := size
		offsets = append(offsets, buf.Len())
		var data bytes.Buffer
		for n := 0; n <= xrefNr; n++ {
			if n == 0 {
				data.Write([]byte{0, 0, 0, 0, 0, 0xff, 0xff})
				continue
			}
			off := offsets[n]
			data.Write([]byte{1, byte(off >> 24), byte(off >> 16), byte(off >> 8), byte(off), 0, 0})
		}
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2] /Root 1 0 R /Length %d >>\nstream\n",
			xrefNr, xrefNr+1, data.Len())
		buf.Write(data.Bytes())
		buf.WriteString("\nendstream\nendobj\n")
		fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", offsets[xrefNr])
		return buf.Bytes()
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for n := 1; n < size; n++ {
		if _, ok := byNum[n]; !ok {
			buf.WriteString("0000000000 65535 f \n")
			continue
		}
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xrefOffset)
	return buf.Bytes()
}

// A4 page size in points
const (
	A4Width  = 595.0
	A4Height = 842.0
)

// Blank returns a single empty A4 page
func Blank() []byte {
	b := New()
	b.AddPage(A4Width, A4Height, "")
	return b.Bytes()
}
