package stamp

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/document"
)

// pendingObject is an object appended by the update
type pendingObject struct {
	nr, gen int
	body    []byte
}

// incrementalWriter appends new and replaced objects to an unchanged copy of
// the original file, followed by a cross-reference section chained to the
// previous one through /Prev.
type incrementalWriter struct {
	doc     *document.Document
	next    int
	objects []pendingObject
	fonts   map[string]int // core font name -> object number
}

func newIncrementalWriter(doc *document.Document) *incrementalWriter {
	size := 0
	if doc.Ctx.Size != nil {
		size = *doc.Ctx.Size
	}
	for nr := range doc.Ctx.Table {
		if nr+1 > size {
			size = nr + 1
		}
	}
	return &incrementalWriter{
		doc:   doc,
		next:  size,
		fonts: make(map[string]int),
	}
}

// add appends a new object and returns its number
func (w *incrementalWriter) add(body []byte) int {
	nr := w.next
	w.next++
	w.objects = append(w.objects, pendingObject{nr: nr, body: body})
	return nr
}

// addStream appends an uncompressed stream object
func (w *incrementalWriter) addStream(content []byte) int {
	var b bytes.Buffer
	fmt.Fprintf(&b, "<</Length %d>>\nstream\n", len(content))
	b.Write(content)
	b.WriteString("\nendstream")
	return w.add(b.Bytes())
}

// replace writes a new revision of an existing object
func (w *incrementalWriter) replace(ref types.IndirectRef, body []byte) {
	w.objects = append(w.objects, pendingObject{
		nr:   ref.ObjectNumber.Value(),
		gen:  ref.GenerationNumber.Value(),
		body: body,
	})
}

// fontRef returns the object of a standard 14 font, creating it on first use
func (w *incrementalWriter) fontRef(name string) types.IndirectRef {
	nr, ok := w.fonts[name]
	if !ok {
		body := "<</Type/Font/Subtype/Type1/BaseFont/" + name
		if name != fontSymbols {
			body += "/Encoding/WinAnsiEncoding"
		}
		nr = w.add([]byte(body + ">>"))
		w.fonts[name] = nr
	}
	return *types.NewIndirectRef(nr, 0)
}

// pageFonts names the fonts a page's stamp content uses. Names never collide
// with fonts already in the page resources.
type pageFonts struct {
	existing types.Dict
	used     map[string]string // core font name -> resource name
	order    []string
}

func (w *incrementalWriter) newPageFonts(index int) (*pageFonts, error) {
	pf := &pageFonts{existing: types.Dict{}, used: make(map[string]string)}
	res, err := w.pageResources(index)
	if err != nil {
		return nil, err
	}
	if obj, found := res.Find("Font"); found && obj != nil {
		if fonts, err := w.doc.Ctx.DereferenceDict(obj); err == nil && fonts != nil {
			pf.existing = fonts
		}
	}
	return pf, nil
}

func (pf *pageFonts) use(fontName string) string {
	if res, ok := pf.used[fontName]; ok {
		return res
	}
	base := "FS" + strings.NewReplacer("-", "", " ", "").Replace(fontName)
	res := base
	for i := 2; pf.taken(res); i++ {
		res = base + strconv.Itoa(i)
	}
	pf.used[fontName] = res
	pf.order = append(pf.order, fontName)
	return res
}

func (pf *pageFonts) taken(res string) bool {
	if _, found := pf.existing.Find(res); found {
		return true
	}
	for _, r := range pf.used {
		if r == res {
			return true
		}
	}
	return false
}

// pageResources returns the effective resource dictionary of a page
func (w *incrementalWriter) pageResources(index int) (types.Dict, error) {
	pageDict, err := w.doc.PageDict(index)
	if err != nil {
		return nil, err
	}
	obj, found := w.doc.Inherited(pageDict, "Resources")
	if !found || obj == nil {
		return types.Dict{}, nil
	}
	res, err := w.doc.Ctx.DereferenceDict(obj)
	if err != nil {
		return nil, fmt.Errorf("page %d resources: %w", index+1, err)
	}
	if res == nil {
		return types.Dict{}, nil
	}
	return res, nil
}

// stampPage wraps the original page content in q/Q, appends the canvas after
// it and writes a new revision of the page dictionary. Widgets sitting on a
// stamped field are dropped from /Annots so viewers cannot paint over the value.
func (w *incrementalWriter) stampPage(index int, c *canvas) error {
	content, fonts := c.bytes(), c.fonts
	ref, ok := w.doc.PageRef(index)
	if !ok {
		return fmt.Errorf("page %d does not exist", index+1)
	}
	pageDict, err := w.doc.PageDict(index)
	if err != nil {
		return fmt.Errorf("page %d: %w", index+1, err)
	}
	page, ok := pageDict.Clone().(types.Dict)
	if !ok {
		return fmt.Errorf("page %d cannot be copied", index+1)
	}

	prefixNr := w.addStream([]byte("q"))
	stampNr := w.addStream(append([]byte("Q\n"), content...))

	contents := types.Array{*types.NewIndirectRef(prefixNr, 0)}
	if obj, found := page.Find("Contents"); found && obj != nil {
		contents = append(contents, w.contentRefs(obj)...)
	}
	contents = append(contents, *types.NewIndirectRef(stampNr, 0))
	page.Update("Contents", contents)

	res, err := w.pageResources(index)
	if err != nil {
		return err
	}
	resources, ok := res.Clone().(types.Dict)
	if !ok {
		resources = types.Dict{}
	}
	fontDict, ok := fonts.existing.Clone().(types.Dict)
	if !ok {
		fontDict = types.Dict{}
	}
	for _, name := range fonts.order {
		fontDict.Update(fonts.used[name], w.fontRef(name))
	}
	resources.Update("Font", fontDict)
	if _, found := resources.Find("ProcSet"); !found {
		resources.Insert("ProcSet", types.Array{types.Name("PDF"), types.Name("Text")})
	}
	page.Update("Resources", resources)

	if obj, found := page.Find("Annots"); found && obj != nil && len(c.covered) > 0 {
		if kept, dropped := w.uncoveredAnnots(obj, c); dropped {
			if len(kept) == 0 {
				page.Delete("Annots")
			} else {
				page.Update("Annots", kept)
			}
		}
	}

	w.replace(ref, []byte(page.PDFString()))
	return nil
}

// uncoveredAnnots filters out the widget annotations whose rectangle matches a
// covered field area. Annotations that cannot be read are kept.
func (w *incrementalWriter) uncoveredAnnots(obj types.Object, c *canvas) (types.Array, bool) {
	annots, err := w.doc.Ctx.DereferenceArray(obj)
	if err != nil {
		return nil, false
	}
	kept := make(types.Array, 0, len(annots))
	dropped := false
	for _, a := range annots {
		if w.coveredWidget(a, c) {
			dropped = true
			continue
		}
		kept = append(kept, a)
	}
	return kept, dropped
}

func (w *incrementalWriter) coveredWidget(obj types.Object, c *canvas) bool {
	annot, err := w.doc.Ctx.DereferenceDict(obj)
	if err != nil || annot == nil {
		return false
	}
	if subtype := annot.NameEntry("Subtype"); subtype == nil || *subtype != "Widget" {
		return false
	}
	rectObj, found := annot.Find("Rect")
	if !found {
		return false
	}
	box, err := w.doc.RectArray(rectObj)
	if err != nil {
		return false
	}
	for _, r := range c.covered {
		if near(box[0]-c.page.OriginX, r.X) && near(box[1]-c.page.OriginY, r.Y) &&
			near(box[2]-box[0], r.Width) && near(box[3]-box[1], r.Height) {
			return true
		}
	}
	return false
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

// contentRefs flattens a /Contents entry into a list of stream references
func (w *incrementalWriter) contentRefs(obj types.Object) types.Array {
	switch c := obj.(type) {
	case types.Array:
		return c
	case types.IndirectRef:
		if target, err := w.doc.Ctx.Dereference(c); err == nil {
			if arr, ok := target.(types.Array); ok {
				return arr
			}
		}
		return types.Array{c}
	}
	return nil
}

// write renders the original bytes followed by the update
func (w *incrementalWriter) write() ([]byte, error) {
	original := w.doc.Bytes()
	if len(w.objects) == 0 {
		return append([]byte(nil), original...), nil
	}
	prev, err := lastStartXRef(original)
	if err != nil {
		return nil, err
	}
	streamSection := isXRefStream(original, prev)

	var buf bytes.Buffer
	buf.Grow(len(original) + 4096)
	buf.Write(original)
	if n := len(original); n > 0 && original[n-1] != '\n' && original[n-1] != '\r' {
		buf.WriteByte('\n')
	}

	objects := make([]pendingObject, len(w.objects))
	copy(objects, w.objects)
	sort.SliceStable(objects, func(i, j int) bool { return objects[i].nr < objects[j].nr })

	offsets := make(map[int]int64, len(objects)+1)
	gens := make(map[int]int, len(objects)+1)
	for _, o := range objects {
		offsets[o.nr] = int64(buf.Len())
		gens[o.nr] = o.gen
		fmt.Fprintf(&buf, "%d %d obj\n", o.nr, o.gen)
		buf.Write(o.body)
		buf.WriteString("\nendobj\n")
	}

	if streamSection {
		w.writeXRefStream(&buf, offsets, gens, prev)
	} else {
		w.writeXRefTable(&buf, offsets, gens, prev)
	}
	return buf.Bytes(), nil
}

type subsection struct {
	start int
	nrs   []int
}

func subsections(offsets map[int]int64) []subsection {
	nrs := make([]int, 0, len(offsets))
	for nr := range offsets {
		nrs = append(nrs, nr)
	}
	sort.Ints(nrs)

	var out []subsection
	for _, nr := range nrs {
		if n := len(out); n > 0 && out[n-1].start+len(out[n-1].nrs) == nr {
			out[n-1].nrs = append(out[n-1].nrs, nr)
			continue
		}
		out = append(out, subsection{start: nr, nrs: []int{nr}})
	}
	return out
}

// trailerEntries are the trailer keys shared by both section kinds
func (w *incrementalWriter) trailerEntries(prev int64) string {
	ctx := w.doc.Ctx
	var b strings.Builder
	fmt.Fprintf(&b, "/Size %d", w.next)
	if ctx.Root != nil {
		b.WriteString("/Root " + ctx.Root.PDFString())
	}
	if ctx.Info != nil {
		b.WriteString("/Info " + ctx.Info.PDFString())
	}
	if len(ctx.ID) > 0 {
		b.WriteString("/ID " + ctx.ID.PDFString())
	}
	fmt.Fprintf(&b, "/Prev %d", prev)
	return b.String()
}

func (w *incrementalWriter) writeXRefTable(buf *bytes.Buffer, offsets map[int]int64, gens map[int]int, prev int64) {
	xrefOffset := buf.Len()
	buf.WriteString("xref\n")
	for _, sub := range subsections(offsets) {
		fmt.Fprintf(buf, "%d %d\n", sub.start, len(sub.nrs))
		for _, nr := range sub.nrs {
			fmt.Fprintf(buf, "%010d %05d n \n", offsets[nr], gens[nr])
		}
	}
	fmt.Fprintf(buf, "trailer\n<<%s>>\nstartxref\n%d\n%%%%EOF\n", w.trailerEntries(prev), xrefOffset)
}

func (w *incrementalWriter) writeXRefStream(buf *bytes.Buffer, offsets map[int]int64, gens map[int]int, prev int64) {
	xrefNr := w.next
	w.next++
	xrefOffset := int64(buf.Len())
	offsets[xrefNr] = xrefOffset
	gens[xrefNr] = 0

	width := 1
	for rest := xrefOffset; rest > 0xff; rest >>= 8 {
		width++
	}

	var index strings.Builder
	var data bytes.Buffer
	for _, sub := range subsections(offsets) {
		fmt.Fprintf(&index, "%d %d ", sub.start, len(sub.nrs))
		for _, nr := range sub.nrs {
			data.WriteByte(1)
			off := offsets[nr]
			for i := width - 1; i >= 0; i-- {
				data.WriteByte(byte(off >> (8 * i)))
			}
			gen := gens[nr]
			data.WriteByte(byte(gen >> 8))
			data.WriteByte(byte(gen))
		}
	}

	fmt.Fprintf(buf, "%d 0 obj\n<</Type/XRef/W[1 %d 2]/Index[%s]%s/Length %d>>\nstream\n",
		xrefNr, width, strings.TrimSpace(index.String()), w.trailerEntries(prev), data.Len())
	buf.Write(data.Bytes())
	fmt.Fprintf(buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
}

// lastStartXRef reads the offset of the newest cross-reference section
func lastStartXRef(data []byte) (int64, error) {
	tail := data
	if len(tail) > 4096 {
		tail = tail[len(tail)-4096:]
	}
	i := bytes.LastIndex(tail, []byte("startxref"))
	if i < 0 {
		return 0, fmt.Errorf("startxref not found")
	}
	fields := bytes.Fields(tail[i+len("startxref"):])
	if len(fields) == 0 {
		return 0, fmt.Errorf("startxref has no offset")
	}
	off, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil || off < 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("startxref offset %q is invalid", fields[0])
	}
	return off, nil
}

// isXRefStream reports whether the section at off is a stream rather than a table
func isXRefStream(data []byte, off int64) bool {
	section := bytes.TrimLeft(data[off:], " \t\r\n\f\x00")
	return !bytes.HasPrefix(section, []byte("xref"))
}
