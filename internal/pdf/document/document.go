// Package document opens PDF templates and exposes their page geometry,
// object structure (pdfcpu) and positioned page content (ledongthuc/pdf).
package document

import (
	"bytes"
	"fmt"
	"math"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
)

func init() {
	// Keep pdfcpu from creating a user config directory on first use.
	api.DisableConfigDir()
}

// Document is a parsed, read-only view of a PDF template
type Document struct {
	Ctx   *model.Context
	Pages []geometry.Page

	data     []byte
	pageRefs []types.IndirectRef
	rotation []int

	text    *pdf.Reader // content reader, opened on first use
	textErr error
}

// Open parses data as a PDF. The slice is retained but never modified.
func Open(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, pdferrors.New(pdferrors.ErrorTypeUnreadableDocument, "document is empty")
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, pdferrors.New(pdferrors.ErrorTypeUnreadableDocument, "missing %PDF- header")
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := readContext(data, conf)
	if err != nil {
		return nil, pdferrors.Wrap(pdferrors.ErrorTypeUnreadableDocument, "failed to read PDF context", err)
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, pdferrors.Wrap(pdferrors.ErrorTypeUnreadableDocument, "failed to ensure page count", err)
	}
	if ctx.PageCount == 0 {
		return nil, pdferrors.New(pdferrors.ErrorTypeUnreadableDocument, "document has no pages")
	}

	doc := &Document{
		Ctx:      ctx,
		data:     data,
		pageRefs: make([]types.IndirectRef, 0, ctx.PageCount),
		rotation: make([]int, 0, ctx.PageCount),
	}

	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageDict, ref, _, err := ctx.PageDict(pageNr, false)
		if err != nil {
			return nil, pdferrors.Wrap(pdferrors.ErrorTypeUnreadableDocument,
				fmt.Sprintf("failed to read page %d", pageNr), err)
		}
		if pageDict == nil || ref == nil {
			return nil, pdferrors.Newf(pdferrors.ErrorTypeUnreadableDocument, "page %d is missing", pageNr)
		}

		box, err := doc.pageBox(pageDict)
		if err != nil {
			return nil, pdferrors.Wrap(pdferrors.ErrorTypeUnreadableDocument,
				fmt.Sprintf("page %d has no usable page box", pageNr), err)
		}

		doc.Pages = append(doc.Pages, geometry.Page{
			Index:   pageNr - 1,
			Width:   box[2] - box[0],
			Height:  box[3] - box[1],
			OriginX: box[0],
			OriginY: box[1],
		})
		doc.pageRefs = append(doc.pageRefs, *ref)
		doc.rotation = append(doc.rotation, doc.inheritedInt(pageDict, "Rotate"))
	}

	return doc, nil
}

// readContext isolates pdfcpu panics on badly broken input
func readContext(data []byte, conf *model.Configuration) (ctx *model.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx = nil
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	return api.ReadContext(bytes.NewReader(data), conf)
}

// Bytes returns the original document bytes. Callers must not modify them.
func (d *Document) Bytes() []byte {
	return d.data
}

// PageCount returns the number of pages
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// Page returns the page with the 0-based index
func (d *Document) Page(index int) (geometry.Page, bool) {
	return geometry.PageByIndex(d.Pages, index)
}

// PageRef returns the indirect reference of the page dictionary for a 0-based index
func (d *Document) PageRef(index int) (types.IndirectRef, bool) {
	if index < 0 || index >= len(d.pageRefs) {
		return types.IndirectRef{}, false
	}
	return d.pageRefs[index], true
}

// PageIndexByObjNr maps a page object number back to its 0-based index
func (d *Document) PageIndexByObjNr(objNr int) (int, bool) {
	for i, ref := range d.pageRefs {
		if ref.ObjectNumber.Value() == objNr {
			return i, true
		}
	}
	return 0, false
}

// Rotation returns the /Rotate value of a page (0, 90, 180 or 270)
func (d *Document) Rotation(index int) int {
	if index < 0 || index >= len(d.rotation) {
		return 0
	}
	r := d.rotation[index] % 360
	if r < 0 {
		r += 360
	}
	return r
}

// Encrypted reports whether the template carries an /Encrypt dictionary
func (d *Document) Encrypted() bool {
	return d.Ctx.Encrypt != nil
}

// PageDict returns the dictionary of the page with a 0-based index
func (d *Document) PageDict(index int) (types.Dict, error) {
	pageDict, _, _, err := d.Ctx.PageDict(index+1, false)
	if err != nil {
		return nil, err
	}
	return pageDict, nil
}

// Inherited resolves a page attribute, walking up the /Parent chain
func (d *Document) Inherited(pageDict types.Dict, key string) (types.Object, bool) {
	dict := pageDict
	for depth := 0; dict != nil && depth < 64; depth++ {
		if obj, found := dict.Find(key); found && obj != nil {
			return obj, true
		}
		parentObj, found := dict.Find("Parent")
		if !found {
			break
		}
		parent, err := d.Ctx.DereferenceDict(parentObj)
		if err != nil {
			break
		}
		dict = parent
	}
	return nil, false
}

func (d *Document) inheritedInt(pageDict types.Dict, key string) int {
	obj, found := d.Inherited(pageDict, key)
	if !found {
		return 0
	}
	i, err := d.Ctx.DereferenceInteger(obj)
	if err != nil || i == nil {
		return 0
	}
	return i.Value()
}

// pageBox returns [llx lly urx ury] of the CropBox, falling back to the MediaBox
func (d *Document) pageBox(pageDict types.Dict) ([4]float64, error) {
	media, err := d.boxFor(pageDict, "MediaBox")
	if err != nil {
		return media, err
	}
	crop, err := d.boxFor(pageDict, "CropBox")
	if err != nil {
		return media, nil
	}
	// A CropBox is intersected with the MediaBox.
	box := [4]float64{
		math.Max(crop[0], media[0]),
		math.Max(crop[1], media[1]),
		math.Min(crop[2], media[2]),
		math.Min(crop[3], media[3]),
	}
	if box[2] <= box[0] || box[3] <= box[1] {
		return media, nil
	}
	return box, nil
}

func (d *Document) boxFor(pageDict types.Dict, key string) ([4]float64, error) {
	obj, found := d.Inherited(pageDict, key)
	if !found {
		return [4]float64{}, fmt.Errorf("no %s", key)
	}
	return d.RectArray(obj)
}

// RectArray reads a normalized [llx lly urx ury] rectangle
func (d *Document) RectArray(obj types.Object) ([4]float64, error) {
	var box [4]float64
	arr, err := d.Ctx.DereferenceArray(obj)
	if err != nil {
		return box, err
	}
	if len(arr) != 4 {
		return box, fmt.Errorf("rectangle has %d elements", len(arr))
	}
	for i, o := range arr {
		f, err := d.Ctx.DereferenceNumber(o)
		if err != nil {
			return box, fmt.Errorf("rectangle element %d: %w", i, err)
		}
		box[i] = f
	}
	if box[0] > box[2] {
		box[0], box[2] = box[2], box[0]
	}
	if box[1] > box[3] {
		box[1], box[3] = box[3], box[1]
	}
	return box, nil
}
