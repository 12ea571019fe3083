package extraction

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/document"
	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
)

// Field flag bits (PDF 32000-1, 12.7.3.1 and 12.7.4)
const (
	flagMultiline  = 1 << 12
	flagRadio      = 1 << 15
	flagPushbutton = 1 << 16
)

const maxFieldDepth = 32

// inherited carries the attributes a field node passes down to its kids
type inherited struct {
	name string
	ft   string
	ff   int
	date bool
}

// widgetOccurrence is one terminal widget annotation of a field
type widgetOccurrence struct {
	name    string
	ft      string
	ff      int
	date    bool
	objNr   int
	dict    types.Dict
	onState string
}

// widgetReader turns the AcroForm of a document into detected fields
type widgetReader struct {
	doc      *document.Document
	warnings *pdferrors.Warnings
	visited  map[int]bool
	annots   map[int]int // annotation object number -> page index
}

func newWidgetReader(doc *document.Document, warnings *pdferrors.Warnings) *widgetReader {
	return &widgetReader{
		doc:      doc,
		warnings: warnings,
		visited:  make(map[int]bool),
	}
}

// fieldsArray returns the /Fields array of the AcroForm, or nil when there is none
func (wr *widgetReader) fieldsArray() (types.Array, error) {
	ctx := wr.doc.Ctx
	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}

	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, nil
	}
	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	if acroFormDict == nil {
		return nil, nil
	}

	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return nil, nil
	}
	fieldsArray, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference Fields array: %w", err)
	}
	return fieldsArray, nil
}

// read walks the field tree. It returns nil when the document has no widgets.
func (wr *widgetReader) read() ([]DetectedField, error) {
	fieldsArray, err := wr.fieldsArray()
	if err != nil {
		return nil, err
	}
	if len(fieldsArray) == 0 {
		return nil, nil
	}

	var occurrences []widgetOccurrence
	for _, fieldObj := range fieldsArray {
		occurrences = append(occurrences, wr.walk(fieldObj, inherited{}, 0)...)
	}

	return wr.toFields(occurrences), nil
}

// walk descends one node of the field tree
func (wr *widgetReader) walk(fieldObj types.Object, parent inherited, depth int) []widgetOccurrence {
	ctx := wr.doc.Ctx
	if depth > maxFieldDepth {
		wr.warnings.Addf("field tree deeper than %d levels under %q, skipped", maxFieldDepth, parent.name)
		return nil
	}

	objNr := 0
	if ref, ok := fieldObj.(types.IndirectRef); ok {
		objNr = ref.ObjectNumber.Value()
		if wr.visited[objNr] {
			return nil
		}
		wr.visited[objNr] = true
	}

	fieldDict, err := ctx.DereferenceDict(fieldObj)
	if err != nil || fieldDict == nil {
		return nil
	}

	attrs := parent
	if nameObj, found := fieldDict.Find("T"); found {
		if partial, err := ctx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil); err == nil && partial != "" {
			if attrs.name == "" {
				attrs.name = partial
			} else {
				attrs.name = attrs.name + "." + partial
			}
		}
	}
	if ftObj, found := fieldDict.Find("FT"); found {
		if ft, err := ctx.DereferenceName(ftObj, model.V10, nil); err == nil {
			attrs.ft = ft.Value()
		}
	}
	if flagsObj, found := fieldDict.Find("Ff"); found {
		if flags, err := ctx.DereferenceInteger(flagsObj); err == nil && flags != nil {
			attrs.ff = flags.Value()
		}
	}
	if wr.hasDateAction(fieldDict) {
		attrs.date = true
	}

	if kidsObj, found := fieldDict.Find("Kids"); found {
		if kids, err := ctx.DereferenceArray(kidsObj); err == nil && len(kids) > 0 {
			var out []widgetOccurrence
			for _, kid := range kids {
				out = append(out, wr.walk(kid, attrs, depth+1)...)
			}
			return out
		}
	}

	if _, found := fieldDict.Find("Rect"); !found {
		return nil
	}

	return []widgetOccurrence{{
		name:    attrs.name,
		ft:      attrs.ft,
		ff:      attrs.ff,
		date:    attrs.date,
		objNr:   objNr,
		dict:    fieldDict,
		onState: wr.onState(fieldDict),
	}}
}

// hasDateAction looks for an Acrobat date format or keystroke script
func (wr *widgetReader) hasDateAction(fieldDict types.Dict) bool {
	ctx := wr.doc.Ctx
	aaObj, found := fieldDict.Find("AA")
	if !found {
		return false
	}
	aa, err := ctx.DereferenceDict(aaObj)
	if err != nil || aa == nil {
		return false
	}
	for _, trigger := range []string{"K", "F"} {
		actionObj, found := aa.Find(trigger)
		if !found {
			continue
		}
		action, err := ctx.DereferenceDict(actionObj)
		if err != nil || action == nil {
			continue
		}
		jsObj, found := action.Find("JS")
		if !found {
			continue
		}
		if js, err := ctx.DereferenceStringOrHexLiteral(jsObj, model.V10, nil); err == nil &&
			strings.Contains(js, "AFDate_") {
			return true
		}
	}
	return false
}

// onState returns the export name of a button widget's "on" appearance
func (wr *widgetReader) onState(widgetDict types.Dict) string {
	ctx := wr.doc.Ctx
	apObj, found := widgetDict.Find("AP")
	if !found {
		return ""
	}
	ap, err := ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return ""
	}
	nObj, found := ap.Find("N")
	if !found {
		return ""
	}
	normal, err := ctx.DereferenceDict(nObj)
	if err != nil || normal == nil {
		return ""
	}
	states := make([]string, 0, len(normal))
	for k := range normal {
		if k != "Off" {
			states = append(states, k)
		}
	}
	sort.Strings(states)
	if len(states) == 0 {
		return ""
	}
	return states[0]
}

// pageOf resolves the page of a widget through /P, then through page /Annots
func (wr *widgetReader) pageOf(w widgetOccurrence) (int, bool) {
	ctx := wr.doc.Ctx
	if pObj, found := w.dict.Find("P"); found {
		if ref, ok := pObj.(types.IndirectRef); ok {
			if idx, ok := wr.doc.PageIndexByObjNr(ref.ObjectNumber.Value()); ok {
				return idx, true
			}
		}
	}

	if w.objNr == 0 {
		return 0, false
	}
	if wr.annots == nil {
		wr.annots = make(map[int]int)
		for i := 0; i < wr.doc.PageCount(); i++ {
			pageDict, err := wr.doc.PageDict(i)
			if err != nil || pageDict == nil {
				continue
			}
			annotsObj, found := pageDict.Find("Annots")
			if !found {
				continue
			}
			annots, err := ctx.DereferenceArray(annotsObj)
			if err != nil {
				continue
			}
			for _, a := range annots {
				if ref, ok := a.(types.IndirectRef); ok {
					wr.annots[ref.ObjectNumber.Value()] = i
				}
			}
		}
	}
	idx, ok := wr.annots[w.objNr]
	return idx, ok
}

// kindOf maps field type and flags onto a kind. A non-empty reason marks an unsupported widget.
func kindOf(w widgetOccurrence) (kind FieldKind, multiline bool, reason string) {
	switch w.ft {
	case "Tx":
		if w.date || dateLikeName(w.name) {
			return KindDate, false, ""
		}
		return KindText, w.ff&flagMultiline != 0, ""
	case "Btn":
		if w.ff&flagPushbutton != 0 {
			return "", false, "pushbuttons carry no value"
		}
		if w.ff&flagRadio != 0 {
			return KindRadio, false, ""
		}
		return KindCheckbox, false, ""
	case "Sig":
		return KindSignature, false, ""
	case "Ch":
		return "", false, "choice fields are not supported"
	case "":
		return "", false, "field has no type"
	default:
		return "", false, fmt.Sprintf("field type %q is not supported", w.ft)
	}
}

// dateLikeName matches names such as "start_date", "inspectionDate" or "dob"
func dateLikeName(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "date") || strings.Contains(lower, "날짜") || strings.Contains(lower, "일자") {
		return true
	}
	for _, part := range strings.FieldsFunc(lower, func(r rune) bool { return r == '.' || r == '_' || r == '-' || r == ' ' }) {
		if part == "dob" {
			return true
		}
	}
	return false
}

func (wr *widgetReader) toFields(occurrences []widgetOccurrence) []DetectedField {
	groups := make(map[string]int)
	for _, w := range occurrences {
		groups[w.name]++
	}
	ordinals := make(map[string]int)

	var fields []DetectedField
	for _, w := range occurrences {
		if w.name == "" {
			wr.warnings.Addf("widget object %d has no field name, skipped", w.objNr)
			continue
		}

		kind, multiline, reason := kindOf(w)
		if reason != "" {
			wr.warnings.Addf("field %q skipped: %s", w.name, reason)
			continue
		}

		name := w.name
		if groups[w.name] > 1 && (kind == KindRadio || kind == KindCheckbox) {
			ordinals[w.name]++
			suffix := w.onState
			if suffix == "" {
				suffix = strconv.Itoa(ordinals[w.name])
			}
			name = w.name + "." + suffix
		}

		pageIdx, ok := wr.pageOf(w)
		if !ok {
			wr.warnings.Addf("field %q skipped: widget page cannot be resolved", name)
			continue
		}
		page, _ := wr.doc.Page(pageIdx)

		rectObj, _ := w.dict.Find("Rect")
		box, err := wr.doc.RectArray(rectObj)
		if err != nil {
			wr.warnings.Addf("field %q skipped: %v", name, err)
			continue
		}

		rect := geometry.Rect{
			X:      box[0] - page.OriginX,
			Y:      box[1] - page.OriginY,
			Width:  box[2] - box[0],
			Height: box[3] - box[1],
			Page:   pageIdx,
		}
		if err := rect.Within(page); err != nil {
			wr.warnings.Addf("field %q skipped: %v", name, err)
			continue
		}

		fields = append(fields, DetectedField{
			Name:       name,
			Label:      w.name,
			Kind:       kind,
			Geometry:   rect,
			Confidence: Confidence(1),
			Multiline:  multiline,
		})
	}
	return fields
}
