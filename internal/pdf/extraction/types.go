package extraction

import (
	"fmt"
	"math"
	"sort"
	"strings"

	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
)

// FieldKind classifies what a field holds and how it is drawn
type FieldKind string

const (
	KindText      FieldKind = "text"
	KindCheckbox  FieldKind = "checkbox"
	KindRadio     FieldKind = "radio"
	KindSignature FieldKind = "signature"
	KindDate      FieldKind = "date"
)

// Kinds lists every supported kind
var Kinds = []FieldKind{KindText, KindCheckbox, KindRadio, KindSignature, KindDate}

// Valid reports whether k is one of the supported kinds
func (k FieldKind) Valid() bool {
	switch k {
	case KindText, KindCheckbox, KindRadio, KindSignature, KindDate:
		return true
	}
	return false
}

// ParseKind converts a user supplied kind name
func ParseKind(s string) (FieldKind, error) {
	k := FieldKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", pdferrors.Newf(pdferrors.ErrorTypeUnsupportedKind, "unsupported field kind %q", s)
	}
	return k, nil
}

// DetectedField is a named, typed and positioned placeholder in a template.
// Geometry is in document space relative to the page origin.
// A nil Confidence marks a manually declared field.
type DetectedField struct {
	Name       string        `json:"name" yaml:"name"`
	Label      string        `json:"label,omitempty" yaml:"label,omitempty"`
	Kind       FieldKind     `json:"kind" yaml:"kind"`
	Geometry   geometry.Rect `json:"geometry" yaml:"geometry"`
	Confidence *float64      `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Multiline  bool          `json:"multiline,omitempty" yaml:"multiline,omitempty"`
}

// Manual reports whether the field was declared by hand
func (f DetectedField) Manual() bool {
	return f.Confidence == nil
}

// Score returns the confidence used for ranking. Manual fields rank lowest.
func (f DetectedField) Score() float64 {
	if f.Confidence == nil {
		return -1
	}
	return *f.Confidence
}

// Confidence returns a pointer to a rounded confidence value
func Confidence(v float64) *float64 {
	v = math.Round(math.Max(0, math.Min(1, v))*1000) / 1000
	return &v
}

// Source tells which detection path produced the fields
type Source string

const (
	SourceWidgets Source = "widgets"
	SourceLayout  Source = "layout"
	SourceNone    Source = "none"
)

// Conflict names two fields whose rectangles intersect
type Conflict struct {
	First  string `json:"first"`
	Second string `json:"second"`
	Page   int    `json:"page"`
}

// DetectionResult is the output of a detection run
type DetectionResult struct {
	Fields    []DetectedField `json:"fields"`
	Pages     []geometry.Page `json:"pages"`
	Source    Source          `json:"source"`
	Warnings  []string        `json:"warnings,omitempty"`
	Conflicts []Conflict      `json:"conflicts,omitempty"`
}

// SortReadingOrder orders fields by page, then top to bottom, then left to right
func SortReadingOrder(fields []DetectedField) {
	sort.SliceStable(fields, func(i, j int) bool {
		a, b := fields[i].Geometry, fields[j].Geometry
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.Top() != b.Top() {
			return a.Top() > b.Top()
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return fields[i].Name < fields[j].Name
	})
}

// MergeByName collapses fields sharing a name, keeping the highest confidence.
// On a tie the earlier field wins. Order of first appearance is preserved.
func MergeByName(fields []DetectedField) []DetectedField {
	index := make(map[string]int, len(fields))
	out := make([]DetectedField, 0, len(fields))
	for _, f := range fields {
		if i, ok := index[f.Name]; ok {
			if f.Score() > out[i].Score() {
				out[i] = f
			}
			continue
		}
		index[f.Name] = len(out)
		out = append(out, f)
	}
	return out
}

// FindConflicts lists every pair of fields whose rectangles overlap
func FindConflicts(fields []DetectedField) []Conflict {
	var conflicts []Conflict
	for i := 0; i < len(fields); i++ {
		for j := i + 1; j < len(fields); j++ {
			if fields[i].Geometry.Overlaps(fields[j].Geometry) {
				conflicts = append(conflicts, Conflict{
					First:  fields[i].Name,
					Second: fields[j].Name,
					Page:   fields[i].Geometry.Page,
				})
			}
		}
	}
	return conflicts
}

// ValidateFields checks kinds, names, bounds and overlaps of a field set
func ValidateFields(fields []DetectedField, pages []geometry.Page) error {
	if err := CheckFields(fields, pages); err != nil {
		return err
	}
	if conflicts := FindConflicts(fields); len(conflicts) > 0 {
		return OverlapError(conflicts[0])
	}
	return nil
}

// CheckFields checks kinds, names and bounds of a field set. Overlaps are
// left to the caller.
func CheckFields(fields []DetectedField, pages []geometry.Page) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return pdferrors.New(pdferrors.ErrorTypeInvalidRequest, "field name cannot be empty")
		}
		if seen[f.Name] {
			return pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "duplicate field name %q", f.Name).WithField(f.Name)
		}
		seen[f.Name] = true
		if !f.Kind.Valid() {
			return pdferrors.Newf(pdferrors.ErrorTypeUnsupportedKind, "field %q has unsupported kind %q", f.Name, f.Kind).
				WithField(f.Name)
		}
		if err := geometry.ValidateRect(f.Geometry, pages); err != nil {
			return withField(err, f.Name)
		}
	}
	return nil
}

// OverlapError reports a conflict as an OVERLAPPING_FIELDS error
func OverlapError(c Conflict) error {
	return pdferrors.Newf(pdferrors.ErrorTypeOverlappingFields,
		"fields %q and %q overlap on page %d", c.First, c.Second, c.Page).WithField(c.First)
}

// AddedConflicts returns the conflicts in after that are not in before,
// whichever order the pair is named in
func AddedConflicts(before, after []Conflict) []Conflict {
	known := make(map[[2]string]bool, len(before))
	for _, c := range before {
		known[c.key()] = true
	}
	var added []Conflict
	for _, c := range after {
		if !known[c.key()] {
			added = append(added, c)
		}
	}
	return added
}

func (c Conflict) key() [2]string {
	if c.First < c.Second {
		return [2]string{c.First, c.Second}
	}
	return [2]string{c.Second, c.First}
}

func withField(err error, name string) error {
	if pe, ok := err.(*pdferrors.PDFError); ok {
		return pe.WithField(name)
	}
	return fmt.Errorf("field %q: %w", name, err)
}
