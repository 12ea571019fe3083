// Package mapping holds the per-session binding between field names and the
// values an operator enters for them.
package mapping

import (
	"github.com/google/uuid"

	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/overlay"
)

// FieldMapping is a field together with the value bound to it
type FieldMapping struct {
	Name       string               `json:"name"`
	Label      string               `json:"label,omitempty"`
	Value      string               `json:"value"`
	Kind       extraction.FieldKind `json:"kind"`
	Geometry   geometry.Rect        `json:"geometry"`
	Confidence *float64             `json:"confidence,omitempty"`
	Multiline  bool                 `json:"multiline,omitempty"`
}

// Field returns the field part of the mapping
func (m FieldMapping) Field() extraction.DetectedField {
	return extraction.DetectedField{
		Name:       m.Name,
		Label:      m.Label,
		Kind:       m.Kind,
		Geometry:   m.Geometry,
		Confidence: m.Confidence,
		Multiline:  m.Multiline,
	}
}

// ValueRecord binds field names to values for one stamped row
type ValueRecord map[string]string

// Store keeps the mappings of one editing session. It holds no document bytes
// and is not safe for concurrent use.
type Store struct {
	id       string
	pages    []geometry.Page
	order    []string
	mappings map[string]*FieldMapping
}

// NewStore creates an empty store for a document with the given pages
func NewStore(pages []geometry.Page) *Store {
	return &Store{
		id:       uuid.NewString(),
		pages:    pages,
		mappings: make(map[string]*FieldMapping),
	}
}

// ID returns the session identifier
func (s *Store) ID() string {
	return s.id
}

// Pages returns the page geometry the store validates against
func (s *Store) Pages() []geometry.Page {
	return s.pages
}

// Seed replaces the mappings with the given fields and empty values. Duplicate
// names are merged first and out-of-bounds fields are rejected. Overlapping
// fields are kept and reported by Conflicts until the operator resolves them.
func (s *Store) Seed(fields []extraction.DetectedField) error {
	merged := extraction.MergeByName(fields)
	if err := extraction.CheckFields(merged, s.pages); err != nil {
		return err
	}

	s.order = make([]string, 0, len(merged))
	s.mappings = make(map[string]*FieldMapping, len(merged))
	for _, f := range merged {
		s.put(f, "")
	}
	return nil
}

func (s *Store) put(f extraction.DetectedField, value string) {
	if _, exists := s.mappings[f.Name]; !exists {
		s.order = append(s.order, f.Name)
	}
	s.mappings[f.Name] = &FieldMapping{
		Name:       f.Name,
		Label:      f.Label,
		Value:      value,
		Kind:       f.Kind,
		Geometry:   f.Geometry,
		Confidence: f.Confidence,
		Multiline:  f.Multiline,
	}
}

// SetValue binds a value to a field
func (s *Store) SetValue(name, value string) error {
	m, ok := s.mappings[name]
	if !ok {
		return pdferrors.Newf(pdferrors.ErrorTypeUnknownField, "no field named %q", name).WithField(name)
	}
	m.Value = value
	return nil
}

// Value returns the value bound to a field
func (s *Store) Value(name string) (string, bool) {
	m, ok := s.mappings[name]
	if !ok {
		return "", false
	}
	return m.Value, true
}

// AllMappings returns every mapping in seed order
func (s *Store) AllMappings() []FieldMapping {
	out := make([]FieldMapping, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.mappings[name])
	}
	return out
}

// Fields returns the fields of every mapping in seed order
func (s *Store) Fields() []extraction.DetectedField {
	out := make([]extraction.DetectedField, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.mappings[name].Field())
	}
	return out
}

// Declare adds a manually placed field. A detected field with the same name
// is kept, since manual declarations rank lowest.
func (s *Store) Declare(f extraction.DetectedField) error {
	f.Confidence = nil
	if existing, ok := s.mappings[f.Name]; ok && existing.Confidence != nil {
		return pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest,
			"field %q was detected in the template and cannot be redeclared", f.Name).WithField(f.Name)
	}

	candidate := s.Fields()
	replaced := false
	for i := range candidate {
		if candidate[i].Name == f.Name {
			candidate[i] = f
			replaced = true
		}
	}
	if !replaced {
		candidate = append(candidate, f)
	}
	if err := s.checkEdit(candidate); err != nil {
		return err
	}

	value := ""
	if existing, ok := s.mappings[f.Name]; ok {
		value = existing.Value
	}
	s.put(f, value)
	return nil
}

// Move changes the geometry of a field, keeping its value
func (s *Store) Move(name string, r geometry.Rect) error {
	m, ok := s.mappings[name]
	if !ok {
		return pdferrors.Newf(pdferrors.ErrorTypeUnknownField, "no field named %q", name).WithField(name)
	}

	candidate := s.Fields()
	for i := range candidate {
		if candidate[i].Name == name {
			candidate[i].Geometry = r
		}
	}
	if err := s.checkEdit(candidate); err != nil {
		return err
	}
	m.Geometry = r
	return nil
}

// checkEdit validates the field set an edit would produce. Overlaps already
// present are tolerated; an edit may not create a new one.
func (s *Store) checkEdit(candidate []extraction.DetectedField) error {
	if err := extraction.CheckFields(candidate, s.pages); err != nil {
		return err
	}
	added := extraction.AddedConflicts(s.Conflicts(), extraction.FindConflicts(candidate))
	if len(added) > 0 {
		return extraction.OverlapError(added[0])
	}
	return nil
}

// Conflicts lists the pairs of fields that currently overlap
func (s *Store) Conflicts() []extraction.Conflict {
	return extraction.FindConflicts(s.Fields())
}

// Remove drops a field from the session
func (s *Store) Remove(name string) error {
	if _, ok := s.mappings[name]; !ok {
		return pdferrors.Newf(pdferrors.ErrorTypeUnknownField, "no field named %q", name).WithField(name)
	}
	delete(s.mappings, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Record returns the non-empty values as a single value record
func (s *Store) Record() ValueRecord {
	rec := make(ValueRecord, len(s.order))
	for _, name := range s.order {
		if v := s.mappings[name].Value; v != "" {
			rec[name] = v
		}
	}
	return rec
}

// Overlays returns hit targets, with their current values, for one page
func (s *Store) Overlays(pageIndex int, zoom float64) ([]overlay.HitTarget, error) {
	page, ok := geometry.PageByIndex(s.pages, pageIndex)
	if !ok {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeGeometryOutOfBounds,
			"page %d does not exist (document has %d pages)", pageIndex, len(s.pages))
	}
	targets, err := overlay.Present(s.Fields(), page, zoom)
	if err != nil {
		return nil, err
	}
	for i := range targets {
		targets[i].Value = s.mappings[targets[i].Name].Value
	}
	return targets, nil
}
