// Package profile reads template profiles: YAML sidecar files stored next to
// a template that declare fields by hand and describe how batch rows repeat.
//
//	confidence_floor: 0.6
//	row_rule:
//	  row_height: 18
//	  static: [site, inspector]
//	fields:
//	  - name: worker_name
//	    kind: text
//	    x: 72
//	    y: 640
//	    width: 180
//	    height: 16
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/stamp"
)

// Profile is the parsed content of a sidecar file
type Profile struct {
	ConfidenceFloor *float64       `yaml:"confidence_floor,omitempty"`
	RowRule         *stamp.RowRule `yaml:"row_rule,omitempty"`
	Fields          []FieldSpec    `yaml:"fields,omitempty"`
}

// FieldSpec is a manually declared field
type FieldSpec struct {
	Name      string  `yaml:"name"`
	Label     string  `yaml:"label,omitempty"`
	Kind      string  `yaml:"kind"`
	X         float64 `yaml:"x"`
	Y         float64 `yaml:"y"`
	Width     float64 `yaml:"width"`
	Height    float64 `yaml:"height"`
	Page      int     `yaml:"page,omitempty"` // 0-based
	Multiline bool    `yaml:"multiline,omitempty"`
}

// SidecarPath returns where the profile of a template is stored
func SidecarPath(templatePath string) string {
	return strings.TrimSuffix(templatePath, filepath.Ext(templatePath)) + ".yaml"
}

// Load reads and validates a profile file
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", filepath.Base(path), err)
	}
	return p, nil
}

// LoadFor returns the profile stored next to a template. A template without
// a sidecar has no profile; that is not an error.
func LoadFor(templatePath string) (*Profile, error) {
	path := SidecarPath(templatePath)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return Load(path)
}

// Parse decodes and validates a profile. Unknown keys are rejected so that a
// misspelled option does not silently fall back to a default.
func Parse(data []byte) (*Profile, error) {
	p := &Profile{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, pdferrors.Wrap(pdferrors.ErrorTypeInvalidRequest, "invalid profile YAML", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the profile without a document. Bounds and overlaps are
// checked once the template's pages are known.
func (p *Profile) Validate() error {
	if f := p.ConfidenceFloor; f != nil && (math.IsNaN(*f) || *f < 0 || *f > 1) {
		return pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "confidence_floor must be within [0, 1], got %v", *f)
	}
	if p.RowRule != nil {
		if err := p.RowRule.Validate(1); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(p.Fields))
	for i, f := range p.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "field %d has no name", i)
		}
		if seen[f.Name] {
			return pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "field %q is declared twice", f.Name).WithField(f.Name)
		}
		seen[f.Name] = true
		if _, err := extraction.ParseKind(f.Kind); err != nil {
			var pe *pdferrors.PDFError
			if errors.As(err, &pe) {
				return pe.WithField(f.Name)
			}
			return err
		}
		if f.Width <= 0 || f.Height <= 0 {
			return pdferrors.Newf(pdferrors.ErrorTypeGeometryOutOfBounds,
				"field %q must have a positive size", f.Name).WithField(f.Name)
		}
	}

	if p.RowRule != nil {
		for _, name := range p.RowRule.Static {
			if len(p.Fields) > 0 && !seen[name] {
				return pdferrors.Newf(pdferrors.ErrorTypeInvalidFieldReference,
					"row_rule names undeclared static field %q", name).WithField(name)
			}
		}
	}
	return nil
}

// DeclaredFields converts the field specs into manual fields
func (p *Profile) DeclaredFields() []extraction.DetectedField {
	if p == nil {
		return nil
	}
	fields := make([]extraction.DetectedField, 0, len(p.Fields))
	for _, f := range p.Fields {
		kind, _ := extraction.ParseKind(f.Kind)
		fields = append(fields, extraction.DetectedField{
			Name:      f.Name,
			Label:     f.Label,
			Kind:      kind,
			Multiline: f.Multiline && kind == extraction.KindText,
			Geometry: geometry.Rect{
				X:      f.X,
				Y:      f.Y,
				Width:  f.Width,
				Height: f.Height,
				Page:   f.Page,
			},
		})
	}
	return fields
}

// Floor returns the confidence floor of the profile, or def when unset
func (p *Profile) Floor(def float64) float64 {
	if p == nil || p.ConfidenceFloor == nil {
		return def
	}
	return *p.ConfidenceFloor
}

// Rule returns the row rule of the profile, or nil
func (p *Profile) Rule() *stamp.RowRule {
	if p == nil {
		return nil
	}
	return p.RowRule
}
