// Package overlay projects fields onto a rendered page so an operator can see,
// pick and place them. It holds no state.
package overlay

import (
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
)

// HitTarget is a field drawn on the rendering surface
type HitTarget struct {
	Name  string                `json:"name"`
	Label string                `json:"label,omitempty"`
	Kind  extraction.FieldKind  `json:"kind"`
	Rect  geometry.ViewportRect `json:"rect"`
	Value string                `json:"value,omitempty"`
}

// Present returns a hit target for every field on page, in the given order
func Present(fields []extraction.DetectedField, page geometry.Page, zoom float64) ([]HitTarget, error) {
	if err := geometry.ValidateZoom(zoom); err != nil {
		return nil, err
	}
	targets := make([]HitTarget, 0, len(fields))
	for _, f := range fields {
		if f.Geometry.Page != page.Index {
			continue
		}
		vr, err := geometry.ToViewport(f.Geometry, page, zoom)
		if err != nil {
			return nil, err
		}
		targets = append(targets, HitTarget{
			Name:  f.Name,
			Label: f.Label,
			Kind:  f.Kind,
			Rect:  vr,
		})
	}
	return targets, nil
}

// HitTest returns the target under p. When targets overlap the smallest one
// wins; on equal size the later one, which is drawn on top.
func HitTest(targets []HitTarget, p geometry.ViewportPoint) (HitTarget, bool) {
	best := -1
	for i, t := range targets {
		if !t.Rect.Contains(p) {
			continue
		}
		if best < 0 || area(t.Rect) <= area(targets[best].Rect) {
			best = i
		}
	}
	if best < 0 {
		return HitTarget{}, false
	}
	return targets[best], true
}

func area(r geometry.ViewportRect) float64 {
	return r.Width * r.Height
}

// PlaceField turns a click on the rendering surface into field geometry. The
// pointer marks the top-left corner; width and height are in document units.
func PlaceField(pointer geometry.ViewportPoint, page geometry.Page, zoom, width, height float64) (geometry.Rect, error) {
	topLeft, err := geometry.PointToDocument(pointer, page, zoom)
	if err != nil {
		return geometry.Rect{}, err
	}
	r := geometry.Rect{
		X:      topLeft.X,
		Y:      topLeft.Y - height,
		Width:  width,
		Height: height,
		Page:   page.Index,
	}
	if err := r.Within(page); err != nil {
		return geometry.Rect{}, err
	}
	return r, nil
}
