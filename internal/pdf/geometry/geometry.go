// Package geometry converts between PDF document space (origin bottom-left, points)
// and a zoomed rendering surface (origin top-left, pixels).
package geometry

import (
	"math"

	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
)

// Tolerance is the floating-point slack used for bounds and round-trip checks
const Tolerance = 1e-6

// Page is the read-only geometry of one document page
type Page struct {
	Index   int     `json:"index"` // 0-based
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	OriginX float64 `json:"origin_x,omitempty"` // lower-left corner of the page box
	OriginY float64 `json:"origin_y,omitempty"`
}

// Point is a location in document space, relative to the page origin
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a field rectangle in document space. (X, Y) is the lower-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Page   int     `json:"page"`
}

// ViewportPoint is a location on the rendering surface
type ViewportPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ViewportRect is a rectangle on the rendering surface. (X, Y) is the top-left corner.
type ViewportRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ValidateZoom rejects zoom factors that are not finite and positive
func ValidateZoom(zoom float64) error {
	if zoom <= 0 || math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		return pdferrors.Newf(pdferrors.ErrorTypeInvalidZoom, "zoom must be a finite value > 0, got %v", zoom)
	}
	return nil
}

// ToViewport maps a document rectangle onto the rendering surface of page at zoom.
// The Y axis is flipped and offset by the rectangle height so that the top edge
// of the field lines up with its visual top edge.
func ToViewport(r Rect, page Page, zoom float64) (ViewportRect, error) {
	if err := ValidateZoom(zoom); err != nil {
		return ViewportRect{}, err
	}
	return ViewportRect{
		X:      r.X * zoom,
		Y:      (page.Height - r.Y - r.Height) * zoom,
		Width:  r.Width * zoom,
		Height: r.Height * zoom,
	}, nil
}

// ToDocument is the inverse of ToViewport. The result is anchored to page.
func ToDocument(v ViewportRect, page Page, zoom float64) (Rect, error) {
	if err := ValidateZoom(zoom); err != nil {
		return Rect{}, err
	}
	h := v.Height / zoom
	return Rect{
		X:      v.X / zoom,
		Y:      page.Height - v.Y/zoom - h,
		Width:  v.Width / zoom,
		Height: h,
		Page:   page.Index,
	}, nil
}

// PointToViewport maps a document point (zero-height element) onto the surface
func PointToViewport(p Point, page Page, zoom float64) (ViewportPoint, error) {
	v, err := ToViewport(Rect{X: p.X, Y: p.Y}, page, zoom)
	if err != nil {
		return ViewportPoint{}, err
	}
	return ViewportPoint{X: v.X, Y: v.Y}, nil
}

// PointToDocument maps a pointer position on the surface back to document space
func PointToDocument(p ViewportPoint, page Page, zoom float64) (Point, error) {
	r, err := ToDocument(ViewportRect{X: p.X, Y: p.Y}, page, zoom)
	if err != nil {
		return Point{}, err
	}
	return Point{X: r.X, Y: r.Y}, nil
}

// Right returns the x coordinate of the right edge
func (r Rect) Right() float64 { return r.X + r.Width }

// Top returns the y coordinate of the top edge
func (r Rect) Top() float64 { return r.Y + r.Height }

// Offset returns a copy of r moved down by dy document units
func (r Rect) Offset(dy float64) Rect {
	r.Y -= dy
	return r
}

// Within validates that r lies fully inside page. Nothing is clamped.
func (r Rect) Within(page Page) error {
	if r.Page != page.Index {
		return pdferrors.Newf(pdferrors.ErrorTypeGeometryOutOfBounds,
			"rect is anchored to page %d, checked against page %d", r.Page, page.Index)
	}
	if !(r.Width > 0) || !(r.Height > 0) {
		return pdferrors.Newf(pdferrors.ErrorTypeGeometryOutOfBounds,
			"rect size %.2fx%.2f must be positive", r.Width, r.Height).WithPage(page.Index)
	}
	if r.X < -Tolerance || r.Y < -Tolerance ||
		r.Right() > page.Width+Tolerance || r.Top() > page.Height+Tolerance {
		return pdferrors.Newf(pdferrors.ErrorTypeGeometryOutOfBounds,
			"rect {x:%.2f y:%.2f w:%.2f h:%.2f} exceeds page %d (%.2fx%.2f)",
			r.X, r.Y, r.Width, r.Height, page.Index, page.Width, page.Height).WithPage(page.Index)
	}
	return nil
}

// Overlaps reports whether r and o share a region of positive area on the same page
func (r Rect) Overlaps(o Rect) bool {
	if r.Page != o.Page {
		return false
	}
	w := math.Min(r.Right(), o.Right()) - math.Max(r.X, o.X)
	h := math.Min(r.Top(), o.Top()) - math.Max(r.Y, o.Y)
	return w > Tolerance && h > Tolerance
}

// Contains reports whether the document point lies inside r (edges included)
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Top()
}

// Contains reports whether the surface point lies inside v (edges included)
func (v ViewportRect) Contains(p ViewportPoint) bool {
	return p.X >= v.X && p.X <= v.X+v.Width && p.Y >= v.Y && p.Y <= v.Y+v.Height
}

// PageByIndex finds the page with the given index
func PageByIndex(pages []Page, index int) (Page, bool) {
	if index >= 0 && index < len(pages) && pages[index].Index == index {
		return pages[index], true
	}
	for _, p := range pages {
		if p.Index == index {
			return p, true
		}
	}
	return Page{}, false
}

// ValidateRect checks r against the page it is anchored to
func ValidateRect(r Rect, pages []Page) error {
	page, ok := PageByIndex(pages, r.Page)
	if !ok {
		return pdferrors.Newf(pdferrors.ErrorTypeGeometryOutOfBounds,
			"page %d does not exist (document has %d pages)", r.Page, len(pages))
	}
	return r.Within(page)
}
