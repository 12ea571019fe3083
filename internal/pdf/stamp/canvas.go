package stamp

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
)

// canvas accumulates the content stream operators drawn onto one page.
// Coordinates passed in are relative to the page origin.
type canvas struct {
	page    geometry.Page
	fonts   *pageFonts
	buf     bytes.Buffer
	covered []geometry.Rect // field areas whose widgets the stamp replaces
}

func newCanvas(page geometry.Page, fonts *pageFonts) *canvas {
	return &canvas{page: page, fonts: fonts}
}

func num(v float64) string {
	v = math.Round(v*1000) / 1000
	if v == 0 {
		v = 0 // no "-0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// clip runs draw with the clipping path set to r
func (c *canvas) clip(r geometry.Rect, draw func()) {
	fmt.Fprintf(&c.buf, "q %s %s %s %s re W n\n",
		num(r.X+c.page.OriginX), num(r.Y+c.page.OriginY), num(r.Width), num(r.Height))
	draw()
	c.buf.WriteString("Q\n")
}

// text shows an encoded string with its baseline starting at (x, y)
func (c *canvas) text(fontName string, size int, x, y float64, enc []byte) {
	res := c.fonts.use(fontName)
	fmt.Fprintf(&c.buf, "BT /%s %d Tf 0 g %s %s Td (%s) Tj ET\n",
		res, size, num(x+c.page.OriginX), num(y+c.page.OriginY), escape(enc))
}

// strokeRect outlines r with a thin grey line
func (c *canvas) strokeRect(r geometry.Rect, lineWidth, gray float64) {
	fmt.Fprintf(&c.buf, "q %s w %s G %s %s %s %s re S Q\n",
		num(lineWidth), num(gray),
		num(r.X+c.page.OriginX), num(r.Y+c.page.OriginY), num(r.Width), num(r.Height))
}

// cover records that a value was drawn over a field's own area
func (c *canvas) cover(r geometry.Rect) {
	for _, seen := range c.covered {
		if seen == r {
			return
		}
	}
	c.covered = append(c.covered, r)
}

func (c *canvas) empty() bool {
	return c.buf.Len() == 0
}

func (c *canvas) bytes() []byte {
	return c.buf.Bytes()
}

// escape writes enc as the body of a literal string
func escape(enc []byte) []byte {
	out := make([]byte, 0, len(enc)+8)
	for _, b := range enc {
		switch b {
		case '(', ')', '\\':
			out = append(out, '\\', b)
		case '\r':
			out = append(out, '\\', 'r')
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, b)
		}
	}
	return out
}
