package extraction

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/document"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
)

// Layout tuning. Distances are in points.
const (
	lineTolerance     = 0.5  // fraction of the font size two baselines may differ by
	columnGap         = 1.5  // gap, in font sizes, that splits a line into segments
	minUnderscores    = 3    // shortest underscore run treated as a blank
	maxRuleHeight     = 2.0  // thicker rectangles are boxes, not rules
	minRuleWidth      = 24.0 // shorter rules are decoration
	minBoxWidth       = 24.0
	minBoxHeight      = 8.0
	maxCheckboxSide   = 20.0
	minCheckboxSide   = 5.0
	checkboxSkew      = 3.0 // allowed difference between checkbox width and height
	multilineHeight   = 30.0
	defaultLineHeight = 14.0
	rightLabelGap     = 40.0 // how far to the right of a checkbox its label may start

	weightProximity   = 0.6
	weightCue         = 0.2
	weightExclusivity = 0.2
)

type blankSource int

const (
	blankUnderscore blankSource = iota
	blankBox
	blankCheckbox
	blankRule
)

// blank is an empty region that looks like it wants a value
type blank struct {
	rect   geometry.Rect
	source blankSource
	order  int
}

// segment is a run of glyphs on one line that belong together
type segment struct {
	text       string
	x, right   float64
	baseline   float64
	fontSize   float64
	underscore bool
}

// label is a text segment that may name a blank
type label struct {
	text     string
	x, right float64
	baseline float64
	fontSize float64
	colon    bool
	order    int
}

func (l label) bottom() float64 { return l.baseline - 0.25*l.fontSize }
func (l label) top() float64    { return l.baseline + 0.85*l.fontSize }

// candidate pairs a label with a blank
type candidate struct {
	label    int
	blank    int
	distance float64
	score    float64
}

// layoutAnalyzer finds label and blank pairs on pages without form widgets
type layoutAnalyzer struct {
	floor       float64
	maxLabelGap float64
}

// analyzePage returns the fields of one page, not yet named uniquely
func (la *layoutAnalyzer) analyzePage(content *document.PageContent) []DetectedField {
	lines := groupLines(content.Glyphs)

	var segments []segment
	for _, line := range lines {
		segments = append(segments, splitSegments(line)...)
	}

	blanks := la.findBlanks(content, segments)
	labels := findLabels(segments)
	if len(blanks) == 0 || len(labels) == 0 {
		return nil
	}

	candidates := la.score(labels, blanks)
	return la.assign(candidates, labels, blanks, content.Page)
}

// groupLines clusters glyphs whose baselines lie within a fraction of the font size
func groupLines(glyphs []document.Glyph) [][]document.Glyph {
	sorted := make([]document.Glyph, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var lines [][]document.Glyph
	var current []document.Glyph
	var baseline float64
	for _, g := range sorted {
		tol := lineTolerance * math.Max(g.FontSize, 1)
		if len(current) > 0 && math.Abs(g.Y-baseline) > tol {
			lines = append(lines, current)
			current = nil
		}
		if len(current) == 0 {
			baseline = g.Y
		}
		current = append(current, g)
	}
	if len(current) > 0 {
		lines = append(lines, current)
	}

	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })
	}
	return lines
}

func glyphWidth(g document.Glyph) float64 {
	if g.Width > 0 {
		return g.Width
	}
	return 0.5 * g.FontSize * float64(len([]rune(g.Text)))
}

func isUnderscore(s string) bool {
	return s != "" && strings.Trim(s, "_") == ""
}

// splitSegments breaks a line at underscore boundaries and wide gaps
func splitSegments(line []document.Glyph) []segment {
	var out []segment
	var cur *segment

	flush := func() {
		if cur == nil {
			return
		}
		if cur.underscore {
			out = append(out, *cur)
		} else if text := strings.TrimSpace(cur.text); text != "" {
			cur.text = text
			out = append(out, *cur)
		}
		cur = nil
	}

	for _, g := range line {
		under := isUnderscore(g.Text)
		blankGlyph := strings.TrimSpace(g.Text) == ""
		w := glyphWidth(g)

		if cur != nil {
			gap := g.X - cur.right
			switch {
			case gap > columnGap*math.Max(cur.fontSize, 1):
				flush()
			case under != cur.underscore && !blankGlyph:
				flush()
			case cur.underscore && blankGlyph:
				flush()
			}
		}

		if cur == nil {
			if blankGlyph {
				continue
			}
			cur = &segment{x: g.X, right: g.X, baseline: g.Y, fontSize: g.FontSize, underscore: under}
		}
		cur.text += g.Text
		if !blankGlyph {
			cur.right = g.X + w
		}
		if g.FontSize > cur.fontSize {
			cur.fontSize = g.FontSize
		}
	}
	flush()
	return out
}

func findLabels(segments []segment) []label {
	var labels []label
	for _, s := range segments {
		if s.underscore || !hasLetterOrDigit(s.text) {
			continue
		}
		text := strings.TrimSpace(strings.Trim(s.text, "_"))
		colon := strings.HasSuffix(text, ":") || strings.HasSuffix(text, "：")
		text = strings.TrimSpace(strings.TrimRight(text, ":："))
		if text == "" {
			continue
		}
		labels = append(labels, label{
			text:     text,
			x:        s.x,
			right:    s.right,
			baseline: s.baseline,
			fontSize: s.fontSize,
			colon:    colon,
			order:    len(labels),
		})
	}
	return labels
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// findBlanks collects underscore runs, empty boxes and rules. Later sources
// that overlap an earlier blank are dropped.
func (la *layoutAnalyzer) findBlanks(content *document.PageContent, segments []segment) []blank {
	page := content.Page
	var blanks []blank

	add := func(r geometry.Rect, src blankSource) {
		r.Page = page.Index
		if r.Within(page) != nil {
			return
		}
		for _, b := range blanks {
			if b.rect.Overlaps(r) {
				return
			}
		}
		blanks = append(blanks, blank{rect: r, source: src, order: len(blanks)})
	}

	for _, s := range segments {
		if !s.underscore || len(s.text) < minUnderscores {
			continue
		}
		add(geometry.Rect{
			X:      s.x,
			Y:      s.baseline - 0.25*s.fontSize,
			Width:  s.right - s.x,
			Height: 1.25 * s.fontSize,
		}, blankUnderscore)
	}

	for _, r := range content.Rects {
		if r.Height <= maxRuleHeight || r.Width > 0.9*page.Width && r.Height > 0.5*page.Height {
			continue
		}
		if containsGlyph(r, content.Glyphs) {
			continue
		}
		switch {
		case r.Width <= maxCheckboxSide && r.Height <= maxCheckboxSide &&
			r.Width >= minCheckboxSide && r.Height >= minCheckboxSide &&
			math.Abs(r.Width-r.Height) <= checkboxSkew:
			add(r, blankCheckbox)
		case r.Width >= minBoxWidth && r.Height >= minBoxHeight:
			add(r, blankBox)
		}
	}

	for _, r := range content.Rects {
		if r.Height > maxRuleHeight || r.Width < minRuleWidth {
			continue
		}
		add(geometry.Rect{
			X:      r.X,
			Y:      r.Top(),
			Width:  r.Width,
			Height: ruleLineHeight(r, content.Glyphs),
		}, blankRule)
	}

	return blanks
}

// ruleLineHeight sizes the writing area above a rule from nearby text
func ruleLineHeight(r geometry.Rect, glyphs []document.Glyph) float64 {
	for _, g := range glyphs {
		if math.Abs(g.Y-r.Top()) <= g.FontSize && g.FontSize > 0 {
			return 1.25 * g.FontSize
		}
	}
	return defaultLineHeight
}

func containsGlyph(r geometry.Rect, glyphs []document.Glyph) bool {
	for _, g := range glyphs {
		if strings.TrimSpace(g.Text) == "" {
			continue
		}
		if r.Contains(geometry.Point{X: g.X + glyphWidth(g)/2, Y: g.Y + 0.3*g.FontSize}) {
			return true
		}
	}
	return false
}

// relate measures how a label sits relative to a blank. ok is false when the
// label cannot name the blank.
func (la *layoutAnalyzer) relate(l label, b blank) (distance float64, ok bool) {
	r := b.rect
	sameRow := l.bottom() < r.Top() && l.top() > r.Y ||
		math.Abs(l.baseline-(r.Y+0.25*l.fontSize)) <= l.fontSize

	// Left of the blank on the same row.
	if sameRow && l.right <= r.X+1 {
		d := math.Max(0, r.X-l.right)
		if d <= la.maxLabelGap {
			return d, true
		}
	}

	// Checkboxes are usually labelled on the right.
	if b.source == blankCheckbox && sameRow && l.x >= r.Right()-1 {
		d := math.Max(0, l.x-r.Right())
		if d <= rightLabelGap {
			return d, true
		}
	}

	// Directly above, overlapping horizontally.
	if l.bottom() >= r.Top()-1 && l.x < r.Right() && l.right > r.X-l.fontSize {
		d := l.bottom() - r.Top() + 0.5*math.Abs(l.x-r.X)
		if d <= la.maxLabelGap/2 {
			return math.Max(0, d), true
		}
	}

	return 0, false
}

func (la *layoutAnalyzer) score(labels []label, blanks []blank) []candidate {
	var candidates []candidate
	perBlank := make(map[int]int)
	for bi, b := range blanks {
		for li, l := range labels {
			d, ok := la.relate(l, b)
			if !ok {
				continue
			}
			candidates = append(candidates, candidate{label: li, blank: bi, distance: d})
			perBlank[bi]++
		}
	}

	for i := range candidates {
		c := &candidates[i]
		l, b := labels[c.label], blanks[c.blank]

		proximity := 1 - c.distance/la.maxLabelGap
		proximity = math.Max(0, math.Min(1, proximity))

		cue := 0.0
		switch {
		case l.colon:
			cue = 1
		case b.source == blankUnderscore || b.source == blankBox || b.source == blankCheckbox:
			cue = 0.5
		}

		exclusivity := 1 / float64(perBlank[c.blank])
		c.score = weightProximity*proximity + weightCue*cue + weightExclusivity*exclusivity
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		first, second := labels[a.label], labels[b.label]
		if first.x != second.x {
			return first.x < second.x
		}
		if first.baseline != second.baseline {
			return first.baseline > second.baseline
		}
		return blanks[a.blank].order < blanks[b.blank].order
	})
	return candidates
}

// assign pairs labels and blanks greedily, best score first, one to one
func (la *layoutAnalyzer) assign(candidates []candidate, labels []label, blanks []blank, page geometry.Page) []DetectedField {
	usedLabel := make(map[int]bool)
	usedBlank := make(map[int]bool)

	var fields []DetectedField
	for _, c := range candidates {
		if usedLabel[c.label] || usedBlank[c.blank] {
			continue
		}
		if c.score < la.floor {
			continue
		}
		usedLabel[c.label] = true
		usedBlank[c.blank] = true

		l, b := labels[c.label], blanks[c.blank]
		kind := classifyLabel(l.text)
		multiline := false
		if b.source == blankCheckbox {
			kind = KindCheckbox
		} else if kind == KindText && b.rect.Height >= multilineHeight {
			multiline = true
		}

		rect := b.rect
		rect.Page = page.Index
		fields = append(fields, DetectedField{
			Name:       Slugify(l.text),
			Label:      l.text,
			Kind:       kind,
			Geometry:   rect,
			Confidence: Confidence(c.score),
			Multiline:  multiline,
		})
	}
	return fields
}
