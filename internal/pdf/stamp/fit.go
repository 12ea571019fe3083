package stamp

import (
	"bytes"
	"math"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"golang.org/x/text/encoding/charmap"
)

// Text layout constants, in points
const (
	padding     = 2.0
	minFontSize = 6
	maxFontSize = 12
	lineSpacing = 1.2
	capHeight   = 0.7 // of the font size, used to centre a line vertically
	descent     = 0.22
)

// Core fonts used for stamping. None of them needs embedding.
const (
	fontText      = "Helvetica"
	fontSignature = "Times-Italic"
	fontSymbols   = "ZapfDingbats"
)

// fontSizeFor picks a font size that fits a single line into height
func fontSizeFor(height float64) int {
	size := int(math.Round(height * 0.7))
	if size < minFontSize {
		return minFontSize
	}
	if size > maxFontSize {
		return maxFontSize
	}
	return size
}

// winAnsi encodes s for a simple font with /WinAnsiEncoding. Runes without a
// code are replaced with '?' and reported through lossy.
func winAnsi(s string) (enc []byte, lossy bool) {
	enc = make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
			lossy = true
		}
		enc = append(enc, b)
	}
	return enc, lossy
}

// singleLine flattens line breaks and tabs into spaces
func singleLine(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', '\t':
			return ' '
		}
		return r
	}, s)
}

// textWidth measures encoded text with the core font metrics
func textWidth(enc []byte, fontName string, size int) float64 {
	if len(enc) == 0 {
		return 0
	}
	codes := make([]rune, len(enc))
	for i, b := range enc {
		codes[i] = rune(b)
	}
	return font.TextWidth(string(codes), fontName, size)
}

// fitCount returns how many leading bytes of enc fit into maxWidth
func fitCount(enc []byte, fontName string, size int, maxWidth float64) int {
	width := 0.0
	for i, b := range enc {
		width += textWidth([]byte{b}, fontName, size)
		if width > maxWidth+1e-9 {
			return i
		}
	}
	return len(enc)
}

// truncate cuts enc to maxWidth
func truncate(enc []byte, fontName string, size int, maxWidth float64) (out []byte, truncated bool) {
	n := fitCount(enc, fontName, size, maxWidth)
	if n == len(enc) {
		return enc, false
	}
	return bytes.TrimRight(enc[:n], " "), true
}

// wrap breaks enc into lines no wider than maxWidth. Explicit line breaks are
// kept; words longer than a line are split. wrapped reports whether any line
// had to be broken.
func wrap(enc []byte, fontName string, size int, maxWidth float64) (lines [][]byte, wrapped bool) {
	enc = bytes.ReplaceAll(enc, []byte("\r\n"), []byte("\n"))
	paragraphs := bytes.Split(enc, []byte("\n"))

	fits := func(b []byte) bool { return textWidth(b, fontName, size) <= maxWidth+1e-9 }

	for _, paragraph := range paragraphs {
		words := bytes.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, nil)
			continue
		}

		var current []byte
		for _, word := range words {
			for !fits(word) {
				if len(current) > 0 {
					lines = append(lines, current)
					current = nil
				}
				n := fitCount(word, fontName, size, maxWidth)
				if n == 0 {
					n = 1
				}
				lines = append(lines, word[:n])
				word = word[n:]
				wrapped = true
			}
			if len(word) == 0 {
				continue
			}
			if len(current) == 0 {
				current = append([]byte(nil), word...)
				continue
			}
			candidate := append(append(append([]byte(nil), current...), ' '), word...)
			if fits(candidate) {
				current = candidate
				continue
			}
			lines = append(lines, current)
			current = append([]byte(nil), word...)
			wrapped = true
		}
		if len(current) > 0 {
			lines = append(lines, current)
		}
	}
	return lines, wrapped
}
