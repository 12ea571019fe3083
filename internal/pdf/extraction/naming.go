package extraction

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify turns a label into a field name: accents stripped, lower case,
// runs of anything that is not a letter or digit collapsed to one underscore.
// Hangul and other scripts are kept.
func Slugify(label string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, label)
	if err != nil {
		folded = label
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	if b.Len() == 0 {
		return "field"
	}
	return b.String()
}

// Uniquify de-duplicates names in order by suffixing _2, _3, ...
func Uniquify(names []string) []string {
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		taken[n] = false
	}

	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, n := range names {
		if !used[n] {
			used[n] = true
			out[i] = n
			continue
		}
		for ordinal := 2; ; ordinal++ {
			candidate := n + "_" + strconv.Itoa(ordinal)
			if _, original := taken[candidate]; original {
				continue
			}
			if !used[candidate] {
				used[candidate] = true
				out[i] = candidate
				break
			}
		}
	}
	return out
}

var (
	dateWords      = []string{"date", "dated", "dob", "날짜", "일자", "일시", "년월일"}
	signatureWords = []string{"signature", "sign", "signed", "서명", "날인"}
)

// classifyLabel guesses a kind from the label text
func classifyLabel(label string) FieldKind {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		for _, s := range signatureWords {
			if w == s || strings.HasSuffix(w, s) && !isASCII(s) {
				return KindSignature
			}
		}
	}
	for _, w := range words {
		for _, d := range dateWords {
			if w == d || strings.Contains(w, d) && !isASCII(d) {
				return KindDate
			}
		}
	}
	return KindText
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
