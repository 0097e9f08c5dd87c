package calibration

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText canonicalizes free-text breed and trait input for lookup:
// Unicode case folding, diacritics stripped from Latin letters (so "Shiba Inú"
// matches "shiba inu"), "ё" folded to "е", and runs of separators collapsed
// to a single space. Other scripts keep their letters intact, so "й" stays
// distinct from "и".
func NormalizeText(s string) string {
	stripLatin := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	t := transform.Chain(
		norm.NFKC,
		runes.If(runes.In(unicode.Latin), stripLatin, nil),
		cases.Fold(),
		runes.Map(foldYo),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = strings.ToLower(s)
	}

	fields := strings.FieldsFunc(out, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_' || r == ',' || r == '.' || r == '/'
	})
	return strings.Join(fields, " ")
}

func foldYo(r rune) rune {
	if r == 'ё' {
		return 'е'
	}
	return r
}
