package util

import "strings"

var ligatures = strings.NewReplacer(
	"\ufb00", "ff",
	"\ufb01", "fi",
	"\ufb02", "fl",
	"\ufb03", "ffi",
	"\ufb04", "ffl",
	"\u00ad", "",
	"\ufffd", "",
	"\u00a0", " ",
)

// SanitizeText cleans text extracted from a PDF page. NUL and other control
// bytes are dropped (Postgres text rejects NUL), ligatures are expanded and
// words hyphenated across a line break are rejoined.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = ligatures.Replace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, "-\n", "")
	return strings.TrimSpace(s)
}
