package util

import (
	"strings"
	"unicode"
)

const defaultSnippetRunes = 420

// DisplaySnippet flattens s onto one line and cuts it to maxRunes.
func DisplaySnippet(s string, maxRunes int) string {
	return truncateRunes(flatten(s), maxRunes)
}

// DisplayEvidenceSnippet shows the part of a retrieved chunk that best matches
// query: the pair of adjacent sentences sharing the most query terms. With no
// overlap it falls back to the head of the chunk.
func DisplayEvidenceSnippet(chunkText, query string, maxRunes int) string {
	text := flatten(chunkText)
	terms := queryTerms(query)
	sentences := splitSentences(text)
	if len(terms) == 0 || len(sentences) < 2 {
		return truncateRunes(text, maxRunes)
	}

	hits := make([]int, len(sentences))
	for i, s := range sentences {
		hits[i] = countTerms(s, terms)
	}
	best, bestScore := -1, 0
	for i := 0; i+1 < len(sentences); i++ {
		if score := hits[i] + hits[i+1]; score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return truncateRunes(text, maxRunes)
	}
	switch {
	case hits[best] == 0:
		return truncateRunes(sentences[best+1], maxRunes)
	case hits[best+1] == 0:
		return truncateRunes(sentences[best], maxRunes)
	}
	return truncateRunes(sentences[best]+" "+sentences[best+1], maxRunes)
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "were": true,
	"what": true, "how": true, "why": true, "which": true, "that": true, "this": true,
	"with": true, "from": true, "does": true, "about": true, "into": true, "there": true,
}

func queryTerms(q string) map[string]bool {
	terms := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(f)) < 3 || stopWords[f] {
			continue
		}
		terms[f] = true
	}
	return terms
}

func countTerms(sentence string, terms map[string]bool) int {
	low := strings.ToLower(sentence)
	n := 0
	for t := range terms {
		if strings.Contains(low, t) {
			n++
		}
	}
	return n
}

func splitSentences(s string) []string {
	var out []string
	start := 0
	runes := []rune(s)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Only split when the terminator ends a word, so "3.5" stays whole.
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if x := strings.TrimSpace(string(runes[start : i+1])); x != "" {
			out = append(out, x)
		}
		start = i + 1
	}
	if x := strings.TrimSpace(string(runes[start:])); x != "" {
		out = append(out, x)
	}
	return out
}

func flatten(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, SanitizeText(s))
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = defaultSnippetRunes
	}
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(r[:maxRunes])) + "..."
}
