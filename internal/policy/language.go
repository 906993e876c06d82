package policy

import (
	"strings"
	"unicode"
)

// DetectLanguage counts Hangul codepoints against Latin-letter codepoints.
// English wins only when Latin strictly outnumbers Hangul; ties, empty
// input and other scripts all classify as Korean. This is a deliberate
// two-script heuristic for a ko/en portfolio, not a language detector —
// Cyrillic, CJK ideographs etc. all land on the Korean default.
func DetectLanguage(text string) Lang {
	var hangul, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if latin > hangul {
		return English
	}
	return Korean
}

// InDomain reports whether the query contains any allowed-topic keyword
// from either language as a case-insensitive substring. No stemming, no
// fuzzy matching: paraphrases without literal keyword overlap are a known
// false negative, backstopped by the post-retrieval score gate.
func (p *Policy) InDomain(query string) bool {
	q := strings.ToLower(query)
	for _, list := range [][]string{p.AllowedTopics.Ko, p.AllowedTopics.En} {
		for _, kw := range list {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(q, kw) {
				return true
			}
		}
	}
	return false
}
