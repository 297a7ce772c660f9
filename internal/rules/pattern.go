package rules

import (
	"regexp"
	"strings"
)

var patternTokenRe = regexp.MustCompile(`[A-Za-z0-9]{3,}`)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "this": true, "to": true, "was": true,
	"we": true, "with": true,
}

// PatternFromText derives a pattern for a hand-made rule from the reason a
// human gave plus the ticket summary. Falls back to the ticket key.
func PatternFromText(summary, reason, ticketKey string) string {
	var terms []string
	seen := make(map[string]bool)
	for _, tok := range patternTokenRe.FindAllString(strings.ToLower(reason+" "+summary), -1) {
		if stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	if len(terms) == 0 {
		return regexp.QuoteMeta(ticketKey)
	}
	return PatternFromTerms(terms)
}

// PatternFromTerms escapes terms and joins the first two with ".*" so they
// must appear in order. A single term is used alone.
func PatternFromTerms(terms []string) string {
	switch len(terms) {
	case 0:
		return ""
	case 1:
		return regexp.QuoteMeta(terms[0])
	default:
		return regexp.QuoteMeta(terms[0]) + ".*" + regexp.QuoteMeta(terms[1])
	}
}
