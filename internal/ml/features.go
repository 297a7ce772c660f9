// Package ml is the local ticket classifier: TF-IDF features over ticket
// text feeding a softmax linear model. It proposes rules for tickets no rule
// covers yet.
package ml

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"triagebot/internal/domain"
)

// FeatureText joins the non-empty summary, description, labels and comment
// bodies of a ticket with spaces. It is the same surface rules match on.
func FeatureText(t domain.Ticket) string {
	var parts []string
	if s := t.Summary(); s != "" {
		parts = append(parts, s)
	}
	if t.Description != "" {
		parts = append(parts, t.Description)
	}
	if len(t.Labels) > 0 {
		parts = append(parts, strings.Join(t.Labels, " "))
	}
	for _, c := range t.Comments {
		if c.Body != "" {
			parts = append(parts, c.Body)
		}
	}
	return strings.Join(parts, " ")
}

var stopWords = map[string]bool{
	"a": true, "about": true, "after": true, "all": true, "also": true, "an": true,
	"and": true, "any": true, "are": true, "as": true, "at": true, "be": true,
	"been": true, "but": true, "by": true, "can": true, "could": true, "did": true,
	"do": true, "does": true, "for": true, "from": true, "had": true, "has": true,
	"have": true, "he": true, "her": true, "his": true, "how": true, "if": true,
	"in": true, "into": true, "is": true, "it": true, "its": true, "may": true,
	"more": true, "no": true, "not": true, "of": true, "on": true, "or": true,
	"our": true, "out": true, "she": true, "should": true, "so": true, "some": true,
	"such": true, "than": true, "that": true, "the": true, "their": true, "them": true,
	"then": true, "there": true, "these": true, "they": true, "this": true, "to": true,
	"up": true, "was": true, "we": true, "were": true, "what": true, "when": true,
	"which": true, "while": true, "who": true, "will": true, "with": true, "would": true,
	"you": true, "your": true,
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 1 && !stopWords[cur.String()] {
			tokens = append(tokens, cur.String())
		}
		cur.Reset()
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// terms returns unigrams followed by adjacent bigrams.
func terms(s string) []string {
	toks := tokenize(s)
	out := make([]string, 0, 2*len(toks))
	out = append(out, toks...)
	for i := 0; i+1 < len(toks); i++ {
		out = append(out, toks[i]+" "+toks[i+1])
	}
	return out
}

type sparseVec = map[int]float64

// Vectorizer maps text to L2-normalized, sublinear TF-IDF vectors.
type Vectorizer struct {
	Terms []string  `json:"terms"`
	IDF   []float64 `json:"idf"`

	vocab map[string]int
}

// fitVectorizer keeps terms present in at least minDF documents, capped to
// the maxFeatures most frequent ones.
func fitVectorizer(texts []string, minDF, maxFeatures int) *Vectorizer {
	df := make(map[string]int)
	tf := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]bool)
		for _, term := range terms(text) {
			tf[term]++
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}

	var kept []string
	for term, d := range df {
		if d >= minDF {
			kept = append(kept, term)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if tf[kept[i]] != tf[kept[j]] {
			return tf[kept[i]] > tf[kept[j]]
		}
		return kept[i] < kept[j]
	})
	if maxFeatures > 0 && len(kept) > maxFeatures {
		kept = kept[:maxFeatures]
	}
	sort.Strings(kept)

	n := float64(len(texts))
	v := &Vectorizer{Terms: kept, IDF: make([]float64, len(kept))}
	for i, term := range kept {
		v.IDF[i] = math.Log(n/float64(df[term])) + 1.0
	}
	v.index()
	return v
}

func (v *Vectorizer) index() {
	v.vocab = make(map[string]int, len(v.Terms))
	for i, term := range v.Terms {
		v.vocab[term] = i
	}
}

func (v *Vectorizer) transform(text string) sparseVec {
	counts := make(map[int]int)
	for _, term := range terms(text) {
		if i, ok := v.vocab[term]; ok {
			counts[i]++
		}
	}
	vec := make(sparseVec, len(counts))
	var norm float64
	for i, c := range counts {
		w := (1 + math.Log(float64(c))) * v.IDF[i]
		vec[i] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
