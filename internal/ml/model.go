package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// MinTrainingSamples is the smallest labeled set Train accepts.
	MinTrainingSamples = 20
	// ConfidenceThreshold is the lowest prediction confidence worth a rule.
	ConfidenceThreshold = 0.4

	maxFeatures  = 5000
	epochs       = 300
	learningRate = 1.0
	l2           = 1e-4
)

var ErrTooFewSamples = errors.New("not enough training samples")

// Model is a trained classifier. It is saved as a single JSON document that
// also carries the Category of Issue to Category map.
type Model struct {
	Vectorizer  *Vectorizer       `json:"vectorizer"`
	Classes     []string          `json:"classes"`
	Weights     [][]float64       `json:"weights"`
	Bias        []float64         `json:"bias"`
	CategoryMap map[string]string `json:"category_map"`
	Metrics     Metrics           `json:"metrics"`
}

type Metrics struct {
	// CVAccuracy is the mean cross-validated accuracy, or -1 when some class
	// has too few samples to fold.
	CVAccuracy float64 `json:"cv_accuracy"`
	Samples    int     `json:"samples"`
	Classes    int     `json:"classes"`
	Report     string  `json:"report"`
}

type Term struct {
	Term  string
	Score float64
}

// Train fits a model on texts labeled with a Category of Issue each.
func Train(texts, labels []string) (*Model, error) {
	if len(texts) != len(labels) {
		return nil, fmt.Errorf("texts and labels differ in length: %d != %d", len(texts), len(labels))
	}
	if len(texts) < MinTrainingSamples {
		return nil, fmt.Errorf("%w: need at least %d, got %d", ErrTooFewSamples, MinTrainingSamples, len(texts))
	}

	counts := classCounts(labels)
	minCount := len(labels)
	for _, c := range counts {
		minCount = min(minCount, c)
	}
	folds := min(3, minCount)

	cv := -1.0
	if folds >= 2 {
		cv = crossValidate(texts, labels, folds)
	}

	m := fit(texts, labels)
	predicted := make([]string, len(texts))
	for i, text := range texts {
		predicted[i], _ = m.Predict(text)
	}
	m.Metrics = Metrics{
		CVAccuracy: math.Round(cv*10000) / 10000,
		Samples:    len(texts),
		Classes:    len(counts),
		Report:     classificationReport(labels, predicted),
	}
	return m, nil
}

func fit(texts, labels []string) *Model {
	minDF := 2
	if len(texts) < 50 {
		minDF = 1
	}
	vec := fitVectorizer(texts, minDF, maxFeatures)

	counts := classCounts(labels)
	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	classIdx := make(map[string]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}

	k, n := len(classes), len(texts)
	x := make([]sparseVec, n)
	y := make([]int, n)
	sampleWeight := make([]float64, n)
	for i := range texts {
		x[i] = vec.transform(texts[i])
		y[i] = classIdx[labels[i]]
		// balanced class weights
		sampleWeight[i] = float64(n) / float64(k*counts[labels[i]])
	}

	m := &Model{Vectorizer: vec, Classes: classes, Bias: make([]float64, k)}
	m.Weights = make([][]float64, k)
	for c := range m.Weights {
		m.Weights[c] = make([]float64, len(vec.Terms))
	}

	gradW := make([][]float64, k)
	for c := range gradW {
		gradW[c] = make([]float64, len(vec.Terms))
	}
	gradB := make([]float64, k)
	probs := make([]float64, k)

	for epoch := 0; epoch < epochs; epoch++ {
		for c := range gradW {
			clear(gradW[c])
		}
		clear(gradB)
		for i := range x {
			m.softmax(x[i], probs)
			for c := 0; c < k; c++ {
				g := probs[c]
				if c == y[i] {
					g -= 1
				}
				g *= sampleWeight[i]
				gradB[c] += g
				for j, v := range x[i] {
					gradW[c][j] += g * v
				}
			}
		}
		for c := 0; c < k; c++ {
			m.Bias[c] -= learningRate * gradB[c] / float64(n)
			for j := range m.Weights[c] {
				m.Weights[c][j] -= learningRate * (gradW[c][j]/float64(n) + l2*m.Weights[c][j])
			}
		}
	}
	return m
}

func (m *Model) softmax(x sparseVec, out []float64) {
	maxScore := math.Inf(-1)
	for c := range m.Classes {
		s := m.Bias[c]
		for j, v := range x {
			s += m.Weights[c][j] * v
		}
		out[c] = s
		maxScore = math.Max(maxScore, s)
	}
	var sum float64
	for c := range out {
		out[c] = math.Exp(out[c] - maxScore)
		sum += out[c]
	}
	for c := range out {
		out[c] /= sum
	}
}

// Predict returns the most likely Category of Issue and its probability.
// Empty text predicts uncategorized with zero confidence.
func (m *Model) Predict(text string) (string, float64) {
	if strings.TrimSpace(text) == "" || len(m.Classes) == 0 {
		return "uncategorized", 0
	}
	probs := make([]float64, len(m.Classes))
	m.softmax(m.Vectorizer.transform(text), probs)
	best := 0
	for c := range probs {
		if probs[c] > probs[best] {
			best = c
		}
	}
	return m.Classes[best], probs[best]
}

// Category maps a predicted Category of Issue to its coarse Category.
func (m *Model) Category(categoryOfIssue string) string {
	if c, ok := m.CategoryMap[categoryOfIssue]; ok && c != "" {
		return c
	}
	return "unknown"
}

// TopTerms returns up to n vocabulary terms of text ranked by TF-IDF weight.
func (m *Model) TopTerms(text string, n int) []Term {
	vec := m.Vectorizer.transform(text)
	out := make([]Term, 0, len(vec))
	for j, w := range vec {
		if w > 0 {
			out = append(out, Term{Term: m.Vectorizer.Terms[j], Score: w})
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Term < out[b].Term
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (m *Model) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if m.Vectorizer == nil || len(m.Weights) != len(m.Classes) || len(m.Bias) != len(m.Classes) {
		return nil, fmt.Errorf("model %s is malformed", path)
	}
	for _, row := range m.Weights {
		if len(row) != len(m.Vectorizer.Terms) {
			return nil, fmt.Errorf("model %s is malformed", path)
		}
	}
	m.Vectorizer.index()
	return &m, nil
}

func classCounts(labels []string) map[string]int {
	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	return counts
}

// crossValidate runs stratified k-fold: the i-th sample of each class lands
// in fold i mod k.
func crossValidate(texts, labels []string, k int) float64 {
	fold := make([]int, len(labels))
	seen := make(map[string]int)
	for i, l := range labels {
		fold[i] = seen[l] % k
		seen[l]++
	}

	var total float64
	for f := 0; f < k; f++ {
		var trainX, trainY, testX, testY []string
		for i := range texts {
			if fold[i] == f {
				testX = append(testX, texts[i])
				testY = append(testY, labels[i])
			} else {
				trainX = append(trainX, texts[i])
				trainY = append(trainY, labels[i])
			}
		}
		m := fit(trainX, trainY)
		correct := 0
		for i, text := range testX {
			if got, _ := m.Predict(text); got == testY[i] {
				correct++
			}
		}
		total += float64(correct) / float64(len(testX))
	}
	return total / float64(k)
}

func classificationReport(truth, predicted []string) string {
	classes := make([]string, 0)
	for c := range classCounts(truth) {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	var b strings.Builder
	fmt.Fprintf(&b, "%-40s %9s %9s %9s %9s\n", "class", "precision", "recall", "f1", "support")
	for _, c := range classes {
		var tp, fp, fn int
		for i := range truth {
			switch {
			case truth[i] == c && predicted[i] == c:
				tp++
			case truth[i] != c && predicted[i] == c:
				fp++
			case truth[i] == c:
				fn++
			}
		}
		precision := ratio(tp, tp+fp)
		recall := ratio(tp, tp+fn)
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		fmt.Fprintf(&b, "%-40s %9.2f %9.2f %9.2f %9d\n", c, precision, recall, f1, tp+fn)
	}
	return b.String()
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
