package ml

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"triagebot/internal/domain"
	"triagebot/internal/feedback"
)

// Dataset builds training texts from labels. A label without a ticket JSON
// falls back to its Category of Issue as text.
func Dataset(labels []feedback.Label, texts map[string]domain.Ticket) (x, y []string) {
	for _, l := range labels {
		text := ""
		if t, ok := texts[l.Ticket]; ok {
			text = FeatureText(t)
		}
		if text == "" {
			text = l.CategoryOfIssue
		}
		x = append(x, text)
		y = append(y, l.CategoryOfIssue)
	}
	return x, y
}

// Underrepresented lists classes with fewer than three samples.
func Underrepresented(labels []string) []string {
	var out []string
	for c, n := range classCounts(labels) {
		if n < 3 {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// WriteReport writes a human-readable training summary.
func WriteReport(path string, m *Model, labels []string, now time.Time) error {
	var b strings.Builder
	b.WriteString("Training Report\n===============\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", now.UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&b, "Training samples: %d\n", m.Metrics.Samples)
	fmt.Fprintf(&b, "Classes: %d\n", m.Metrics.Classes)
	fmt.Fprintf(&b, "CV Accuracy: %v\n", m.Metrics.CVAccuracy)
	fmt.Fprintf(&b, "Confidence threshold: %v\n", ConfidenceThreshold)
	b.WriteString("\nClass distribution:\n")

	counts := classCounts(labels)
	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		fmt.Fprintf(&b, "  %s: %d\n", c, counts[c])
	}
	fmt.Fprintf(&b, "\nClassification Report:\n%s\n", m.Metrics.Report)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
