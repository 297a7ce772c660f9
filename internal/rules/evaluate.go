package rules

import "triagebot/internal/domain"

// Evaluate matches every enabled, in-scope rule against the ticket. rs must
// already be priority-sorted; both returned lists keep that order. Meta rules
// are reported separately from category rules.
func Evaluate(t domain.Ticket, rs []domain.Rule, projectKey string) (category, meta []domain.Rule) {
	texts := make(map[string]string)
	for _, r := range rs {
		if !r.Enabled() || !r.AppliesTo(projectKey) {
			continue
		}
		text, ok := texts[r.MatchField]
		if !ok {
			text = FieldText(t, r.MatchField)
			texts[r.MatchField] = text
		}
		if !r.Re.MatchString(text) {
			continue
		}
		if r.IsMeta() {
			meta = append(meta, r)
		} else {
			category = append(category, r)
		}
	}
	return category, meta
}
