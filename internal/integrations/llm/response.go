package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"triagebot/internal/domain"
	"triagebot/internal/proposal"
)

var (
	jsonFenceRe    = regexp.MustCompile("(?is)```json\\s*(\\{.*?\\})\\s*```")
	genericFenceRe = regexp.MustCompile("(?s)```\\s*(\\{.*?\\})\\s*```")
)

// decodeOutput finds the JSON document in tool output. It tries the whole
// text, then ```json fences, then bare fences, then the widest {...} slice.
func decodeOutput(text string) (any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	var v any
	if json.Unmarshal([]byte(text), &v) == nil {
		return v, true
	}
	for _, re := range []*regexp.Regexp{jsonFenceRe, genericFenceRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if json.Unmarshal([]byte(strings.TrimSpace(m[1])), &v) == nil {
				return v, true
			}
		}
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start != -1 && end > start {
		if json.Unmarshal([]byte(text[start:end+1]), &v) == nil {
			return v, true
		}
	}
	return nil, false
}

// ExtractProposals parses a reasoning tool's output into proposals. Entries
// of the proposals list that are not objects are dropped. Failures carry a
// proposal reason code.
func ExtractProposals(output string) ([]domain.Proposal, error) {
	v, ok := decodeOutput(output)
	if !ok {
		return nil, proposal.Fail(proposal.ReasonInvalidJSON, errors.New("output is not valid JSON"))
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, proposal.Fail(proposal.ReasonInvalidShape, errors.New("top level is not an object"))
	}
	list, ok := obj["proposals"].([]any)
	if !ok {
		return nil, proposal.Fail(proposal.ReasonInvalidShape, errors.New("JSON must contain a proposals list"))
	}
	if len(list) == 0 {
		return nil, proposal.Fail(proposal.ReasonNoProposals, nil)
	}
	out := make([]domain.Proposal, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, domain.Proposal(m))
		}
	}
	return out, nil
}

// Preview truncates tool output for logging.
func Preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
