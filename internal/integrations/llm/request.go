// Package llm is the boundary to external reasoning tools that propose rules:
// the request they receive, the response they must return, and a source
// backed by the Anthropic Messages API.
package llm

import (
	"bytes"
	"encoding/json"
	"strings"

	"triagebot/internal/domain"
)

const responseContract = "RESPONSE FORMAT (STRICT):\n" +
	"Return ONLY valid JSON. Do not include markdown, prose, code fences, or explanations.\n" +
	`Required top-level shape: {"proposals": [ ... ]}` + "\n" +
	"Each proposal should be an object containing rule fields such as " +
	`"Rule Pattern", "Match Field", "Failure Category", and "Category".`

type feedbackRow struct {
	Ticket            string `json:"Ticket"`
	ProjectKey        string `json:"Project Key"`
	TicketDescription string `json:"Ticket Description"`
	CategoryOfIssue   string `json:"Category of Issue"`
	Category          string `json:"Category"`
	HumanComments     string `json:"Human Comments"`
}

type requestPayload struct {
	FeedbackRows []feedbackRow `json:"feedback_rows"`
}

// BuildRequest renders the full text sent to a reasoning tool: the operator
// prompt, the strict response contract and the feedback rows as JSON.
func BuildRequest(prompt string, rows []domain.FeedbackRow) (string, error) {
	payload := requestPayload{FeedbackRows: make([]feedbackRow, 0, len(rows))}
	for _, r := range rows {
		payload.FeedbackRows = append(payload.FeedbackRows, feedbackRow{
			Ticket:            r.Ticket,
			ProjectKey:        r.ProjectKey,
			TicketDescription: r.TicketDescription,
			CategoryOfIssue:   r.CategoryOfIssue,
			Category:          r.Category,
			HumanComments:     r.HumanComments,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n")
	b.WriteString(responseContract)
	b.WriteString("\n\nINPUT JSON:\n")
	b.WriteString(strings.TrimRight(buf.String(), "\n"))
	b.WriteString("\n")
	return b.String(), nil
}
