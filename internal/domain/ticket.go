package domain

import "strings"

// Ticket is a normalized tracker ticket. It is produced upstream and never
// mutated by categorization.
type Ticket struct {
	Ticket      TicketInfo   `json:"ticket"`
	Description string       `json:"description"`
	Labels      []string     `json:"labels"`
	Comments    []Comment    `json:"comments"`
	Status      TicketStatus `json:"status"`
}

type TicketInfo struct {
	Key     string  `json:"key"`
	Summary string  `json:"summary"`
	Project Project `json:"project"`
}

type Project struct {
	Key string `json:"key"`
}

type Comment struct {
	Author  string `json:"author"`
	Created string `json:"created"`
	Body    string `json:"body"`
}

type TicketStatus struct {
	Current string `json:"current"`
	Created string `json:"created"`
}

func (t Ticket) Key() string        { return t.Ticket.Key }
func (t Ticket) Summary() string    { return t.Ticket.Summary }
func (t Ticket) ProjectKey() string { return t.Ticket.Project.Key }

// ProjectFromKey returns the prefix of a "<PROJECT>-<digits>" ticket key.
func ProjectFromKey(key string) string {
	if i := strings.Index(key, "-"); i > 0 {
		return key[:i]
	}
	return ""
}
