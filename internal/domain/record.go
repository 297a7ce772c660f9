package domain

// Audit verdicts. The machine sets one of the first two; a human may later
// overwrite with correct or incorrect.
const (
	VerdictPendingReview = "pending-review"
	VerdictNeedsReview   = "needs-review"
	VerdictCorrect       = "correct"
	VerdictIncorrect     = "incorrect"
)

const (
	SourceRule = "rule"
	SourceNone = "none"
)

// ReviewConfidenceThreshold splits matched tickets between needs-review
// (below) and pending-review (at or above).
const ReviewConfidenceThreshold = 0.5

const DefaultAuditGuidance = "Before audit use pending-review or needs-review. " +
	"After audit set correct or incorrect."

type CategorizationRecord struct {
	ProjectKey           string
	Ticket               string
	TicketURL            string
	TicketDescription    string
	Status               string
	Created              string
	AgeDays              *int
	RunbookPresent       bool
	CategoryOfIssue      string
	Category             string
	RulesUsed            []string
	CategorizationSource string
	Confidence           *float64
	HumanAudit           string
	HumanAuditGuidance   string
	HumanComments        string
}

// FeedbackRow is one row of an audited categorized-results table.
type FeedbackRow struct {
	Ticket               string
	ProjectKey           string
	TicketDescription    string
	CategoryOfIssue      string
	Category             string
	CategorizationSource string
	HumanAudit           string
	HumanComments        string
}

type RunStats struct {
	Matched     int
	Unmatched   int
	RunbookTrue int
	Skipped     int
	Failed      int
}

func (s RunStats) Written() int { return s.Matched + s.Unmatched }
