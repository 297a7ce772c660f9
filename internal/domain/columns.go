package domain

// Rule table columns, in file order.
const (
	ColProjectKey      = "Project Key"
	ColRuleID          = "RuleID"
	ColRulePattern     = "Rule Pattern"
	ColMatchField      = "Match Field"
	ColFailureCategory = "Failure Category"
	ColCategory        = "Category"
	ColPriority        = "Priority"
	ColConfidence      = "Confidence"
	ColCreatedBy       = "Created By"
	ColHitCount        = "Hit Count"
)

var RuleColumns = []string{
	ColProjectKey, ColRuleID, ColRulePattern, ColMatchField, ColFailureCategory,
	ColCategory, ColPriority, ColConfidence, ColCreatedBy, ColHitCount,
}

// Categorized-results table columns, in file order.
const (
	ColTicket               = "Ticket"
	ColTicketURL            = "Ticket URL"
	ColTicketDescription    = "Ticket Description"
	ColStatus               = "Status"
	ColCreated              = "Created"
	ColAge                  = "Age"
	ColRunbookPresent       = "Runbook Present"
	ColCategoryOfIssue      = "Category of Issue"
	ColRulesUsed            = "Rules Used"
	ColCategorizationSource = "Categorization Source"
	ColLLMConfidence        = "LLM Confidence"
	ColHumanAudit           = "Human Audit for Accuracy"
	ColHumanAuditGuidance   = "Human Audit Guidance"
	ColHumanComments        = "Human Comments"
)

var ResultColumns = []string{
	ColProjectKey, ColTicket, ColTicketURL, ColTicketDescription, ColStatus,
	ColCreated, ColAge, ColRunbookPresent, ColCategoryOfIssue, ColCategory,
	ColRulesUsed, ColCategorizationSource, ColLLMConfidence, ColHumanAudit,
	ColHumanAuditGuidance, ColHumanComments,
}

// FeedbackColumns are required to feed a results table back into the
// rule-proposal pipeline.
var FeedbackColumns = []string{
	ColTicket, ColProjectKey, ColTicketDescription, ColCategoryOfIssue,
	ColCategory, ColHumanAudit, ColHumanComments,
}
