package proposal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"triagebot/internal/domain"
	"triagebot/internal/rules"
	"triagebot/internal/table"
)

func TestNormalizeDefaults(t *testing.T) {
	r, ok := Normalize(domain.Proposal{"pattern": "fan.*fail"}, "HPC", "R010", nil, nil)
	require.True(t, ok)
	require.Equal(t, "HPC", r.ProjectKey)
	require.Equal(t, "R010", r.RuleID)
	require.Equal(t, "fan.*fail", r.Pattern)
	require.Equal(t, domain.DefaultMatchField, r.MatchField)
	require.Equal(t, domain.DefaultFailureCategory, r.FailureCategory)
	require.Equal(t, domain.UnknownCategory, r.Category)
	require.Equal(t, 80, r.Priority)
	require.Equal(t, 1.0, r.Confidence)
	require.Equal(t, domain.DefaultCreatedBy, r.CreatedBy)
	require.Equal(t, 0, r.HitCount)
	require.True(t, r.Enabled())
}

func TestNormalizeAliasesAndCoercion(t *testing.T) {
	r, ok := Normalize(domain.Proposal{
		"Rule Pattern":      "gpu",
		"rule_pattern":      "ignored",
		"match_field":       "summary",
		"category_of_issue": "GPU Fault",
		"category":          "Hardware",
		"priority":          "not a number",
		"Confidence":        "0.75",
		"created_by":        "codex",
		"Hit Count":         float64(3),
	}, "", "R001", nil, nil)
	require.True(t, ok)
	require.Equal(t, "gpu", r.Pattern)
	require.Equal(t, "summary", r.MatchField)
	require.Equal(t, "GPU Fault", r.FailureCategory)
	require.Equal(t, "Hardware", r.Category)
	require.Equal(t, 80, r.Priority)
	require.Equal(t, 0.75, r.Confidence)
	require.Equal(t, "codex", r.CreatedBy)
	require.Equal(t, 3, r.HitCount)
}

func TestNormalizeJSONNumbers(t *testing.T) {
	var p domain.Proposal
	require.NoError(t, json.Unmarshal([]byte(`{"pattern":"x","Priority":85.9,"confidence":"bad","hit_count":"7"}`), &p))

	r, ok := Normalize(p, "", "R001", nil, nil)
	require.True(t, ok)
	require.Equal(t, 85, r.Priority)
	require.Equal(t, 1.0, r.Confidence)
	require.Equal(t, 7, r.HitCount)
}

func TestNormalizeOutOfRangeNumbers(t *testing.T) {
	var p domain.Proposal
	require.NoError(t, json.Unmarshal([]byte(`{"pattern":"x","priority":1e300,"hit_count":-1e300}`), &p))

	r, ok := Normalize(p, "", "R001", nil, nil)
	require.True(t, ok)
	require.Equal(t, 80, r.Priority)
	require.Equal(t, 0, r.HitCount)
}

func TestNormalizeRejects(t *testing.T) {
	_, ok := Normalize(domain.Proposal{"category": "x"}, "", "R001", nil, nil)
	require.False(t, ok)
	_, ok = Normalize(domain.Proposal{"pattern": "   "}, "", "R001", nil, nil)
	require.False(t, ok)
	_, ok = Normalize(domain.Proposal{"pattern": "(unclosed"}, "", "R001", nil, nil)
	require.False(t, ok)
}

func TestNormalizeInfersCategory(t *testing.T) {
	fm := rules.BuildFailureCategoryMap([]table.Row{{
		domain.ColProjectKey:      "HPC",
		domain.ColFailureCategory: "Potential Test Issue - Power Outage",
		domain.ColCategory:        "Power",
	}})

	r, ok := Normalize(domain.Proposal{
		"pattern":          "power outage",
		"failure_category": "Potential Test Issue - Power Outage",
		"category":         "unknown",
	}, "HPC", "R002", fm, nil)
	require.True(t, ok)
	require.Equal(t, "Power", r.Category)

	r, ok = Normalize(domain.Proposal{
		"pattern":          "power outage",
		"failure_category": "Potential Test Issue - Power Outage",
		"category":         "Unknown",
	}, "DO", "R003", fm, nil)
	require.True(t, ok)
	require.Equal(t, "Unknown", r.Category)

	r, ok = Normalize(domain.Proposal{
		"pattern":          "power outage",
		"failure_category": "Potential Test Issue - Power Outage",
		"category":         "Facilities",
	}, "HPC", "R004", fm, nil)
	require.True(t, ok)
	require.Equal(t, "Facilities", r.Category)
}

func TestResolveProjectKey(t *testing.T) {
	byTicket := map[string]string{"HPC-1": "HPC", "DO-1": "DO"}

	require.Equal(t, "OPS", ResolveProjectKey(domain.Proposal{"Project Key": "OPS", "ticket": "HPC-1"}, byTicket))
	require.Equal(t, "OPS", ResolveProjectKey(domain.Proposal{"project_key": " OPS "}, byTicket))
	require.Equal(t, "DO", ResolveProjectKey(domain.Proposal{"Ticket": "DO-1"}, byTicket))
	require.Equal(t, "", ResolveProjectKey(domain.Proposal{"ticket": "X-9"}, byTicket))
	require.Equal(t, "", ResolveProjectKey(domain.Proposal{}, byTicket))

	single := map[string]string{"HPC-1": "HPC", "HPC-2": "HPC"}
	require.Equal(t, "HPC", ResolveProjectKey(domain.Proposal{}, single))
	require.Equal(t, "HPC", ResolveProjectKey(domain.Proposal{"ticket": "HPC-9"}, single))
	require.Equal(t, "", ResolveProjectKey(domain.Proposal{}, nil))
}
