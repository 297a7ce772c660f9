package feedback

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"triagebot/internal/domain"
)

func writeResults(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickets-categorized.csv")
	body := strings.Join(domain.ResultColumns, ",") + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// row builds a results row from the columns feedback cares about.
func row(ticket, project, coi, category, source, audit, comments string) string {
	return strings.Join([]string{
		project, ticket, "", "desc " + ticket, "Open", "2026-01-01", "1", "FALSE",
		coi, category, "", source, "", audit, "", comments,
	}, ",")
}

func TestLoadSelectsReviewRows(t *testing.T) {
	path := writeResults(t,
		row("HPC-1", "HPC", "Fan", "Cooling", "rule", "correct", ""),
		row("HPC-2", "HPC", "uncategorized", "unknown", "none", "needs-review", ""),
		row("HPC-3", "HPC", "Fan", "Cooling", "rule", " Incorrect ", "wrong fan"),
		row("HPC-4", "HPC", "Fan", "Cooling", "rule", "pending-review", ""),
	)
	res, err := Load(path)
	require.NoError(t, err)
	require.Len(t, res.All, 4)
	require.Len(t, res.Review, 2)
	require.Equal(t, "HPC-2", res.Review[0].Ticket)
	require.Equal(t, "HPC-3", res.Review[1].Ticket)
	require.Equal(t, 1, res.MissingComments)

	capped, missing := res.Cap(1)
	require.Len(t, capped, 1)
	require.Equal(t, "HPC-2", capped[0].Ticket)
	require.Equal(t, 1, missing)

	all, missing := res.Cap(0)
	require.Len(t, all, 2)
	require.Equal(t, 1, missing)
}

func TestLoadMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("Ticket,Project Key\nHPC-1,HPC\n"), 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrSchema)
	require.Contains(t, err.Error(), "Human Comments")
}

func TestAutoRowsSkipsRuleMatched(t *testing.T) {
	all := []domain.FeedbackRow{
		{Ticket: "A", CategorizationSource: "rule"},
		{Ticket: "B", CategorizationSource: "none"},
		{Ticket: "C", CategorizationSource: ""},
		{Ticket: "D", CategorizationSource: "none"},
	}
	got := AutoRows(all, 2)
	require.Len(t, got, 2)
	require.Equal(t, "B", got[0].Ticket)
	require.Equal(t, "C", got[1].Ticket)
	require.Len(t, AutoRows(all, 0), 3)
}

func TestProjectByTicket(t *testing.T) {
	m := ProjectByTicket([]domain.FeedbackRow{
		{Ticket: "HPC-1", ProjectKey: "HPC"},
		{Ticket: "DO-1", ProjectKey: "DO"},
		{Ticket: "X-1"},
	})
	require.Equal(t, map[string]string{"HPC-1": "HPC", "DO-1": "DO"}, m)
}

func TestHarvestAndMergeLabels(t *testing.T) {
	path := writeResults(t,
		row("HPC-1", "HPC", "Fan", "Cooling", "rule", "correct", ""),
		row("HPC-2", "HPC", "Disk", "Storage", "rule", "pending-review", ""),
		row("HPC-3", "HPC", "Fan", "Cooling", "rule", "incorrect", ""),
		row("HPC-4", "HPC", "uncategorized", "unknown", "rule", "correct", ""),
		row("HPC-5", "HPC", "Fan", "Cooling", "none", "correct", ""),
	)
	harvested := HarvestLabels(path)
	require.Len(t, harvested, 2)
	require.Equal(t, "HPC-1", harvested[0].Ticket)
	require.Equal(t, "HPC-2", harvested[1].Ticket)

	require.Nil(t, HarvestLabels(filepath.Join(t.TempDir(), "missing.csv")))

	human := []Label{{Ticket: "HPC-2", CategoryOfIssue: "Power", Category: "Power"}}
	merged := MergeLabels(human, harvested)
	require.Len(t, merged, 2)
	require.Equal(t, "Power", merged[0].CategoryOfIssue)
	require.Equal(t, "HPC-1", merged[1].Ticket)

	require.Equal(t, map[string]string{"Power": "Power", "Fan": "Cooling"}, CategoryMap(merged))
}

func TestLoadLabelsSkipsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training.csv")
	require.NoError(t, os.WriteFile(path, []byte("Ticket,Category of Issue,Category\nHPC-1,Fan,Cooling\nHPC-2,,x\n"), 0o644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	require.Equal(t, []Label{{Ticket: "HPC-1", CategoryOfIssue: "Fan", Category: "Cooling"}}, labels)
}
