package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"triagebot/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "triagebot-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInitDBAddsOutputPathColumn(t *testing.T) {
	db := newTestDB(t)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('runs') WHERE name = 'output_path'`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestInitDBIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := InitDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestRunLifecycle(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	first, err := StartRun(db, "categorize", start)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Equal(t, RunStatusRunning, first.Status)

	second, err := StartRun(db, "propose", start.Add(time.Hour))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	first = first.WithStats(domain.RunStats{Matched: 4, Unmatched: 2, RunbookTrue: 1, Skipped: 3})
	first.Status = RunStatusDone
	first.OutputPath = "out/tickets-categorized.csv"
	require.NoError(t, FinishRun(db, first, start.Add(time.Minute)))

	second.Status = RunStatusDone
	second.Reason = "no_review_rows"
	require.NoError(t, FinishRun(db, second, start.Add(2*time.Hour)))

	runs, err := RecentRuns(db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, second.ID, runs[0].ID)
	require.Equal(t, "no_review_rows", runs[0].Reason)

	got := runs[1]
	require.Equal(t, "categorize", got.Command)
	require.Equal(t, RunStatusDone, got.Status)
	require.Equal(t, 4, got.Matched)
	require.Equal(t, 2, got.Unmatched)
	require.Equal(t, 1, got.RunbookTrue)
	require.Equal(t, 3, got.Skipped)
	require.Equal(t, "out/tickets-categorized.csv", got.OutputPath)
	require.NotNil(t, got.FinishedAt)
	require.True(t, got.FinishedAt.Equal(start.Add(time.Minute)))
}

func TestFinishRunUnknownID(t *testing.T) {
	db := newTestDB(t)
	err := FinishRun(db, Run{ID: "missing", Status: RunStatusDone}, time.Now())
	require.Error(t, err)
}

func TestHistorySink(t *testing.T) {
	db := newTestDB(t)
	run, err := StartRun(db, "categorize", time.Now())
	require.NoError(t, err)

	sink := HistorySink{DB: db, RunID: run.ID}
	conf := 0.9
	require.NoError(t, sink.RecordCategorization(context.Background(), domain.CategorizationRecord{
		ProjectKey:           "DFBUGS",
		Ticket:               "DFBUGS-1",
		CategoryOfIssue:      "Disk Failure",
		Category:             "Hardware",
		RulesUsed:            []string{"R001", "R004"},
		CategorizationSource: domain.SourceRule,
		Confidence:           &conf,
		HumanAudit:           domain.VerdictPendingReview,
	}))
	require.NoError(t, sink.RecordCategorization(context.Background(), domain.CategorizationRecord{
		ProjectKey:           "DFBUGS",
		Ticket:               "DFBUGS-1",
		CategoryOfIssue:      domain.UncategorizedIssue,
		Category:             domain.UnknownCategory,
		CategorizationSource: domain.SourceNone,
		HumanAudit:           domain.VerdictNeedsReview,
	}))

	entries, err := GetTicketHistory(db, "DFBUGS-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, run.ID, entries[0].RunID)
	require.Equal(t, "R001,R004", entries[0].RulesUsed)
	require.NotNil(t, entries[0].Confidence)
	require.InDelta(t, 0.9, *entries[0].Confidence, 1e-9)
	require.Nil(t, entries[1].Confidence)
	require.Equal(t, domain.SourceNone, entries[1].Source)

	counts, err := GetCategoryCounts(db, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, counts, 2)
}

func TestInsertRuleProposals(t *testing.T) {
	db := newTestDB(t)
	run, err := StartRun(db, "propose", time.Now())
	require.NoError(t, err)

	require.NoError(t, InsertRuleProposals(db, run.ID, nil))

	added := []domain.Rule{
		{RuleID: "R010", ProjectKey: "DFBUGS", Pattern: "disk.*fail", MatchField: "summary",
			FailureCategory: "Disk Failure", Category: "Hardware", Priority: 80, Confidence: 1, CreatedBy: "codex"},
		{RuleID: "R011", Pattern: "timeout", MatchField: domain.DefaultMatchField,
			FailureCategory: "Timeout", Category: "Network", Priority: 70, Confidence: 0.6, CreatedBy: "ml-generated"},
	}
	require.NoError(t, InsertRuleProposals(db, run.ID, added))

	count, err := CountRuleProposals(db, run.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
