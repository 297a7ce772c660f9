package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"triagebot/internal/domain"
	"triagebot/internal/storage/sqlite"
	"triagebot/internal/table"
)

type fixture struct {
	dir        string
	config     string
	ticketsDir string
	rules      string
	outputDir  string
	localRules string
	db         string
	metrics    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:        dir,
		config:     filepath.Join(dir, "triagebot.yaml"),
		ticketsDir: filepath.Join(dir, "normalized-tickets", "2026-01-10"),
		rules:      filepath.Join(dir, "rules", "rule-engine.csv"),
		outputDir:  filepath.Join(dir, "analysis"),
		localRules: filepath.Join(dir, "trained-data", "rule-engine.local.csv"),
		db:         filepath.Join(dir, "triagebot.db"),
		metrics:    filepath.Join(dir, "metrics", "triagebot.prom"),
	}
	require.NoError(t, os.MkdirAll(f.ticketsDir, 0o755))
	writeTicket(t, f.ticketsDir, "HPC-1", "CDFP fault detected on node")
	writeTicket(t, f.ticketsDir, "HPC-2", "fan failure reported by BMC")

	require.NoError(t, table.Write(f.rules, domain.RuleColumns, [][]string{
		{"HPC", "R001", "CDFP fault", "summary+description", "CDFP Fault", "CDFP", "100", "0.95", "human-feedback", "0"},
	}))

	cfg := strings.Join([]string{
		"tickets_root: " + filepath.Join(dir, "normalized-tickets"),
		"rule_engine_path: " + f.rules,
		"output_dir: " + f.outputDir,
		"db_path: " + f.db,
		"metrics_textfile: " + f.metrics,
		"log_level: error",
		"proposal:",
		"  output_rule_engine: " + f.localRules,
		"  codex_timeout_seconds: 10",
		"  heartbeat_seconds: 0",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(f.config, []byte(cfg), 0o644))
	return f
}

func writeTicket(t *testing.T, dir, key, summary string) {
	t.Helper()
	data, err := json.Marshal(domain.Ticket{
		Ticket: domain.TicketInfo{Key: key, Summary: summary, Project: domain.Project{Key: domain.ProjectFromKey(key)}},
		Status: domain.TicketStatus{Current: "Open", Created: "2026-01-01T08:00:00.000+0000"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, key+".json"), data, 0o644))
}

func run(t *testing.T, f fixture, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Execute(context.Background(), append([]string{"--config", f.config}, args...), strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestCategorizeCommand(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, f, "", "categorize")
	require.NoError(t, err)
	require.Contains(t, out, "Categorized 2 tickets (1 matched, 1 unmatched, 0 skipped)")

	results := filepath.Join(f.outputDir, "tickets-categorized.csv")
	tbl, err := table.Read(results)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	require.Equal(t, "CDFP Fault", tbl.Rows[0].Get(domain.ColCategoryOfIssue))
	require.Equal(t, domain.UncategorizedIssue, tbl.Rows[1].Get(domain.ColCategoryOfIssue))

	metrics, err := os.ReadFile(f.metrics)
	require.NoError(t, err)
	require.Contains(t, string(metrics), `triagebot_tickets{command="categorize",outcome="matched"} 1`)

	db, err := sqlite.InitDB(f.db)
	require.NoError(t, err)
	defer db.Close()
	runs, err := sqlite.RecentRuns(db, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, sqlite.RunStatusDone, runs[0].Status)
	require.Equal(t, 1, runs[0].Matched)
	history, err := sqlite.GetTicketHistory(db, "HPC-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestCategorizeOverwritePrompt(t *testing.T) {
	f := newFixture(t)
	_, err := run(t, f, "", "categorize")
	require.NoError(t, err)

	out, err := run(t, f, "n\n", "categorize")
	require.ErrorIs(t, err, errAborted)
	require.Contains(t, out, "Overwrite?")

	_, err = run(t, f, "y\n", "categorize")
	require.NoError(t, err)

	writeTicket(t, f.ticketsDir, "HPC-3", "another CDFP fault")
	out, err = run(t, f, "", "categorize", "--resume")
	require.NoError(t, err)
	require.Contains(t, out, "Categorized 1 tickets (1 matched, 0 unmatched, 2 skipped)")
}

func TestCategorizeProjectFlag(t *testing.T) {
	f := newFixture(t)
	out, err := run(t, f, "", "categorize", "--project", "OTHER", "-y")
	require.NoError(t, err)
	require.Contains(t, out, "(0 matched, 2 unmatched")
}

func TestCategorizeMissingTicketsDir(t *testing.T) {
	f := newFixture(t)
	_, err := run(t, f, "", "categorize", "--tickets-dir", filepath.Join(f.dir, "absent"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "tickets directory not found")
}

func TestProposeWithFakeCodex(t *testing.T) {
	f := newFixture(t)
	_, err := run(t, f, "", "categorize")
	require.NoError(t, err)

	bin := filepath.Join(f.dir, "codex")
	script := `#!/bin/sh
cat > /dev/null
echo '{"proposals":[{"Rule Pattern":"fan.*failure","Match Field":"summary","Failure Category":"Fan Failure","Category":"Cooling","Ticket":"HPC-2"}]}'
`
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	cfg, err := os.ReadFile(f.config)
	require.NoError(t, err)
	cfg = append(cfg, []byte("  codex_bin: "+bin+"\n")...)
	require.NoError(t, os.WriteFile(f.config, cfg, 0o644))

	out, err := run(t, f, "", "propose", "--prompt", "Propose rules for these tickets", "-y")
	require.NoError(t, err)
	require.Contains(t, out, "Added 1 rules to "+f.localRules)

	tbl, err := table.Read(f.localRules)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	added := tbl.Rows[1]
	require.Equal(t, "R002", added.Get(domain.ColRuleID))
	require.Equal(t, "HPC", added.Get(domain.ColProjectKey))
	require.Equal(t, "fan.*failure", added.Get(domain.ColRulePattern))

	db, err := sqlite.InitDB(f.db)
	require.NoError(t, err)
	defer db.Close()
	runs, err := sqlite.RecentRuns(db, 1)
	require.NoError(t, err)
	require.Equal(t, "propose", runs[0].Command)
	require.Equal(t, 1, runs[0].RulesAdded)
	n, err := sqlite.CountRuleProposals(db, runs[0].ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	out, err = run(t, f, "", "history")
	require.NoError(t, err)
	require.Contains(t, out, "LOGGED")
	var proposeLine []string
	for _, line := range strings.Split(out, "\n") {
		if fields := strings.Fields(line); len(fields) > 4 && fields[3] == "propose" {
			proposeLine = fields
		}
	}
	require.NotNil(t, proposeLine)
	require.Equal(t, "1", proposeLine[8])
	require.Equal(t, "1", proposeLine[9])
}

func TestProposeRequiresPrompt(t *testing.T) {
	f := newFixture(t)
	_, err := run(t, f, "", "categorize")
	require.NoError(t, err)

	_, err = run(t, f, "", "propose", "-y")
	require.Error(t, err)
	require.Contains(t, err.Error(), "prompt")
}

func TestAddRuleCommand(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, table.Write(f.localRules, domain.RuleColumns, [][]string{
		{"HPC", "R007", "x", "summary", "X", "Y", "80", "1", "human-feedback", "0"},
	}))

	out, err := run(t, f, "", "add-rule",
		"--ticket", "hpc-2",
		"--reason", "The fan failure keeps recurring",
		"--failure-category", "Fan Failure",
		"--category", "Cooling",
		"-y")
	require.NoError(t, err)
	require.Contains(t, out, "Rule R008 appended")

	tbl, err := table.Read(f.localRules)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	r := tbl.Rows[1]
	require.Equal(t, "HPC", r.Get(domain.ColProjectKey))
	require.Equal(t, "fan.*failure", r.Get(domain.ColRulePattern))
	require.Equal(t, "85", r.Get(domain.ColPriority))
	require.Equal(t, "1", r.Get(domain.ColConfidence))
}

func TestAddRuleRejectsBadKey(t *testing.T) {
	f := newFixture(t)
	_, err := run(t, f, "", "add-rule", "--ticket", "not a key", "--reason", "r",
		"--failure-category", "F", "--category", "C", "-y")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid ticket key")
}

func TestAddRuleAbort(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, table.Write(f.localRules, domain.RuleColumns, nil))

	out, err := run(t, f, "no\n", "add-rule", "--ticket", "HPC-1", "--reason", "cdfp",
		"--failure-category", "CDFP Fault", "--category", "CDFP")
	require.ErrorIs(t, err, errAborted)
	require.Contains(t, out, "Aborted: rule was not saved.")

	tbl, err := table.Read(f.localRules)
	require.NoError(t, err)
	require.Empty(t, tbl.Rows)
}

func TestScheduleNext(t *testing.T) {
	f := newFixture(t)
	out, err := run(t, f, "", "schedule", "--cron", "0 6 * * *", "--next", "2")
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)

	_, err = run(t, f, "", "schedule", "--cron", "bogus", "--next", "1")
	require.Error(t, err)
}

func TestHistoryCommand(t *testing.T) {
	f := newFixture(t)
	_, err := run(t, f, "", "categorize")
	require.NoError(t, err)

	out, err := run(t, f, "", "history")
	require.NoError(t, err)
	require.Contains(t, out, "categorize")
	require.Contains(t, out, "CDFP Fault")

	out, err = run(t, f, "", "history", "--ticket", "hpc-2")
	require.NoError(t, err)
	require.Contains(t, out, domain.UncategorizedIssue)
}

func TestCommandName(t *testing.T) {
	a := &App{}
	root := a.rootCmd()
	train, _, err := root.Find([]string{"ml", "train"})
	require.NoError(t, err)
	require.Equal(t, "ml_train", commandName(train))
}
