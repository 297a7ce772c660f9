// Package sqlite keeps a ledger of categorization and proposal runs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"triagebot/internal/domain"
)

const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

type Run struct {
	ID          string
	Command     string
	Status      string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Matched     int
	Unmatched   int
	RunbookTrue int
	Skipped     int
	Failed      int
	RulesAdded  int
	Reason      string
	OutputPath  string
}

type HistoryEntry struct {
	RunID           string
	Ticket          string
	ProjectKey      string
	CategoryOfIssue string
	Category        string
	RulesUsed       string
	Source          string
	Confidence      *float64
	HumanAudit      string
	CategorizedAt   time.Time
}

type CategoryCount struct {
	CategoryOfIssue string
	Count           int
	AvgConfidence   float64
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		command      TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'running',
		started_at   DATETIME NOT NULL,
		finished_at  DATETIME,
		matched      INTEGER DEFAULT 0,
		unmatched    INTEGER DEFAULT 0,
		runbook_true INTEGER DEFAULT 0,
		skipped      INTEGER DEFAULT 0,
		failed       INTEGER DEFAULT 0,
		rules_added  INTEGER DEFAULT 0,
		reason       TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS categorization_history (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id            TEXT NOT NULL,
		ticket            TEXT NOT NULL,
		project_key       TEXT DEFAULT '',
		category_of_issue TEXT NOT NULL,
		category          TEXT NOT NULL,
		rules_used        TEXT DEFAULT '',
		source            TEXT NOT NULL,
		confidence        REAL,
		human_audit       TEXT DEFAULT '',
		categorized_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_ch_run ON categorization_history(run_id);
	CREATE INDEX IF NOT EXISTS idx_ch_ticket ON categorization_history(ticket);
	CREATE INDEX IF NOT EXISTS idx_ch_date ON categorization_history(categorized_at);

	CREATE TABLE IF NOT EXISTS rule_proposals (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id            TEXT NOT NULL,
		rule_id           TEXT NOT NULL,
		project_key       TEXT DEFAULT '',
		pattern           TEXT NOT NULL,
		match_field       TEXT NOT NULL,
		category_of_issue TEXT NOT NULL,
		category          TEXT NOT NULL,
		priority          INTEGER NOT NULL,
		confidence        REAL NOT NULL,
		created_by        TEXT DEFAULT '',
		created_at        DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_rp_run ON rule_proposals(run_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	// Migration: add output_path column if missing.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('runs') WHERE name = 'output_path'`).Scan(&colCount)
	if colCount == 0 {
		_, _ = db.Exec(`ALTER TABLE runs ADD COLUMN output_path TEXT DEFAULT ''`)
	}

	return db, nil
}

// StartRun records a new run in the running state and returns it with a fresh id.
func StartRun(db *sql.DB, command string, startedAt time.Time) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Command:   command,
		Status:    RunStatusRunning,
		StartedAt: startedAt.UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO runs (id, command, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Command, run.Status, run.StartedAt,
	)
	if err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

func FinishRun(db *sql.DB, run Run, finishedAt time.Time) error {
	res, err := db.Exec(
		`UPDATE runs SET status = ?, finished_at = ?, matched = ?, unmatched = ?, runbook_true = ?,
		        skipped = ?, failed = ?, rules_added = ?, reason = ?, output_path = ?
		 WHERE id = ?`,
		run.Status, finishedAt.UTC(), run.Matched, run.Unmatched, run.RunbookTrue,
		run.Skipped, run.Failed, run.RulesAdded, run.Reason, run.OutputPath,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", run.ID)
	}
	return nil
}

// WithStats copies categorization counts onto the run.
func (r Run) WithStats(s domain.RunStats) Run {
	r.Matched = s.Matched
	r.Unmatched = s.Unmatched
	r.RunbookTrue = s.RunbookTrue
	r.Skipped = s.Skipped
	r.Failed = s.Failed
	return r
}

func RecentRuns(db *sql.DB, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT id, command, status, started_at, finished_at, matched, unmatched, runbook_true,
		        skipped, failed, rules_added, COALESCE(reason, ''), COALESCE(output_path, '')
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(
			&r.ID, &r.Command, &r.Status, &r.StartedAt, &finished, &r.Matched, &r.Unmatched,
			&r.RunbookTrue, &r.Skipped, &r.Failed, &r.RulesAdded, &r.Reason, &r.OutputPath,
		); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// HistorySink writes categorization records to the ledger under one run.
type HistorySink struct {
	DB    *sql.DB
	RunID string
}

func (s HistorySink) RecordCategorization(ctx context.Context, rec domain.CategorizationRecord) error {
	var confidence any
	if rec.Confidence != nil {
		confidence = *rec.Confidence
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO categorization_history
		 (run_id, ticket, project_key, category_of_issue, category, rules_used, source, confidence, human_audit)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, rec.Ticket, rec.ProjectKey, rec.CategoryOfIssue, rec.Category,
		strings.Join(rec.RulesUsed, ","), rec.CategorizationSource, confidence, rec.HumanAudit,
	)
	return err
}

func GetTicketHistory(db *sql.DB, ticket string) ([]HistoryEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, ticket, project_key, category_of_issue, category, rules_used, source,
		        confidence, human_audit, categorized_at
		 FROM categorization_history WHERE ticket = ? ORDER BY categorized_at, id`,
		ticket,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var confidence sql.NullFloat64
		if err := rows.Scan(
			&e.RunID, &e.Ticket, &e.ProjectKey, &e.CategoryOfIssue, &e.Category, &e.RulesUsed,
			&e.Source, &confidence, &e.HumanAudit, &e.CategorizedAt,
		); err != nil {
			return nil, err
		}
		if confidence.Valid {
			v := confidence.Float64
			e.Confidence = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetCategoryCounts groups history since the given time by category of issue,
// most frequent first.
func GetCategoryCounts(db *sql.DB, since time.Time) ([]CategoryCount, error) {
	rows, err := db.Query(
		`SELECT category_of_issue, COUNT(*) AS cnt, COALESCE(AVG(confidence), 0)
		 FROM categorization_history
		 WHERE categorized_at >= ?
		 GROUP BY category_of_issue
		 ORDER BY cnt DESC, category_of_issue`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.CategoryOfIssue, &c.Count, &c.AvgConfidence); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func InsertRuleProposals(db *sql.DB, runID string, added []domain.Rule) error {
	if len(added) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO rule_proposals
		 (run_id, rule_id, project_key, pattern, match_field, category_of_issue, category, priority, confidence, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range added {
		if _, err := stmt.Exec(
			runID, r.RuleID, r.ProjectKey, r.Pattern, r.MatchField,
			r.FailureCategory, r.Category, r.Priority, r.Confidence, r.CreatedBy,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func CountRuleProposals(db *sql.DB, runID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM rule_proposals WHERE run_id = ?", runID).Scan(&count)
	return count, err
}
