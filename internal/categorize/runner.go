package categorize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"triagebot/internal/domain"
	"triagebot/internal/table"
	"triagebot/internal/tickets"
)

// OutputFile is the results table name inside the output directory.
const OutputFile = "tickets-categorized.csv"

var ErrOutputExists = errors.New("output table already exists")

// RecordSink receives every record written during a run.
type RecordSink interface {
	RecordCategorization(ctx context.Context, rec domain.CategorizationRecord) error
}

type Options struct {
	TicketsDir    string
	OutputPath    string
	ProjectFilter string
	Rules         []domain.Rule
	Resume        bool
	// Overwrite allows a fresh run to replace an existing output table.
	Overwrite bool
}

type Result struct {
	Stats      domain.RunStats
	Records    []domain.CategorizationRecord
	OutputPath string
	// ArchivePath is set when a replaced table was archived.
	ArchivePath string
}

type Runner struct {
	Categorizer *Categorizer
	Logger      *zap.Logger
	// Archive keeps a compressed copy of a table before it is replaced.
	Archive bool
	Sinks   []RecordSink
	Now     func() time.Time
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run categorizes every ticket file in opts.TicketsDir in key order and
// writes the results table. With Resume set, tickets already in the table
// are skipped and new rows are appended.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	log := r.logger()
	res := Result{OutputPath: opts.OutputPath}

	info, err := os.Stat(opts.TicketsDir)
	if err != nil || !info.IsDir() {
		return res, fmt.Errorf("tickets directory not found: %s", opts.TicketsDir)
	}
	files, err := tickets.List(opts.TicketsDir)
	if err != nil {
		return res, err
	}

	exists := table.HasRows(opts.OutputPath)
	if exists && !opts.Resume {
		if !opts.Overwrite {
			return res, fmt.Errorf("%w: %s", ErrOutputExists, opts.OutputPath)
		}
		if r.Archive {
			dst, err := archiveTable(opts.OutputPath, r.now())
			if err != nil {
				return res, fmt.Errorf("archive %s: %w", opts.OutputPath, err)
			}
			res.ArchivePath = dst
			log.Info("archived previous output", zap.String("path", dst))
		}
		log.Info("overwriting existing output", zap.String("path", opts.OutputPath))
	}

	done := map[string]bool{}
	if opts.Resume {
		if done, err = ExistingKeys(opts.OutputPath); err != nil {
			return res, fmt.Errorf("read existing output: %w", err)
		}
		log.Info("resuming", zap.Int("already_processed", len(done)))
	}

	cat := r.Categorizer
	if cat == nil {
		cat = &Categorizer{}
	}

	var rows [][]string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if done[f.Key] {
			res.Stats.Skipped++
			continue
		}
		t, err := tickets.Load(f.Path)
		if err != nil {
			res.Stats.Failed++
			log.Warn("skipping unreadable ticket", zap.String("path", f.Path), zap.Error(err))
			continue
		}

		project := opts.ProjectFilter
		if project == "" {
			project = t.ProjectKey()
		}
		rec := cat.Categorize(t, opts.Rules, project)
		if rec.CategorizationSource == domain.SourceRule {
			res.Stats.Matched++
		} else {
			res.Stats.Unmatched++
		}
		if rec.RunbookPresent {
			res.Stats.RunbookTrue++
		}
		res.Records = append(res.Records, rec)
		rows = append(rows, Row(rec))
	}

	if opts.Resume && exists {
		err = table.Append(opts.OutputPath, rows)
	} else {
		err = table.Write(opts.OutputPath, domain.ResultColumns, rows)
	}
	if err != nil {
		return res, fmt.Errorf("write %s: %w", opts.OutputPath, err)
	}

	for _, sink := range r.Sinks {
		for _, rec := range res.Records {
			if err := sink.RecordCategorization(ctx, rec); err != nil {
				log.Warn("record sink failed", zap.String("ticket", rec.Ticket), zap.Error(err))
				break
			}
		}
	}

	log.Info("categorization done",
		zap.String("output", opts.OutputPath),
		zap.Int("written", res.Stats.Written()),
		zap.Int("matched", res.Stats.Matched),
		zap.Int("unmatched", res.Stats.Unmatched),
		zap.Int("runbook_true", res.Stats.RunbookTrue),
		zap.Int("skipped", res.Stats.Skipped),
		zap.Int("failed", res.Stats.Failed),
	)
	return res, nil
}
