package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"triagebot/internal/categorize"
	slackbot "triagebot/internal/integrations/slack"
	"triagebot/internal/metrics"
	"triagebot/internal/rules"
	"triagebot/internal/table"
	"triagebot/internal/tickets"
	"triagebot/internal/watch"
)

type categorizeOptions struct {
	TicketsDir string
	RuleEngine string
	OutputDir  string
	Project    string
	// ProjectSet distinguishes an explicit empty --project from the config default.
	ProjectSet bool
	Resume     bool
	Yes        bool
	Watch      bool
}

func (a *App) categorizeCmd() *cobra.Command {
	var opts categorizeOptions
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize normalized tickets with the rule table",
		Long: `Categorize every ticket JSON in a folder and write tickets-categorized.csv.

Tickets are processed in key order. With --resume, tickets already in the
output table are skipped and new rows are appended. With --watch, the command
keeps running and categorizes new ticket files as they appear.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.ProjectSet = cmd.Flags().Changed("project")
			if _, err := a.runCategorize(cmd.Context(), opts); err != nil {
				return err
			}
			if opts.Watch {
				return a.watchCategorize(cmd.Context(), opts)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.TicketsDir, "tickets-dir", "", "Folder of normalized ticket JSON (default: newest dated folder under tickets_root)")
	cmd.Flags().StringVar(&opts.RuleEngine, "rule-engine", "", "Rule table CSV (default: rule_engine_path)")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "", "Directory for tickets-categorized.csv (default: output_dir)")
	cmd.Flags().StringVar(&opts.Project, "project", "", "Only apply rules for this project key; empty applies each ticket's own project")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "Skip tickets already in the output table and append new rows")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Overwrite an existing output table without asking")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Keep running and categorize new ticket files as they appear")
	return cmd
}

func (a *App) resolveTicketsDir(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if a.Config.TicketsDir != "" {
		return a.Config.TicketsDir, nil
	}
	return tickets.LatestDir(a.Config.TicketsRoot)
}

func (a *App) runCategorize(ctx context.Context, opts categorizeOptions) (categorize.Result, error) {
	log := a.logger()
	cfg := a.Config

	ticketsDir, err := a.resolveTicketsDir(opts.TicketsDir)
	if err != nil {
		return categorize.Result{}, err
	}
	ruleEngine := firstNonEmpty(opts.RuleEngine, cfg.RuleEnginePath)
	outputDir := firstNonEmpty(opts.OutputDir, cfg.OutputDir)
	outputPath := filepath.Join(outputDir, categorize.OutputFile)
	project := cfg.Project
	if opts.ProjectSet {
		project = opts.Project
	}

	rs, err := rules.Load(ruleEngine, project, log)
	if err != nil {
		return categorize.Result{}, err
	}
	log.Info("rules loaded",
		zap.String("path", ruleEngine),
		zap.Int("rules", len(rs)),
		zap.String("project", project),
		zap.String("tickets_dir", ticketsDir))

	overwrite := opts.Yes
	if !opts.Resume && !overwrite && table.HasRows(outputPath) {
		if !a.confirm(fmt.Sprintf("%s exists. Overwrite? [y/N]: ", outputPath)) {
			return categorize.Result{}, errAborted
		}
		overwrite = true
	}

	ledger := a.startRun("categorize")
	runner := &categorize.Runner{
		Categorizer: &categorize.Categorizer{
			BrowseBaseURL: cfg.BrowseBaseURL,
			AuditGuidance: cfg.AuditGuidance,
		},
		Logger:  log,
		Archive: cfg.ArchiveOutputs,
	}
	for _, s := range ledger.sinks() {
		runner.Sinks = append(runner.Sinks, s)
	}

	res, err := runner.Run(ctx, categorize.Options{
		TicketsDir:    ticketsDir,
		OutputPath:    outputPath,
		ProjectFilter: project,
		Rules:         rs,
		Resume:        opts.Resume,
		Overwrite:     overwrite,
	})
	ledger.run.OutputPath = outputPath
	a.finishRun(ledger, metrics.Run{Stats: res.Stats}, err)
	if err != nil {
		if errors.Is(err, categorize.ErrOutputExists) {
			return res, fmt.Errorf("%w (use --resume or -y)", err)
		}
		return res, err
	}

	a.printf("Categorized %d tickets (%d matched, %d unmatched, %d skipped) -> %s\n",
		res.Stats.Written(), res.Stats.Matched, res.Stats.Unmatched, res.Stats.Skipped, outputPath)
	runID := ledger.run.ID
	a.notify(ctx, func(ctx context.Context, n *slackbot.Notifier) error {
		return n.NotifyCategorization(ctx, runID, res.Stats, outputPath)
	})
	return res, nil
}

// watchCategorize resumes categorization each time ticket files change.
func (a *App) watchCategorize(ctx context.Context, opts categorizeOptions) error {
	ticketsDir, err := a.resolveTicketsDir(opts.TicketsDir)
	if err != nil {
		return err
	}
	opts.TicketsDir = ticketsDir
	opts.Resume = true

	w, err := watch.New(ticketsDir, a.logger())
	if err != nil {
		return err
	}
	a.logger().Info("watching for new tickets", zap.String("dir", ticketsDir))
	err = w.Run(ctx, func(ctx context.Context) error {
		_, err := a.runCategorize(ctx, opts)
		return err
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
