package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"triagebot/internal/schedule"
)

func (a *App) scheduleCmd() *cobra.Command {
	var (
		expr    string
		propose bool
		next    int
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run categorization (and optionally proposals) on a cron schedule",
		Long: `Run resume-mode categorization on a standard 5-field cron expression.
With --propose, each run is followed by a proposal run using the configured
engines. Scheduled runs never prompt.

Examples:
  triagebot schedule --cron "0 6 * * *"
  triagebot schedule --cron "0 6 * * 1-5" --propose
  triagebot schedule --next 5      # print the next activation times`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("cron") {
				expr = a.Config.Schedule.Cron
			}
			if !cmd.Flags().Changed("propose") {
				propose = a.Config.Schedule.Propose
			}
			if next > 0 {
				runs, err := schedule.NextRuns(expr, a.now(), next)
				if err != nil {
					return err
				}
				for _, t := range runs {
					a.printf("%s\n", t.Format("Mon Jan 2 15:04 MST"))
				}
				return nil
			}

			s, err := schedule.New(expr, "categorize", a.scheduledJob(propose), a.logger())
			if err != nil {
				return err
			}
			a.logger().Info("schedule started", zap.String("cron", expr), zap.Bool("propose", propose))
			err = s.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&expr, "cron", "", "Cron expression (default: schedule.cron)")
	cmd.Flags().BoolVar(&propose, "propose", false, "Run rule proposals after each categorization (default: schedule.propose)")
	cmd.Flags().IntVar(&next, "next", 0, "Print the next N activation times and exit")
	return cmd
}

func (a *App) scheduledJob(propose bool) schedule.Job {
	return func(ctx context.Context) error {
		if _, err := a.runCategorize(ctx, categorizeOptions{Resume: true, Yes: true}); err != nil {
			return fmt.Errorf("categorize: %w", err)
		}
		if !propose {
			return nil
		}
		p := a.Config.Proposal
		_, err := a.runPropose(ctx, proposeOptions{
			AutoRules:      p.AutoRules,
			CodexTimeout:   p.CodexTimeoutSeconds,
			CodexBatchSize: p.CodexBatchSize,
			MaxReviewRows:  p.MaxReviewRows,
			Yes:            true,
		})
		if err != nil {
			return fmt.Errorf("propose: %w", err)
		}
		return nil
	}
}
