package app

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"triagebot/internal/storage/sqlite"
)

func (a *App) historyCmd() *cobra.Command {
	var (
		limit  int
		ticket string
		days   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs from the ledger",
		Long: `Show recent categorization and proposal runs, category counts for the
last --days days, or every recorded categorization of one --ticket.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.Config.DBPath
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no ledger at %s", path)
			}
			db, err := sqlite.InitDB(path)
			if err != nil {
				return err
			}
			defer db.Close()

			w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
			defer w.Flush()

			if ticket != "" {
				entries, err := sqlite.GetTicketHistory(db, strings.ToUpper(ticket))
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "WHEN\tRUN\tCATEGORY OF ISSUE\tCATEGORY\tSOURCE\tCONFIDENCE")
				for _, e := range entries {
					conf := ""
					if e.Confidence != nil {
						conf = fmt.Sprintf("%.2f", *e.Confidence)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						e.CategorizedAt.Format(time.DateTime), shortID(e.RunID), e.CategoryOfIssue, e.Category, e.Source, conf)
				}
				return nil
			}

			runs, err := sqlite.RecentRuns(db, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "STARTED\tRUN\tCOMMAND\tSTATUS\tMATCHED\tUNMATCHED\tSKIPPED\tRULES ADDED\tLOGGED\tREASON")
			for _, r := range runs {
				logged, err := sqlite.CountRuleProposals(db, r.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), shortID(r.ID), r.Command, r.Status,
					r.Matched, r.Unmatched, r.Skipped, r.RulesAdded, logged, r.Reason)
			}

			counts, err := sqlite.GetCategoryCounts(db, a.now().AddDate(0, 0, -days))
			if err != nil {
				return err
			}
			if len(counts) > 0 {
				fmt.Fprintf(w, "\nCATEGORY OF ISSUE (last %dd)\tCOUNT\tAVG CONFIDENCE\n", days)
				for _, c := range counts {
					fmt.Fprintf(w, "%s\t%d\t%.2f\n", c.CategoryOfIssue, c.Count, c.AvgConfidence)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	cmd.Flags().StringVar(&ticket, "ticket", "", "Show every recorded categorization of this ticket")
	cmd.Flags().IntVar(&days, "days", 7, "Window for category counts")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
