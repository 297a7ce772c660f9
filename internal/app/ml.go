package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"triagebot/internal/domain"
	"triagebot/internal/feedback"
	"triagebot/internal/ml"
	"triagebot/internal/tickets"
)

type mlTrainOptions struct {
	TrainingData       string
	TicketsCategorized string
	TicketsDir         string
	OutputModel        string
	OutputReport       string
}

func (a *App) mlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ml",
		Short: "Manage the ML proposal model",
	}
	cmd.AddCommand(a.mlTrainCmd())
	return cmd
}

func (a *App) mlTrainCmd() *cobra.Command {
	var opts mlTrainOptions
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the ML classifier from labeled tickets",
		Long: `Train the classifier used by the ml proposal engine.

Labels come from a human-labeled CSV (Ticket, Category of Issue, Category)
and, optionally, from rule-matched rows of a tickets-categorized.csv whose
audit is correct or pending-review. Human labels win for duplicate tickets.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := a.runMLTrain(opts)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.TrainingData, "training-data", "", "CSV with human-labeled tickets")
	f.StringVar(&opts.TicketsCategorized, "tickets-categorized", "", "tickets-categorized.csv to harvest extra labels from")
	f.StringVar(&opts.TicketsDir, "tickets-dir", "", "Ticket JSON folder (default: newest dated folder)")
	f.StringVar(&opts.OutputModel, "output-model", "", "Where to save the model (default: proposal.ml_model_path)")
	f.StringVar(&opts.OutputReport, "output-report", "", "Where to save the training report (default: next to the model)")
	_ = cmd.MarkFlagRequired("training-data")
	return cmd
}

func (a *App) runMLTrain(opts mlTrainOptions) (*ml.Model, error) {
	log := a.logger()

	human, err := feedback.LoadLabels(opts.TrainingData)
	if err != nil {
		return nil, err
	}
	harvested := feedback.HarvestLabels(opts.TicketsCategorized)
	labels := feedback.MergeLabels(human, harvested)
	log.Info("labels loaded",
		zap.Int("human", len(human)),
		zap.Int("harvested", len(harvested)),
		zap.Int("unique", len(labels)))
	if len(labels) < ml.MinTrainingSamples {
		return nil, fmt.Errorf("%w: %d samples (need at least %d); label more tickets in %s",
			ml.ErrTooFewSamples, len(labels), ml.MinTrainingSamples, opts.TrainingData)
	}

	keys := make(map[string]bool, len(labels))
	for _, l := range labels {
		keys[l.Ticket] = true
	}
	ticketsDir, err := a.resolveTicketsDir(opts.TicketsDir)
	if err != nil {
		log.Warn("no ticket JSONs, training on labels only", zap.Error(err))
	}
	loaded := map[string]domain.Ticket{}
	if ticketsDir != "" {
		got, failed := tickets.LoadKeys(ticketsDir, keys)
		for key, err := range failed {
			log.Warn("unreadable ticket", zap.String("ticket", key), zap.Error(err))
		}
		log.Info("ticket JSONs loaded", zap.Int("count", len(got)), zap.String("dir", ticketsDir))
		loaded = got
	}

	texts, classes := ml.Dataset(labels, loaded)
	if small := ml.Underrepresented(classes); len(small) > 0 {
		log.Warn("classes with fewer than 3 samples", zap.Strings("classes", small))
	}
	model, err := ml.Train(texts, classes)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	model.CategoryMap = feedback.CategoryMap(labels)

	modelPath := firstNonEmpty(opts.OutputModel, a.Config.Proposal.MLModelPath)
	if err := model.Save(modelPath); err != nil {
		return nil, err
	}
	reportPath := firstNonEmpty(opts.OutputReport, filepath.Join(filepath.Dir(modelPath), "training_report.txt"))
	if err := ml.WriteReport(reportPath, model, classes, a.now()); err != nil {
		return nil, err
	}
	log.Info("model trained",
		zap.Int("samples", model.Metrics.Samples),
		zap.Int("classes", model.Metrics.Classes),
		zap.Float64("cv_accuracy", model.Metrics.CVAccuracy),
		zap.String("model", modelPath),
		zap.String("report", reportPath))
	a.printf("Model saved to %s (%d samples, %d classes)\nReport: %s\n",
		modelPath, model.Metrics.Samples, model.Metrics.Classes, reportPath)
	return model, nil
}
