package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"triagebot/internal/categorize"
	"triagebot/internal/config"
	"triagebot/internal/feedback"
	"triagebot/internal/httpx"
	"triagebot/internal/integrations/codex"
	"triagebot/internal/integrations/llm"
	slackbot "triagebot/internal/integrations/slack"
	"triagebot/internal/metrics"
	"triagebot/internal/ml"
	"triagebot/internal/proposal"
	"triagebot/internal/storage/sqlite"
)

type proposeOptions struct {
	TicketsCategorized string
	RulesEngineFile    string
	Engine             string
	Prompt             string
	PromptFile         string
	TicketsDir         string
	AutoRules          bool
	OutputRuleEngine   string
	CodexTimeout       int
	CodexBatchSize     int
	MaxReviewRows      int
	MLModel            string
	Yes                bool
}

func (a *App) proposeCmd() *cobra.Command {
	var opts proposeOptions
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose new rules from audited categorization results",
		Long: `Read an audited tickets-categorized.csv, send the rows that need review to
the configured proposal engines, and append accepted rules to a working copy
of the rule table.

Engines combine with '+': codex, ml, anthropic (e.g. codex+ml).

Examples:
  triagebot propose --tickets-categorized analysis/tickets-categorized.csv \
      --rules-engine-file rules.csv --prompt-file prompts/training.md
  triagebot propose --engine ml --auto-rules -y`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			cfg := a.Config.Proposal
			if !flags.Changed("auto-rules") {
				opts.AutoRules = cfg.AutoRules
			}
			if !flags.Changed("codex-timeout") {
				opts.CodexTimeout = cfg.CodexTimeoutSeconds
			}
			if !flags.Changed("codex-batch-size") {
				opts.CodexBatchSize = cfg.CodexBatchSize
			}
			if !flags.Changed("max-review-rows") {
				opts.MaxReviewRows = cfg.MaxReviewRows
			}
			_, err := a.runPropose(cmd.Context(), opts)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.TicketsCategorized, "tickets-categorized", "", "Audited tickets-categorized.csv (default: <output_dir>/tickets-categorized.csv)")
	f.StringVar(&opts.RulesEngineFile, "rules-engine-file", "", "Source rule table CSV (default: rule_engine_path)")
	f.StringVar(&opts.Engine, "engine", "", "Proposal engines joined by '+': codex, ml, anthropic (default: proposal.engine)")
	f.StringVar(&opts.Prompt, "prompt", "", "Inline prompt text, or a path to a prompt file")
	f.StringVar(&opts.PromptFile, "prompt-file", "", "Prompt markdown file (default: proposal.prompt_file)")
	f.StringVar(&opts.TicketsDir, "tickets-dir", "", "Ticket JSON folder for the ml engine (default: newest dated folder)")
	f.BoolVar(&opts.AutoRules, "auto-rules", false, "Let the ml engine propose from every non-rule-matched row without waiting for audit")
	f.StringVar(&opts.OutputRuleEngine, "output-rule-engine", "", "Working rule table that receives new rules (default: proposal.output_rule_engine)")
	f.IntVar(&opts.CodexTimeout, "codex-timeout", 0, "Seconds per reasoning-tool call; 0 waits indefinitely")
	f.IntVar(&opts.CodexBatchSize, "codex-batch-size", 0, "Review rows per reasoning-tool call")
	f.IntVar(&opts.MaxReviewRows, "max-review-rows", 0, "Maximum review rows per run")
	f.StringVar(&opts.MLModel, "ml-model", "", "Trained ML model JSON (default: proposal.ml_model_path)")
	f.BoolVarP(&opts.Yes, "yes", "y", false, "Skip the estimated-runtime confirmation")
	return cmd
}

func (a *App) runPropose(ctx context.Context, opts proposeOptions) (proposal.Report, error) {
	log := a.logger()
	cfg := a.Config

	if opts.CodexBatchSize <= 0 {
		return proposal.Report{}, errors.New("--codex-batch-size must be a positive integer")
	}
	if opts.MaxReviewRows <= 0 {
		return proposal.Report{}, errors.New("--max-review-rows must be a positive integer")
	}
	if opts.CodexTimeout < 0 {
		return proposal.Report{}, errors.New("--codex-timeout must be >= 0")
	}
	engines, err := config.ParseEngines(firstNonEmpty(opts.Engine, cfg.Proposal.Engine))
	if err != nil {
		return proposal.Report{}, err
	}
	feedbackTable := firstNonEmpty(opts.TicketsCategorized, filepath.Join(cfg.OutputDir, categorize.OutputFile))
	sourceTable := firstNonEmpty(opts.RulesEngineFile, cfg.RuleEnginePath)
	outputTable := firstNonEmpty(opts.OutputRuleEngine, cfg.Proposal.OutputRuleEngine)
	for _, f := range []struct{ label, path string }{
		{"Categorized results", feedbackTable},
		{"Rule table", sourceTable},
	} {
		if info, err := os.Stat(f.path); err != nil || info.IsDir() {
			return proposal.Report{}, fmt.Errorf("%s file not found: %s", f.label, f.path)
		}
	}

	timeout := time.Duration(opts.CodexTimeout) * time.Second
	sources, reasoning, err := a.buildSources(engines, opts, timeout)
	if err != nil {
		return proposal.Report{}, err
	}

	if reasoning {
		fb, err := feedback.Load(feedbackTable)
		if err != nil {
			return proposal.Report{}, err
		}
		review, _ := fb.Cap(opts.MaxReviewRows)
		estimate, worst, batches := proposal.EstimateRuntime(len(review), opts.CodexBatchSize, timeout)
		worstText := "unbounded"
		if worst > 0 {
			worstText = worst.String()
		}
		log.Info("estimated runtime",
			zap.Int("review_rows", len(review)),
			zap.Int("batches", batches),
			zap.Duration("estimate", estimate),
			zap.String("worst_case", worstText))
		if batches > 0 && !opts.Yes {
			q := fmt.Sprintf("Proceed with run? estimated=%s, worst_case=%s, batches=%d [y/N]: ", estimate, worstText, batches)
			if !a.confirm(q) {
				return proposal.Report{}, errAborted
			}
		}
	}

	ledger := a.startRun("propose")
	p := &proposal.Pipeline{Logger: log}
	rep, err := p.Run(ctx, proposal.Options{
		SourceTable:   sourceTable,
		OutputTable:   outputTable,
		FeedbackTable: feedbackTable,
		Cap:           opts.MaxReviewRows,
		AutoRules:     opts.AutoRules,
		Sources:       sources,
	})
	if err == nil && ledger.db != nil {
		if perr := sqlite.InsertRuleProposals(ledger.db, ledger.run.ID, rep.Added); perr != nil {
			log.Warn("ledger proposals failed", zap.Error(perr))
		}
	}
	ledger.run.Reason = rep.NoProposalsReason()
	ledger.run.OutputPath = outputTable
	a.finishRun(ledger, metrics.Run{
		ProposalsReceived: rep.ProposalsReceived,
		RulesAdded:        rep.RulesAdded(),
		Reasons:           rep.Reasons,
	}, err)
	if err != nil {
		return rep, err
	}

	if rep.RulesAdded() == 0 {
		a.printf("No rules added (%s). Output: %s\n", rep.NoProposalsReason(), outputTable)
	} else {
		a.printf("Added %d rules to %s\n", rep.RulesAdded(), outputTable)
	}
	runID := ledger.run.ID
	a.notify(ctx, func(ctx context.Context, n *slackbot.Notifier) error {
		return n.NotifyProposals(ctx, runID, rep)
	})
	return rep, nil
}

// buildSources creates one source per engine. reasoning reports whether any
// of them is a batched reasoning tool.
func (a *App) buildSources(engines []string, opts proposeOptions, timeout time.Duration) ([]proposal.SourceSpec, bool, error) {
	cfg := a.Config
	log := a.logger()

	var prompt string
	for _, e := range engines {
		if e == config.EngineCodex || e == config.EngineAnthropic {
			file := opts.PromptFile
			if file == "" && opts.Prompt == "" {
				file = cfg.Proposal.PromptFile
			}
			p, err := loadPrompt(opts.Prompt, file)
			if err != nil {
				return nil, false, err
			}
			prompt = p
			break
		}
	}

	var specs []proposal.SourceSpec
	reasoning := false
	for _, e := range engines {
		switch e {
		case config.EngineCodex:
			reasoning = true
			specs = append(specs, proposal.SourceSpec{
				Source: &codex.Source{
					Bin:       cfg.Proposal.CodexBin,
					Args:      cfg.Proposal.CodexArgs,
					Prompt:    prompt,
					Timeout:   timeout,
					Heartbeat: cfg.Heartbeat(),
					Logger:    log.Named("codex"),
				},
				BatchSize: opts.CodexBatchSize,
			})
		case config.EngineAnthropic:
			reasoning = true
			key := cfg.Proposal.AnthropicAPIKey
			if key == "" {
				return nil, false, errors.New("anthropic_api_key is required when the proposal engine includes anthropic")
			}
			specs = append(specs, proposal.SourceSpec{
				Source: &llm.AnthropicSource{
					APIKey:     key,
					Model:      cfg.Proposal.LLMModel,
					Prompt:     prompt,
					Timeout:    timeout,
					Heartbeat:  cfg.Heartbeat(),
					Logger:     log.Named("anthropic"),
					HTTPClient: anthropicClient(opts.CodexTimeout),
				},
				BatchSize: opts.CodexBatchSize,
			})
		case config.EngineML:
			modelPath := firstNonEmpty(opts.MLModel, cfg.Proposal.MLModelPath)
			model, err := ml.Load(modelPath)
			if err != nil {
				return nil, false, fmt.Errorf("load ml model: %w", err)
			}
			ticketsDir, err := a.resolveTicketsDir(opts.TicketsDir)
			if err != nil {
				return nil, false, err
			}
			specs = append(specs, proposal.SourceSpec{
				Source:    &ml.Source{Model: model, TicketsDir: ticketsDir, Logger: log.Named("ml")},
				AllowAuto: true,
			})
		}
	}
	return specs, reasoning, nil
}

// anthropicClient bounds each API call by the per-call timeout. Zero keeps
// the SDK's default client, which waits indefinitely.
func anthropicClient(timeoutSeconds int) *http.Client {
	if timeoutSeconds <= 0 {
		return nil
	}
	return httpx.NewExternalClient(timeoutSeconds)
}

// loadPrompt prefers the prompt file. An inline prompt that names an
// existing file is read from that file.
func loadPrompt(inline, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("prompt file not found: %s", file)
		}
		return string(data), nil
	}
	if strings.TrimSpace(inline) == "" {
		return "", errors.New("missing required prompt input: use --prompt or --prompt-file")
	}
	if info, err := os.Stat(inline); err == nil && !info.IsDir() {
		data, err := os.ReadFile(inline)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return inline, nil
}
