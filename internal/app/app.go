// Package app wires the triagebot commands together.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"triagebot/internal/config"
	"triagebot/internal/logging"
)

var errAborted = errors.New("aborted by user")

// App carries state shared by every command once the root command has run
// its setup.
type App struct {
	Config config.Config
	Logger *zap.Logger

	In  io.Reader
	Out io.Writer

	configPath string
	logLevel   string
	logFile    string
	closeLog   func() error
	now        func() time.Time
	in         *bufio.Reader
}

func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Execute(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

// Execute runs the command line in args and releases the log file on return.
func Execute(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	a := &App{In: in, Out: out, now: time.Now}
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func (a *App) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "triagebot",
		Short: "Rule-based ticket categorization with feedback-driven rule proposals",
		Long: `triagebot categorizes normalized tickets with a priority-ordered rule table
and proposes new rules from audited results.

Examples:
  triagebot categorize --resume                 # categorize new tickets only
  triagebot propose --engine codex+ml -y        # propose rules from feedback
  triagebot add-rule --ticket DFBUGS-12 ...     # add one rule by hand
  triagebot ml train --training-data labels.csv # train the ML proposal model`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(commandName(cmd))
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to YAML config (default: $CONFIG_PATH or triagebot.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Also write logs to this file (default: <log_dir>/<command>_<UTC stamp>.log)")

	root.AddCommand(
		a.categorizeCmd(),
		a.proposeCmd(),
		a.addRuleCmd(),
		a.mlCmd(),
		a.scheduleCmd(),
		a.historyCmd(),
	)
	return root
}

func (a *App) setup(command string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.Config = cfg

	file := a.logFile
	if file == "" {
		file = logging.FileName(cfg.LogDir, command, a.now())
	}
	logger, closeLog, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: file})
	if err != nil {
		return err
	}
	a.Logger = logger
	a.closeLog = closeLog

	fields := []zap.Field{zap.String("command", command)}
	if cfg.Path != "" {
		fields = append(fields, zap.String("config", cfg.Path))
	}
	if file != "" {
		fields = append(fields, zap.String("log_file", file))
	}
	logger.Debug("config loaded", fields...)
	return nil
}

func (a *App) close() {
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

func (a *App) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// confirm asks a yes/no question on the app's input. Anything but y or yes is no.
func (a *App) confirm(question string) bool {
	if a.in == nil {
		in := a.In
		if in == nil {
			in = os.Stdin
		}
		a.in = bufio.NewReader(in)
	}
	fmt.Fprint(a.Out, question)
	answer, _ := a.in.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}

// commandName joins the path below the root, e.g. "ml_train".
func commandName(cmd *cobra.Command) string {
	var parts []string
	for c := cmd; c != nil && c.HasParent(); c = c.Parent() {
		parts = append([]string{c.Name()}, parts...)
	}
	if len(parts) == 0 {
		return cmd.Name()
	}
	return strings.Join(parts, "_")
}
