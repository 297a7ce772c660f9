package app

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"triagebot/internal/httpx"
	slackbot "triagebot/internal/integrations/slack"
	"triagebot/internal/metrics"
	"triagebot/internal/storage/sqlite"
)

// runLedger tracks one command run in the sqlite ledger. A nil ledger is
// valid and records nothing, so a broken database never blocks a run.
type runLedger struct {
	db    *sql.DB
	run   sqlite.Run
	start time.Time
}

func (a *App) startRun(command string) *runLedger {
	log := a.logger()
	start := a.now()
	path := a.Config.DBPath
	if path == "" {
		return &runLedger{start: start, run: sqlite.Run{Command: command}}
	}
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	db, err := sqlite.InitDB(path)
	if err != nil {
		log.Warn("ledger unavailable", zap.String("db", path), zap.Error(err))
		return &runLedger{start: start, run: sqlite.Run{Command: command}}
	}
	run, err := sqlite.StartRun(db, command, start)
	if err != nil {
		log.Warn("ledger start failed", zap.Error(err))
		db.Close()
		return &runLedger{start: start, run: sqlite.Run{Command: command}}
	}
	log.Info("run started", zap.String("command", command), zap.String("run_id", run.ID))
	return &runLedger{db: db, run: run, start: start}
}

func (l *runLedger) sinks() []sqlite.HistorySink {
	if l.db == nil {
		return nil
	}
	return []sqlite.HistorySink{{DB: l.db, RunID: l.run.ID}}
}

// finish closes the run in the ledger and writes the metrics textfile.
func (a *App) finishRun(l *runLedger, m metrics.Run, runErr error) {
	log := a.logger()
	finished := a.now()

	l.run.Status = sqlite.RunStatusDone
	if runErr != nil {
		l.run.Status = sqlite.RunStatusFailed
		if l.run.Reason == "" {
			l.run.Reason = runErr.Error()
		}
	}
	l.run = l.run.WithStats(m.Stats)
	l.run.RulesAdded = m.RulesAdded

	if l.db != nil {
		if err := sqlite.FinishRun(l.db, l.run, finished); err != nil {
			log.Warn("ledger finish failed", zap.Error(err))
		}
		l.db.Close()
	}

	m.Command = l.run.Command
	m.RunID = l.run.ID
	m.Finished = finished
	m.Duration = finished.Sub(l.start)
	m.Success = runErr == nil
	if err := metrics.WriteTextfile(a.Config.MetricsTextfile, m); err != nil {
		log.Warn("metrics write failed", zap.Error(err))
	}
}

// notifier returns nil when Slack is not configured.
func (a *App) notifier() *slackbot.Notifier {
	if !a.Config.SlackConfigured() {
		return nil
	}
	n, err := slackbot.NewNotifier(a.Config.Slack.BotToken, a.Config.Slack.ChannelID, a.logger(),
		slack.OptionHTTPClient(httpx.NewExternalClient(a.Config.HTTPTimeoutSeconds)))
	if err != nil {
		a.logger().Warn("slack notifier disabled", zap.Error(err))
		return nil
	}
	return n
}

func (a *App) notify(ctx context.Context, send func(context.Context, *slackbot.Notifier) error) {
	n := a.notifier()
	if n == nil {
		return
	}
	if err := send(ctx, n); err != nil {
		a.logger().Warn("slack notify failed", zap.Error(err))
	}
}
