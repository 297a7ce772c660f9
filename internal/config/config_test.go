package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "triagebot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path != "" {
		t.Fatalf("Path = %q, want empty", cfg.Path)
	}
	if cfg.TicketsRoot != "normalized-tickets" {
		t.Fatalf("TicketsRoot = %q, want normalized-tickets", cfg.TicketsRoot)
	}
	if cfg.Proposal.Engine != EngineCodex {
		t.Fatalf("Engine = %q, want %q", cfg.Proposal.Engine, EngineCodex)
	}
	if cfg.Proposal.CodexBatchSize != 2 {
		t.Fatalf("CodexBatchSize = %d, want 2", cfg.Proposal.CodexBatchSize)
	}
	if cfg.Proposal.MaxReviewRows != 200 {
		t.Fatalf("MaxReviewRows = %d, want 200", cfg.Proposal.MaxReviewRows)
	}
	if got := cfg.CodexTimeout(); got != 120*time.Second {
		t.Fatalf("CodexTimeout() = %s, want 2m0s", got)
	}
	if got := cfg.Heartbeat(); got != 10*time.Second {
		t.Fatalf("Heartbeat() = %s, want 10s", got)
	}
	if cfg.SlackConfigured() {
		t.Fatal("SlackConfigured() = true without a token")
	}
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
tickets_dir: /data/tickets/2026-01-01
project: HPC
archive_outputs: true
http_timeout_seconds: 15
proposal:
  engine: codex+ml
  codex_batch_size: 5
  codex_args: ["exec", "-p", "plan"]
slack:
  bot_token: xoxb-file
  channel_id: C1
schedule:
  cron: "0 6 * * *"
  propose: true
`)
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("CODEX_BATCH_SIZE", "7")
	t.Setenv("PROJECT_KEY", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path != path {
		t.Fatalf("Path = %q, want %q", cfg.Path, path)
	}
	if cfg.TicketsDir != "/data/tickets/2026-01-01" {
		t.Fatalf("TicketsDir = %q", cfg.TicketsDir)
	}
	if cfg.Project != "" {
		t.Fatalf("Project = %q, want empty env override", cfg.Project)
	}
	if !cfg.ArchiveOutputs {
		t.Fatal("ArchiveOutputs = false, want true")
	}
	if cfg.HTTPTimeoutSeconds != 15 {
		t.Fatalf("HTTPTimeoutSeconds = %d, want 15", cfg.HTTPTimeoutSeconds)
	}
	if cfg.Proposal.Engine != "codex+ml" {
		t.Fatalf("Engine = %q, want codex+ml", cfg.Proposal.Engine)
	}
	if cfg.Proposal.CodexBatchSize != 7 {
		t.Fatalf("CodexBatchSize = %d, want 7", cfg.Proposal.CodexBatchSize)
	}
	if want := []string{"exec", "-p", "plan"}; !slices.Equal(cfg.Proposal.CodexArgs, want) {
		t.Fatalf("CodexArgs = %v, want %v", cfg.Proposal.CodexArgs, want)
	}
	if cfg.Slack.BotToken != "xoxb-env" {
		t.Fatalf("BotToken = %q, want xoxb-env", cfg.Slack.BotToken)
	}
	if !cfg.SlackConfigured() {
		t.Fatal("SlackConfigured() = false")
	}
	if cfg.Schedule.Cron != "0 6 * * *" || !cfg.Schedule.Propose {
		t.Fatalf("Schedule = %+v", cfg.Schedule)
	}
}

func TestLoadConfigPathEnv(t *testing.T) {
	path := writeConfig(t, "output_dir: out\n")
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputDir != "out" {
		t.Fatalf("OutputDir = %q, want out", cfg.OutputDir)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("SLACK_CHANNEL_ID", "")
	tests := map[string]string{
		"bad yaml":      "proposal: [",
		"engine":        "proposal:\n  engine: codex+gpt\n",
		"anthropic key": "proposal:\n  engine: anthropic\n",
		"batch size":    "proposal:\n  codex_batch_size: -1\n",
		"timeout":       "proposal:\n  codex_timeout_seconds: -5\n",
		"http timeout":  "http_timeout_seconds: -1\n",
		"log format":    "log_format: xml\n",
		"slack channel": "slack:\n  bot_token: xoxb\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("Load(%q) succeeded, want error", body)
			}
		})
	}

	t.Setenv("MAX_REVIEW_ROWS", "many")
	_, err := Load(writeConfig(t, ""))
	if err == nil || !strings.Contains(err.Error(), "MAX_REVIEW_ROWS") {
		t.Fatalf("Load with MAX_REVIEW_ROWS=many: err = %v", err)
	}
}

func TestParseEngines(t *testing.T) {
	got, err := ParseEngines("ML + codex+ml")
	if err != nil {
		t.Fatalf("ParseEngines: %v", err)
	}
	if want := []string{"ml", "codex"}; !slices.Equal(got, want) {
		t.Fatalf("ParseEngines = %v, want %v", got, want)
	}

	if _, err := ParseEngines(""); err == nil {
		t.Fatal("ParseEngines(\"\") succeeded, want error")
	}
}
