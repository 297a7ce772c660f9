package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EngineCodex     = "codex"
	EngineML        = "ml"
	EngineAnthropic = "anthropic"

	defaultConfigPath = "triagebot.yaml"
)

type Config struct {
	// TicketsDir is a folder of normalized ticket JSON. When empty the newest
	// dated folder under TicketsRoot is used.
	TicketsDir     string `yaml:"tickets_dir"`
	TicketsRoot    string `yaml:"tickets_root"`
	RuleEnginePath string `yaml:"rule_engine_path"`
	OutputDir      string `yaml:"output_dir"`
	Project        string `yaml:"project"`
	BrowseBaseURL  string `yaml:"browse_base_url"`
	AuditGuidance  string `yaml:"audit_guidance"`
	ArchiveOutputs bool   `yaml:"archive_outputs"`

	DBPath          string `yaml:"db_path"`
	MetricsTextfile string `yaml:"metrics_textfile"`
	// HTTPTimeoutSeconds bounds Slack API calls.
	HTTPTimeoutSeconds int `yaml:"http_timeout_seconds"`

	LogDir    string `yaml:"log_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Proposal ProposalConfig `yaml:"proposal"`
	Slack    SlackConfig    `yaml:"slack"`
	Schedule ScheduleConfig `yaml:"schedule"`

	Path string `yaml:"-"` // file the config was read from, empty if none
}

type ProposalConfig struct {
	Engine              string   `yaml:"engine"`
	OutputRuleEngine    string   `yaml:"output_rule_engine"`
	PromptFile          string   `yaml:"prompt_file"`
	CodexBin            string   `yaml:"codex_bin"`
	CodexArgs           []string `yaml:"codex_args"`
	CodexTimeoutSeconds int      `yaml:"codex_timeout_seconds"`
	CodexBatchSize      int      `yaml:"codex_batch_size"`
	HeartbeatSeconds    int      `yaml:"heartbeat_seconds"`
	MaxReviewRows       int      `yaml:"max_review_rows"`
	AutoRules           bool     `yaml:"auto_rules"`
	MLModelPath         string   `yaml:"ml_model_path"`
	AnthropicAPIKey     string   `yaml:"anthropic_api_key"`
	LLMModel            string   `yaml:"llm_model"`
}

type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

type ScheduleConfig struct {
	Cron    string `yaml:"cron"`
	Propose bool   `yaml:"propose"`
}

// Load reads path (or CONFIG_PATH, or triagebot.yaml), applies environment
// overrides and defaults, and validates the result. A missing file is not an
// error.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		path = defaultConfigPath
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			path = envPath
		}
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Path = path
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envOverride(&cfg.TicketsDir, "TICKETS_DIR")
	envOverride(&cfg.TicketsRoot, "TICKETS_ROOT")
	envOverride(&cfg.RuleEnginePath, "RULE_ENGINE_PATH")
	envOverride(&cfg.OutputDir, "OUTPUT_DIR")
	envOverrideAllowEmpty(&cfg.Project, "PROJECT_KEY")
	envOverride(&cfg.BrowseBaseURL, "BROWSE_BASE_URL")
	envOverrideBool(&cfg.ArchiveOutputs, "ARCHIVE_OUTPUTS")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.MetricsTextfile, "METRICS_TEXTFILE")
	envOverride(&cfg.LogDir, "LOG_DIR")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFormat, "LOG_FORMAT")

	p := &cfg.Proposal
	envOverride(&p.Engine, "PROPOSAL_ENGINE")
	envOverride(&p.OutputRuleEngine, "OUTPUT_RULE_ENGINE")
	envOverride(&p.PromptFile, "PROMPT_FILE")
	envOverride(&p.CodexBin, "CODEX_BIN")
	envOverrideBool(&p.AutoRules, "AUTO_RULES")
	envOverride(&p.MLModelPath, "ML_MODEL_PATH")
	envOverride(&p.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&p.LLMModel, "LLM_MODEL")

	envOverride(&cfg.Slack.BotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.Slack.ChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.Schedule.Cron, "SCHEDULE_CRON")
	envOverrideBool(&cfg.Schedule.Propose, "SCHEDULE_PROPOSE")

	return errors.Join(
		envOverrideInt(&cfg.HTTPTimeoutSeconds, "HTTP_TIMEOUT_SECONDS"),
		envOverrideInt(&p.CodexTimeoutSeconds, "CODEX_TIMEOUT_SECONDS"),
		envOverrideInt(&p.CodexBatchSize, "CODEX_BATCH_SIZE"),
		envOverrideInt(&p.HeartbeatSeconds, "HEARTBEAT_SECONDS"),
		envOverrideInt(&p.MaxReviewRows, "MAX_REVIEW_ROWS"),
	)
}

func applyDefaults(cfg *Config) {
	if cfg.TicketsRoot == "" {
		cfg.TicketsRoot = "normalized-tickets"
	}
	if cfg.RuleEnginePath == "" {
		cfg.RuleEnginePath = "trained-data/golden-rules-engine/rule-engine.csv"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "analysis"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./triagebot.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}

	p := &cfg.Proposal
	if p.Engine == "" {
		p.Engine = EngineCodex
	}
	if p.OutputRuleEngine == "" {
		p.OutputRuleEngine = "trained-data/rule-engine.local.csv"
	}
	if p.CodexBin == "" {
		p.CodexBin = "codex"
	}
	if p.CodexTimeoutSeconds == 0 {
		p.CodexTimeoutSeconds = 120
	}
	if p.CodexBatchSize == 0 {
		p.CodexBatchSize = 2
	}
	if p.HeartbeatSeconds == 0 {
		p.HeartbeatSeconds = 10
	}
	if p.MaxReviewRows == 0 {
		p.MaxReviewRows = 200
	}
	if p.MLModelPath == "" {
		p.MLModelPath = "trained-data/ml-model/classifier.json"
	}
}

func (c Config) Validate() error {
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be 'console' or 'json', got '%s'", c.LogFormat)
	}
	engines, err := ParseEngines(c.Proposal.Engine)
	if err != nil {
		return err
	}
	for _, e := range engines {
		if e == EngineAnthropic && c.Proposal.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when the proposal engine includes anthropic")
		}
	}
	if c.HTTPTimeoutSeconds < 0 {
		return fmt.Errorf("invalid http_timeout_seconds '%d': must be >= 0", c.HTTPTimeoutSeconds)
	}
	p := c.Proposal
	if p.CodexTimeoutSeconds < 0 {
		return fmt.Errorf("invalid codex_timeout_seconds '%d': must be >= 0", p.CodexTimeoutSeconds)
	}
	if p.CodexBatchSize < 1 {
		return fmt.Errorf("invalid codex_batch_size '%d': must be >= 1", p.CodexBatchSize)
	}
	if p.MaxReviewRows < 1 {
		return fmt.Errorf("invalid max_review_rows '%d': must be >= 1", p.MaxReviewRows)
	}
	if p.HeartbeatSeconds < 0 {
		return fmt.Errorf("invalid heartbeat_seconds '%d': must be >= 0", p.HeartbeatSeconds)
	}
	if c.Slack.BotToken != "" && c.Slack.ChannelID == "" {
		return fmt.Errorf("slack.channel_id is required when slack.bot_token is set")
	}
	return nil
}

// ParseEngines splits a "+"-joined engine list such as "codex+ml".
func ParseEngines(s string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, e := range strings.Split(s, "+") {
		e = strings.ToLower(strings.TrimSpace(e))
		switch e {
		case EngineCodex, EngineML, EngineAnthropic:
		default:
			return nil, fmt.Errorf("proposal engine must combine codex, ml and anthropic with '+', got '%s'", s)
		}
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out, nil
}

func (c Config) CodexTimeout() time.Duration {
	return time.Duration(c.Proposal.CodexTimeoutSeconds) * time.Second
}

func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.Proposal.HeartbeatSeconds) * time.Second
}

func (c Config) SlackConfigured() bool {
	return c.Slack.BotToken != "" && c.Slack.ChannelID != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}
