package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon configuration
type Config struct {
	// DataDir is the platform data directory (database, state)
	DataDir string `yaml:"data_dir"`

	// Channels holds per-platform connection settings
	Channels ChannelsConfig `yaml:"channels"`

	// Title holds thread-title synchronization settings
	Title TitleConfig `yaml:"title"`
}

// ChannelsConfig holds tokens for the supported chat platforms
type ChannelsConfig struct {
	Slack    SlackConfig    `yaml:"slack"`
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

type DiscordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// TitleConfig holds the thread-title engine knobs.
//
// Precedence for every knob: config file value > process environment > default.
type TitleConfig struct {
	// Strategy selects the title source: "deterministic", "llm" or "hybrid"
	Strategy string `yaml:"strategy"`

	// Model is the generation model ref ("provider/model", shorthands expand)
	Model string `yaml:"model"`

	// TimeoutMS bounds the LLM call; clamped to [1000, 30000]
	TimeoutMS int `yaml:"timeout_ms"`

	// MaxChars caps generated and extracted titles (default 60)
	MaxChars int `yaml:"max_chars"`

	// AllowOverwrite permits replacing a non-placeholder existing title
	AllowOverwrite bool `yaml:"allow_overwrite"`

	// FirstMessageOnly restricts titling to the first title-worthy message
	// of a thread (retries are exempt)
	FirstMessageOnly bool `yaml:"first_message_only"`

	// Placeholders extends the built-in default-title vocabulary
	Placeholders []string `yaml:"placeholders"`

	// SweepSchedule is the cron spec for the retry sweeper ("" disables)
	SweepSchedule string `yaml:"sweep_schedule"`
}

const (
	StrategyDeterministic = "deterministic"
	StrategyLLM           = "llm"
	StrategyHybrid        = "hybrid"
)

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Title: TitleConfig{
			Strategy:         StrategyHybrid,
			TimeoutMS:        10000,
			MaxChars:         60,
			FirstMessageOnly: true,
			SweepSchedule:    "@every 1m",
		},
	}
}

// DefaultDataDir returns the platform data directory for parley
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parley"
	}
	return filepath.Join(home, ".parley")
}

// DBPath returns the SQLite database path under the data directory
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "parley.db")
}

// EnsureDataDir creates the data directory if missing
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// Load reads the config file at path, falling back to defaults for missing
// fields and to environment variables for unset title knobs. A missing file
// is not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Leave the env-overridable knobs unset so a file value wins over the
	// environment and the environment wins over the default (normalize
	// restores defaults for anything still unset).
	cfg.Title.Strategy = ""
	cfg.Title.Model = ""
	cfg.Title.TimeoutMS = 0

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)
	normalize(cfg)
	return cfg, nil
}

// applyEnv fills unset knobs from the process environment
func applyEnv(cfg *Config) {
	if cfg.Title.Strategy == "" {
		cfg.Title.Strategy = strings.TrimSpace(os.Getenv("PARLEY_TITLE_STRATEGY"))
	}
	if cfg.Title.Model == "" {
		cfg.Title.Model = strings.TrimSpace(os.Getenv("PARLEY_TITLE_MODEL"))
	}
	if cfg.Title.TimeoutMS == 0 {
		if ms, err := strconv.Atoi(strings.TrimSpace(os.Getenv("PARLEY_TITLE_TIMEOUT_MS"))); err == nil && ms > 0 {
			cfg.Title.TimeoutMS = ms
		}
	}
	if !cfg.Title.AllowOverwrite {
		cfg.Title.AllowOverwrite = parseBool(os.Getenv("PARLEY_TITLE_OVERWRITE"), false)
	}
	if cfg.Channels.Slack.BotToken == "" {
		cfg.Channels.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	if cfg.Channels.Slack.AppToken == "" {
		cfg.Channels.Slack.AppToken = os.Getenv("SLACK_APP_TOKEN")
	}
	if cfg.Channels.Discord.Token == "" {
		cfg.Channels.Discord.Token = os.Getenv("DISCORD_BOT_TOKEN")
	}
	if cfg.Channels.Telegram.Token == "" {
		cfg.Channels.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
}

// normalize applies defaults and clamps out-of-range values
func normalize(cfg *Config) {
	switch cfg.Title.Strategy {
	case StrategyDeterministic, StrategyLLM, StrategyHybrid:
	default:
		cfg.Title.Strategy = StrategyHybrid
	}
	if cfg.Title.TimeoutMS <= 0 {
		cfg.Title.TimeoutMS = 10000
	}
	if cfg.Title.TimeoutMS < 1000 {
		cfg.Title.TimeoutMS = 1000
	}
	if cfg.Title.TimeoutMS > 30000 {
		cfg.Title.TimeoutMS = 30000
	}
	if cfg.Title.MaxChars <= 0 {
		cfg.Title.MaxChars = 60
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
}

// parseBool parses a string as boolean with a default value.
// Accepts "true", "1", "yes" as true; empty returns the default.
func parseBool(s string, defaultVal bool) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return defaultVal
	}
	return s == "true" || s == "1" || s == "yes"
}
