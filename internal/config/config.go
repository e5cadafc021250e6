package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/med-material/HandStrengthener/internal/allocator"
	"github.com/med-material/HandStrengthener/internal/clock"
	"github.com/med-material/HandStrengthener/internal/input"
	"github.com/med-material/HandStrengthener/internal/policy"
	"github.com/med-material/HandStrengthener/internal/session"
)

// Config holds the full application configuration.
type Config struct {
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Input   InputConfig   `yaml:"input" mapstructure:"input"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	GRPC    GRPCConfig    `yaml:"grpc" mapstructure:"grpc"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SessionConfig configures the trial session.
type SessionConfig struct {
	TotalTrials         int                  `yaml:"total_trials" mapstructure:"total_trials"`
	Mode                string               `yaml:"mode" mapstructure:"mode"`
	Seed                uint64               `yaml:"seed" mapstructure:"seed"`
	InterTrialSeconds   float64              `yaml:"inter_trial_seconds" mapstructure:"inter_trial_seconds"`
	WindowSeconds       float64              `yaml:"window_seconds" mapstructure:"window_seconds"`
	FabAlarmBase        float64              `yaml:"fab_alarm_base" mapstructure:"fab_alarm_base"`
	FabAlarmVariability float64              `yaml:"fab_alarm_variability" mapstructure:"fab_alarm_variability"`
	TickHz              float64              `yaml:"tick_hz" mapstructure:"tick_hz"`
	Categories          []allocator.Category `yaml:"categories" mapstructure:"categories"`
}

// InputConfig configures the simulated classifier.
type InputConfig struct {
	Mode       string  `yaml:"mode" mapstructure:"mode"`
	Threshold  float64 `yaml:"threshold" mapstructure:"threshold"`
	BufferSize int     `yaml:"buffer_size" mapstructure:"buffer_size"`
}

// StoreConfig configures the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// GRPCConfig configures the session control listener.
type GRPCConfig struct {
	Addr       string  `yaml:"addr" mapstructure:"addr"`
	InputRate  float64 `yaml:"input_rate" mapstructure:"input_rate"` // per second, 0 = unlimited
	InputBurst int     `yaml:"input_burst" mapstructure:"input_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and TRIAL_* env vars.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRIAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("session.total_trials", 20)
	v.SetDefault("session.mode", string(policy.Strict))
	v.SetDefault("session.seed", 0)
	v.SetDefault("session.inter_trial_seconds", 4.0)
	v.SetDefault("session.window_seconds", 1.0)
	v.SetDefault("session.fab_alarm_base", 0.5)
	v.SetDefault("session.fab_alarm_variability", 0.2)
	v.SetDefault("session.tick_hz", 60)
	v.SetDefault("session.categories", []map[string]interface{}{
		{"name": "Accept", "behavior": "recurring", "quota": 1},
		{"name": "Reject", "behavior": "persisting", "quota": 4},
		{"name": "Fabricate", "behavior": "persisting", "quota": 4},
	})
	v.SetDefault("input.mode", string(input.SingleThreshold))
	v.SetDefault("input.threshold", 0.7)
	v.SetDefault("input.buffer_size", 8)
	v.SetDefault("store.path", "trials.db")
	v.SetDefault("grpc.addr", ":50061")
	v.SetDefault("grpc.input_rate", 50)
	v.SetDefault("grpc.input_burst", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks values the session and classifier cannot run with.
// Category quotas are checked later, when the allocator builds.
func (c *Config) Validate() error {
	if _, err := c.SessionConfig(); err != nil {
		return err
	}
	if c.Session.TickHz <= 0 {
		return eris.Errorf("config: tick_hz must be positive, got %v", c.Session.TickHz)
	}
	ic, err := c.ClassifierConfig()
	if err != nil {
		return err
	}
	if !(ic.Threshold >= 0 && ic.Threshold <= 1) {
		return eris.Errorf("config: input threshold %v outside [0, 1]", ic.Threshold)
	}
	if ic.Mode == input.ConsecutiveThreshold && ic.BufferSize <= 0 {
		return eris.Errorf("config: input buffer_size must be positive, got %d", ic.BufferSize)
	}
	return nil
}

// SessionConfig converts the session section into a session.Config.
func (c *Config) SessionConfig() (session.Config, error) {
	mode, err := policy.ParseMode(c.Session.Mode)
	if err != nil {
		return session.Config{}, eris.Wrap(err, "config: session mode")
	}
	sc := session.Config{
		Mode:        mode,
		TotalTrials: c.Session.TotalTrials,
		Categories:  c.Session.Categories,
		Seed:        c.Session.Seed,
		Clock: clock.Config{
			InterTrialSeconds:   c.Session.InterTrialSeconds,
			WindowSeconds:       c.Session.WindowSeconds,
			FabAlarmBase:        c.Session.FabAlarmBase,
			FabAlarmVariability: c.Session.FabAlarmVariability,
		},
	}
	if err := sc.Validate(); err != nil {
		return session.Config{}, eris.Wrap(err, "config: session")
	}
	return sc, nil
}

// ClassifierConfig converts the input section into an input.ClassifierConfig.
func (c *Config) ClassifierConfig() (input.ClassifierConfig, error) {
	mode, err := input.ParseMode(c.Input.Mode)
	if err != nil {
		return input.ClassifierConfig{}, eris.Wrap(err, "config: input mode")
	}
	return input.ClassifierConfig{
		Mode:       mode,
		Threshold:  c.Input.Threshold,
		BufferSize: c.Input.BufferSize,
	}, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
