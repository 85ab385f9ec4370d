package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// JUMPTRAINER_SIMULATION_AGENT_COUNT.
const EnvPrefix = "JUMPTRAINER"

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Simulation SimulationConfig `mapstructure:"simulation" yaml:"simulation"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Exports    ExportsConfig    `mapstructure:"exports" yaml:"exports"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Evaluate   EvaluateConfig   `mapstructure:"evaluate" yaml:"evaluate"`
	Sentry     SentryConfig     `mapstructure:"sentry" yaml:"sentry"`
}

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names used for each log level on the console.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// SimulationConfig seeds a run. Out-of-range values are clamped by the
// driver rather than rejected here.
type SimulationConfig struct {
	AgentCount     int    `mapstructure:"agent_count" yaml:"agent_count"`
	EpisodeBudget  int    `mapstructure:"episode_budget" yaml:"episode_budget"`
	TicksPerSecond int    `mapstructure:"ticks_per_second" yaml:"ticks_per_second"`
	Seed           int64  `mapstructure:"seed" yaml:"seed"`
	ScriptPath     string `mapstructure:"script_path" yaml:"script_path"`
}

type StoreConfig struct {
	Kind   string `mapstructure:"kind" yaml:"kind"`
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

type ExportsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type ServerConfig struct {
	Addr   string `mapstructure:"addr" yaml:"addr"`
	MaxFPS int    `mapstructure:"max_fps" yaml:"max_fps"`
}

type EvaluateConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "jumptrainer")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Simulation --
	v.SetDefault("simulation.agent_count", 4)
	v.SetDefault("simulation.episode_budget", 60)
	v.SetDefault("simulation.ticks_per_second", 60)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.script_path", "")

	// -- Store --
	v.SetDefault("store.kind", "sqlite")
	v.SetDefault("store.db_path", "jumptrainer.db")

	// -- Exports --
	v.SetDefault("exports.dir", "exports")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_fps", 30)

	// -- Evaluate --
	v.SetDefault("evaluate.workers", 4)

	// -- Sentry --
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
}

// BindEnv enables JUMPTRAINER_* overrides for every key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("sentry.dsn", "SENTRY_DSN", EnvPrefix+"_SENTRY_DSN")
}

// Load builds a viper instance with defaults, environment overrides and the
// optional config file, then decodes and validates it. A missing default
// config file is not an error; a missing explicit one is.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	BindEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks infrastructure settings. Simulation values are never
// rejected; the driver normalizes them.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Store.DBPath) == "" {
			return fmt.Errorf("store.db_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("store.kind must be one of memory|sqlite, got %q", c.Store.Kind)
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.MaxFPS < 0 {
		return fmt.Errorf("server.max_fps must not be negative")
	}
	if c.Evaluate.Workers < 0 {
		return fmt.Errorf("evaluate.workers must not be negative")
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	return nil
}
