// Package config provides configuration loading and validation for the
// embedtree command line tool.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/embedtree/pkg/observability"
)

// Sentinel validation errors.
var (
	ErrInvalidShards      = errors.New("arena shards must be positive")
	ErrInvalidThreshold   = errors.New("hibernation threshold must not be negative")
	ErrInvalidKeys        = errors.New("workload keys must not be negative")
	ErrInvalidKeySpace    = errors.New("workload key space must be positive")
	ErrInvalidEraseRatio  = errors.New("erase ratio must be within [0, 1]")
	ErrInvalidMaps        = errors.New("workload maps must be positive")
	ErrInvalidVerifyEvery = errors.New("verify interval must not be negative")
	ErrInvalidLogLevel    = errors.New("unknown log level")
	ErrInvalidLogFormat   = errors.New("log format must be text or json")
	ErrInvalidSampleRatio = errors.New("sample ratio must be within [0, 1]")
)

const (
	envPrefix = "EMBEDTREE"

	logFormatText = "text"
	logFormatJSON = "json"
)

// Config holds all configuration for the embedtree tool.
type Config struct {
	Arena     ArenaConfig     `mapstructure:"arena"`
	Workload  WorkloadConfig  `mapstructure:"workload"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ArenaConfig controls the sharded arena.
type ArenaConfig struct {
	SnapshotDir          string `mapstructure:"snapshot_dir"`
	Shards               int    `mapstructure:"shards"`
	HibernationThreshold int    `mapstructure:"hibernation_threshold"`
}

// WorkloadConfig describes the synthetic workload run by the bench command.
type WorkloadConfig struct {
	EraseRatio  float64 `mapstructure:"erase_ratio"`
	Seed        uint64  `mapstructure:"seed"`
	Keys        int     `mapstructure:"keys"`
	KeySpace    uint32  `mapstructure:"key_space"`
	Maps        int     `mapstructure:"maps"`
	VerifyEvery int     `mapstructure:"verify_every"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds the OpenTelemetry export settings.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	ServiceName  string  `mapstructure:"service_name"`
	Environment  string  `mapstructure:"environment"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	Insecure     bool    `mapstructure:"insecure"`
	DebugTrace   bool    `mapstructure:"debug_trace"`
}

// LoadConfig loads configuration from file and environment variables.
// Environment variables use the EMBEDTREE_ prefix with dots replaced by
// underscores, e.g. EMBEDTREE_ARENA_SHARDS.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("embedtree")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("/etc/embedtree")
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("arena.shards", DefaultArenaShards)
	viperCfg.SetDefault("arena.hibernation_threshold", DefaultArenaHibernationThreshold)
	viperCfg.SetDefault("arena.snapshot_dir", DefaultArenaSnapshotDir)

	viperCfg.SetDefault("workload.keys", DefaultWorkloadKeys)
	viperCfg.SetDefault("workload.key_space", DefaultWorkloadKeySpace)
	viperCfg.SetDefault("workload.erase_ratio", DefaultWorkloadEraseRatio)
	viperCfg.SetDefault("workload.seed", DefaultWorkloadSeed)
	viperCfg.SetDefault("workload.maps", DefaultWorkloadMaps)
	viperCfg.SetDefault("workload.verify_every", DefaultWorkloadVerifyEvery)

	viperCfg.SetDefault("logging.level", DefaultLoggingLevel)
	viperCfg.SetDefault("logging.format", DefaultLoggingFormat)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.service_name", DefaultTelemetryServiceName)
	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.sample_ratio", DefaultTelemetrySampleRatio)
	viperCfg.SetDefault("telemetry.insecure", false)
	viperCfg.SetDefault("telemetry.debug_trace", false)
}

// Validate checks every section, returning the first violation.
func (c *Config) Validate() error {
	if c.Arena.Shards <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidShards, c.Arena.Shards)
	}

	if c.Arena.HibernationThreshold < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, c.Arena.HibernationThreshold)
	}

	if c.Workload.Keys < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidKeys, c.Workload.Keys)
	}

	if c.Workload.KeySpace == 0 {
		return ErrInvalidKeySpace
	}

	if c.Workload.EraseRatio < 0 || c.Workload.EraseRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidEraseRatio, c.Workload.EraseRatio)
	}

	if c.Workload.Maps <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaps, c.Workload.Maps)
	}

	if c.Workload.VerifyEvery < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidVerifyEvery, c.Workload.VerifyEvery)
	}

	_, err := c.Logging.SlogLevel()
	if err != nil {
		return err
	}

	if c.Logging.Format != logFormatText && c.Logging.Format != logFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	return nil
}

// SlogLevel parses Level.
func (c LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.Level))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Level)
	}

	return level, nil
}

// Observability converts the logging and telemetry sections into an
// observability configuration for the given mode.
func (c *Config) Observability(mode observability.AppMode, version string) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.Mode = mode
	obsCfg.ServiceVersion = version
	obsCfg.ServiceName = c.Telemetry.ServiceName
	obsCfg.Environment = c.Telemetry.Environment
	obsCfg.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = c.Telemetry.Insecure
	obsCfg.DebugTrace = c.Telemetry.DebugTrace
	obsCfg.SampleRatio = c.Telemetry.SampleRatio
	obsCfg.LogJSON = c.Logging.Format == logFormatJSON

	level, err := c.Logging.SlogLevel()
	if err == nil {
		obsCfg.LogLevel = level
	}

	return obsCfg
}
