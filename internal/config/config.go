// Package config loads Supervisor tunables via viper, generalized from the
// teacher's internal/config.Load: defaults set on a fresh viper instance,
// a config-file search across cwd/home/XDG-config/etc, environment
// overrides under a project-specific prefix, then Unmarshal + Validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the tunables named across spec.md §4.4, §4.5, §4.6, §4.7 and
// §4.8, each defaulting to the spec's normative value.
type Config struct {
	MaxRestarts         int           `mapstructure:"max_restarts"`
	RestartOnCrash      bool          `mapstructure:"restart_on_crash"`
	RestartDelay        time.Duration `mapstructure:"restart_delay"`
	KillTimeout         time.Duration `mapstructure:"kill_timeout"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`

	LineBufferSize     int   `mapstructure:"line_buffer_size"`
	RollingLogMaxLines int   `mapstructure:"rolling_log_max_lines"`
	RollingLogMaxBytes int64 `mapstructure:"rolling_log_max_bytes"`

	ChunkAssemblyIdle time.Duration `mapstructure:"chunk_assembly_idle"`

	DedupCacheSize int `mapstructure:"dedup_cache_size"`

	DataDir string `mapstructure:"data_dir"`
}

// Default returns a Config with the spec's normative defaults.
func Default() *Config {
	return &Config{
		MaxRestarts:         0,
		RestartOnCrash:      false,
		RestartDelay:        0,
		KillTimeout:         10 * time.Second,
		HealthCheckInterval: 0,
		LineBufferSize:      100,
		RollingLogMaxLines:  1000,
		RollingLogMaxBytes:  1 << 20,
		ChunkAssemblyIdle:   100 * time.Millisecond,
		DedupCacheSize:      200,
		DataDir:             ".devsupervisor",
	}
}

// Load loads configuration from files and environment. Search order
// (highest precedence first): ./.devsupervisor.yaml, ~/.devsupervisor.yaml,
// $XDG_CONFIG_HOME/devsupervisor/config.yaml, /etc/devsupervisor/config.yaml.
func Load() (*Config, error) {
	cfg := Default()
	v := viper.New()

	v.SetDefault("max_restarts", cfg.MaxRestarts)
	v.SetDefault("restart_on_crash", cfg.RestartOnCrash)
	v.SetDefault("restart_delay", cfg.RestartDelay)
	v.SetDefault("kill_timeout", cfg.KillTimeout)
	v.SetDefault("health_check_interval", cfg.HealthCheckInterval)
	v.SetDefault("line_buffer_size", cfg.LineBufferSize)
	v.SetDefault("rolling_log_max_lines", cfg.RollingLogMaxLines)
	v.SetDefault("rolling_log_max_bytes", cfg.RollingLogMaxBytes)
	v.SetDefault("chunk_assembly_idle", cfg.ChunkAssemblyIdle)
	v.SetDefault("dedup_cache_size", cfg.DedupCacheSize)
	v.SetDefault("data_dir", cfg.DataDir)

	v.SetEnvPrefix("DEVSUPERVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile := findConfigFile(); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	names := []string{".devsupervisor.yaml", ".devsupervisor.yml", "devsupervisor.yaml", "devsupervisor.yml"}

	home, homeErr := os.UserHomeDir()
	configDir, configDirErr := os.UserConfigDir()

	var searchPaths []string
	if cwd, err := os.Getwd(); err == nil {
		searchPaths = append(searchPaths, cwd)
	}
	if homeErr == nil {
		searchPaths = append(searchPaths, home)
	}
	if configDirErr == nil {
		searchPaths = append(searchPaths, filepath.Join(configDir, "devsupervisor"))
	}
	searchPaths = append(searchPaths, "/etc/devsupervisor")

	for _, dir := range searchPaths {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
		if path := filepath.Join(dir, "config.yaml"); fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Validate checks config values for basic correctness (spec.md §4.4's
// trimming constants and §4.8's restart/timeout tunables).
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("max_restarts must be >= 0")
	}
	if c.RestartDelay < 0 {
		return fmt.Errorf("restart_delay must be >= 0")
	}
	if c.KillTimeout <= 0 {
		return fmt.Errorf("kill_timeout must be > 0")
	}
	if c.LineBufferSize <= 0 {
		return fmt.Errorf("line_buffer_size must be > 0")
	}
	if c.RollingLogMaxLines <= 0 {
		return fmt.Errorf("rolling_log_max_lines must be > 0")
	}
	if c.RollingLogMaxBytes <= 0 {
		return fmt.Errorf("rolling_log_max_bytes must be > 0")
	}
	if c.ChunkAssemblyIdle <= 0 {
		return fmt.Errorf("chunk_assembly_idle must be > 0")
	}
	if c.DedupCacheSize <= 0 {
		return fmt.Errorf("dedup_cache_size must be > 0")
	}
	return nil
}
