package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr  = ":8080"
	defaultDBPath      = "resolvd.db"
	defaultProgramPath = "resolver.py"
	defaultRuntime     = "python3"

	envConfigFile  = "RESOLVD_CONFIG"
	envListenAddr  = "RESOLVD_LISTEN_ADDR"
	envDBPath      = "RESOLVD_DB_PATH"
	envProgramPath = "RESOLVD_PROGRAM_PATH"
	envRuntime     = "RESOLVD_RUNTIME"
	envWorkDir     = "RESOLVD_WORK_DIR"
	envExecTimeout = "RESOLVD_EXEC_TIMEOUT"
	envLogLevel    = "RESOLVD_LOG_LEVEL"
)

// Config holds application configuration. Values are read from an optional
// YAML file first, then overridden by environment variables.
type Config struct {
	ListenAddr  string
	DBPath      string
	ProgramPath string
	Runtime     string
	WorkDir     string
	ExecTimeout time.Duration
	LogLevel    slog.Level
}

// fileConfig mirrors Config for YAML decoding. ExecTimeout is a Go duration
// string ("30s", "2m"); zero or absent means no invocation timeout.
type fileConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	DBPath      string `yaml:"db_path"`
	ProgramPath string `yaml:"program_path"`
	Runtime     string `yaml:"runtime"`
	WorkDir     string `yaml:"work_dir"`
	ExecTimeout string `yaml:"exec_timeout"`
	LogLevel    string `yaml:"log_level"`
}

// Load reads configuration with precedence defaults < file < environment.
// The file path comes from RESOLVD_CONFIG; a missing variable means no file.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:  defaultListenAddr,
		DBPath:      defaultDBPath,
		ProgramPath: defaultProgramPath,
		Runtime:     defaultRuntime,
		WorkDir:     os.TempDir(),
		LogLevel:    slog.LevelInfo,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envProgramPath); v != "" {
		cfg.ProgramPath = v
	}
	if v := os.Getenv(envRuntime); v != "" {
		cfg.Runtime = v
	}
	if v := os.Getenv(envWorkDir); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv(envExecTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envExecTimeout, err)
		}
		cfg.ExecTimeout = d
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.ProgramPath != "" {
		c.ProgramPath = fc.ProgramPath
	}
	if fc.Runtime != "" {
		c.Runtime = fc.Runtime
	}
	if fc.WorkDir != "" {
		c.WorkDir = fc.WorkDir
	}
	if fc.ExecTimeout != "" {
		d, err := time.ParseDuration(fc.ExecTimeout)
		if err != nil {
			return fmt.Errorf("config file exec_timeout: %w", err)
		}
		c.ExecTimeout = d
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
