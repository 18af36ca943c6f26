package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/matfwd/internal/logger"
)

// Config represents the matfwd configuration file (~/.config/matfwd/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Backend   string `yaml:"backend"`
	LocalSize *int   `yaml:"local_size"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string   `yaml:"server_address"`
	Tolerance     *float64 `yaml:"tolerance"`
}

const configEnv = "MATFWD_CONFIG"

// loadedConfig is read once per invocation by prepare.
var loadedConfig Config

func configPath() string {
	if configFile != "" {
		return configFile
	}
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "matfwd", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyGlobalConfig applies config file defaults to the global flags that
// were not set explicitly.
func applyGlobalConfig(c *cli.Command, cfg Config) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.LocalSize != nil && !c.IsSet("local-size") {
		localSize = *cfg.LocalSize
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// applyVerifyConfig applies config file defaults to verify command variables.
func applyVerifyConfig(c *cli.Command, cfg Config, tol *float64) {
	if cfg.Tolerance != nil && !c.IsSet("tolerance") {
		*tol = *cfg.Tolerance
	}
}

// prepare loads the config file and installs the logger in ctx.
func prepare(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configPath())
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	loadedConfig = cfg
	applyGlobalConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	log := logger.Setup(cmd.Root().ErrWriter, logFormat, level)
	return logger.WithContext(ctx, log), nil
}
