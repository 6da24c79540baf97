// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config resolves chronicle's data directory and store
// settings from defaults, an optional YAML file, and environment
// variables, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvDataDir overrides the data directory.
	EnvDataDir = "CHRONICLE_DATA_DIR"

	// EnvLogLevel overrides the log level.
	EnvLogLevel = "CHRONICLE_LOG_LEVEL"

	defaultDirName = ".chronicle"
	defaultDBName  = "chronicle.db"
)

// Config holds store settings.
type Config struct {
	// DataDir is the root directory for chronicle state.
	DataDir string `yaml:"data_dir"`

	// DatabasePath overrides the default DataDir/chronicle.db.
	DatabasePath string `yaml:"database_path"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// SearchLimit caps full-text search results per query.
	SearchLimit int `yaml:"search_limit"`

	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:         DefaultDataDir(),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		SearchLimit:     50,
		LogLevel:        "info",
	}
}

// Load reads configuration: defaults, then the YAML file at path (if
// path is empty, the default location, which may not exist), then
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Default location absent: run on defaults.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	cfg.DataDir = ExpandPath(cfg.DataDir)
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, defaultDBName)
	} else {
		cfg.DatabasePath = ExpandPath(cfg.DatabasePath)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		cfg.DataDir = dir
		cfg.DatabasePath = ""
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.LogLevel = level
	}
}

// DefaultDataDir returns ~/.chronicle, falling back to the working
// directory when the home directory cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// EnsureDataDir creates the data directory if missing.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", c.DataDir, err)
	}
	return nil
}
