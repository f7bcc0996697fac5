// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads service configuration from an optional YAML file
// with command-line flag overrides.
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config holds all service configuration.
type Config struct {
	// HTTPAddr is the listen address for the JSON API.
	HTTPAddr string `koanf:"http_addr"`

	// MetricsAddr is the listen address for metrics and health probes.
	MetricsAddr string `koanf:"metrics_addr"`

	// DatabaseURL is the PostgreSQL connection string. Defaults to the
	// DATABASE_URL environment variable.
	DatabaseURL string `koanf:"database_url"`

	// LogFormat selects the slog handler: "json" or "text".
	LogFormat string `koanf:"log_format"`

	// PasswordMinLength is the minimum accepted password length.
	PasswordMinLength int `koanf:"password_min_length"`

	// RequireVerification controls whether new accounts must verify their
	// email before login.
	RequireVerification bool `koanf:"require_verification"`

	// BaseURL is the public URL prefix used in verification and reset
	// links.
	BaseURL string `koanf:"base_url"`

	Mail MailConfig `koanf:"mail"`
}

// MailConfig holds outbound mail settings. When Host is empty, outbound
// mail is logged instead of delivered.
type MailConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	From     string `koanf:"from"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         "127.0.0.1:9100",
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		LogFormat:           "json",
		PasswordMinLength:   8,
		RequireVerification: true,
		BaseURL:             "http://localhost:8080",
		Mail: MailConfig{
			Port: 587,
			From: "no-reply@localhost",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then any flags the user set explicitly.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.HTTPAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("http_addr is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if c.PasswordMinLength < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("password_min_length must be positive")
	}
	return nil
}
