// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package server

import (
	"os"

	toml "github.com/pelletier/go-toml"

	"github.com/conduitgrid/conduit/errors"
)

const (
	defaultBind    = ":8080"
	defaultDataDir = "~/.conduit"

	// StorageBolt stores the grid in one bolt file under DataDir.
	StorageBolt = "bolt"
	// StorageInmem keeps the grid in process memory; nothing survives
	// a restart. Useful for demos and tests.
	StorageInmem = "inmem"

	// StatsPrometheus serves operation stats at /metrics.
	StatsPrometheus = "prometheus"
	// StatsExpvar serves operation stats in-memory at /debug/vars.
	StatsExpvar = "expvar"
	// StatsNone disables stats collection.
	StatsNone = "none"
)

// Config represents the configuration for the command.
type Config struct {
	// DataDir is the directory where the grid stores its data file.
	DataDir string `toml:"data-dir"`

	// Bind is the host:port on which the server will listen.
	Bind string `toml:"bind"`

	// Storage selects the grid backend, "bolt" or "inmem".
	Storage string `toml:"storage"`

	// Stats selects where to send operation stats: "prometheus",
	// "expvar" or "none".
	Stats string `toml:"stats"`

	// LogPath configures where logs are written. Empty means stderr.
	LogPath string `toml:"log-path"`

	// Verbose toggles debug logging.
	Verbose bool `toml:"verbose"`
}

// NewConfig returns an instance of Config with default options.
func NewConfig() *Config {
	return &Config{
		DataDir: defaultDataDir,
		Bind:    defaultBind,
		Storage: StorageBolt,
		Stats:   StatsPrometheus,
	}
}

// Validate returns an error if the config is unusable.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageBolt, StorageInmem:
	default:
		return errors.Newf(errors.ErrValidation, "unknown storage backend %q", c.Storage)
	}
	switch c.Stats {
	case StatsPrometheus, StatsExpvar, StatsNone:
	default:
		return errors.Newf(errors.ErrValidation, "unknown stats backend %q", c.Stats)
	}
	if c.Bind == "" {
		return errors.New(errors.ErrValidation, "bind address required")
	}
	return nil
}

// LoadConfig reads a toml config file, overlaying the defaults.
func LoadConfig(path string) (*Config, error) {
	c := NewConfig()
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := toml.Unmarshal(buf, c); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return c, nil
}
