// Package commands implements the stockroom CLI subcommands.
package commands

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/stockroom/pkg/config"
	"github.com/platinummonkey/stockroom/pkg/observability"
)

// Globals are the flags shared by every subcommand
type Globals struct {
	EnvFile  string
	LogLevel string
	Version  string
}

// load reads the dotenv file and the environment, then builds the logger
func (g *Globals) load() (*config.Config, *logrus.Logger, error) {
	if g.EnvFile != "" {
		if err := config.LoadEnvFile(g.EnvFile); err != nil {
			return nil, nil, err
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if g.LogLevel != "" {
		cfg.Observability.LogLevel = observability.ParseLogLevel(g.LogLevel)
	}
	if cfg.Observability.OTelServiceVersion == "" {
		cfg.Observability.OTelServiceVersion = g.Version
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr)
	return cfg, logger, nil
}
