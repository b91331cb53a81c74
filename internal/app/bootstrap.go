package app

import (
	"alertd/internal/config"
	"alertd/internal/notifier"
	"alertd/internal/server"
	logx "alertd/pkg/logx"
)

// Settings-file sections mapped onto component configs.

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func notifierConfig(cfg *config.Config) notifier.Config {
	return notifier.ConfigFrom(cfg.Sink)
}

func serverConfig(cfg *config.Config) server.Config {
	return server.ConfigFrom(cfg.Server)
}

func sectionChanged(sections []string, name string) bool {
	for _, s := range sections {
		if s == name {
			return true
		}
	}
	return false
}
