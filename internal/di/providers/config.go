// Package providers contains dependency injection providers for the ListenUp client.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-client/internal/config"
	"github.com/listenupapp/listenup-client/internal/logger"
)

// Args carries the command-line arguments into the container.
type Args []string

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	args := do.MustInvoke[Args](i)
	return config.LoadConfig(args)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	})

	log.Info("Starting ListenUp Client",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"server", cfg.Server.URL,
		"data_path", cfg.Data.Path,
		"download_root", cfg.Downloads.Root,
	)

	return log, nil
}
