package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-client/internal/config"
	"github.com/listenupapp/listenup-client/internal/logger"
	"github.com/listenupapp/listenup-client/internal/scheduler"
	"github.com/listenupapp/listenup-client/internal/server"
)

// ProvideServerClient provides the catalog server API client.
func ProvideServerClient(i do.Injector) (server.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return server.NewHTTPClient(cfg.Server.URL, cfg.Server.Token, log.Logger), nil
}

// ProvideScheduler provides the production timer scheduler.
func ProvideScheduler(i do.Injector) (scheduler.Scheduler, error) {
	return scheduler.New(), nil
}
