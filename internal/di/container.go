// Package di provides dependency injection configuration for the ListenUp client.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-client/internal/di/providers"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer(args []string) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, providers.Args(args))

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideEventBus)
	do.Provide(injector, providers.ProvideScheduler)

	// Local state
	do.Provide(injector, providers.ProvideStore)

	// Remote surface
	do.Provide(injector, providers.ProvideServerClient)
	do.Provide(injector, providers.ProvideConnectivityMonitor)

	// Workers
	do.Provide(injector, providers.ProvideProgressQueue)
	do.Provide(injector, providers.ProvideDownloadOrchestrator)
	do.Provide(injector, providers.ProvideSyncEngine)

	return injector
}

// Bootstrap triggers lazy initialization of every service so startup
// failures surface before the daemon reports ready.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.ConnectivityHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.ProgressQueueHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.DownloadHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SyncHandle](injector); err != nil {
		return err
	}
	return nil
}
