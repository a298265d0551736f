package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-client/internal/config"
	"github.com/listenupapp/listenup-client/internal/events"
	"github.com/listenupapp/listenup-client/internal/logger"
	"github.com/listenupapp/listenup-client/internal/store"
)

const shutdownTimeout = 10 * time.Second

// EventBusHandle wraps the event bus for lifecycle management.
type EventBusHandle struct {
	*events.Bus
}

// Shutdown implements do.Shutdownable.
func (h *EventBusHandle) Shutdown() error {
	h.Bus.Close()
	return nil
}

// ProvideEventBus provides the in-process event bus.
func ProvideEventBus(i do.Injector) (*EventBusHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return &EventBusHandle{Bus: events.NewBus(log.Logger)}, nil
}

// StoreHandle wraps the store for lifecycle management.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Store.Close()
}

// ProvideStore provides the local badger store, migrated to the current
// schema version.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	bus := do.MustInvoke[*EventBusHandle](i)

	s, err := store.New(cfg.Data.Path, log.Logger, bus.Bus)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}

	return &StoreHandle{Store: s}, nil
}
