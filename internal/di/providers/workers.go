package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-client/internal/config"
	"github.com/listenupapp/listenup-client/internal/connectivity"
	"github.com/listenupapp/listenup-client/internal/download"
	"github.com/listenupapp/listenup-client/internal/logger"
	"github.com/listenupapp/listenup-client/internal/progressqueue"
	"github.com/listenupapp/listenup-client/internal/scheduler"
	"github.com/listenupapp/listenup-client/internal/server"
	"github.com/listenupapp/listenup-client/internal/sync"
)

// ConnectivityHandle wraps the monitor with its polling goroutine.
type ConnectivityHandle struct {
	*connectivity.Monitor
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ConnectivityHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideConnectivityMonitor provides the server reachability monitor,
// started in the background.
func ProvideConnectivityMonitor(i do.Injector) (*ConnectivityHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	bus := do.MustInvoke[*EventBusHandle](i)
	client := do.MustInvoke[server.Client](i)
	sched := do.MustInvoke[scheduler.Scheduler](i)

	monitor := connectivity.NewMonitor(client, bus.Bus, sched, log.Logger, cfg.Server.PingInterval)

	ctx, cancel := context.WithCancel(context.Background())
	go monitor.Run(ctx)

	return &ConnectivityHandle{Monitor: monitor, cancel: cancel}, nil
}

// ProgressQueueHandle wraps the queue with its drain loop goroutine.
type ProgressQueueHandle struct {
	*progressqueue.Queue
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ProgressQueueHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideProgressQueue provides the offline progress queue with its drain
// loop running.
func ProvideProgressQueue(i do.Injector) (*ProgressQueueHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	bus := do.MustInvoke[*EventBusHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[server.Client](i)
	monitor := do.MustInvoke[*ConnectivityHandle](i)
	sched := do.MustInvoke[scheduler.Scheduler](i)

	queue := progressqueue.New(storeHandle.Store, client, monitor.Monitor, bus.Bus, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go queue.Run(ctx, sched, cfg.Sync.DrainInterval)

	return &ProgressQueueHandle{Queue: queue, cancel: cancel}, nil
}

// DownloadHandle wraps the orchestrator with its scheduling goroutine.
type DownloadHandle struct {
	*download.Orchestrator
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *DownloadHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideDownloadOrchestrator provides the download orchestrator, recovered
// from any unclean shutdown and running.
func ProvideDownloadOrchestrator(i do.Injector) (*DownloadHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	bus := do.MustInvoke[*EventBusHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[server.Client](i)
	sched := do.MustInvoke[scheduler.Scheduler](i)

	orch := download.New(storeHandle.Store, client, cfg.Downloads, sched, bus.Bus, log.Logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := orch.Recover(ctx); err != nil {
		cancel()
		return nil, err
	}
	go orch.Run(ctx)

	return &DownloadHandle{Orchestrator: orch, cancel: cancel}, nil
}

// SyncHandle wraps the sync engine with its periodic goroutine.
type SyncHandle struct {
	*sync.Engine
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SyncHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideSyncEngine provides the reconciliation engine, running on its
// configured interval.
func ProvideSyncEngine(i do.Injector) (*SyncHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	bus := do.MustInvoke[*EventBusHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[server.Client](i)
	monitor := do.MustInvoke[*ConnectivityHandle](i)
	sched := do.MustInvoke[scheduler.Scheduler](i)

	engine := sync.New(storeHandle.Store, client, monitor.Monitor, bus.Bus, sched,
		log.Logger, sync.AudioProber{}, cfg.Sync.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)

	return &SyncHandle{Engine: engine, cancel: cancel}, nil
}
