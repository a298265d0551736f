// Package connectivity tracks whether the catalog server is reachable. The
// progress queue and sync engine gate their network work on it instead of
// discovering outages one failed request at a time.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/events"
	"github.com/listenupapp/listenup-client/internal/scheduler"
	"github.com/listenupapp/listenup-client/internal/server"
)

// Status is a snapshot of the last reachability check.
type Status struct {
	Online    bool
	CheckedAt time.Time
	// Reason holds the failure classification when offline ("unreachable"
	// for a dead connection, "rejected" for an auth failure, etc.).
	Reason string
}

// Monitor polls the server's health endpoint and publishes transitions.
type Monitor struct {
	client   server.Client
	bus      *events.Bus
	sched    scheduler.Scheduler
	logger   *slog.Logger
	interval time.Duration

	mu     sync.RWMutex
	status Status
	known  bool
}

// NewMonitor creates a monitor. The first check runs when Run starts; until
// then Status reports offline.
func NewMonitor(client server.Client, bus *events.Bus, sched scheduler.Scheduler, logger *slog.Logger, interval time.Duration) *Monitor {
	return &Monitor{
		client:   client,
		bus:      bus,
		sched:    sched,
		logger:   logger,
		interval: interval,
	}
}

// Status returns the latest snapshot.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Online reports the latest check result.
func (m *Monitor) Online() bool {
	return m.Status().Online
}

// Run polls until ctx is done. Call in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	for {
		if err := m.sched.Sleep(ctx, m.interval); err != nil {
			return
		}
		m.Check(ctx)
	}
}

// Check performs one reachability probe and returns the new status. A
// transition publishes a connectivity.changed event.
func (m *Monitor) Check(ctx context.Context) Status {
	err := m.client.Ping(ctx)
	if ctx.Err() != nil {
		return m.Status()
	}

	next := Status{Online: err == nil, CheckedAt: time.Now()}
	if err != nil {
		next.Reason = classify(err)
	}

	m.mu.Lock()
	changed := !m.known || m.status.Online != next.Online
	m.status = next
	m.known = true
	m.mu.Unlock()

	if changed {
		if m.logger != nil {
			m.logger.Info("connectivity changed",
				slog.Bool("online", next.Online),
				slog.String("reason", next.Reason))
		}
		if m.bus != nil {
			m.bus.Publish(events.New(events.EventConnectivityChanged,
				events.ConnectivityEventData{Online: next.Online, Reason: next.Reason}))
		}
	}

	return next
}

func classify(err error) string {
	switch {
	case errors.Is(err, errors.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, errors.ErrTransient):
		return "transient"
	case errors.Is(err, errors.ErrValidation):
		return "rejected"
	default:
		return "error"
	}
}
