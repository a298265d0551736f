// Package progressqueue buffers playback-progress updates while the server
// is unreachable and replays them in order once it is back.
package progressqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/listenup-client/internal/connectivity"
	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/events"
	"github.com/listenupapp/listenup-client/internal/store"
)

// Queue owns the pending-progress log. Enqueue never touches the network;
// Drain replays entries to the server in enqueue order.
type Queue struct {
	store   *store.Store
	client  ProgressPusher
	monitor StatusSource
	bus     *events.Bus
	logger  *slog.Logger

	// drainMu serializes drains. A drain triggered while one is running is
	// skipped, not queued.
	drainMu sync.Mutex

	deviceMu sync.Mutex
	deviceID string
}

// ProgressPusher is the slice of the server client the queue needs.
type ProgressPusher interface {
	PushProgress(ctx context.Context, deviceID string, progress *domain.PlaybackProgress) error
}

// StatusSource reports current reachability. Satisfied by
// *connectivity.Monitor.
type StatusSource interface {
	Status() connectivity.Status
}

// New creates a queue. monitor may be nil, in which case Record always
// attempts the live push.
func New(s *store.Store, client ProgressPusher, monitor StatusSource, bus *events.Bus, logger *slog.Logger) *Queue {
	return &Queue{
		store:   s,
		client:  client,
		monitor: monitor,
		bus:     bus,
		logger:  logger,
	}
}

// Record is the playback-side entry point: persist progress locally, then
// push it live when the server looks reachable, falling back to the durable
// queue on any push failure. The local write always happens, so the UI never
// waits on the network.
func (q *Queue) Record(ctx context.Context, bookID string, currentTime float64, isFinished bool) error {
	progress := q.buildProgress(ctx, bookID, currentTime, isFinished)
	if err := q.store.PutProgress(ctx, progress); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "persist local progress")
	}

	if q.monitor != nil && !q.monitor.Status().Online {
		return q.Enqueue(ctx, bookID, currentTime, isFinished)
	}

	if err := q.client.PushProgress(ctx, q.device(ctx), progress); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if q.logger != nil {
			q.logger.Debug("live progress push failed, buffering",
				slog.String("book_id", bookID), slog.Any("error", err))
		}
		return q.Enqueue(ctx, bookID, currentTime, isFinished)
	}
	return nil
}

// Enqueue appends an entry to the durable log. Never blocks on network.
func (q *Queue) Enqueue(ctx context.Context, bookID string, currentTime float64, isFinished bool) error {
	_, err := q.store.AppendPending(ctx, bookID, currentTime, isFinished)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "append pending progress")
	}
	return nil
}

// Drain replays every pending entry in enqueue order. It stops at the first
// push failure and deletes exactly the entries the server acknowledged, so
// nothing is lost and entries enqueued mid-drain survive untouched. Returns
// the number of entries drained.
func (q *Queue) Drain(ctx context.Context) (int, error) {
	if !q.drainMu.TryLock() {
		return 0, nil
	}
	defer q.drainMu.Unlock()

	entries, err := q.store.ListPending(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeStorage, "list pending progress")
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var drainedSeqs []uint64
	var pushErr error
	for _, entry := range entries {
		progress := q.buildProgressAt(ctx, entry.ItemID, entry.CurrentTime, entry.IsFinished, entry.Timestamp)
		if err := q.client.PushProgress(ctx, q.device(ctx), progress); err != nil {
			pushErr = err
			break
		}
		drainedSeqs = append(drainedSeqs, entry.Seq)
	}

	if len(drainedSeqs) > 0 {
		if err := q.store.DeletePending(ctx, drainedSeqs); err != nil {
			return len(drainedSeqs), errors.Wrap(err, errors.CodeStorage, "delete drained entries")
		}
	}

	remaining := len(entries) - len(drainedSeqs)
	if q.logger != nil {
		q.logger.Info("progress drain finished",
			slog.Int("drained", len(drainedSeqs)),
			slog.Int("remaining", remaining))
	}
	if q.bus != nil && len(drainedSeqs) > 0 {
		q.bus.Publish(events.New(events.EventProgressDrained,
			events.DrainEventData{Drained: len(drainedSeqs), Remaining: remaining}))
	}

	return len(drainedSeqs), pushErr
}

// PendingCount reports the number of buffered entries.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.store.PendingCount(ctx)
}

// Run drains on every connectivity restoration and on a periodic interval as
// a backstop, until ctx is done. Call in a goroutine.
func (q *Queue) Run(ctx context.Context, sched Sleeper, interval time.Duration) {
	var connectivityCh <-chan events.Event
	if q.bus != nil {
		sub := q.bus.Subscribe()
		defer sub.Unsubscribe()
		connectivityCh = sub.C
	}

	trigger := make(chan struct{}, 1)
	go func() {
		for {
			if err := sched.Sleep(ctx, interval); err != nil {
				return
			}
			select {
			case trigger <- struct{}{}:
			default:
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-connectivityCh:
			if !ok {
				connectivityCh = nil
				continue
			}
			if ev.Type != events.EventConnectivityChanged {
				continue
			}
			data, ok := ev.Data.(events.ConnectivityEventData)
			if !ok || !data.Online {
				continue
			}
		case <-trigger:
			if q.monitor != nil && !q.monitor.Status().Online {
				continue
			}
		}

		if _, err := q.Drain(ctx); err != nil && ctx.Err() == nil {
			if q.logger != nil {
				q.logger.Debug("drain attempt failed", slog.Any("error", err))
			}
		}
	}
}

// Sleeper is the scheduler slice the drain loop needs.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// buildProgress assembles a PlaybackProgress stamped now.
func (q *Queue) buildProgress(ctx context.Context, bookID string, currentTime float64, isFinished bool) *domain.PlaybackProgress {
	return q.buildProgressAt(ctx, bookID, currentTime, isFinished, time.Now())
}

// buildProgressAt derives the percentage from the cached book's total
// duration; an unknown book yields zero percent rather than an error.
func (q *Queue) buildProgressAt(ctx context.Context, bookID string, currentTime float64, isFinished bool, at time.Time) *domain.PlaybackProgress {
	progress := &domain.PlaybackProgress{
		BookID:      bookID,
		CurrentTime: currentTime,
		IsFinished:  isFinished,
		UpdatedAt:   at,
	}
	if isFinished {
		progress.Progress = 100
	}

	book, err := q.store.Books.Get(ctx, bookID)
	if err != nil {
		return progress
	}
	if total := book.TotalDuration(); total > 0 && !isFinished {
		pct := currentTime / total * 100
		if pct > 100 {
			pct = 100
		}
		progress.Progress = pct
	}
	return progress
}

// device returns the persistent device ID, latching it only once the lookup
// succeeds so a transient store failure is retried on the next push.
func (q *Queue) device(ctx context.Context) string {
	q.deviceMu.Lock()
	defer q.deviceMu.Unlock()

	if q.deviceID != "" {
		return q.deviceID
	}

	deviceID, err := q.store.DeviceID(ctx)
	if err != nil {
		if q.logger != nil {
			q.logger.Warn("device id unavailable", slog.Any("error", err))
		}
		return ""
	}
	q.deviceID = deviceID
	return q.deviceID
}
