// Package download schedules and executes audiobook file transfers. Admission
// is strict FIFO with a fixed cap on concurrent transfers; files land next to
// their final name as .part and are renamed only after a full transfer, so a
// crash can never leave a half-written file posing as a finished one.
package download

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/listenupapp/listenup-client/internal/config"
	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/events"
	"github.com/listenupapp/listenup-client/internal/id"
	"github.com/listenupapp/listenup-client/internal/scheduler"
	"github.com/listenupapp/listenup-client/internal/server"
	"github.com/listenupapp/listenup-client/internal/store"
	"github.com/listenupapp/listenup-client/internal/util"
)

// stopReason distinguishes why an in-flight transfer's context was cancelled.
type stopReason int

const (
	stopNone stopReason = iota
	stopPause
	stopCancel
)

// transfer tracks one in-flight item.
type transfer struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	reason stopReason
}

func (t *transfer) stop(reason stopReason) {
	t.mu.Lock()
	t.reason = reason
	t.mu.Unlock()
	t.cancel()
}

func (t *transfer) stopReason() stopReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Orchestrator owns the download queue and its transfer slots.
type Orchestrator struct {
	store      *store.Store
	client     server.Client
	cfg        config.DownloadConfig
	sched      scheduler.Scheduler
	bus        *events.Bus
	logger     *slog.Logger
	httpClient *http.Client

	mu     sync.Mutex
	active map[string]*transfer

	wakeCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an orchestrator. httpClient may be nil for a default with no
// overall timeout (transfers are long-lived and cancelled via context).
func New(s *store.Store, client server.Client, cfg config.DownloadConfig, sched scheduler.Scheduler, bus *events.Bus, logger *slog.Logger, httpClient *http.Client) *Orchestrator {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Orchestrator{
		store:      s,
		client:     client,
		cfg:        cfg,
		sched:      sched,
		bus:        bus,
		logger:     logger,
		httpClient: httpClient,
		active:     make(map[string]*transfer),
		wakeCh:     make(chan struct{}, 1),
	}
}

// Enqueue creates a Queued download job for a book and signals the scheduler.
// A non-terminal job already covering the book is returned as-is instead of
// creating a duplicate.
func (o *Orchestrator) Enqueue(ctx context.Context, book *domain.AudioBook) (*domain.DownloadItem, error) {
	if len(book.AudioFiles) == 0 {
		return nil, errors.Validationf("book %s has no audio files", book.ID)
	}

	existing, err := o.store.Downloads.ListByIndex(ctx, "book", book.ID)
	if err != nil {
		return nil, err
	}
	for _, prior := range existing {
		if !prior.IsTerminal() {
			return prior, nil
		}
	}

	item := &domain.DownloadItem{
		ID:         id.MustGenerate("dl"),
		BookID:     book.ID,
		Title:      book.Title,
		Status:     domain.DownloadQueued,
		Dir:        o.targetDir(book),
		MaxRetries: o.cfg.MaxRetries,
		CreatedAt:  time.Now(),
	}

	for _, f := range book.AudioFiles {
		item.Files = append(item.Files, domain.DownloadFile{
			RemoteURI:   o.client.FileURL(book.ID, f.Ino),
			Filename:    util.SafeFileName(f.Filename),
			Size:        f.Size,
			AudioFileID: audioFileKey(f),
		})
		item.TotalBytes += f.Size
	}
	if coverURL := o.client.CoverURL(book.ID); coverURL != "" {
		item.Files = append(item.Files, domain.DownloadFile{
			RemoteURI: coverURL,
			Filename:  "cover.jpg",
		})
	}

	if err := o.store.Downloads.Put(ctx, item.ID, item); err != nil {
		return nil, err
	}

	if o.logger != nil {
		o.logger.Info("download enqueued",
			slog.String("item_id", item.ID),
			slog.String("book_id", book.ID),
			slog.Int("files", len(item.Files)))
	}
	o.publish(events.EventDownloadQueued, item)
	o.notify()
	return item, nil
}

// Run drives the admission loop until ctx is done, then waits for in-flight
// transfers to observe cancellation. Call in a goroutine after Recover.
func (o *Orchestrator) Run(ctx context.Context) {
	timer := time.NewTimer(admissionPollInterval)
	defer timer.Stop()

	for {
		o.fill(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(admissionPollInterval)

		select {
		case <-ctx.Done():
			o.wg.Wait()
			return
		case <-o.wakeCh:
		case <-timer.C:
		}
	}
}

// admissionPollInterval backstops lost wake signals.
const admissionPollInterval = 5 * time.Second

// fill promotes Queued items into free slots, oldest first.
func (o *Orchestrator) fill(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	items, err := o.store.Downloads.ListAll(ctx)
	if err != nil {
		if o.logger != nil {
			o.logger.Error("listing downloads failed", slog.Any("error", err))
		}
		return
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, item := range items {
		if len(o.active) >= o.cfg.MaxConcurrent {
			return
		}
		if item.Status != domain.DownloadQueued {
			continue
		}
		if _, running := o.active[item.ID]; running {
			continue
		}
		o.startLocked(ctx, item)
	}
}

// startLocked promotes one item to Downloading and launches its transfer
// task. Caller holds o.mu.
func (o *Orchestrator) startLocked(ctx context.Context, item *domain.DownloadItem) {
	now := time.Now()
	item.Status = domain.DownloadDownloading
	item.StartedAt = &now
	applied, err := o.store.PutDownloadIfStatus(ctx, item, domain.DownloadQueued)
	if err != nil {
		if o.logger != nil {
			o.logger.Error("promoting download failed",
				slog.String("item_id", item.ID), slog.Any("error", err))
		}
		return
	}
	if !applied {
		// Paused, cancelled, or deleted since the listing; not ours to start.
		return
	}

	transferCtx, cancel := context.WithCancel(ctx)
	tr := &transfer{cancel: cancel}
	o.active[item.ID] = tr

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.runTransfer(transferCtx, tr, item)

		o.mu.Lock()
		delete(o.active, item.ID)
		o.mu.Unlock()
		o.notify()
	}()
}

// Pause cancels the in-flight transfer, keeping partial .part bytes on disk
// for range-resumption. Queued items pause without ever starting.
func (o *Orchestrator) Pause(ctx context.Context, itemID string) error {
	item, err := o.store.Downloads.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status != domain.DownloadDownloading && item.Status != domain.DownloadQueued {
		return errors.Conflict("download is not active")
	}

	item.Status = domain.DownloadPaused
	if err := o.store.Downloads.Put(ctx, item.ID, item); err != nil {
		return err
	}

	o.stopTransfer(itemID, stopPause)
	return nil
}

// Resume re-enters a paused or retryable failed item into the queue.
func (o *Orchestrator) Resume(ctx context.Context, itemID string) error {
	item, err := o.store.Downloads.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status != domain.DownloadPaused && !(item.Status == domain.DownloadFailed && item.CanRetry()) {
		return errors.Conflict("download is not resumable")
	}

	item.Status = domain.DownloadQueued
	item.ErrorMessage = ""
	if err := o.store.Downloads.Put(ctx, item.ID, item); err != nil {
		return err
	}
	o.notify()
	return nil
}

// Cancel stops any in-flight transfer, removes partial files, and marks the
// item Cancelled (terminal).
func (o *Orchestrator) Cancel(ctx context.Context, itemID string) error {
	item, err := o.store.Downloads.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Status == domain.DownloadCompleted {
		return errors.Conflict("download already completed")
	}

	o.stopTransfer(itemID, stopCancel)

	removePartFiles(item)

	item.Status = domain.DownloadCancelled
	if err := o.store.Downloads.Put(ctx, item.ID, item); err != nil {
		return err
	}
	o.publish(events.EventDownloadCancelled, item)
	return nil
}

// Delete removes a terminal item's files from disk and its record. Active
// items must be cancelled first.
func (o *Orchestrator) Delete(ctx context.Context, itemID string) error {
	item, err := o.store.Downloads.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if !item.IsTerminal() {
		return errors.Conflict("download is not in a terminal state")
	}

	if err := removeDownloadDir(item); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "remove downloaded files")
	}

	if item.Status == domain.DownloadCompleted {
		if book, err := o.store.Books.Get(ctx, item.BookID); err == nil {
			book.IsDownloaded = false
			book.LocalPath = ""
			for i := range book.AudioFiles {
				book.AudioFiles[i].LocalPath = ""
			}
			if err := o.store.Books.Put(ctx, book.ID, book); err != nil {
				return err
			}
		}
	}

	return o.store.Downloads.Delete(ctx, itemID)
}

func (o *Orchestrator) stopTransfer(itemID string, reason stopReason) {
	o.mu.Lock()
	tr := o.active[itemID]
	o.mu.Unlock()
	if tr != nil {
		tr.stop(reason)
	}
}

// scheduleRetry re-queues a failed item after an exponential, jittered delay.
func (o *Orchestrator) scheduleRetry(item *domain.DownloadItem) {
	delay := backoffDelay(o.cfg.BackoffBase, item.RetryCount)
	itemID := item.ID

	if o.logger != nil {
		o.logger.Info("download retry scheduled",
			slog.String("item_id", itemID),
			slog.Int("retry", item.RetryCount),
			slog.Duration("delay", delay))
	}

	o.sched.After(delay, func() {
		ctx := context.Background()
		current, err := o.store.Downloads.Get(ctx, itemID)
		if err != nil {
			return
		}
		// The user may have paused or cancelled while the timer ran.
		if current.Status != domain.DownloadFailed || !current.CanRetry() {
			return
		}
		current.Status = domain.DownloadQueued
		if err := o.store.Downloads.Put(ctx, itemID, current); err != nil {
			return
		}
		o.notify()
	})
}

// backoffDelay is base × 2^retry with ±25% jitter.
func backoffDelay(base time.Duration, retry int) time.Duration {
	if base <= 0 {
		base = 2 * time.Second
	}
	delay := base << retry
	jitter := time.Duration(rand.Int64N(int64(delay)/2+1)) - delay/4
	return delay + jitter
}

func (o *Orchestrator) notify() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) publish(eventType events.EventType, item *domain.DownloadItem) {
	if o.bus == nil {
		return
	}
	data := events.DownloadEventData{
		ItemID:          item.ID,
		BookID:          item.BookID,
		Title:           item.Title,
		Status:          item.Status.String(),
		TotalBytes:      item.TotalBytes,
		DownloadedBytes: item.DownloadedBytes,
		Error:           item.ErrorMessage,
	}
	if item.TotalBytes > 0 {
		data.Percent = float64(item.DownloadedBytes) / float64(item.TotalBytes) * 100
	}
	o.bus.Publish(events.New(eventType, data))
}

func (o *Orchestrator) targetDir(book *domain.AudioBook) string {
	return downloadDir(o.cfg.Root, book.Author, book.Title)
}

// audioFileKey links a DownloadFile back to its AudioFile: the local ID when
// present, else the server's stable reference.
func audioFileKey(f domain.AudioFile) string {
	if f.ID != "" {
		return f.ID
	}
	return f.Ino
}
