package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/events"
)

// persistEvery throttles DownloadedBytes persistence and progress events so
// a fast transfer does not hammer the store on every buffer flush.
var persistEvery = rate.Every(500 * time.Millisecond)

// runTransfer fetches every remaining file for one item sequentially, then
// completes the item transactionally. Failure paths either schedule a retry
// or mark the item terminally Failed.
func (o *Orchestrator) runTransfer(ctx context.Context, tr *transfer, item *domain.DownloadItem) {
	limiter := rate.NewLimiter(persistEvery, 1)
	var written atomic.Int64
	written.Store(o.bytesOnDisk(item))

	// Every persist below is conditional on the stored item still being
	// Downloading: a Pause, Cancel, or Delete landing mid-transfer wins, and
	// this goroutine must never write the stale in-memory status back.
	onProgress := func() {
		item.DownloadedBytes = written.Load()
		if limiter.Allow() {
			applied, err := o.store.PutDownloadIfStatus(context.WithoutCancel(ctx), item, domain.DownloadDownloading)
			if err == nil && applied {
				o.publish(events.EventDownloadProgress, item)
			}
		}
	}

	var transferErr error
	for i := range item.Files {
		if item.Files[i].Done {
			continue
		}
		if err := o.fetchFile(ctx, item, &item.Files[i], &written, onProgress); err != nil {
			transferErr = err
			break
		}
		applied, err := o.store.PutDownloadIfStatus(context.WithoutCancel(ctx), item, domain.DownloadDownloading)
		if err != nil {
			transferErr = errors.Wrap(err, errors.CodeStorage, "persist file completion")
			break
		}
		if !applied {
			// The user's status write superseded this transfer.
			return
		}
	}

	if transferErr == nil {
		o.complete(context.WithoutCancel(ctx), item)
		return
	}

	if ctx.Err() != nil {
		// Pause and Cancel persist their own status; a shutdown leaves the
		// item as-is for startup recovery to re-queue.
		if o.logger != nil && tr.stopReason() == stopNone {
			o.logger.Info("transfer interrupted by shutdown", slog.String("item_id", item.ID))
		}
		return
	}

	o.failTransfer(context.WithoutCancel(ctx), item, transferErr)
}

// failTransfer records a failed attempt and either schedules a retry or
// surfaces the item as terminally Failed. Storage faults are never retried.
func (o *Orchestrator) failTransfer(ctx context.Context, item *domain.DownloadItem, cause error) {
	item.RetryCount++
	item.MarkFailed(cause.Error())

	fatal := errors.Is(cause, errors.ErrStorage)
	if fatal {
		item.RetryCount = item.MaxRetries + 1
	}

	applied, err := o.store.PutDownloadIfStatus(ctx, item, domain.DownloadDownloading)
	if err != nil {
		if o.logger != nil {
			o.logger.Error("persisting failed download state",
				slog.String("item_id", item.ID), slog.Any("error", err))
		}
		return
	}
	if !applied {
		// Paused, cancelled, or deleted concurrently; no retry to schedule.
		return
	}

	if !fatal && item.CanRetry() {
		o.scheduleRetry(item)
		return
	}

	if o.logger != nil {
		o.logger.Error("download failed terminally",
			slog.String("item_id", item.ID),
			slog.Int("retries", item.RetryCount-1),
			slog.String("error", item.ErrorMessage))
	}
	o.publish(events.EventDownloadFailed, item)
}

// fetchFile transfers one remote file to <dir>/<filename>.part and renames it
// into place after a full transfer. An existing .part is resumed with a Range
// request when the server supports it.
func (o *Orchestrator) fetchFile(ctx context.Context, item *domain.DownloadItem, f *domain.DownloadFile, written *atomic.Int64, onProgress func()) error {
	if err := os.MkdirAll(item.Dir, 0o755); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "create download directory")
	}

	finalPath := filepath.Join(item.Dir, f.Filename)
	partPath := finalPath + partSuffix

	// A fully sized final file from a previous run counts as done.
	if info, err := os.Stat(finalPath); err == nil && f.Size > 0 && info.Size() == f.Size {
		f.Done = true
		return nil
	}

	file, err := os.OpenFile(partPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "open part file")
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "stat part file")
	}
	existingSize := stat.Size()
	if _, err := file.Seek(existingSize, io.SeekStart); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "seek part file")
	}

	req, err := o.client.NewFileRequest(ctx, f.RemoteURI)
	if err != nil {
		return err
	}
	if existingSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existingSize))
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, errors.CodeTransient, "fetch file")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the Range header; start the file over.
		if existingSize > 0 {
			if err := file.Truncate(0); err != nil {
				return errors.Wrap(err, errors.CodeStorage, "truncate part file")
			}
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				return errors.Wrap(err, errors.CodeStorage, "rewind part file")
			}
			written.Add(-existingSize)
		}
	case http.StatusPartialContent:
		// Appending to existing bytes.
	default:
		return errors.Transientf("fetch %s: status %d", f.Filename, resp.StatusCode)
	}

	counter := &countingWriter{written: written, onWrite: onProgress}
	if _, err := io.Copy(io.MultiWriter(file, counter), resp.Body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, errors.CodeTransient, "copy file body")
	}
	if err := file.Sync(); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "sync part file")
	}
	if err := file.Close(); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "close part file")
	}

	if err := moveFile(partPath, finalPath); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "finalize file")
	}

	f.Done = true
	return nil
}

// complete runs the single-transaction finish: DownloadItem → Completed and
// the owning book's download fields updated together.
func (o *Orchestrator) complete(ctx context.Context, item *domain.DownloadItem) {
	book, err := o.store.Books.Get(ctx, item.BookID)
	if err != nil {
		if o.logger != nil {
			o.logger.Error("completing download: book missing",
				slog.String("item_id", item.ID),
				slog.String("book_id", item.BookID),
				slog.Any("error", err))
		}
		return
	}

	for _, f := range item.Files {
		if f.AudioFileID == "" {
			continue
		}
		for i := range book.AudioFiles {
			if audioFileKey(book.AudioFiles[i]) == f.AudioFileID {
				book.AudioFiles[i].LocalPath = filepath.Join(item.Dir, f.Filename)
				break
			}
		}
	}
	book.IsDownloaded = true
	book.LocalPath = item.Dir

	item.DownloadedBytes = item.TotalBytes
	applied, err := o.store.CompleteDownload(ctx, item, book)
	if err != nil {
		if o.logger != nil {
			o.logger.Error("persisting download completion",
				slog.String("item_id", item.ID), slog.Any("error", err))
		}
		return
	}
	if !applied {
		if o.logger != nil {
			o.logger.Info("download no longer active, skipping completion",
				slog.String("item_id", item.ID))
		}
		return
	}

	if o.logger != nil {
		o.logger.Info("download completed",
			slog.String("item_id", item.ID),
			slog.String("book_id", item.BookID),
			slog.String("dir", item.Dir))
	}
	o.publish(events.EventDownloadCompleted, item)
}

// bytesOnDisk sums what previous attempts already landed, so resumed items
// report accurate progress.
func (o *Orchestrator) bytesOnDisk(item *domain.DownloadItem) int64 {
	var total int64
	for _, f := range item.Files {
		finalPath := filepath.Join(item.Dir, f.Filename)
		if f.Done {
			if info, err := os.Stat(finalPath); err == nil {
				total += info.Size()
			}
			continue
		}
		if info, err := os.Stat(finalPath + partSuffix); err == nil {
			total += info.Size()
		}
	}
	return total
}

// countingWriter tracks bytes written and fires the progress callback.
type countingWriter struct {
	written *atomic.Int64
	onWrite func()
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.written.Add(int64(len(p)))
	if w.onWrite != nil {
		w.onWrite()
	}
	return len(p), nil
}
