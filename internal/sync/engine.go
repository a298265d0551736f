// Package sync reconciles the local catalog cache with the remote server:
// libraries are replaced wholesale, books are merged file-by-file so local
// download state survives server-side reshuffles, and playback progress moves
// in both directions under last-write-wins.
package sync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	stdsync "sync"
	"time"

	"github.com/listenupapp/listenup-client/internal/connectivity"
	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/events"
	"github.com/listenupapp/listenup-client/internal/scheduler"
	"github.com/listenupapp/listenup-client/internal/server"
	"github.com/listenupapp/listenup-client/internal/store"
)

// StatusSource reports current reachability. Satisfied by
// *connectivity.Monitor; nil means always attempt.
type StatusSource interface {
	Status() connectivity.Status
}

// Engine runs full sync passes. Passes are mutually exclusive: a trigger
// while one is running is suppressed, not queued.
type Engine struct {
	store    *store.Store
	client   server.Client
	monitor  StatusSource
	bus      *events.Bus
	sched    scheduler.Scheduler
	logger   *slog.Logger
	prober   FileProber
	interval time.Duration

	passMu stdsync.Mutex
}

// New creates an engine. prober may be nil, disabling duration probing
// during disk recovery (files still recover with zero durations).
func New(s *store.Store, client server.Client, monitor StatusSource, bus *events.Bus, sched scheduler.Scheduler, logger *slog.Logger, prober FileProber, interval time.Duration) *Engine {
	return &Engine{
		store:    s,
		client:   client,
		monitor:  monitor,
		bus:      bus,
		sched:    sched,
		logger:   logger,
		prober:   prober,
		interval: interval,
	}
}

// Run triggers a pass immediately and then on every interval until ctx is
// done. Passes are skipped while the server is unreachable.
func (e *Engine) Run(ctx context.Context) {
	for {
		if e.monitor == nil || e.monitor.Status().Online {
			if err := e.Sync(ctx); err != nil && ctx.Err() == nil {
				if e.logger != nil {
					e.logger.Warn("sync pass failed", slog.Any("error", err))
				}
			}
		}
		if err := e.sched.Sleep(ctx, e.interval); err != nil {
			return
		}
	}
}

// Sync executes one full pass. A pass already in progress suppresses this
// one (returns nil immediately). Once started, a pass runs to completion or
// failure; ctx cancellation aborts at the next network call.
func (e *Engine) Sync(ctx context.Context) error {
	if !e.passMu.TryLock() {
		return nil
	}
	defer e.passMu.Unlock()

	start := time.Now()
	if e.bus != nil {
		e.bus.Publish(events.New(events.EventSyncStarted, nil))
	}

	stats, err := e.pass(ctx)

	result := events.SyncEventData{
		Libraries: stats.libraries,
		Books:     stats.books,
		Duration:  time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	if e.bus != nil {
		e.bus.Publish(events.New(events.EventSyncCompleted, result))
	}

	if e.logger != nil {
		if err != nil {
			e.logger.Warn("sync finished with error",
				slog.Duration("took", time.Since(start)), slog.Any("error", err))
		} else {
			e.logger.Info("sync finished",
				slog.Int("libraries", stats.libraries),
				slog.Int("books", stats.books),
				slog.Duration("took", time.Since(start)))
		}
	}
	return err
}

type passStats struct {
	libraries int
	books     int
}

func (e *Engine) pass(ctx context.Context) (passStats, error) {
	var stats passStats

	libraries, err := e.client.GetLibraries(ctx)
	if err != nil {
		return stats, err
	}

	sort.Slice(libraries, func(i, j int) bool {
		return libraries[i].DisplayOrder < libraries[j].DisplayOrder
	})
	if err := e.store.ReplaceLibraries(ctx, libraries); err != nil {
		return stats, err
	}
	stats.libraries = len(libraries)

	// Everything the server still reports; books absent from this set get
	// the disk-recovery treatment afterwards.
	seen := make(map[string]bool)

	for _, lib := range libraries {
		remotes, err := e.client.GetLibraryItems(ctx, lib.ID)
		if err != nil {
			return stats, err
		}

		merged := make([]*domain.AudioBook, 0, len(remotes))
		for _, remote := range remotes {
			seen[remote.ID] = true

			local, err := e.store.Books.Get(ctx, remote.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return stats, err
			}
			merged = append(merged, mergeBook(local, remote))
		}

		// One transaction per library batch.
		if err := e.store.PutBooks(ctx, merged); err != nil {
			return stats, err
		}
		stats.books += len(merged)

		for _, book := range merged {
			if err := e.pullProgress(ctx, book); err != nil {
				return stats, err
			}
		}
	}

	if err := e.recoverUnlisted(ctx, seen); err != nil {
		return stats, err
	}

	return stats, nil
}

// pullProgress applies the server's playback position when it is newer than
// ours. The book's scalar fields follow the progress record.
func (e *Engine) pullProgress(ctx context.Context, book *domain.AudioBook) error {
	remote, err := e.client.GetProgress(ctx, book.ID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil
		}
		return err
	}

	applied, err := e.store.PutProgressIfNewer(ctx, remote)
	if err != nil || !applied {
		return err
	}

	book.CurrentTime = remote.CurrentTime
	book.Progress = remote.Progress
	book.IsFinished = remote.IsFinished
	return e.store.Books.Put(ctx, book.ID, book)
}

// recoverUnlisted handles downloaded books the server no longer reports:
// while their files remain on disk they stay browsable offline, with a file
// list rebuilt from whatever is actually in the download directory. Books
// with neither a server record nor files are dropped.
func (e *Engine) recoverUnlisted(ctx context.Context, seen map[string]bool) error {
	locals, err := e.store.Books.ListAll(ctx)
	if err != nil {
		return err
	}

	for _, book := range locals {
		if seen[book.ID] {
			continue
		}

		if !book.IsDownloaded || book.LocalPath == "" || !dirExists(book.LocalPath) {
			if e.logger != nil {
				e.logger.Info("dropping book removed from server",
					slog.String("book_id", book.ID), slog.String("title", book.Title))
			}
			if err := e.store.Books.Delete(ctx, book.ID); err != nil {
				return err
			}
			continue
		}

		recovered, err := e.recoverFromDisk(ctx, book)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("disk recovery failed, keeping record as-is",
					slog.String("book_id", book.ID), slog.Any("error", err))
			}
			continue
		}
		if err := e.store.Books.Put(ctx, recovered.ID, recovered); err != nil {
			return err
		}
	}
	return nil
}

// recoverFromDisk rebuilds a minimal AudioFile list from the files found in
// the book's download directory.
func (e *Engine) recoverFromDisk(ctx context.Context, book *domain.AudioBook) (*domain.AudioBook, error) {
	entries, err := os.ReadDir(book.LocalPath)
	if err != nil {
		return nil, err
	}

	recovered := *book
	recovered.AudioFiles = nil

	index := 0
	for _, entry := range entries {
		if entry.IsDir() || !isAudioFile(entry.Name()) {
			continue
		}
		path := filepath.Join(book.LocalPath, entry.Name())

		file := domain.AudioFile{
			Index:     index,
			Filename:  entry.Name(),
			LocalPath: path,
		}
		if info, err := entry.Info(); err == nil {
			file.Size = info.Size()
		}

		if e.prober != nil {
			if probed, err := e.prober.Probe(ctx, path); err == nil {
				file.Duration = probed.Duration
				if recovered.Title == "" && probed.Title != "" {
					recovered.Title = probed.Title
				}
				if len(recovered.Chapters) == 0 && len(probed.Chapters) > 0 {
					recovered.Chapters = probed.Chapters
				}
			}
		}
		if recovered.Title == "" {
			recovered.Title = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
		}

		recovered.AudioFiles = append(recovered.AudioFiles, file)
		index++
	}

	if e.logger != nil {
		e.logger.Info("recovered book from disk",
			slog.String("book_id", book.ID),
			slog.Int("files", len(recovered.AudioFiles)))
	}
	return &recovered, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isAudioFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m4b", ".m4a", ".mp3", ".flac", ".ogg", ".opus":
		return true
	default:
		return false
	}
}
