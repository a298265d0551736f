// Package store is the client's durable local state: cached catalog entities,
// download records, playback progress, and the pending-progress append log.
// Values are JSON blobs in badger keyed by type prefix.
package store

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/listenup-client/internal/domain"
)

// Key prefixes. Records of different types never share a prefix, so the
// sync engine, download orchestrator, and progress queue operate on disjoint
// key sets and coordinate only via per-entity transactions.
const (
	bookPrefix     = "book:"
	libraryPrefix  = "lib:"
	downloadPrefix = "dl:"
	progressPrefix = "progress:"
	pendingPrefix  = "pending:"
	metaPrefix     = "meta:"
)

// EventEmitter is the interface for publishing store change events.
// Store uses this to broadcast changes without depending on the event bus
// implementation.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates a new no-op emitter for testing.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	eventEmitter EventEmitter

	// pendingSeq hands out monotonic sequence numbers for the
	// pending-progress append log.
	pendingSeq *badger.Sequence

	// Typed entities.
	Books     *Entity[domain.AudioBook]
	Libraries *Entity[domain.Library]
	Downloads *Entity[domain.DownloadItem]
}

// New creates a new Store instance with the given database path and event emitter.
func New(path string, logger *slog.Logger, emitter EventEmitter) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	seq, err := db.GetSequence([]byte(metaPrefix+"pending-seq"), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open pending sequence: %w", err)
	}

	store := &Store{
		db:           db,
		logger:       logger,
		eventEmitter: emitter,
		pendingSeq:   seq,
	}

	store.Books = NewEntity[domain.AudioBook](store, bookPrefix)
	store.Libraries = NewEntity[domain.Library](store, libraryPrefix)
	// Index keys are composite (<bookID>:<itemID>) so several items for one
	// book (a terminal old one, a live new one) never clobber each other.
	store.Downloads = NewEntity[domain.DownloadItem](store, downloadPrefix).
		WithIndex("book", func(d *domain.DownloadItem) []string {
			return []string{d.BookID + ":" + d.ID}
		})

	if logger != nil {
		logger.Info("badger database opened", "path", path)
	}

	return store, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("closing database")
	}
	if err := s.pendingSeq.Release(); err != nil && s.logger != nil {
		s.logger.Warn("failed to release pending sequence", "error", err)
	}
	return s.db.Close()
}

// emit publishes a store change event when an emitter is configured.
func (s *Store) emit(event any) {
	if s.eventEmitter != nil {
		s.eventEmitter.Emit(event)
	}
}
