package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/listenup-client/internal/domain"
)

// ReplaceLibraries replaces the full library set in one transaction.
// A reader never observes a half-replaced set; on error nothing changes.
func (s *Store) ReplaceLibraries(ctx context.Context, libraries []*domain.Library) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Marshal everything up front so a bad record aborts before any write.
	blobs := make(map[string][]byte, len(libraries))
	for _, lib := range libraries {
		data, err := json.Marshal(lib)
		if err != nil {
			return fmt.Errorf("marshal library %s: %w", lib.ID, err)
		}
		blobs[lib.ID] = data
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		// Collect existing library keys.
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(libraryPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		var stale [][]byte
		for it.Seek([]byte(libraryPrefix)); it.ValidForPrefix([]byte(libraryPrefix)); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		for id, data := range blobs {
			if err := txn.Set([]byte(libraryPrefix+id), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace libraries: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("libraries replaced", "count", len(libraries))
	}
	return nil
}

// PutBooks writes a batch of merged books in one transaction (all-or-nothing
// per library batch, so a failed sync pass is a no-op on local data).
func (s *Store) PutBooks(ctx context.Context, books []*domain.AudioBook) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	type blob struct {
		book *domain.AudioBook
		data []byte
	}
	blobs := make([]blob, 0, len(books))
	for _, book := range books {
		data, err := json.Marshal(book)
		if err != nil {
			return fmt.Errorf("marshal book %s: %w", book.ID, err)
		}
		blobs = append(blobs, blob{book: book, data: data})
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, b := range blobs {
			if err := s.Books.putInTxn(txn, b.book.ID, b.book, b.data); err != nil {
				return err
			}
		}
		return nil
	})
}

// CompleteDownload transitions a download item to Completed and updates the
// owning book's download-derived fields in a single transaction, so a reader
// never observes a completed download without the book marked downloaded.
// The stored item must still be Downloading: a concurrent Pause, Cancel, or
// Delete wins and the completion is not applied. Returns whether it was.
func (s *Store) CompleteDownload(ctx context.Context, item *domain.DownloadItem, book *domain.AudioBook) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	now := time.Now()
	item.Status = domain.DownloadCompleted
	item.CompletedAt = &now
	item.ErrorMessage = ""

	itemData, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("marshal download item: %w", err)
	}
	bookData, err := json.Marshal(book)
	if err != nil {
		return false, fmt.Errorf("marshal book: %w", err)
	}

	applied := false
	err = s.db.Update(func(txn *badger.Txn) error {
		current, err := s.storedDownload(txn, item.ID)
		if err != nil {
			return err
		}
		if current == nil || current.Status != domain.DownloadDownloading {
			return nil
		}

		applied = true
		if err := s.Downloads.putInTxn(txn, item.ID, item, itemData); err != nil {
			return err
		}
		return s.Books.putInTxn(txn, book.ID, book, bookData)
	})
	return applied, err
}

// PutDownloadIfStatus persists item only while the stored record still
// carries the required status. The check and the write share one transaction,
// so an in-flight transfer can never resurrect a status the user has already
// moved the item past. Returns whether the write was applied.
func (s *Store) PutDownloadIfStatus(ctx context.Context, item *domain.DownloadItem, required domain.DownloadStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("marshal download item: %w", err)
	}

	applied := false
	err = s.db.Update(func(txn *badger.Txn) error {
		current, err := s.storedDownload(txn, item.ID)
		if err != nil {
			return err
		}
		if current == nil || current.Status != required {
			return nil
		}

		applied = true
		return s.Downloads.putInTxn(txn, item.ID, item, data)
	})
	return applied, err
}

// storedDownload reads the current stored download item inside a transaction.
// Returns nil without error when the record does not exist.
func (s *Store) storedDownload(txn *badger.Txn, itemID string) (*domain.DownloadItem, error) {
	cur, err := txn.Get([]byte(downloadPrefix + itemID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var current domain.DownloadItem
	err = cur.Value(func(val []byte) error {
		return json.Unmarshal(val, &current)
	})
	if err != nil {
		return nil, err
	}
	return &current, nil
}
