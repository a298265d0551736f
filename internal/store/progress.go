package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/events"
)

// GetProgress retrieves the playback progress for a book.
func (s *Store) GetProgress(ctx context.Context, bookID string) (*domain.PlaybackProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var progress domain.PlaybackProgress
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(progressPrefix + bookID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &progress)
		})
	})

	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// PutProgress upserts the playback progress for a book unconditionally.
func (s *Store) PutProgress(ctx context.Context, progress *domain.PlaybackProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(progressPrefix+progress.BookID), data)
	})
	if err != nil {
		return err
	}

	s.emit(events.NewProgressUpdatedEvent(
		progress.BookID, progress.CurrentTime, progress.Progress, progress.IsFinished))
	return nil
}

// PutProgressIfNewer writes progress only when it is strictly newer than the
// stored record (last-write-wins by timestamp, not by source). The check and
// the write happen in one transaction. Returns true when the write was applied.
func (s *Store) PutProgressIfNewer(ctx context.Context, progress *domain.PlaybackProgress) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	data, err := json.Marshal(progress)
	if err != nil {
		return false, fmt.Errorf("marshal progress: %w", err)
	}

	applied := false
	err = s.db.Update(func(txn *badger.Txn) error {
		key := []byte(progressPrefix + progress.BookID)

		item, err := txn.Get(key)
		if err == nil {
			var existing domain.PlaybackProgress
			err = item.Value(func(val []byte) error {
				// A corrupt stored record loses to any incoming one.
				if jerr := json.Unmarshal(val, &existing); jerr != nil {
					existing = domain.PlaybackProgress{}
				}
				return nil
			})
			if err != nil {
				return err
			}
			if !progress.NewerThan(&existing) {
				return nil
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		applied = true
		return txn.Set(key, data)
	})

	if err == nil && applied {
		s.emit(events.NewProgressUpdatedEvent(
			progress.BookID, progress.CurrentTime, progress.Progress, progress.IsFinished))
	}
	return applied, err
}
