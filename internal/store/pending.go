package store

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/listenup-client/internal/domain"
)

// pendingKey builds a zero-padded key so badger's lexicographic iteration
// order matches sequence (and therefore enqueue) order.
func pendingKey(seq uint64) []byte {
	return fmt.Appendf(nil, "%s%020d", pendingPrefix, seq)
}

// AppendPending appends a buffered progress update to the durable log and
// returns the entry with its assigned sequence number.
func (s *Store) AppendPending(ctx context.Context, itemID string, currentTime float64, isFinished bool) (*domain.PendingProgressEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seq, err := s.pendingSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("next pending sequence: %w", err)
	}

	entry := &domain.PendingProgressEntry{
		Seq:         seq,
		ItemID:      itemID,
		CurrentTime: currentTime,
		IsFinished:  isFinished,
		Timestamp:   time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal pending entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pendingKey(seq), data)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListPending returns all buffered entries in replay order (ascending Seq,
// which tracks enqueue time). Corrupt entries are dropped with a warning so
// one bad record cannot wedge the queue forever.
func (s *Store) ListPending(ctx context.Context) ([]*domain.PendingProgressEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []*domain.PendingProgressEntry
	var corrupt [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(pendingPrefix)); it.ValidForPrefix([]byte(pendingPrefix)); it.Next() {
			var entry domain.PendingProgressEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				if s.logger != nil {
					s.logger.Warn("dropping corrupt pending entry",
						"key", string(it.Item().Key()), "error", err)
				}
				corrupt = append(corrupt, it.Item().KeyCopy(nil))
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(corrupt) > 0 {
		err = s.db.Update(func(txn *badger.Txn) error {
			for _, key := range corrupt {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("delete corrupt pending entries: %w", err)
		}
	}

	// Keys iterate in order already; keep the sort as a guard against a
	// sequence lease reset producing duplicate padding widths.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	return entries, nil
}

// DeletePending removes exactly the given entries in one transaction.
// Entries enqueued mid-drain keep their keys and survive.
func (s *Store) DeletePending(ctx context.Context, seqs []uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(seqs) == 0 {
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, seq := range seqs {
			if err := txn.Delete(pendingKey(seq)); err != nil {
				return err
			}
		}
		return nil
	})
}

// PendingCount returns the number of buffered entries.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(pendingPrefix)); it.ValidForPrefix([]byte(pendingPrefix)); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
