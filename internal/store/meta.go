package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	deviceIDKey      = metaPrefix + "device-id"
	schemaVersionKey = metaPrefix + "schema-version"
)

// schemaVersion is the current record-schema version. Migrations are
// idempotent check-before-write steps keyed on the stored version.
const schemaVersion = 1

// DeviceID returns the stable device identifier for this client install,
// generating and persisting one on first call. Progress pushes carry it so
// the server can distinguish devices on the same account.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var deviceID string
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(deviceIDKey))
		if err == nil {
			return item.Value(func(val []byte) error {
				deviceID = string(val)
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		deviceID = uuid.NewString()
		return txn.Set([]byte(deviceIDKey), []byte(deviceID))
	})
	if err != nil {
		return "", fmt.Errorf("device id: %w", err)
	}
	return deviceID, nil
}

// Migrate brings stored records up to the current schema version.
// Each step checks before it writes, so re-running after a crash is safe.
func (s *Store) Migrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := 0
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaVersionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := strconv.Atoi(string(val))
			if err == nil {
				stored = v
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if stored >= schemaVersion {
		return nil
	}

	// No data migrations yet: version 0 (fresh or pre-versioning) records
	// are forward-compatible because decoding tolerates missing fields.
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(schemaVersionKey), []byte(strconv.Itoa(schemaVersion)))
	})
	if err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("store migrated", "from", stored, "to", schemaVersion)
	}
	return nil
}
