// Package badgerstore is a BadgerDB-backed ErrorStore, the runnable default
// so the supervisor works end-to-end without a separate database service.
// Grounded on the teacher's pack-mate tomtom215-cartographus, which opens
// Badger with a nil logger and a small value-log file size for compact
// per-key records, and keys everything behind a namespacing prefix.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vedranburojevic/devsupervisor/internal/domain"
	"github.com/vedranburojevic/devsupervisor/internal/store/memstore"
)

const keyPrefix = "err:"

// Store is an ErrorStore backed by an embedded BadgerDB database, keyed
// "err:<instanceId>/<hash>".
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) a Badger database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.ValueLogFileSize = 16 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for error store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(instanceID, hash string) []byte {
	return []byte(keyPrefix + instanceID + "/" + hash)
}

func (s *Store) StoreError(_ context.Context, instanceID, _ string, e domain.DetectedError) (domain.StoredError, error) {
	hash := memstore.Hash(e.Message, e.SourceFile)
	key := recordKey(instanceID, hash)

	now := time.Now()
	var rec domain.StoredError
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			rec = domain.StoredError{
				DetectedError:   e,
				Hash:            hash,
				FirstOccurrence: now,
				LastOccurrence:  now,
				OccurrenceCount: 1,
			}
		case err != nil:
			return fmt.Errorf("get existing record: %w", err)
		default:
			if unmarshalErr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); unmarshalErr != nil {
				return fmt.Errorf("decode existing record: %w", unmarshalErr)
			}
			rec.DetectedError = e
			rec.LastOccurrence = now
			rec.OccurrenceCount++
		}

		data, marshalErr := json.Marshal(rec)
		if marshalErr != nil {
			return fmt.Errorf("encode record: %w", marshalErr)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return domain.StoredError{}, err
	}
	return rec, nil
}

func (s *Store) ListErrors(_ context.Context, instanceID string) ([]domain.StoredError, error) {
	var out []domain.StoredError
	prefix := []byte(keyPrefix + instanceID + "/")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec domain.StoredError
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list errors: %w", err)
	}
	return out, nil
}

func (s *Store) ClearErrors(_ context.Context, instanceID string) (int, error) {
	var keys [][]byte
	prefix := []byte(keyPrefix + instanceID + "/")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, append([]byte{}, it.Item().Key()...))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan for clear: %w", err)
	}

	n := 0
	for _, k := range keys {
		if err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(k)
		}); err == nil {
			n++
		}
	}
	return n, nil
}

var _ interface {
	StoreError(context.Context, string, string, domain.DetectedError) (domain.StoredError, error)
	ListErrors(context.Context, string) ([]domain.StoredError, error)
	ClearErrors(context.Context, string) (int, error)
} = (*Store)(nil)
