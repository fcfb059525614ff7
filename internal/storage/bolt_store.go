package storage

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

const (
	BucketRuns = "runs"
	BucketIDs  = "ids"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("run not found")

// Store keeps run summaries in a bbolt file. Runs are keyed by timestamp so
// a reverse cursor walk lists the newest first; the ids bucket maps run ids
// to those keys.
type Store struct {
	db       *bbolt.DB
	filePath string
}

func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create history dir")
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open history %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{BucketRuns, BucketIDs} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init history buckets")
	}

	return &Store{
		db:       db,
		filePath: path,
	}, nil
}

func (s *Store) Path() string {
	return s.filePath
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(item HistoryItem) error {
	if item.ID == "" {
		return errors.New("history item has no id")
	}
	data, err := json.Marshal(item)
	if err != nil {
		return errors.Wrap(err, "encode history item")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		ids := tx.Bucket([]byte(BucketIDs))
		runs := tx.Bucket([]byte(BucketRuns))

		if old := ids.Get([]byte(item.ID)); old != nil {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}
		key := runKey(item.Timestamp, item.ID)
		if err := ids.Put([]byte(item.ID), key); err != nil {
			return err
		}
		return runs.Put(key, data)
	})
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]HistoryItem, error) {
	var items []HistoryItem

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err != nil {
				return errors.Wrapf(err, "decode run %x", k)
			}
			items = append(items, item)
			if limit > 0 && len(items) >= limit {
				break
			}
		}
		return nil
	})
	return items, err
}

func (s *Store) Get(id string) (*HistoryItem, error) {
	var item HistoryItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(BucketIDs)).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		v := tx.Bucket([]byte(BucketRuns)).Get(key)
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete removes a run. Unknown ids return ErrNotFound.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		ids := tx.Bucket([]byte(BucketIDs))
		key := ids.Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		if err := tx.Bucket([]byte(BucketRuns)).Delete(key); err != nil {
			return err
		}
		return ids.Delete([]byte(id))
	})
}

func runKey(at time.Time, id string) []byte {
	key := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(at.UnixNano()))
	return append(key, id...)
}
