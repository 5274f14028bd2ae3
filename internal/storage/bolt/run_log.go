// Package bolt is a file-backed run log for single-node deployments that do
// not want the audit trail in Postgres.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bbolt "go.etcd.io/bbolt"

	"fantasy_ingest/internal/domain"
)

const runBucket = "ingest_runs"

type RunLogStore struct {
	db *bbolt.DB
}

func Open(path string) (*RunLogStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run log directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	return &RunLogStore{db: db}, nil
}

func (s *RunLogStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append stores the record under a key that sorts by start time.
func (s *RunLogStore) Append(_ context.Context, record *domain.RunRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(runBucket))
		if bucket == nil {
			return fmt.Errorf("run bucket missing")
		}
		return bucket.Put(recordKey(record), value)
	})
}

// Recent returns up to limit records, newest first.
func (s *RunLogStore) Recent(_ context.Context, limit int) ([]domain.RunRecord, error) {
	records := []domain.RunRecord{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(runBucket))
		if bucket == nil {
			return fmt.Errorf("run bucket missing")
		}

		c := bucket.Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec domain.RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode run record %s: %w", k, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func recordKey(record *domain.RunRecord) []byte {
	return []byte(record.StartedAt.UTC().Format("20060102T150405.000000000Z") + "/" + record.ID)
}
