package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/phasmapay/phasma/phasmaClient/store"
)

// KVStore implements store.KV on the kv_entries table.
type KVStore struct {
	db *gorm.DB
}

var _ store.KV = (*KVStore)(nil)

// NewKVStore returns a KV store backed by the given database.
func NewKVStore(d *DB) *KVStore {
	return &KVStore{db: d.Client()}
}

// Get returns the value stored under key.
func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry store.KVEntry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read key %s", key)
	}
	return entry.Value, true, nil
}

// Set upserts the value stored under key.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	return upsert(s.db.WithContext(ctx), key, value)
}

// SetMany upserts all entries in one transaction.
func (s *KVStore) SetMany(ctx context.Context, entries map[string]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range entries {
			if err := upsert(tx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsert(tx *gorm.DB, key, value string) error {
	entry := store.KVEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := tx.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entry_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return errors.Wrapf(err, "failed to write key %s", key)
	}
	return nil
}

// Remove deletes key. Absent keys are ignored.
func (s *KVStore) Remove(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&store.KVEntry{}).Error; err != nil {
		return errors.Wrapf(err, "failed to remove key %s", key)
	}
	return nil
}
