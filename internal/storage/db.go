package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sciphi-chat/internal/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLite only supports one writer at a time, so we need a lock
// whenever we write to the database
var dbMutex sync.Mutex

type DBKVStore struct {
	db        *gorm.DB
	namespace string
}

var _ KVStore = (*DBKVStore)(nil)

func NewDBKVStore(db *gorm.DB, namespace string) *DBKVStore {
	return &DBKVStore{db: db, namespace: namespace}
}

func (s *DBKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry database.KVEntry
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", s.namespace, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error reading key %q: %w", key, err)
	}
	return entry.Value, true, nil
}

func (s *DBKVStore) Set(ctx context.Context, key, value string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	entry := database.KVEntry{
		Namespace: s.namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("error writing key %q: %w", key, err)
	}
	return nil
}

func (s *DBKVStore) Delete(ctx context.Context, key string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	err := s.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", s.namespace, key).
		Delete(&database.KVEntry{}).Error
	if err != nil {
		return fmt.Errorf("error deleting key %q: %w", key, err)
	}
	return nil
}
