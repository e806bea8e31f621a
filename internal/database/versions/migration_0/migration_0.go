package migration_0

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type KVEntry struct {
	Namespace string `gorm:"primaryKey;size:64"`
	Key       string `gorm:"primaryKey;size:255"`
	Value     string
	UpdatedAt time.Time
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().CreateTable(&KVEntry{}); err != nil {
		return fmt.Errorf("error creating kv_entries table: %w", err)
	}
	return nil
}
