package migration_1

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CompletionRecord struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Model        string    `gorm:"size:100"`
	Prompt       string
	Messages     datatypes.JSON `gorm:"type:jsonb"`
	Reply        string
	Context      datatypes.JSON `gorm:"type:jsonb"`
	Error        string
	LatencyMs    int64
	CreationTime time.Time `gorm:"index"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().CreateTable(&CompletionRecord{}); err != nil {
		return fmt.Errorf("error creating completion_records table: %w", err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&CompletionRecord{}); err != nil {
		return fmt.Errorf("error dropping completion_records table: %w", err)
	}
	return nil
}
