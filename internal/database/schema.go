package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// KVEntry backs the durable key/value store. Namespace scopes the keys of one
// client workspace, the same way browser storage is scoped to an origin.
type KVEntry struct {
	Namespace string `gorm:"primaryKey;size:64"`
	Key       string `gorm:"primaryKey;size:255"`
	Value     string
	UpdatedAt time.Time
}

type CompletionRecord struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Model        string    `gorm:"size:100"`
	Prompt       string
	Messages     datatypes.JSON `gorm:"type:jsonb"` // [{"role":"…","content":"…"},…]
	Reply        string
	Context      datatypes.JSON `gorm:"type:jsonb"` // [{"title":"…","text":"…"},…]
	Error        string
	LatencyMs    int64
	CreationTime time.Time `gorm:"index"`
}
