package completions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sciphi-chat/internal/database"
	"sciphi-chat/pkg/api"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Recorder stores every upstream exchange in the completion_records table.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

type exchange struct {
	model   string
	prompt  string
	turns   []Turn
	reply   Reply
	err     error
	latency time.Duration
}

func (r *Recorder) record(ctx context.Context, ex exchange) error {
	messagesJSON, err := json.Marshal(ex.turns)
	if err != nil {
		return fmt.Errorf("error serializing messages: %w", err)
	}

	items := ex.reply.Context
	if items == nil {
		items = []api.ContextItem{}
	}
	contextJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("error serializing context: %w", err)
	}

	record := database.CompletionRecord{
		Id:           uuid.New(),
		Model:        ex.model,
		Prompt:       ex.prompt,
		Messages:     datatypes.JSON(messagesJSON),
		Reply:        ex.reply.Text,
		Context:      datatypes.JSON(contextJSON),
		LatencyMs:    ex.latency.Milliseconds(),
		CreationTime: time.Now().UTC(),
	}
	if ex.err != nil {
		record.Error = ex.err.Error()
	}

	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("error saving completion record: %w", err)
	}
	return nil
}

func (r *Recorder) List(ctx context.Context, limit int) ([]database.CompletionRecord, error) {
	var records []database.CompletionRecord
	if err := r.db.WithContext(ctx).Order("creation_time DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("error listing completion records: %w", err)
	}
	return records, nil
}
