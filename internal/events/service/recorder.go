package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/copiflow/copiflow/internal/events/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
}

type Recorder struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p Params) domain.Recorder {
	return &Recorder{
		log:   p.Log.Named("events.recorder"),
		genID: p.GenID,
	}
}

func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, eventType string, payload map[string]any) error {
	event := domain.BillingEvent{
		ID:        r.genID.Generate(),
		EventType: eventType,
		Payload:   datatypes.JSONMap(payload),
		DedupeKey: dedupeKey(eventType, payload),
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
		return err
	}
	r.log.Info("billing event recorded",
		zap.String("event_type", eventType),
		zap.String("event_id", event.ID.String()),
	)
	return nil
}

// dedupeKey derives the uniqueness key for events that happen at most
// once per reading. Confirm and revert can legitimately repeat when a
// reading cycles between draft and confirmed, so those stay keyless.
func dedupeKey(eventType string, payload map[string]any) *string {
	switch eventType {
	case domain.EventReadingConfirmed, domain.EventReadingReverted:
		return nil
	}
	readingID, _ := payload["reading_id"].(string)
	if readingID == "" {
		return nil
	}
	key := eventType + ":" + readingID
	return &key
}
