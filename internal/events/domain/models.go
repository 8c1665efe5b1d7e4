// Package domain contains outbox events emitted by billing state changes.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventReadingCreated   = "reading.created"
	EventReadingConfirmed = "reading.confirmed"
	EventReadingReverted  = "reading.reverted"
	EventReadingCancelled = "reading.cancelled"
	EventReadingInvoiced  = "reading.invoiced"
	EventInvoiceCreated   = "invoice.created"
)

// BillingEvent captures outbox events for downstream notification and
// reporting collaborators. Delivery is outside this core; rows are
// written in the same transaction as the state change they describe.
// The dedupe key guards once-per-reading events against double insert.
type BillingEvent struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	EventType string            `gorm:"type:text;not null;index"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey *string           `gorm:"type:text;uniqueIndex:ux_billing_event_dedupe"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }

// Recorder appends billing events, usually inside the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, eventType string, payload map[string]any) error
}
