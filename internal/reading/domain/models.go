// Package domain contains the meter-reading model and its lifecycle rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ReadingState is the lifecycle state of a reading.
type ReadingState string

const (
	StateDraft     ReadingState = "draft"
	StateConfirmed ReadingState = "confirmed"
	StateInvoiced  ReadingState = "invoiced"
	StateCancelled ReadingState = "cancelled"
)

// Reading source values.
const (
	SourceManual    = "manual"
	SourceScheduler = "scheduler"
)

// Reading is one billing period's meter snapshot for a device. Previous
// counters are copied from the device's last finalized reading at creation
// and never recomputed afterwards; everything below the counters is
// derived and rewritten on every relevant mutation.
type Reading struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	DeviceID snowflake.ID `gorm:"not null;index" json:"device_id"`

	ReadingDate time.Time `gorm:"type:date;not null" json:"reading_date"`
	// BillingDate anchors the period this reading bills, distinct from
	// when the snapshot was taken or when the invoice is dated.
	BillingDate  time.Time  `gorm:"type:date;not null;index" json:"billing_date"`
	EmissionDate *time.Time `gorm:"type:date" json:"emission_date,omitempty"`

	PreviousBW    int64 `gorm:"not null;default:0" json:"previous_bw"`
	CurrentBW     int64 `gorm:"not null;default:0" json:"current_bw"`
	PreviousColor int64 `gorm:"not null;default:0" json:"previous_color"`
	CurrentColor  int64 `gorm:"not null;default:0" json:"current_color"`

	State  ReadingState `gorm:"type:text;not null;default:'draft';index" json:"state"`
	Source string       `gorm:"type:text;not null;default:'manual'" json:"source"`

	CopiesBW      int64 `gorm:"not null;default:0" json:"copies_bw"`
	OverageBW     int64 `gorm:"not null;default:0" json:"overage_bw"`
	BillableBW    int64 `gorm:"not null;default:0" json:"billable_bw"`
	CopiesColor   int64 `gorm:"not null;default:0" json:"copies_color"`
	OverageColor  int64 `gorm:"not null;default:0" json:"overage_color"`
	BillableColor int64 `gorm:"not null;default:0" json:"billable_color"`

	SubtotalBW              decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"subtotal_bw"`
	SubtotalColor           decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"subtotal_color"`
	DiscountedSubtotalBW    decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"discounted_subtotal_bw"`
	DiscountedSubtotalColor decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"discounted_subtotal_color"`
	TaxBW                   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"tax_bw"`
	TaxColor                decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"tax_color"`
	TotalBW                 decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"total_bw"`
	TotalColor              decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"total_color"`

	Subtotal           decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"subtotal"`
	DiscountAmount     decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"discount_amount"`
	DiscountedSubtotal decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"discounted_subtotal"`
	TaxAmount          decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"tax_amount"`
	GrandTotal         decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"grand_total"`

	Currency  string        `gorm:"type:text;not null;default:'USD'" json:"currency"`
	InvoiceID *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Reading) TableName() string { return "readings" }

// Mutable reports whether counters and dates may still change.
func (r *Reading) Mutable() bool {
	return r.State == StateDraft || r.State == StateConfirmed
}

// Finalized reports whether the reading seeds later previous counters.
func (r *Reading) Finalized() bool {
	return r.State == StateConfirmed || r.State == StateInvoiced
}
