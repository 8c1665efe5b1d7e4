package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/copiflow/copiflow/pkg/db/pagination"
	"gorm.io/gorm"
)

// DateLayout is the wire format for reading dates.
const DateLayout = "2006-01-02"

type CreateReadingRequest struct {
	DeviceID     string `json:"device_id"`
	ReadingDate  string `json:"reading_date"`
	BillingDate  string `json:"billing_date"`
	EmissionDate string `json:"emission_date"`

	// Current counters default to the resolved previous counters when
	// omitted (zero usage until the operator fills them in).
	CurrentBW    *int64 `json:"current_bw"`
	CurrentColor *int64 `json:"current_color"`

	Source string `json:"-"`

	// UniqueBillingDate makes creation fail when a non-cancelled reading
	// already bills the same date. The scheduler sets this to stay
	// idempotent; ad-hoc operator readings do not.
	UniqueBillingDate bool `json:"-"`
}

type UpdateReadingRequest struct {
	ID string `json:"-"`

	ReadingDate  *string `json:"reading_date"`
	BillingDate  *string `json:"billing_date"`
	EmissionDate *string `json:"emission_date"`

	CurrentBW    *int64 `json:"current_bw"`
	CurrentColor *int64 `json:"current_color"`
}

type ListReadingRequest struct {
	pagination.Pagination
	DeviceID    string `form:"device_id"`
	State       string `form:"state"`
	BillingDate string `form:"billing_date"`
}

type ListReadingResponse struct {
	pagination.PageInfo
	Readings []Reading `json:"readings"`
}

type Service interface {
	Create(ctx context.Context, req CreateReadingRequest) (Reading, error)
	Update(ctx context.Context, req UpdateReadingRequest) (Reading, error)
	Confirm(ctx context.Context, id string) (Reading, error)
	ReturnToDraft(ctx context.Context, id string) (Reading, error)
	Cancel(ctx context.Context, id string) (Reading, error)
	GetByID(ctx context.Context, id string) (Reading, error)
	List(ctx context.Context, req ListReadingRequest) (ListReadingResponse, error)

	// MarkInvoiced transitions confirmed→invoiced inside the caller's
	// transaction. Only the invoice projector calls this.
	MarkInvoiced(ctx context.Context, tx *gorm.DB, readingID, invoiceID snowflake.ID) error
}

type ListFilter struct {
	DeviceID    snowflake.ID
	State       ReadingState
	BillingDate *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, reading *Reading) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Reading, error)
	Save(ctx context.Context, db *gorm.DB, reading *Reading) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Reading, error)

	// FindLastFinalized returns the most recent confirmed or invoiced
	// reading for a device (reading date desc, id desc), or nil.
	FindLastFinalized(ctx context.Context, db *gorm.DB, deviceID snowflake.ID) (*Reading, error)

	// ExistsForBillingDate reports whether any non-cancelled reading
	// already bills the given date for the device.
	ExistsForBillingDate(ctx context.Context, db *gorm.DB, deviceID snowflake.ID, billingDate time.Time) (bool, error)
}
