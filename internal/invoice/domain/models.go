// Package domain contains invoice projections produced from confirmed
// readings. Numbering, payment terms, and ledger posting belong to the
// external invoicing subsystem; this core only supplies line-level facts.
package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	devicedomain "github.com/copiflow/copiflow/internal/device/domain"
	"github.com/copiflow/copiflow/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Invoice struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	ReadingID  snowflake.ID `gorm:"not null;uniqueIndex" json:"reading_id"`
	DeviceID   snowflake.ID `gorm:"not null;index" json:"device_id"`
	CustomerID snowflake.ID `gorm:"not null;index" json:"customer_id"`

	// IssueDate is the reading's emission date when set, else its billing date.
	IssueDate   time.Time `gorm:"type:date;not null" json:"issue_date"`
	BillingDate time.Time `gorm:"type:date;not null" json:"billing_date"`

	Subtotal   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"subtotal"`
	TaxAmount  decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"tax_amount"`
	GrandTotal decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"grand_total"`
	Currency   string          `gorm:"type:text;not null" json:"currency"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	Lines []InvoiceLine `gorm:"foreignKey:InvoiceID" json:"lines,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLine is one channel's charge. The unit amount already encodes
// the computed discounted subtotal, not a per-copy price.
type InvoiceLine struct {
	ID        snowflake.ID         `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID         `gorm:"not null;index" json:"invoice_id"`
	Channel   devicedomain.Channel `gorm:"type:text;not null" json:"channel"`

	ProductCode string `gorm:"type:text;not null" json:"product_code"`
	AccountCode string `gorm:"type:text" json:"account_code"`
	Description string `gorm:"type:text;not null" json:"description"`

	Quantity   int64           `gorm:"not null;default:1" json:"quantity"`
	UnitAmount decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"unit_amount"`
	TaxAmount  decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"tax_amount"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`

	BillableCopies int64     `gorm:"not null;default:0" json:"billable_copies"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceLine) TableName() string { return "invoice_lines" }

type ListInvoiceRequest struct {
	pagination.Pagination
	DeviceID   string `form:"device_id"`
	CustomerID string `form:"customer_id"`
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	// CreateFromReading projects one confirmed reading into an invoice
	// and marks the reading invoiced, atomically.
	CreateFromReading(ctx context.Context, readingID string) (Invoice, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
}

var (
	ErrInvalidID       = errors.New("invalid_invoice_id")
	ErrInvalidReading  = errors.New("invalid_reading_id")
	ErrNotFound        = errors.New("invoice_not_found")
	ErrMissingCustomer = errors.New("device_has_no_billing_customer")
	ErrNothingToBill   = errors.New("reading_has_no_billable_volume")
)

// MissingProductsError enumerates exactly which channels lack a
// configured billable product.
type MissingProductsError struct {
	Channels []devicedomain.Channel
}

func (e *MissingProductsError) Error() string {
	labels := make([]string, 0, len(e.Channels))
	for _, channel := range e.Channels {
		labels = append(labels, string(channel))
	}
	sort.Strings(labels)
	return fmt.Sprintf("no billable product configured for channel(s): %s", strings.Join(labels, ", "))
}
