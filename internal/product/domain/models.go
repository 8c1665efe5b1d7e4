// Package domain contains the billable-product catalog consulted at
// invoice-creation time.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	devicedomain "github.com/copiflow/copiflow/internal/device/domain"
)

// BillableProduct maps a billing channel to the product and ledger
// account an invoice line posts against.
type BillableProduct struct {
	ID          snowflake.ID         `gorm:"primaryKey" json:"id"`
	Channel     devicedomain.Channel `gorm:"type:text;not null;uniqueIndex" json:"channel"`
	Code        string               `gorm:"type:text;not null" json:"code"`
	Name        string               `gorm:"type:text;not null" json:"name"`
	AccountCode string               `gorm:"type:text" json:"account_code"`
	Active      bool                 `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (BillableProduct) TableName() string { return "billable_products" }

type UpsertProductRequest struct {
	Channel     string `json:"channel"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	AccountCode string `json:"account_code"`
	Active      *bool  `json:"active"`
}

type Service interface {
	Upsert(ctx context.Context, req UpsertProductRequest) (BillableProduct, error)
	FindByChannel(ctx context.Context, channel devicedomain.Channel) (*BillableProduct, error)
	List(ctx context.Context) ([]BillableProduct, error)
}

var (
	ErrInvalidChannel = errors.New("invalid_channel")
	ErrInvalidCode    = errors.New("invalid_product_code")
)
