package domain

import (
	"context"
	"errors"

	"github.com/copiflow/copiflow/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type CreateDeviceRequest struct {
	CustomerID   string `json:"customer_id"`
	SerialNumber string `json:"serial_number"`
	Model        string `json:"model"`
	DeviceType   string `json:"device_type"`

	BillingDay      int    `json:"billing_day"`
	CalculationMode string `json:"calculation_mode"`
	Currency        string `json:"currency"`

	UnitPriceBW       decimal.Decimal `json:"unit_price_bw"`
	UnitPriceColor    decimal.Decimal `json:"unit_price_color"`
	PriceTaxInclBW    bool            `json:"price_tax_incl_bw"`
	PriceTaxInclColor bool            `json:"price_tax_incl_color"`

	MinVolumeBW    int64 `json:"min_volume_bw"`
	MinVolumeColor int64 `json:"min_volume_color"`

	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxRatePercent  decimal.Decimal `json:"tax_rate_percent"`

	FixedAmountBW    decimal.Decimal `json:"fixed_amount_bw"`
	FixedAmountColor decimal.Decimal `json:"fixed_amount_color"`
	FixedAmountTotal decimal.Decimal `json:"fixed_amount_total"`
}

type UpdateDeviceRequest struct {
	ID string `json:"-"`

	Model  *string `json:"model"`
	Active *bool   `json:"active"`

	BillingDay      *int    `json:"billing_day"`
	CalculationMode *string `json:"calculation_mode"`
	Currency        *string `json:"currency"`

	UnitPriceBW       *decimal.Decimal `json:"unit_price_bw"`
	UnitPriceColor    *decimal.Decimal `json:"unit_price_color"`
	PriceTaxInclBW    *bool            `json:"price_tax_incl_bw"`
	PriceTaxInclColor *bool            `json:"price_tax_incl_color"`

	MinVolumeBW    *int64 `json:"min_volume_bw"`
	MinVolumeColor *int64 `json:"min_volume_color"`

	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	TaxRatePercent  *decimal.Decimal `json:"tax_rate_percent"`

	FixedAmountBW    *decimal.Decimal `json:"fixed_amount_bw"`
	FixedAmountColor *decimal.Decimal `json:"fixed_amount_color"`
	FixedAmountTotal *decimal.Decimal `json:"fixed_amount_total"`
}

type ListDeviceRequest struct {
	pagination.Pagination
	CustomerID string `form:"customer_id"`
	Active     *bool  `form:"active"`
}

type ListDeviceResponse struct {
	pagination.PageInfo
	Devices []Device `json:"devices"`
}

type Service interface {
	Create(ctx context.Context, req CreateDeviceRequest) (Device, error)
	Update(ctx context.Context, req UpdateDeviceRequest) (Device, error)
	GetByID(ctx context.Context, id string) (Device, error)
	List(ctx context.Context, req ListDeviceRequest) (ListDeviceResponse, error)
}

var (
	ErrInvalidID         = errors.New("invalid_device_id")
	ErrInvalidCustomer   = errors.New("invalid_customer_id")
	ErrInvalidSerial     = errors.New("invalid_serial_number")
	ErrInvalidDeviceType = errors.New("invalid_device_type")
	ErrInvalidMode       = errors.New("invalid_calculation_mode")
	ErrInvalidBillingDay = errors.New("invalid_billing_day")
	ErrInvalidDiscount   = errors.New("invalid_discount_percent")
	ErrInvalidTaxRate    = errors.New("invalid_tax_rate")
	ErrNegativePrice     = errors.New("negative_unit_price")
	ErrNegativeVolume    = errors.New("negative_min_volume")
	ErrDuplicateSerial   = errors.New("duplicate_serial_number")
	ErrNotFound          = errors.New("device_not_found")
)
