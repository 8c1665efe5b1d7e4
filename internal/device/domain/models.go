// Package domain contains the rented-device contract model and its
// commercial terms.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DeviceType distinguishes single-channel from dual-channel machines.
type DeviceType string

const (
	DeviceTypeMonochrome DeviceType = "monochrome"
	DeviceTypeColor      DeviceType = "color"
)

func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypeMonochrome, DeviceTypeColor:
		return true
	default:
		return false
	}
}

// Channel is one billing dimension of a device.
type Channel string

const (
	ChannelBW    Channel = "bw"
	ChannelColor Channel = "color"
)

// Label returns the human-readable channel name used on invoice lines.
func (c Channel) Label() string {
	if c == ChannelColor {
		return "Color"
	}
	return "Black/White"
}

// CalculationMode selects how a reading's rent is computed.
type CalculationMode string

const (
	CalcModeAuto               CalculationMode = "auto"
	CalcModeManualBW           CalculationMode = "manual_bw"
	CalcModeManualBWTaxIncl    CalculationMode = "manual_bw_tax_incl"
	CalcModeManualColor        CalculationMode = "manual_color"
	CalcModeManualColorTaxIncl CalculationMode = "manual_color_tax_incl"
	CalcModeManualTotal        CalculationMode = "manual_total"
	CalcModeManualTotalTaxIncl CalculationMode = "manual_total_tax_incl"
)

func (m CalculationMode) Valid() bool {
	switch m {
	case CalcModeAuto,
		CalcModeManualBW, CalcModeManualBWTaxIncl,
		CalcModeManualColor, CalcModeManualColorTaxIncl,
		CalcModeManualTotal, CalcModeManualTotalTaxIncl:
		return true
	default:
		return false
	}
}

// Device identifies one rented machine and the contract terms it bills
// under. Color-channel fields are inert on monochrome devices.
type Device struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID   snowflake.ID `gorm:"not null;index" json:"customer_id"`
	SerialNumber string       `gorm:"type:text;not null;uniqueIndex" json:"serial_number"`
	Model        string       `gorm:"type:text" json:"model"`
	DeviceType   DeviceType   `gorm:"type:text;not null;default:'monochrome'" json:"device_type"`
	Active       bool         `gorm:"not null;default:true" json:"active"`

	// BillingDay is the day of month billed readings anchor to; 0 means
	// the device is excluded from the automatic sweep.
	BillingDay int `gorm:"not null;default:0" json:"billing_day"`

	CalculationMode CalculationMode `gorm:"type:text;not null;default:'auto'" json:"calculation_mode"`
	Currency        string          `gorm:"type:text;not null;default:'USD'" json:"currency"`

	UnitPriceBW       decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"unit_price_bw"`
	UnitPriceColor    decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"unit_price_color"`
	PriceTaxInclBW    bool            `gorm:"not null;default:false" json:"price_tax_incl_bw"`
	PriceTaxInclColor bool            `gorm:"not null;default:false" json:"price_tax_incl_color"`

	MinVolumeBW    int64 `gorm:"not null;default:0" json:"min_volume_bw"`
	MinVolumeColor int64 `gorm:"not null;default:0" json:"min_volume_color"`

	DiscountPercent decimal.Decimal `gorm:"type:numeric(10,4);not null;default:0" json:"discount_percent"`
	TaxRatePercent  decimal.Decimal `gorm:"type:numeric(10,4);not null;default:0" json:"tax_rate_percent"`

	FixedAmountBW    decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"fixed_amount_bw"`
	FixedAmountColor decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"fixed_amount_color"`
	FixedAmountTotal decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"fixed_amount_total"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Device) TableName() string { return "devices" }

// Channels lists the billing channels this device meters.
func (d *Device) Channels() []Channel {
	if d.DeviceType == DeviceTypeColor {
		return []Channel{ChannelBW, ChannelColor}
	}
	return []Channel{ChannelBW}
}

// HasColor reports whether the color channel participates in billing.
func (d *Device) HasColor() bool { return d.DeviceType == DeviceTypeColor }
