// Package billing converts meter readings and contract terms into
// monetary totals. Compute is pure and deterministic; callers re-run it
// after every mutation of its inputs.
package billing

import (
	"errors"

	devicedomain "github.com/copiflow/copiflow/internal/device/domain"
	"github.com/copiflow/copiflow/pkg/currency"
	"github.com/shopspring/decimal"
)

var (
	ErrNilDevice      = errors.New("nil_device")
	ErrInvalidTaxRate = errors.New("invalid_tax_rate")
	ErrInvalidMode    = errors.New("invalid_calculation_mode")
)

// Input is one reading snapshot plus its device contract.
type Input struct {
	Device *devicedomain.Device

	PreviousBW int64
	CurrentBW  int64

	PreviousColor int64
	CurrentColor  int64
}

// ChannelTotals holds the per-channel outcome of a computation.
type ChannelTotals struct {
	Copies   int64
	Overage  int64
	Billable int64

	// Subtotal is the pre-discount, tax-exclusive base rent.
	Subtotal           decimal.Decimal
	DiscountedSubtotal decimal.Decimal
	Tax                decimal.Decimal
	Total              decimal.Decimal
}

// Totals is the full financial outcome for one reading.
type Totals struct {
	BW    ChannelTotals
	Color ChannelTotals

	Subtotal           decimal.Decimal
	DiscountAmount     decimal.Decimal
	DiscountedSubtotal decimal.Decimal
	TaxAmount          decimal.Decimal
	GrandTotal         decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Compute derives billable volumes and monetary totals from a reading
// snapshot. Intermediate math keeps full precision; currency rounding is
// applied once, per channel, at the end.
func Compute(in Input) (Totals, error) {
	device := in.Device
	if device == nil {
		return Totals{}, ErrNilDevice
	}

	taxRate := device.TaxRatePercent
	taxFactor := decimal.NewFromInt(1).Add(taxRate.Div(hundred))
	if !taxFactor.IsPositive() {
		return Totals{}, ErrInvalidTaxRate
	}

	bw := channelVolumes(in.PreviousBW, in.CurrentBW, device.MinVolumeBW)
	var color ChannelTotals
	if device.HasColor() {
		color = channelVolumes(in.PreviousColor, in.CurrentColor, device.MinVolumeColor)
	}

	// Tax-exclusive unit prices and auto-formula base costs. The auto
	// base doubles as the weighting basis for manual-total distribution.
	autoBW := decimal.NewFromInt(bw.Billable).Mul(exclusive(device.UnitPriceBW, device.PriceTaxInclBW, taxFactor))
	autoColor := decimal.Zero
	if device.HasColor() {
		autoColor = decimal.NewFromInt(color.Billable).Mul(exclusive(device.UnitPriceColor, device.PriceTaxInclColor, taxFactor))
	}

	baseBW, baseColor, err := baseRents(device, autoBW, autoColor, taxFactor)
	if err != nil {
		return Totals{}, err
	}

	subtotal := baseBW.Add(baseColor)
	discount := subtotal.Mul(device.DiscountPercent).Div(hundred)
	afterDiscount := subtotal.Sub(discount)

	// The discount is pushed back onto the channels proportionally; the
	// color share is derived by subtraction so the split is exact.
	var discBW, discColor decimal.Decimal
	if subtotal.IsPositive() {
		discBW = baseBW.Mul(afterDiscount).Div(subtotal)
		discColor = afterDiscount.Sub(discBW)
	}

	code := device.Currency
	bw.Subtotal = currency.Round(baseBW, code)
	bw.DiscountedSubtotal = currency.Round(discBW, code)
	bw.Tax = currency.Round(discBW.Mul(taxRate).Div(hundred), code)
	bw.Total = bw.DiscountedSubtotal.Add(bw.Tax)

	color.Subtotal = currency.Round(baseColor, code)
	color.DiscountedSubtotal = currency.Round(discColor, code)
	color.Tax = currency.Round(discColor.Mul(taxRate).Div(hundred), code)
	color.Total = color.DiscountedSubtotal.Add(color.Tax)

	out := Totals{BW: bw, Color: color}
	out.Subtotal = bw.Subtotal.Add(color.Subtotal)
	out.DiscountedSubtotal = bw.DiscountedSubtotal.Add(color.DiscountedSubtotal)
	out.DiscountAmount = out.Subtotal.Sub(out.DiscountedSubtotal)
	out.TaxAmount = bw.Tax.Add(color.Tax)
	out.GrandTotal = bw.Total.Add(color.Total)
	return out, nil
}

func channelVolumes(previous, current, guaranteed int64) ChannelTotals {
	copies := current - previous
	if copies < 0 {
		copies = 0
	}
	overage := copies - guaranteed
	if overage < 0 {
		overage = 0
	}
	billable := copies
	if guaranteed > billable {
		billable = guaranteed
	}
	return ChannelTotals{Copies: copies, Overage: overage, Billable: billable}
}

func exclusive(price decimal.Decimal, taxIncluded bool, taxFactor decimal.Decimal) decimal.Decimal {
	if taxIncluded {
		return price.Div(taxFactor)
	}
	return price
}

func baseRents(device *devicedomain.Device, autoBW, autoColor, taxFactor decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	switch device.CalculationMode {
	case devicedomain.CalcModeAuto:
		return autoBW, autoColor, nil

	case devicedomain.CalcModeManualBW, devicedomain.CalcModeManualBWTaxIncl:
		fixed := exclusive(device.FixedAmountBW, device.CalculationMode == devicedomain.CalcModeManualBWTaxIncl, taxFactor)
		return fixed, autoColor, nil

	case devicedomain.CalcModeManualColor, devicedomain.CalcModeManualColorTaxIncl:
		fixed := exclusive(device.FixedAmountColor, device.CalculationMode == devicedomain.CalcModeManualColorTaxIncl, taxFactor)
		return autoBW, fixed, nil

	case devicedomain.CalcModeManualTotal, devicedomain.CalcModeManualTotalTaxIncl:
		total := exclusive(device.FixedAmountTotal, device.CalculationMode == devicedomain.CalcModeManualTotalTaxIncl, taxFactor)
		basis := autoBW.Add(autoColor)
		if basis.IsPositive() {
			baseBW := total.Mul(autoBW).Div(basis)
			return baseBW, total.Sub(baseBW), nil
		}
		// With no usage basis on either channel the whole fixed total is
		// attributed to black/white.
		return total, decimal.Zero, nil

	default:
		return decimal.Zero, decimal.Zero, ErrInvalidMode
	}
}
