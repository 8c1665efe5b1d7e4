package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/copiflow/copiflow/internal/customer/domain"
	"github.com/copiflow/copiflow/internal/device/domain"
	"github.com/copiflow/copiflow/pkg/db"
	"github.com/copiflow/copiflow/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	CustomerRepo customerdomain.Repository
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	customerRepo customerdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("device.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
	}
}

var hundred = decimal.NewFromInt(100)

func (s *Service) Create(ctx context.Context, req domain.CreateDeviceRequest) (domain.Device, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == 0 {
		return domain.Device{}, domain.ErrInvalidCustomer
	}
	customer, err := s.customerRepo.FindByID(ctx, s.db, customerID)
	if err != nil {
		return domain.Device{}, err
	}
	if customer == nil {
		return domain.Device{}, domain.ErrInvalidCustomer
	}

	serial := strings.TrimSpace(req.SerialNumber)
	if serial == "" {
		return domain.Device{}, domain.ErrInvalidSerial
	}

	deviceType := domain.DeviceType(strings.TrimSpace(req.DeviceType))
	if deviceType == "" {
		deviceType = domain.DeviceTypeMonochrome
	}
	if !deviceType.Valid() {
		return domain.Device{}, domain.ErrInvalidDeviceType
	}

	mode := domain.CalculationMode(strings.TrimSpace(req.CalculationMode))
	if mode == "" {
		mode = domain.CalcModeAuto
	}
	if !mode.Valid() {
		return domain.Device{}, domain.ErrInvalidMode
	}

	if req.BillingDay < 0 || req.BillingDay > 31 {
		return domain.Device{}, domain.ErrInvalidBillingDay
	}
	if err := validateTerms(req.DiscountPercent, req.TaxRatePercent, req.UnitPriceBW, req.UnitPriceColor, req.MinVolumeBW, req.MinVolumeColor); err != nil {
		return domain.Device{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = customer.Currency
	}
	if currency == "" {
		currency = "USD"
	}

	now := time.Now().UTC()
	device := domain.Device{
		ID:                s.genID.Generate(),
		CustomerID:        customerID,
		SerialNumber:      serial,
		Model:             strings.TrimSpace(req.Model),
		DeviceType:        deviceType,
		Active:            true,
		BillingDay:        req.BillingDay,
		CalculationMode:   mode,
		Currency:          currency,
		UnitPriceBW:       req.UnitPriceBW,
		UnitPriceColor:    req.UnitPriceColor,
		PriceTaxInclBW:    req.PriceTaxInclBW,
		PriceTaxInclColor: req.PriceTaxInclColor,
		MinVolumeBW:       req.MinVolumeBW,
		MinVolumeColor:    req.MinVolumeColor,
		DiscountPercent:   req.DiscountPercent,
		TaxRatePercent:    req.TaxRatePercent,
		FixedAmountBW:     req.FixedAmountBW,
		FixedAmountColor:  req.FixedAmountColor,
		FixedAmountTotal:  req.FixedAmountTotal,
		Metadata:          datatypes.JSONMap{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Insert(ctx, s.db, &device); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Device{}, domain.ErrDuplicateSerial
		}
		return domain.Device{}, err
	}

	s.log.Info("device registered",
		zap.String("device_id", device.ID.String()),
		zap.String("serial_number", device.SerialNumber),
	)
	return device, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateDeviceRequest) (domain.Device, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.Device{}, domain.ErrInvalidID
	}
	device, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Device{}, err
	}
	if device == nil {
		return domain.Device{}, domain.ErrNotFound
	}

	if req.Model != nil {
		device.Model = strings.TrimSpace(*req.Model)
	}
	if req.Active != nil {
		device.Active = *req.Active
	}
	if req.BillingDay != nil {
		if *req.BillingDay < 0 || *req.BillingDay > 31 {
			return domain.Device{}, domain.ErrInvalidBillingDay
		}
		device.BillingDay = *req.BillingDay
	}
	if req.CalculationMode != nil {
		mode := domain.CalculationMode(strings.TrimSpace(*req.CalculationMode))
		if !mode.Valid() {
			return domain.Device{}, domain.ErrInvalidMode
		}
		device.CalculationMode = mode
	}
	if req.Currency != nil {
		device.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	if req.UnitPriceBW != nil {
		device.UnitPriceBW = *req.UnitPriceBW
	}
	if req.UnitPriceColor != nil {
		device.UnitPriceColor = *req.UnitPriceColor
	}
	if req.PriceTaxInclBW != nil {
		device.PriceTaxInclBW = *req.PriceTaxInclBW
	}
	if req.PriceTaxInclColor != nil {
		device.PriceTaxInclColor = *req.PriceTaxInclColor
	}
	if req.MinVolumeBW != nil {
		device.MinVolumeBW = *req.MinVolumeBW
	}
	if req.MinVolumeColor != nil {
		device.MinVolumeColor = *req.MinVolumeColor
	}
	if req.DiscountPercent != nil {
		device.DiscountPercent = *req.DiscountPercent
	}
	if req.TaxRatePercent != nil {
		device.TaxRatePercent = *req.TaxRatePercent
	}
	if req.FixedAmountBW != nil {
		device.FixedAmountBW = *req.FixedAmountBW
	}
	if req.FixedAmountColor != nil {
		device.FixedAmountColor = *req.FixedAmountColor
	}
	if req.FixedAmountTotal != nil {
		device.FixedAmountTotal = *req.FixedAmountTotal
	}

	if err := validateTerms(device.DiscountPercent, device.TaxRatePercent, device.UnitPriceBW, device.UnitPriceColor, device.MinVolumeBW, device.MinVolumeColor); err != nil {
		return domain.Device{}, err
	}

	device.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, s.db, device); err != nil {
		return domain.Device{}, err
	}
	return *device, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Device, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.Device{}, domain.ErrInvalidID
	}
	device, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Device{}, err
	}
	if device == nil {
		return domain.Device{}, domain.ErrNotFound
	}
	return *device, nil
}

func (s *Service) List(ctx context.Context, req domain.ListDeviceRequest) (domain.ListDeviceResponse, error) {
	filter := domain.ListFilter{Active: req.Active}
	if trimmed := strings.TrimSpace(req.CustomerID); trimmed != "" {
		parsed, err := snowflake.ParseString(trimmed)
		if err != nil {
			return domain.ListDeviceResponse{}, domain.ErrInvalidCustomer
		}
		filter.CustomerID = parsed
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListDeviceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(device *domain.Device) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        device.ID.String(),
			CreatedAt: device.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	devices := make([]domain.Device, 0, len(items))
	for _, item := range items {
		devices = append(devices, *item)
	}
	return domain.ListDeviceResponse{PageInfo: *pageInfo, Devices: devices}, nil
}

func validateTerms(discount, taxRate, priceBW, priceColor decimal.Decimal, minBW, minColor int64) error {
	if discount.IsNegative() || discount.GreaterThan(hundred) {
		return domain.ErrInvalidDiscount
	}
	if taxRate.IsNegative() {
		return domain.ErrInvalidTaxRate
	}
	if priceBW.IsNegative() || priceColor.IsNegative() {
		return domain.ErrNegativePrice
	}
	if minBW < 0 || minColor < 0 {
		return domain.ErrNegativeVolume
	}
	return nil
}
