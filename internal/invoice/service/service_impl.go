package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/copiflow/copiflow/internal/customer/domain"
	devicedomain "github.com/copiflow/copiflow/internal/device/domain"
	eventsdomain "github.com/copiflow/copiflow/internal/events/domain"
	"github.com/copiflow/copiflow/internal/invoice/domain"
	"github.com/copiflow/copiflow/internal/locks"
	productdomain "github.com/copiflow/copiflow/internal/product/domain"
	readingdomain "github.com/copiflow/copiflow/internal/reading/domain"
	"github.com/copiflow/copiflow/pkg/db/option"
	"github.com/copiflow/copiflow/pkg/db/pagination"
	"github.com/copiflow/copiflow/pkg/repository"
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
	ReadingRepo  readingdomain.Repository
	ReadingSvc   readingdomain.Service
	DeviceRepo   devicedomain.Repository
	CustomerRepo customerdomain.Repository
	ProductSvc   productdomain.Service
	Locker       locks.DeviceLocker
	Events       eventsdomain.Recorder
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	store        repository.Repository[domain.Invoice]
	readingRepo  readingdomain.Repository
	readingSvc   readingdomain.Service
	deviceRepo   devicedomain.Repository
	customerRepo customerdomain.Repository
	productSvc   productdomain.Service
	locker       locks.DeviceLocker
	events       eventsdomain.Recorder
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("invoice.service"),
		genID:        p.GenID,
		store:        repository.ProvideStore[domain.Invoice](p.DB),
		readingRepo:  p.ReadingRepo,
		readingSvc:   p.ReadingSvc,
		deviceRepo:   p.DeviceRepo,
		customerRepo: p.CustomerRepo,
		productSvc:   p.ProductSvc,
		locker:       p.Locker,
		events:       p.Events,
	}
}

type channelCharge struct {
	channel        devicedomain.Channel
	billableCopies int64
	unitAmount     decimal.Decimal
	taxAmount      decimal.Decimal
	total          decimal.Decimal
}

func (s *Service) CreateFromReading(ctx context.Context, readingID string) (domain.Invoice, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(readingID))
	if err != nil || parsed == 0 {
		return domain.Invoice{}, domain.ErrInvalidReading
	}

	reading, err := s.readingRepo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Invoice{}, err
	}
	if reading == nil {
		return domain.Invoice{}, readingdomain.ErrNotFound
	}

	// The invoiced transition is a device write like any other, so it
	// runs under the device lock. Re-read once the lock is held; a
	// cancel or revert may have committed while we waited.
	release, err := s.locker.Acquire(ctx, reading.DeviceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer release()

	reading, err = s.readingRepo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Invoice{}, err
	}
	if reading == nil {
		return domain.Invoice{}, readingdomain.ErrNotFound
	}
	if reading.State != readingdomain.StateConfirmed {
		return domain.Invoice{}, &readingdomain.IllegalTransitionError{Action: "invoice", State: reading.State}
	}

	device, err := s.deviceRepo.FindByID(ctx, s.db, reading.DeviceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if device == nil {
		return domain.Invoice{}, readingdomain.ErrDeviceNotFound
	}

	customer, err := s.customerRepo.FindByID(ctx, s.db, device.CustomerID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if customer == nil {
		return domain.Invoice{}, domain.ErrMissingCustomer
	}

	charges := collectCharges(reading, device)
	if len(charges) == 0 {
		return domain.Invoice{}, domain.ErrNothingToBill
	}

	// Every eligible channel must have a configured product before any
	// line is written; missing channels are reported together.
	products := make(map[devicedomain.Channel]*productdomain.BillableProduct, len(charges))
	var missing []devicedomain.Channel
	for _, charge := range charges {
		product, err := s.productSvc.FindByChannel(ctx, charge.channel)
		if err != nil {
			return domain.Invoice{}, err
		}
		if product == nil {
			missing = append(missing, charge.channel)
			continue
		}
		products[charge.channel] = product
	}
	if len(missing) > 0 {
		return domain.Invoice{}, &domain.MissingProductsError{Channels: missing}
	}

	issueDate := reading.BillingDate
	if reading.EmissionDate != nil {
		issueDate = *reading.EmissionDate
	}
	periodLabel := reading.BillingDate.Format("January 2006")

	now := time.Now().UTC()
	invoice := domain.Invoice{
		ID:          s.genID.Generate(),
		ReadingID:   reading.ID,
		DeviceID:    device.ID,
		CustomerID:  customer.ID,
		IssueDate:   issueDate,
		BillingDate: reading.BillingDate,
		Subtotal:    reading.DiscountedSubtotal,
		TaxAmount:   reading.TaxAmount,
		GrandTotal:  reading.GrandTotal,
		Currency:    reading.Currency,
		Metadata:    datatypes.JSONMap{"serial_number": device.SerialNumber},
		CreatedAt:   now,
	}
	for _, charge := range charges {
		product := products[charge.channel]
		invoice.Lines = append(invoice.Lines, domain.InvoiceLine{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Channel:     charge.channel,
			ProductCode: product.Code,
			AccountCode: product.AccountCode,
			Description: fmt.Sprintf("%s copies (%d billable) - %s", charge.channel.Label(), charge.billableCopies, periodLabel),
			Quantity:    1,
			UnitAmount:  charge.unitAmount,
			TaxAmount:   charge.taxAmount,
			Amount:      charge.total,

			BillableCopies: charge.billableCopies,
			CreatedAt:      now,
		})
	}

	// Create-or-fail: the invoice, its lines, and the reading transition
	// commit together or not at all.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}
		if err := s.readingSvc.MarkInvoiced(ctx, tx, reading.ID, invoice.ID); err != nil {
			return err
		}
		return s.events.Record(ctx, tx, eventsdomain.EventInvoiceCreated, map[string]any{
			"invoice_id":  invoice.ID.String(),
			"reading_id":  reading.ID.String(),
			"device_id":   device.ID.String(),
			"customer_id": customer.ID.String(),
			"grand_total": invoice.GrandTotal.String(),
			"currency":    invoice.Currency,
		})
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("reading_id", reading.ID.String()),
		zap.String("grand_total", invoice.GrandTotal.String()),
	)
	return invoice, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.Invoice{}, domain.ErrInvalidID
	}
	invoice, err := s.store.FindOne(ctx, &domain.Invoice{ID: parsed}, option.WithPreload("Lines"))
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return *invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	query := domain.Invoice{}
	if trimmed := strings.TrimSpace(req.DeviceID); trimmed != "" {
		parsed, err := snowflake.ParseString(trimmed)
		if err != nil {
			return domain.ListInvoiceResponse{}, domain.ErrInvalidID
		}
		query.DeviceID = parsed
	}
	if trimmed := strings.TrimSpace(req.CustomerID); trimmed != "" {
		parsed, err := snowflake.ParseString(trimmed)
		if err != nil {
			return domain.ListInvoiceResponse{}, domain.ErrInvalidID
		}
		query.CustomerID = parsed
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.store.Find(ctx, &query,
		option.ApplyPagination(pagination.Pagination{PageToken: req.PageToken, PageSize: pageSize}),
		option.WithOrder("created_at desc, id desc"),
	)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(invoice *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		invoices = append(invoices, *item)
	}
	return domain.ListInvoiceResponse{PageInfo: *pageInfo, Invoices: invoices}, nil
}

// collectCharges lists the channels with billable volume, in channel order.
func collectCharges(reading *readingdomain.Reading, device *devicedomain.Device) []channelCharge {
	var charges []channelCharge
	if reading.BillableBW > 0 {
		charges = append(charges, channelCharge{
			channel:        devicedomain.ChannelBW,
			billableCopies: reading.BillableBW,
			unitAmount:     reading.DiscountedSubtotalBW,
			taxAmount:      reading.TaxBW,
			total:          reading.TotalBW,
		})
	}
	if device.HasColor() && reading.BillableColor > 0 {
		charges = append(charges, channelCharge{
			channel:        devicedomain.ChannelColor,
			billableCopies: reading.BillableColor,
			unitAmount:     reading.DiscountedSubtotalColor,
			taxAmount:      reading.TaxColor,
			total:          reading.TotalColor,
		})
	}
	return charges
}
