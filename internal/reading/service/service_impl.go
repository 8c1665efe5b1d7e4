package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/copiflow/copiflow/internal/billing"
	devicedomain "github.com/copiflow/copiflow/internal/device/domain"
	eventsdomain "github.com/copiflow/copiflow/internal/events/domain"
	"github.com/copiflow/copiflow/internal/locks"
	"github.com/copiflow/copiflow/internal/reading/domain"
	"github.com/copiflow/copiflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	DeviceRepo devicedomain.Repository
	Locker     locks.DeviceLocker
	Events     eventsdomain.Recorder
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	deviceRepo devicedomain.Repository
	resolver   *PreviousResolver
	locker     locks.DeviceLocker
	events     eventsdomain.Recorder
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("reading.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		deviceRepo: p.DeviceRepo,
		resolver:   NewPreviousResolver(p.Repo),
		locker:     p.Locker,
		events:     p.Events,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateReadingRequest) (domain.Reading, error) {
	deviceID, err := snowflake.ParseString(strings.TrimSpace(req.DeviceID))
	if err != nil || deviceID == 0 {
		return domain.Reading{}, domain.ErrInvalidDevice
	}

	release, err := s.locker.Acquire(ctx, deviceID)
	if err != nil {
		return domain.Reading{}, err
	}
	defer release()

	device, err := s.deviceRepo.FindByID(ctx, s.db, deviceID)
	if err != nil {
		return domain.Reading{}, err
	}
	if device == nil {
		return domain.Reading{}, domain.ErrDeviceNotFound
	}

	readingDate, err := parseDate(req.ReadingDate, time.Now().UTC())
	if err != nil {
		return domain.Reading{}, err
	}
	billingDate, err := parseDate(req.BillingDate, readingDate)
	if err != nil {
		return domain.Reading{}, err
	}
	emissionDate, err := parseOptionalDate(req.EmissionDate)
	if err != nil {
		return domain.Reading{}, err
	}
	if emissionDate != nil && emissionDate.Before(readingDate) {
		return domain.Reading{}, domain.ErrEmissionBeforeRead
	}

	if req.UniqueBillingDate {
		exists, err := s.repo.ExistsForBillingDate(ctx, s.db, deviceID, billingDate)
		if err != nil {
			return domain.Reading{}, err
		}
		if exists {
			return domain.Reading{}, domain.ErrDuplicateBillingDate
		}
	}

	prevBW, prevColor, err := s.resolver.Resolve(ctx, s.db, deviceID)
	if err != nil {
		return domain.Reading{}, err
	}

	currentBW := prevBW
	if req.CurrentBW != nil {
		currentBW = *req.CurrentBW
	}
	currentColor := prevColor
	if req.CurrentColor != nil {
		currentColor = *req.CurrentColor
	}
	if err := validateCounters(prevBW, currentBW, prevColor, currentColor, device); err != nil {
		return domain.Reading{}, err
	}

	source := req.Source
	if source == "" {
		source = domain.SourceManual
	}

	now := time.Now().UTC()
	reading := domain.Reading{
		ID:            s.genID.Generate(),
		DeviceID:      deviceID,
		ReadingDate:   readingDate,
		BillingDate:   billingDate,
		EmissionDate:  emissionDate,
		PreviousBW:    prevBW,
		CurrentBW:     currentBW,
		PreviousColor: prevColor,
		CurrentColor:  currentColor,
		State:         domain.StateDraft,
		Source:        source,
		Currency:      device.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.recompute(&reading, device)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &reading); err != nil {
			return err
		}
		return s.events.Record(ctx, tx, eventsdomain.EventReadingCreated, eventPayload(&reading))
	})
	if err != nil {
		return domain.Reading{}, err
	}

	s.log.Info("reading created",
		zap.String("reading_id", reading.ID.String()),
		zap.String("device_id", deviceID.String()),
		zap.String("billing_date", reading.BillingDate.Format(domain.DateLayout)),
		zap.String("source", source),
	)
	return reading, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateReadingRequest) (domain.Reading, error) {
	reading, device, release, err := s.loadLocked(ctx, req.ID)
	if err != nil {
		return domain.Reading{}, err
	}
	defer release()

	if !reading.Mutable() {
		return domain.Reading{}, &domain.IllegalTransitionError{Action: "update", State: reading.State}
	}

	if req.ReadingDate != nil {
		parsed, err := parseDate(*req.ReadingDate, reading.ReadingDate)
		if err != nil {
			return domain.Reading{}, err
		}
		reading.ReadingDate = parsed
	}
	if req.BillingDate != nil {
		parsed, err := parseDate(*req.BillingDate, reading.BillingDate)
		if err != nil {
			return domain.Reading{}, err
		}
		reading.BillingDate = parsed
	}
	if req.EmissionDate != nil {
		parsed, err := parseOptionalDate(*req.EmissionDate)
		if err != nil {
			return domain.Reading{}, err
		}
		reading.EmissionDate = parsed
	}
	if reading.EmissionDate != nil && reading.EmissionDate.Before(reading.ReadingDate) {
		return domain.Reading{}, domain.ErrEmissionBeforeRead
	}

	if req.CurrentBW != nil {
		reading.CurrentBW = *req.CurrentBW
	}
	if req.CurrentColor != nil {
		reading.CurrentColor = *req.CurrentColor
	}
	if err := validateCounters(reading.PreviousBW, reading.CurrentBW, reading.PreviousColor, reading.CurrentColor, device); err != nil {
		return domain.Reading{}, err
	}

	s.recompute(reading, device)
	reading.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, s.db, reading); err != nil {
		return domain.Reading{}, err
	}
	return *reading, nil
}

func (s *Service) Confirm(ctx context.Context, id string) (domain.Reading, error) {
	reading, device, release, err := s.loadLocked(ctx, id)
	if err != nil {
		return domain.Reading{}, err
	}
	defer release()

	if reading.State != domain.StateDraft {
		return domain.Reading{}, &domain.IllegalTransitionError{Action: "confirm", State: reading.State}
	}

	s.recompute(reading, device)
	reading.State = domain.StateConfirmed
	reading.UpdatedAt = time.Now().UTC()

	if err := s.saveWithEvent(ctx, reading, eventsdomain.EventReadingConfirmed); err != nil {
		return domain.Reading{}, err
	}
	return *reading, nil
}

func (s *Service) ReturnToDraft(ctx context.Context, id string) (domain.Reading, error) {
	reading, _, release, err := s.loadLocked(ctx, id)
	if err != nil {
		return domain.Reading{}, err
	}
	defer release()

	if reading.State != domain.StateConfirmed {
		return domain.Reading{}, &domain.IllegalTransitionError{Action: "revert", State: reading.State}
	}

	reading.State = domain.StateDraft
	reading.UpdatedAt = time.Now().UTC()

	if err := s.saveWithEvent(ctx, reading, eventsdomain.EventReadingReverted); err != nil {
		return domain.Reading{}, err
	}
	return *reading, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (domain.Reading, error) {
	reading, _, release, err := s.loadLocked(ctx, id)
	if err != nil {
		return domain.Reading{}, err
	}
	defer release()

	if reading.State != domain.StateDraft && reading.State != domain.StateConfirmed {
		return domain.Reading{}, &domain.IllegalTransitionError{Action: "cancel", State: reading.State}
	}

	reading.State = domain.StateCancelled
	reading.UpdatedAt = time.Now().UTC()

	if err := s.saveWithEvent(ctx, reading, eventsdomain.EventReadingCancelled); err != nil {
		return domain.Reading{}, err
	}
	return *reading, nil
}

func (s *Service) MarkInvoiced(ctx context.Context, tx *gorm.DB, readingID, invoiceID snowflake.ID) error {
	reading, err := s.repo.FindByID(ctx, tx, readingID)
	if err != nil {
		return err
	}
	if reading == nil {
		return domain.ErrNotFound
	}
	if reading.State != domain.StateConfirmed {
		return &domain.IllegalTransitionError{Action: "invoice", State: reading.State}
	}

	reading.State = domain.StateInvoiced
	reading.InvoiceID = &invoiceID
	reading.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, tx, reading); err != nil {
		return err
	}
	return s.events.Record(ctx, tx, eventsdomain.EventReadingInvoiced, eventPayload(reading))
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Reading, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.Reading{}, domain.ErrInvalidID
	}
	reading, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Reading{}, err
	}
	if reading == nil {
		return domain.Reading{}, domain.ErrNotFound
	}
	return *reading, nil
}

func (s *Service) List(ctx context.Context, req domain.ListReadingRequest) (domain.ListReadingResponse, error) {
	filter := domain.ListFilter{State: domain.ReadingState(strings.TrimSpace(req.State))}
	if trimmed := strings.TrimSpace(req.DeviceID); trimmed != "" {
		parsed, err := snowflake.ParseString(trimmed)
		if err != nil {
			return domain.ListReadingResponse{}, domain.ErrInvalidDevice
		}
		filter.DeviceID = parsed
	}
	if trimmed := strings.TrimSpace(req.BillingDate); trimmed != "" {
		parsed, err := time.Parse(domain.DateLayout, trimmed)
		if err != nil {
			return domain.ListReadingResponse{}, domain.ErrInvalidDate
		}
		filter.BillingDate = &parsed
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
		return domain.ListReadingResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(reading *domain.Reading) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        reading.ID.String(),
			CreatedAt: reading.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	readings := make([]domain.Reading, 0, len(items))
	for _, item := range items {
		readings = append(readings, *item)
	}
	return domain.ListReadingResponse{PageInfo: *pageInfo, Readings: readings}, nil
}

// loadLocked resolves a reading, takes its device lock, and re-reads the
// reading under the lock so transitions observe a consistent snapshot.
func (s *Service) loadLocked(ctx context.Context, id string) (*domain.Reading, *devicedomain.Device, func(), error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return nil, nil, nil, domain.ErrInvalidID
	}

	reading, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return nil, nil, nil, err
	}
	if reading == nil {
		return nil, nil, nil, domain.ErrNotFound
	}

	release, err := s.locker.Acquire(ctx, reading.DeviceID)
	if err != nil {
		return nil, nil, nil, err
	}

	reading, err = s.repo.FindByID(ctx, s.db, parsed)
	if err != nil || reading == nil {
		release()
		if err == nil {
			err = domain.ErrNotFound
		}
		return nil, nil, nil, err
	}

	device, err := s.deviceRepo.FindByID(ctx, s.db, reading.DeviceID)
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	if device == nil {
		release()
		return nil, nil, nil, domain.ErrDeviceNotFound
	}
	return reading, device, release, nil
}

func (s *Service) saveWithEvent(ctx context.Context, reading *domain.Reading, eventType string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Save(ctx, tx, reading); err != nil {
			return err
		}
		return s.events.Record(ctx, tx, eventType, eventPayload(reading))
	})
}

// recompute rewrites every derived financial field from the current
// counters and contract terms. Failures zero the money fields and log;
// they never block the mutation itself.
func (s *Service) recompute(reading *domain.Reading, device *devicedomain.Device) {
	totals := billing.SafeCompute(s.log, billing.Input{
		Device:        device,
		PreviousBW:    reading.PreviousBW,
		CurrentBW:     reading.CurrentBW,
		PreviousColor: reading.PreviousColor,
		CurrentColor:  reading.CurrentColor,
	})

	reading.CopiesBW = totals.BW.Copies
	reading.OverageBW = totals.BW.Overage
	reading.BillableBW = totals.BW.Billable
	reading.CopiesColor = totals.Color.Copies
	reading.OverageColor = totals.Color.Overage
	reading.BillableColor = totals.Color.Billable

	reading.SubtotalBW = totals.BW.Subtotal
	reading.SubtotalColor = totals.Color.Subtotal
	reading.DiscountedSubtotalBW = totals.BW.DiscountedSubtotal
	reading.DiscountedSubtotalColor = totals.Color.DiscountedSubtotal
	reading.TaxBW = totals.BW.Tax
	reading.TaxColor = totals.Color.Tax
	reading.TotalBW = totals.BW.Total
	reading.TotalColor = totals.Color.Total

	reading.Subtotal = totals.Subtotal
	reading.DiscountAmount = totals.DiscountAmount
	reading.DiscountedSubtotal = totals.DiscountedSubtotal
	reading.TaxAmount = totals.TaxAmount
	reading.GrandTotal = totals.GrandTotal
	reading.Currency = device.Currency
}

func validateCounters(prevBW, curBW, prevColor, curColor int64, device *devicedomain.Device) error {
	if curBW < prevBW {
		return &domain.CounterRegressionError{Channel: "bw", Previous: prevBW, Current: curBW}
	}
	if device.HasColor() && curColor < prevColor {
		return &domain.CounterRegressionError{Channel: "color", Previous: prevColor, Current: curColor}
	}
	return nil
}

func eventPayload(reading *domain.Reading) map[string]any {
	return map[string]any{
		"reading_id":   reading.ID.String(),
		"device_id":    reading.DeviceID.String(),
		"state":        string(reading.State),
		"billing_date": reading.BillingDate.Format(domain.DateLayout),
		"grand_total":  reading.GrandTotal.String(),
		"currency":     reading.Currency,
	}
}

func parseDate(value string, fallback time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return truncateDate(fallback), nil
	}
	parsed, err := time.Parse(domain.DateLayout, trimmed)
	if err != nil {
		return time.Time{}, domain.ErrInvalidDate
	}
	return parsed, nil
}

func parseOptionalDate(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(domain.DateLayout, trimmed)
	if err != nil {
		return nil, domain.ErrInvalidDate
	}
	return &parsed, nil
}

func truncateDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
