// Package scheduler runs the daily sweep that opens draft readings for
// every active device whose billing date is today.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/copiflow/copiflow/internal/clock"
	devicedomain "github.com/copiflow/copiflow/internal/device/domain"
	obsmetrics "github.com/copiflow/copiflow/internal/observability/metrics"
	readingdomain "github.com/copiflow/copiflow/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

const (
	skipReasonNotDue        = "not_due"
	skipReasonAlreadyBilled = "already_billed"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	DeviceRepo devicedomain.Repository
	ReadingSvc readingdomain.Service
	Config     Config `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	deviceRepo devicedomain.Repository
	readingSvc readingdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.DeviceRepo == nil || p.ReadingSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		deviceRepo: p.DeviceRepo,
		readingSvc: p.ReadingSvc,
	}, nil
}

// RunForever re-runs the sweep at the configured interval until ctx is
// cancelled. The sweep itself is idempotent, so the interval only bounds
// how quickly a newly due device is picked up.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.log.Error("sweep failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce sweeps the whole billable fleet once. A failure on one device
// is logged and skipped; it never aborts the remaining devices.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	schedMetrics := obsmetrics.Scheduler()
	start := time.Now()
	schedMetrics.IncSweepRun()
	defer func() { schedMetrics.ObserveSweep(time.Since(start)) }()

	today := truncateDate(s.clock.Now())
	var (
		afterID  snowflake.ID
		created  int
		examined int
	)
	for {
		devices, err := s.deviceRepo.ListBillable(ctx, s.db, s.cfg.BatchSize, afterID)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			break
		}
		for _, device := range devices {
			afterID = device.ID
			examined++
			schedMetrics.IncProcessed()

			ok, err := s.processDevice(ctx, device, today)
			if err != nil {
				schedMetrics.IncDeviceError()
				s.log.Error("device sweep failed",
					zap.String("device_id", device.ID.String()),
					zap.Error(err),
				)
				continue
			}
			if ok {
				created++
			}
		}
		if len(devices) < s.cfg.BatchSize {
			break
		}
	}

	s.log.Info("sweep finished",
		zap.String("date", today.Format(readingdomain.DateLayout)),
		zap.Int("devices_examined", examined),
		zap.Int("readings_created", created),
	)
	return nil
}

func (s *Scheduler) processDevice(ctx context.Context, device *devicedomain.Device, today time.Time) (bool, error) {
	schedMetrics := obsmetrics.Scheduler()

	billingDate := BillingDateFor(today, device.BillingDay)
	if !billingDate.Equal(today) {
		schedMetrics.IncSkipped(skipReasonNotDue)
		return false, nil
	}

	_, err := s.readingSvc.Create(ctx, readingdomain.CreateReadingRequest{
		DeviceID:          device.ID.String(),
		ReadingDate:       today.Format(readingdomain.DateLayout),
		BillingDate:       billingDate.Format(readingdomain.DateLayout),
		Source:            readingdomain.SourceScheduler,
		UniqueBillingDate: true,
	})
	if err != nil {
		if errors.Is(err, readingdomain.ErrDuplicateBillingDate) {
			schedMetrics.IncSkipped(skipReasonAlreadyBilled)
			return false, nil
		}
		return false, err
	}
	schedMetrics.IncCreated()
	return true, nil
}
