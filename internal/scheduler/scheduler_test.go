package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/copiflow/copiflow/internal/clock"
	customerdomain "github.com/copiflow/copiflow/internal/customer/domain"
	devicedomain "github.com/copiflow/copiflow/internal/device/domain"
	devicerepo "github.com/copiflow/copiflow/internal/device/repository"
	eventsdomain "github.com/copiflow/copiflow/internal/events/domain"
	eventsservice "github.com/copiflow/copiflow/internal/events/service"
	"github.com/copiflow/copiflow/internal/locks"
	readingdomain "github.com/copiflow/copiflow/internal/reading/domain"
	readingrepo "github.com/copiflow/copiflow/internal/reading/repository"
	readingservice "github.com/copiflow/copiflow/internal/reading/service"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sweepFixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	sched *Scheduler
}

func newSweepFixture(t *testing.T, today time.Time) *sweepFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&devicedomain.Device{},
		&readingdomain.Reading{},
		&eventsdomain.BillingEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()
	fake := clock.NewFakeClock(today)

	readingSvc := readingservice.New(readingservice.Params{
		DB:         db,
		Log:        logger,
		GenID:      node,
		Repo:       readingrepo.Provide(),
		DeviceRepo: devicerepo.Provide(),
		Locker:     locks.NewKeyedMutex(),
		Events:     eventsservice.New(eventsservice.Params{Log: logger, GenID: node}),
	})

	sched, err := New(Params{
		DB:         db,
		Log:        logger,
		Clock:      fake,
		DeviceRepo: devicerepo.Provide(),
		ReadingSvc: readingSvc,
		Config:     Config{BatchSize: 2},
	})
	require.NoError(t, err)

	return &sweepFixture{db: db, node: node, clock: fake, sched: sched}
}

func (f *sweepFixture) seedDevice(t *testing.T, serial string, billingDay int, active bool) *devicedomain.Device {
	t.Helper()

	customer := customerdomain.Customer{ID: f.node.Generate(), Name: "Acme " + serial, Email: serial + "@acme.test"}
	require.NoError(t, f.db.Create(&customer).Error)

	device := devicedomain.Device{
		ID:              f.node.Generate(),
		CustomerID:      customer.ID,
		SerialNumber:    serial,
		DeviceType:      devicedomain.DeviceTypeMonochrome,
		Active:          active,
		BillingDay:      billingDay,
		CalculationMode: devicedomain.CalcModeAuto,
		Currency:        "USD",
		UnitPriceBW:     decimal.RequireFromString("0.04"),
		TaxRatePercent:  decimal.RequireFromString("18"),
	}
	require.NoError(t, f.db.Create(&device).Error)
	return &device
}

func (f *sweepFixture) readingCount(t *testing.T, deviceID snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&readingdomain.Reading{}).
		Where("device_id = ?", deviceID).
		Count(&count).Error)
	return count
}

func TestRunOnce_CreatesDraftForDueDevices(t *testing.T) {
	// Monday March 16 2026.
	f := newSweepFixture(t, time.Date(2026, time.March, 16, 8, 0, 0, 0, time.UTC))

	due := f.seedDevice(t, "DUE-1", 16, true)
	notDue := f.seedDevice(t, "LATER-1", 25, true)
	inactive := f.seedDevice(t, "OFF-1", 16, false)
	unscheduled := f.seedDevice(t, "MANUAL-1", 0, true)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, int64(1), f.readingCount(t, due.ID))
	assert.Equal(t, int64(0), f.readingCount(t, notDue.ID))
	assert.Equal(t, int64(0), f.readingCount(t, inactive.ID))
	assert.Equal(t, int64(0), f.readingCount(t, unscheduled.ID))

	var reading readingdomain.Reading
	require.NoError(t, f.db.Where("device_id = ?", due.ID).First(&reading).Error)
	assert.Equal(t, readingdomain.StateDraft, reading.State)
	assert.Equal(t, readingdomain.SourceScheduler, reading.Source)
	assert.Equal(t, "2026-03-16", reading.BillingDate.Format(readingdomain.DateLayout))
}

func TestRunOnce_IsIdempotentForTheDay(t *testing.T) {
	f := newSweepFixture(t, time.Date(2026, time.March, 16, 8, 0, 0, 0, time.UTC))
	device := f.seedDevice(t, "IDEM-1", 16, true)

	require.NoError(t, f.sched.RunOnce(context.Background()))
	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, int64(1), f.readingCount(t, device.ID))
}

func TestRunOnce_PaginatesThroughFleet(t *testing.T) {
	// Batch size 2, five due devices: three fetches.
	f := newSweepFixture(t, time.Date(2026, time.March, 16, 8, 0, 0, 0, time.UTC))

	ids := make([]snowflake.ID, 0, 5)
	for _, serial := range []string{"B-1", "B-2", "B-3", "B-4", "B-5"} {
		ids = append(ids, f.seedDevice(t, serial, 16, true).ID)
	}

	require.NoError(t, f.sched.RunOnce(context.Background()))

	for _, id := range ids {
		assert.Equal(t, int64(1), f.readingCount(t, id))
	}
}

func TestRunOnce_SundayShiftsToSaturday(t *testing.T) {
	// Saturday March 7 2026; billing day 8 falls on a Sunday and pulls
	// back one day, so the device is due today.
	f := newSweepFixture(t, time.Date(2026, time.March, 7, 8, 0, 0, 0, time.UTC))
	device := f.seedDevice(t, "SUN-1", 8, true)

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, int64(1), f.readingCount(t, device.ID))

	// And nothing fires again on the Sunday itself.
	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, int64(1), f.readingCount(t, device.ID))
}

func TestRunOnce_ClampsShortMonths(t *testing.T) {
	// Thursday April 30 2026; billing day 31 clamps to the 30th.
	f := newSweepFixture(t, time.Date(2026, time.April, 30, 8, 0, 0, 0, time.UTC))
	device := f.seedDevice(t, "CLAMP-1", 31, true)

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, int64(1), f.readingCount(t, device.ID))
}

func TestRunOnce_AlreadyBilledDeviceDoesNotAbortSweep(t *testing.T) {
	f := newSweepFixture(t, time.Date(2026, time.March, 16, 8, 0, 0, 0, time.UTC))

	billed := f.seedDevice(t, "DONE-1", 16, true)
	pending := f.seedDevice(t, "PEND-1", 16, true)

	// An operator already entered today's reading for the first device.
	require.NoError(t, f.db.Create(&readingdomain.Reading{
		ID:          f.node.Generate(),
		DeviceID:    billed.ID,
		ReadingDate: time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC),
		BillingDate: time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC),
		State:       readingdomain.StateDraft,
		Source:      readingdomain.SourceManual,
		Currency:    "USD",
	}).Error)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	// The billed device keeps its single manual reading; the rest of the
	// fleet is still processed.
	assert.Equal(t, int64(1), f.readingCount(t, billed.ID))
	assert.Equal(t, int64(1), f.readingCount(t, pending.ID))
}

func TestRunOnce_FailSoftComputeStillCreatesDraft(t *testing.T) {
	f := newSweepFixture(t, time.Date(2026, time.March, 16, 8, 0, 0, 0, time.UTC))
	device := f.seedDevice(t, "SOFT-1", 16, true)

	// An invalid calculation mode must not block reading capture; the
	// draft is created with zeroed totals instead.
	require.NoError(t, f.db.Model(&devicedomain.Device{}).
		Where("id = ?", device.ID).
		Update("calculation_mode", "bogus").Error)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	var reading readingdomain.Reading
	require.NoError(t, f.db.Where("device_id = ?", device.ID).First(&reading).Error)
	assert.Equal(t, readingdomain.StateDraft, reading.State)
	assert.True(t, reading.GrandTotal.IsZero())
}

func TestRunForever_StopsOnContextCancel(t *testing.T) {
	f := newSweepFixture(t, time.Date(2026, time.March, 16, 8, 0, 0, 0, time.UTC))
	f.sched.cfg.RunInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.sched.RunForever(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever did not stop after cancel")
	}
}
