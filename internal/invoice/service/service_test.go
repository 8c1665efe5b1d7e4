package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/copiflow/copiflow/internal/customer/domain"
	customerrepo "github.com/copiflow/copiflow/internal/customer/repository"
	devicedomain "github.com/copiflow/copiflow/internal/device/domain"
	devicerepo "github.com/copiflow/copiflow/internal/device/repository"
	eventsdomain "github.com/copiflow/copiflow/internal/events/domain"
	eventsservice "github.com/copiflow/copiflow/internal/events/service"
	"github.com/copiflow/copiflow/internal/invoice/domain"
	"github.com/copiflow/copiflow/internal/locks"
	productdomain "github.com/copiflow/copiflow/internal/product/domain"
	productservice "github.com/copiflow/copiflow/internal/product/service"
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

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	svc        domain.Service
	readingSvc readingdomain.Service
	productSvc productdomain.Service
	locker     *locks.KeyedMutex
	customer   *customerdomain.Customer
	device     *devicedomain.Device
}

func newFixture(t *testing.T, deviceType devicedomain.DeviceType) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&devicedomain.Device{},
		&readingdomain.Reading{},
		&productdomain.BillableProduct{},
		&domain.Invoice{},
		&domain.InvoiceLine{},
		&eventsdomain.BillingEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()

	customer := customerdomain.Customer{ID: node.Generate(), Name: "Acme", Email: "billing@acme.test"}
	require.NoError(t, db.Create(&customer).Error)

	device := devicedomain.Device{
		ID:              node.Generate(),
		CustomerID:      customer.ID,
		SerialNumber:    "SN-" + t.Name(),
		DeviceType:      deviceType,
		Active:          true,
		CalculationMode: devicedomain.CalcModeAuto,
		Currency:        "USD",
		UnitPriceBW:     decimal.RequireFromString("0.04"),
		UnitPriceColor:  decimal.RequireFromString("0.10"),
		MinVolumeBW:     1000,
		TaxRatePercent:  decimal.RequireFromString("18"),
	}
	require.NoError(t, db.Create(&device).Error)

	events := eventsservice.New(eventsservice.Params{Log: logger, GenID: node})
	locker := locks.NewKeyedMutex()
	readingSvc := readingservice.New(readingservice.Params{
		DB:         db,
		Log:        logger,
		GenID:      node,
		Repo:       readingrepo.Provide(),
		DeviceRepo: devicerepo.Provide(),
		Locker:     locker,
		Events:     events,
	})
	productSvc := productservice.New(productservice.Params{DB: db, Log: logger, GenID: node})

	svc := New(Params{
		DB:           db,
		Log:          logger,
		GenID:        node,
		ReadingRepo:  readingrepo.Provide(),
		ReadingSvc:   readingSvc,
		DeviceRepo:   devicerepo.Provide(),
		CustomerRepo: customerrepo.Provide(),
		ProductSvc:   productSvc,
		Locker:       locker,
		Events:       events,
	})

	return &fixture{
		db:         db,
		node:       node,
		svc:        svc,
		readingSvc: readingSvc,
		productSvc: productSvc,
		locker:     locker,
		customer:   &customer,
		device:     &device,
	}
}

func int64p(v int64) *int64 { return &v }

func (f *fixture) confirmedReading(t *testing.T, currentBW, currentColor int64) readingdomain.Reading {
	t.Helper()
	ctx := context.Background()

	reading, err := f.readingSvc.Create(ctx, readingdomain.CreateReadingRequest{
		DeviceID:     f.device.ID.String(),
		ReadingDate:  "2026-03-16",
		BillingDate:  "2026-03-16",
		CurrentBW:    int64p(currentBW),
		CurrentColor: int64p(currentColor),
	})
	require.NoError(t, err)

	confirmed, err := f.readingSvc.Confirm(ctx, reading.ID.String())
	require.NoError(t, err)
	return confirmed
}

func (f *fixture) seedProducts(t *testing.T, channels ...devicedomain.Channel) {
	t.Helper()
	for _, channel := range channels {
		_, err := f.productSvc.Upsert(context.Background(), productdomain.UpsertProductRequest{
			Channel:     string(channel),
			Code:        "COPY-" + string(channel),
			Name:        channel.Label() + " copies",
			AccountCode: "4000",
		})
		require.NoError(t, err)
	}
}

func TestCreateFromReading_MonochromeInvoice(t *testing.T) {
	f := newFixture(t, devicedomain.DeviceTypeMonochrome)
	f.seedProducts(t, devicedomain.ChannelBW)

	reading := f.confirmedReading(t, 6500, 0)

	invoice, err := f.svc.CreateFromReading(context.Background(), reading.ID.String())
	require.NoError(t, err)

	assert.Equal(t, reading.ID, invoice.ReadingID)
	assert.Equal(t, f.customer.ID, invoice.CustomerID)
	assert.True(t, invoice.GrandTotal.Equal(decimal.RequireFromString("70.80")), "total %s", invoice.GrandTotal)

	// One line, black/white only, no zero-amount color line.
	require.Len(t, invoice.Lines, 1)
	line := invoice.Lines[0]
	assert.Equal(t, devicedomain.ChannelBW, line.Channel)
	assert.Equal(t, "COPY-bw", line.ProductCode)
	assert.Equal(t, int64(1), line.Quantity)
	assert.Equal(t, int64(1500), line.BillableCopies)
	assert.Equal(t, "Black/White copies (1500 billable) - March 2026", line.Description)

	// The reading is now invoiced and back-references the invoice.
	got, err := f.readingSvc.GetByID(context.Background(), reading.ID.String())
	require.NoError(t, err)
	assert.Equal(t, readingdomain.StateInvoiced, got.State)
	require.NotNil(t, got.InvoiceID)
	assert.Equal(t, invoice.ID, *got.InvoiceID)
}

func TestCreateFromReading_ColorInvoiceHasTwoLines(t *testing.T) {
	f := newFixture(t, devicedomain.DeviceTypeColor)
	f.seedProducts(t, devicedomain.ChannelBW, devicedomain.ChannelColor)

	reading := f.confirmedReading(t, 6500, 500)

	invoice, err := f.svc.CreateFromReading(context.Background(), reading.ID.String())
	require.NoError(t, err)
	require.Len(t, invoice.Lines, 2)

	var sum decimal.Decimal
	for _, line := range invoice.Lines {
		sum = sum.Add(line.Amount)
	}
	assert.True(t, sum.Equal(invoice.GrandTotal), "line sum %s vs %s", sum, invoice.GrandTotal)
}

func TestCreateFromReading_MissingProductsEnumerated(t *testing.T) {
	f := newFixture(t, devicedomain.DeviceTypeColor)
	// No products configured at all.

	reading := f.confirmedReading(t, 6500, 500)

	_, err := f.svc.CreateFromReading(context.Background(), reading.ID.String())
	var missing *domain.MissingProductsError
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []devicedomain.Channel{devicedomain.ChannelBW, devicedomain.ChannelColor}, missing.Channels)

	// Nothing was written and the reading is still confirmed.
	var invoices int64
	require.NoError(t, f.db.Model(&domain.Invoice{}).Count(&invoices).Error)
	assert.Zero(t, invoices)

	got, err := f.readingSvc.GetByID(context.Background(), reading.ID.String())
	require.NoError(t, err)
	assert.Equal(t, readingdomain.StateConfirmed, got.State)
}

func TestCreateFromReading_DraftRejected(t *testing.T) {
	f := newFixture(t, devicedomain.DeviceTypeMonochrome)
	f.seedProducts(t, devicedomain.ChannelBW)

	draft, err := f.readingSvc.Create(context.Background(), readingdomain.CreateReadingRequest{
		DeviceID:    f.device.ID.String(),
		ReadingDate: "2026-03-16",
		BillingDate: "2026-03-16",
		CurrentBW:   int64p(6500),
	})
	require.NoError(t, err)

	_, err = f.svc.CreateFromReading(context.Background(), draft.ID.String())
	var transition *readingdomain.IllegalTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, readingdomain.StateDraft, transition.State)
}

func TestCreateFromReading_SecondAttemptRejected(t *testing.T) {
	f := newFixture(t, devicedomain.DeviceTypeMonochrome)
	f.seedProducts(t, devicedomain.ChannelBW)

	reading := f.confirmedReading(t, 6500, 0)

	_, err := f.svc.CreateFromReading(context.Background(), reading.ID.String())
	require.NoError(t, err)

	_, err = f.svc.CreateFromReading(context.Background(), reading.ID.String())
	var transition *readingdomain.IllegalTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, readingdomain.StateInvoiced, transition.State)
}

// Forced interleaving: the test holds the device lock while the
// projector waits on it, then commits a cancellation underneath. Once
// released, the projector must observe the cancelled state and refuse
// instead of overwriting it with an invoiced row.
func TestCreateFromReading_ObservesCancelCommittedUnderLock(t *testing.T) {
	f := newFixture(t, devicedomain.DeviceTypeMonochrome)
	f.seedProducts(t, devicedomain.ChannelBW)
	ctx := context.Background()

	reading := f.confirmedReading(t, 6500, 0)

	release, err := f.locker.Acquire(ctx, f.device.ID)
	require.NoError(t, err)

	started := make(chan struct{})
	done := make(chan struct{})
	var projectErr error
	go func() {
		defer close(done)
		close(started)
		_, projectErr = f.svc.CreateFromReading(ctx, reading.ID.String())
	}()
	<-started

	require.NoError(t, f.db.Model(&readingdomain.Reading{}).
		Where("id = ?", reading.ID).
		Update("state", readingdomain.StateCancelled).Error)

	release()
	<-done

	var transition *readingdomain.IllegalTransitionError
	require.ErrorAs(t, projectErr, &transition)
	assert.Equal(t, readingdomain.StateCancelled, transition.State)

	var invoices int64
	require.NoError(t, f.db.Model(&domain.Invoice{}).Count(&invoices).Error)
	assert.Zero(t, invoices)

	got, err := f.readingSvc.GetByID(ctx, reading.ID.String())
	require.NoError(t, err)
	assert.Equal(t, readingdomain.StateCancelled, got.State)
}

func TestCreateFromReading_IssueDateFollowsEmission(t *testing.T) {
	f := newFixture(t, devicedomain.DeviceTypeMonochrome)
	f.seedProducts(t, devicedomain.ChannelBW)
	ctx := context.Background()

	reading, err := f.readingSvc.Create(ctx, readingdomain.CreateReadingRequest{
		DeviceID:     f.device.ID.String(),
		ReadingDate:  "2026-03-16",
		BillingDate:  "2026-03-16",
		EmissionDate: "2026-03-20",
		CurrentBW:    int64p(6500),
	})
	require.NoError(t, err)
	_, err = f.readingSvc.Confirm(ctx, reading.ID.String())
	require.NoError(t, err)

	invoice, err := f.svc.CreateFromReading(ctx, reading.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "2026-03-20", invoice.IssueDate.Format(readingdomain.DateLayout))
	assert.Equal(t, "2026-03-16", invoice.BillingDate.Format(readingdomain.DateLayout))
}

func TestCreateFromReading_NothingToBill(t *testing.T) {
	f := newFixture(t, devicedomain.DeviceTypeMonochrome)
	f.seedProducts(t, devicedomain.ChannelBW)

	// No minimum volume and no usage leaves nothing to invoice.
	require.NoError(t, f.db.Model(&devicedomain.Device{}).
		Where("id = ?", f.device.ID).
		Update("min_volume_bw", 0).Error)

	reading := f.confirmedReading(t, 0, 0)

	_, err := f.svc.CreateFromReading(context.Background(), reading.ID.String())
	assert.ErrorIs(t, err, domain.ErrNothingToBill)
}

func TestGetByID_PreloadsLines(t *testing.T) {
	f := newFixture(t, devicedomain.DeviceTypeMonochrome)
	f.seedProducts(t, devicedomain.ChannelBW)

	reading := f.confirmedReading(t, 6500, 0)
	created, err := f.svc.CreateFromReading(context.Background(), reading.ID.String())
	require.NoError(t, err)

	got, err := f.svc.GetByID(context.Background(), created.ID.String())
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, created.Lines[0].ID, got.Lines[0].ID)
}
