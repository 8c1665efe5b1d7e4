package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/copiflow/copiflow/internal/customer/domain"
	customerrepo "github.com/copiflow/copiflow/internal/customer/repository"
	"github.com/copiflow/copiflow/internal/device/domain"
	devicerepo "github.com/copiflow/copiflow/internal/device/repository"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      domain.Service
	customer *customerdomain.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&customerdomain.Customer{}, &domain.Device{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	customer := customerdomain.Customer{ID: node.Generate(), Name: "Acme", Email: "billing@acme.test", Currency: "EUR"}
	require.NoError(t, db.Create(&customer).Error)

	svc := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Repo:         devicerepo.Provide(),
		CustomerRepo: customerrepo.Provide(),
	})

	return &fixture{db: db, node: node, svc: svc, customer: &customer}
}

func (f *fixture) createRequest(serial string) domain.CreateDeviceRequest {
	return domain.CreateDeviceRequest{
		CustomerID:   f.customer.ID.String(),
		SerialNumber: serial,
		DeviceType:   string(domain.DeviceTypeMonochrome),
		BillingDay:   16,
		UnitPriceBW:  decimal.RequireFromString("0.04"),
	}
}

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t)

	device, err := f.svc.Create(context.Background(), domain.CreateDeviceRequest{
		CustomerID:   f.customer.ID.String(),
		SerialNumber: "SN-DEF",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceTypeMonochrome, device.DeviceType)
	assert.Equal(t, domain.CalcModeAuto, device.CalculationMode)
	assert.True(t, device.Active)
	// Currency falls back to the customer's.
	assert.Equal(t, "EUR", device.Currency)
	assert.Zero(t, device.BillingDay)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*domain.CreateDeviceRequest)
		wantErr error
	}{
		{"unknown customer", func(r *domain.CreateDeviceRequest) { r.CustomerID = "12345" }, domain.ErrInvalidCustomer},
		{"empty serial", func(r *domain.CreateDeviceRequest) { r.SerialNumber = "  " }, domain.ErrInvalidSerial},
		{"bad device type", func(r *domain.CreateDeviceRequest) { r.DeviceType = "plotter" }, domain.ErrInvalidDeviceType},
		{"bad mode", func(r *domain.CreateDeviceRequest) { r.CalculationMode = "flat" }, domain.ErrInvalidMode},
		{"billing day too large", func(r *domain.CreateDeviceRequest) { r.BillingDay = 32 }, domain.ErrInvalidBillingDay},
		{"negative billing day", func(r *domain.CreateDeviceRequest) { r.BillingDay = -1 }, domain.ErrInvalidBillingDay},
		{"discount above 100", func(r *domain.CreateDeviceRequest) { r.DiscountPercent = decimal.RequireFromString("101") }, domain.ErrInvalidDiscount},
		{"negative discount", func(r *domain.CreateDeviceRequest) { r.DiscountPercent = decimal.RequireFromString("-5") }, domain.ErrInvalidDiscount},
		{"negative price", func(r *domain.CreateDeviceRequest) { r.UnitPriceBW = decimal.RequireFromString("-0.01") }, domain.ErrNegativePrice},
		{"negative volume", func(r *domain.CreateDeviceRequest) { r.MinVolumeBW = -1 }, domain.ErrNegativeVolume},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.createRequest("SN-" + tt.name)
			tt.mutate(&req)

			_, err := f.svc.Create(ctx, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreate_DuplicateSerial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.createRequest("SN-DUP"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.createRequest("SN-DUP"))
	assert.ErrorIs(t, err, domain.ErrDuplicateSerial)
}

func TestUpdate_PatchesOnlyProvidedFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.createRequest("SN-PATCH"))
	require.NoError(t, err)

	active := false
	day := 28
	updated, err := f.svc.Update(ctx, domain.UpdateDeviceRequest{
		ID:         created.ID.String(),
		Active:     &active,
		BillingDay: &day,
	})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, 28, updated.BillingDay)
	// Untouched terms survive the patch.
	assert.True(t, updated.UnitPriceBW.Equal(created.UnitPriceBW))
	assert.Equal(t, created.SerialNumber, updated.SerialNumber)
}

func TestUpdate_RejectsInvalidPatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.createRequest("SN-BADPATCH"))
	require.NoError(t, err)

	day := 40
	_, err = f.svc.Update(ctx, domain.UpdateDeviceRequest{ID: created.ID.String(), BillingDay: &day})
	assert.ErrorIs(t, err, domain.ErrInvalidBillingDay)

	_, err = f.svc.Update(ctx, domain.UpdateDeviceRequest{ID: "999999"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList_FiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, serial := range []string{"L-1", "L-2", "L-3"} {
		_, err := f.svc.Create(ctx, f.createRequest(serial))
		require.NoError(t, err)
	}

	resp, err := f.svc.List(ctx, domain.ListDeviceRequest{CustomerID: f.customer.ID.String()})
	require.NoError(t, err)
	assert.Len(t, resp.Devices, 3)
	assert.False(t, resp.HasMore)
}
