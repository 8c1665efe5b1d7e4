package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/copiflow/copiflow/internal/device/domain"
	"github.com/copiflow/copiflow/pkg/db/option"
	"github.com/copiflow/copiflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, device *domain.Device) error {
	return db.WithContext(ctx).Create(device).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Device, error) {
	var device domain.Device
	err := db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("id = ?", id).
		First(&device).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Device, error) {
	var devices []*domain.Device
	stmt := db.WithContext(ctx).Model(&domain.Device{})
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Active != nil {
		stmt = stmt.Where("active = ?", *filter.Active)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, device *domain.Device) error {
	return db.WithContext(ctx).Save(device).Error
}

func (r *repo) ListBillable(ctx context.Context, db *gorm.DB, limit int, afterID snowflake.ID) ([]*domain.Device, error) {
	var devices []*domain.Device
	stmt := db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("active = ? AND billing_day > 0", true)
	if afterID != 0 {
		stmt = stmt.Where("id > ?", afterID)
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	err := stmt.Order("id asc").Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}
