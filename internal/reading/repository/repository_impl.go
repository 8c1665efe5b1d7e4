package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/copiflow/copiflow/internal/reading/domain"
	"github.com/copiflow/copiflow/pkg/db/option"
	"github.com/copiflow/copiflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, reading *domain.Reading) error {
	return db.WithContext(ctx).Create(reading).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Reading, error) {
	var reading domain.Reading
	err := db.WithContext(ctx).
		Model(&domain.Reading{}).
		Where("id = ?", id).
		First(&reading).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &reading, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, reading *domain.Reading) error {
	return db.WithContext(ctx).Save(reading).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Reading, error) {
	var readings []*domain.Reading
	stmt := db.WithContext(ctx).Model(&domain.Reading{})
	if filter.DeviceID != 0 {
		stmt = stmt.Where("device_id = ?", filter.DeviceID)
	}
	if filter.State != "" {
		stmt = stmt.Where("state = ?", filter.State)
	}
	if filter.BillingDate != nil {
		stmt = stmt.Where("billing_date = ?", *filter.BillingDate)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&readings).Error
	if err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *repo) FindLastFinalized(ctx context.Context, db *gorm.DB, deviceID snowflake.ID) (*domain.Reading, error) {
	var reading domain.Reading
	err := db.WithContext(ctx).
		Model(&domain.Reading{}).
		Where("device_id = ? AND state IN ?", deviceID, []domain.ReadingState{domain.StateConfirmed, domain.StateInvoiced}).
		Order("reading_date desc, id desc").
		First(&reading).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &reading, nil
}

func (r *repo) ExistsForBillingDate(ctx context.Context, db *gorm.DB, deviceID snowflake.ID, billingDate time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Reading{}).
		Where("device_id = ? AND billing_date = ? AND state <> ?", deviceID, billingDate, domain.StateCancelled).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
