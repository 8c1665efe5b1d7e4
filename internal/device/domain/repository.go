package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/copiflow/copiflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	CustomerID snowflake.ID
	Active     *bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, device *Device) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Device, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Device, error)
	Save(ctx context.Context, db *gorm.DB, device *Device) error

	// ListBillable returns active devices with a configured billing day,
	// ordered by id, for the daily sweep.
	ListBillable(ctx context.Context, db *gorm.DB, limit int, afterID snowflake.ID) ([]*Device, error)
}
