package option

import (
	"github.com/copiflow/copiflow/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption customizes a gorm query built by the generic repository.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type optionFunc func(db *gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

func WithOrder(order string) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order(order)
	})
}

func WithLimit(limit int) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithOffset(offset int) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if offset <= 0 {
			return db
		}
		return db.Offset(offset)
	})
}

func WithCondition(query string, args ...any) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}

// ApplyPagination applies a cursor page token plus a limit of size+1 so the
// caller can detect whether another page exists.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		size := page.PageSize
		if size <= 0 {
			size = 50
		}
		if page.PageToken != "" {
			if cursor, err := pagination.DecodeCursor(page.PageToken); err == nil && cursor != nil && cursor.ID != "" {
				if cursor.CreatedAt != "" {
					db = db.Where(
						"created_at < ? OR (created_at = ? AND id < ?)",
						cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
					)
				} else {
					db = db.Where("id < ?", cursor.ID)
				}
			}
		}
		return db.Limit(size + 1)
	})
}

func WithPreload(association string) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Preload(association)
	})
}
