package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/copiflow/copiflow/internal/reading/domain"
	"gorm.io/gorm"
)

// PreviousResolver seeds a new reading's previous counters from the
// device's most recently finalized reading. It runs exactly once per
// reading, at creation; the seed is never revisited afterwards.
type PreviousResolver struct {
	repo domain.Repository
}

func NewPreviousResolver(repo domain.Repository) *PreviousResolver {
	return &PreviousResolver{repo: repo}
}

// Resolve returns the current counters of the last confirmed or invoiced
// reading for the device, or (0, 0) when none exists.
func (r *PreviousResolver) Resolve(ctx context.Context, db *gorm.DB, deviceID snowflake.ID) (int64, int64, error) {
	last, err := r.repo.FindLastFinalized(ctx, db, deviceID)
	if err != nil {
		return 0, 0, err
	}
	if last == nil {
		return 0, 0, nil
	}
	return last.CurrentBW, last.CurrentColor, nil
}
