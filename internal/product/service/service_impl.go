package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	devicedomain "github.com/copiflow/copiflow/internal/device/domain"
	"github.com/copiflow/copiflow/internal/product/domain"
	"github.com/copiflow/copiflow/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	store repository.Repository[domain.BillableProduct]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		genID: p.GenID,
		store: repository.ProvideStore[domain.BillableProduct](p.DB),
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertProductRequest) (domain.BillableProduct, error) {
	channel := devicedomain.Channel(strings.TrimSpace(req.Channel))
	if channel != devicedomain.ChannelBW && channel != devicedomain.ChannelColor {
		return domain.BillableProduct{}, domain.ErrInvalidChannel
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return domain.BillableProduct{}, domain.ErrInvalidCode
	}

	now := time.Now().UTC()
	existing, err := s.store.FindOne(ctx, &domain.BillableProduct{Channel: channel})
	if err != nil {
		return domain.BillableProduct{}, err
	}
	if existing != nil {
		existing.Code = code
		existing.Name = strings.TrimSpace(req.Name)
		existing.AccountCode = strings.TrimSpace(req.AccountCode)
		if req.Active != nil {
			existing.Active = *req.Active
		}
		existing.UpdatedAt = now
		if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
			return domain.BillableProduct{}, err
		}
		return *existing, nil
	}

	product := domain.BillableProduct{
		ID:          s.genID.Generate(),
		Channel:     channel,
		Code:        code,
		Name:        strings.TrimSpace(req.Name),
		AccountCode: strings.TrimSpace(req.AccountCode),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if err := s.store.Create(ctx, &product); err != nil {
		return domain.BillableProduct{}, err
	}
	return product, nil
}

func (s *Service) FindByChannel(ctx context.Context, channel devicedomain.Channel) (*domain.BillableProduct, error) {
	return s.store.FindOne(ctx, &domain.BillableProduct{Channel: channel, Active: true})
}

func (s *Service) List(ctx context.Context) ([]domain.BillableProduct, error) {
	items, err := s.store.Find(ctx, &domain.BillableProduct{})
	if err != nil {
		return nil, err
	}
	products := make([]domain.BillableProduct, 0, len(items))
	for _, item := range items {
		products = append(products, *item)
	}
	return products, nil
}
