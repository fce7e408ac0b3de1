package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ecocycle/rvm-loyalty/internal/model"
	"github.com/ecocycle/rvm-loyalty/internal/repo"
)

var minRate = decimal.RequireFromString("0.01")

// CatalogService manages the material catalog. Rates live at two decimal
// places; historical activities keep the rate they were scored with.
type CatalogService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewCatalogService returns CatalogService.
func NewCatalogService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *CatalogService {
	return &CatalogService{repo: r, log: logger}
}

// ListActive returns the materials currently accepted for deposits,
// ordered by name.
func (s *CatalogService) ListActive(ctx context.Context) ([]model.Material, error) {
	return s.repo.ListMaterials(ctx, true)
}

// ListAll returns the whole catalog including deactivated materials
// (admin view).
func (s *CatalogService) ListAll(ctx context.Context) ([]model.Material, error) {
	return s.repo.ListMaterials(ctx, false)
}

// Get returns one material by id.
func (s *CatalogService) Get(ctx context.Context, id uint64) (*model.Material, error) {
	return s.repo.GetMaterial(ctx, nil, id)
}

// Create adds a material after validating the rate.
func (s *CatalogService) Create(ctx context.Context, m *model.Material) error {
	if err := validateRate(m.PointsPerKG); err != nil {
		return err
	}
	return s.repo.CreateMaterial(ctx, m)
}

// Update persists rate or flag edits. Already-recorded activities are not
// re-scored.
func (s *CatalogService) Update(ctx context.Context, id uint64, name string, rate decimal.Decimal, isActive bool) (*model.Material, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	m, err := s.repo.GetMaterial(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		m.Name = name
	}
	m.PointsPerKG = rate
	m.IsActive = isActive
	if err := s.repo.SaveMaterial(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Deactivate removes a material from the catalog and from future deposit
// validation without touching history.
func (s *CatalogService) Deactivate(ctx context.Context, id uint64) (*model.Material, error) {
	m, err := s.repo.GetMaterial(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	m.IsActive = false
	if err := s.repo.SaveMaterial(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// validateRate enforces the 0.01 minimum and the two-decimal storage
// contract.
func validateRate(rate decimal.Decimal) error {
	if rate.LessThan(minRate) {
		return ErrInvalidRate
	}
	if !rate.Round(2).Equal(rate) {
		return ErrInvalidRate
	}
	return nil
}
