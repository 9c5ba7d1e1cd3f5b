package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
	"github.com/dmcastano/evdex-backend/pkg/logger"
	"github.com/dmcastano/evdex-backend/pkg/pagination"
)

// Service exposes read access to the approved vehicle catalog. Catalog
// writes go through the moderation approval path, never through this
// service; DeleteVehicle is the admin-only removal used to retire entries,
// leaving any referencing proposals to the orphan reconciler.
type Service interface {
	GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, params pagination.Params, filters ListFilters) (*ListResult, error)
	DeleteVehicle(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo *Repository
	logg *logger.Logger
}

// NewService validates dependencies and returns the catalog read service.
func NewService(repo *Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("catalog repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	vehicle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vehicle")
	}
	return vehicle, nil
}

func (s *service) DeleteVehicle(ctx context.Context, id uuid.UUID) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete vehicle")
	}
	if removed == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
	}
	s.logg.Info(s.logg.WithField(ctx, "vehicle_id", id.String()), "vehicle deleted")
	return nil
}

func (s *service) ListVehicles(ctx context.Context, params pagination.Params, filters ListFilters) (*ListResult, error) {
	result, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list vehicles")
	}
	return result, nil
}
