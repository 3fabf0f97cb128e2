package places

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saartech/quattropole-assistant/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// Service defines the business logic contract for place lookups.
type Service interface {
	GetAllPlaces(ctx context.Context) (types.PlaceGroups, error)
	SearchShops(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error)
	SearchGastronomy(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error)
	SearchSightseeing(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error)
	SearchParking(ctx context.Context, filter types.PlaceFilter) ([]types.ParkingLot, error)
	ClosestParking(ctx context.Context, latitude, longitude float64, filter types.PlaceFilter) ([]types.ParkingLot, error)
}

type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
}

func NewService(repo Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

func (s *ServiceImpl) GetAllPlaces(ctx context.Context) (types.PlaceGroups, error) {
	return s.repo.GetAllPlaces(ctx)
}

func (s *ServiceImpl) SearchShops(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error) {
	shops, err := s.repo.FindShops(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error searching shops: %w", err)
	}
	return shops, nil
}

func (s *ServiceImpl) SearchGastronomy(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error) {
	gastronomy, err := s.repo.FindGastronomy(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error searching gastronomy: %w", err)
	}
	return gastronomy, nil
}

func (s *ServiceImpl) SearchSightseeing(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error) {
	sightseeing, err := s.repo.FindSightseeing(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error searching sightseeing: %w", err)
	}
	return sightseeing, nil
}

func (s *ServiceImpl) SearchParking(ctx context.Context, filter types.PlaceFilter) ([]types.ParkingLot, error) {
	parking, err := s.repo.FindParking(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error searching parking: %w", err)
	}
	return parking, nil
}

func (s *ServiceImpl) ClosestParking(ctx context.Context, latitude, longitude float64, filter types.PlaceFilter) ([]types.ParkingLot, error) {
	if latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
		return nil, fmt.Errorf("invalid coordinates: lat=%f, lon=%f", latitude, longitude)
	}
	parking, err := s.repo.FindClosestParking(ctx, latitude, longitude, filter)
	if err != nil {
		return nil, fmt.Errorf("error searching closest parking: %w", err)
	}
	return parking, nil
}
