package query

import (
	"context"

	"github.com/dealerhub/platform/shared/apperrors"
	"github.com/dealerhub/platform/shared/cqrs"
	"github.com/dealerhub/platform/shared/models"
)

// ImageReader is the cached read side of vehicle images.
type ImageReader interface {
	VehicleExists(ctx context.Context, vehicleID int64) (bool, error)
	ListByVehicle(ctx context.Context, vehicleID int64) ([]models.VehicleImage, error)
	MainImages(ctx context.Context, vehicleIDs []int64) (map[int64]models.VehicleImage, error)
}

// URLResolver turns a blob key into its public URL.
type URLResolver interface {
	URL(key string) string
}

type ImageQueryService struct {
	images ImageReader
	urls   URLResolver
}

func NewImageQueryService(images ImageReader, urls URLResolver) *ImageQueryService {
	return &ImageQueryService{images: images, urls: urls}
}

// ListImages returns the vehicle's images by ascending order, ties by id.
func (s *ImageQueryService) ListImages(ctx context.Context, q cqrs.ListImagesQuery) ([]models.VehicleImageView, error) {
	if err := s.requireVehicle(ctx, q.VehicleID); err != nil {
		return nil, err
	}
	images, err := s.images.ListByVehicle(ctx, q.VehicleID)
	if err != nil {
		return nil, err
	}
	out := make([]models.VehicleImageView, 0, len(images))
	for _, img := range images {
		out = append(out, toView(img, s.urls))
	}
	return out, nil
}

func (s *ImageQueryService) GetMainImage(ctx context.Context, q cqrs.GetMainImageQuery) (*models.VehicleImageView, error) {
	if err := s.requireVehicle(ctx, q.VehicleID); err != nil {
		return nil, err
	}
	images, err := s.images.ListByVehicle(ctx, q.VehicleID)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		if img.IsMain {
			view := toView(img, s.urls)
			return &view, nil
		}
	}
	return nil, apperrors.NotFound("No main image found for this vehicle")
}

func (s *ImageQueryService) requireVehicle(ctx context.Context, vehicleID int64) error {
	exists, err := s.images.VehicleExists(ctx, vehicleID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NotFound("Vehicle not found")
	}
	return nil
}

func toView(img models.VehicleImage, urls URLResolver) models.VehicleImageView {
	return models.VehicleImageView{VehicleImage: img, URL: urls.URL(img.FilePath)}
}
