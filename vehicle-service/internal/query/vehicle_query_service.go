package query

import (
	"context"
	"net/url"

	"github.com/dealerhub/platform/shared/cqrs"
	"github.com/dealerhub/platform/shared/models"
)

type VehicleReader interface {
	GetByID(ctx context.Context, id int64) (*models.Vehicle, error)
	List(ctx context.Context, params url.Values) (models.Page[models.Vehicle], error)
}

// VehicleQueryService builds vehicle views, each carrying its main image.
type VehicleQueryService struct {
	vehicles VehicleReader
	images   ImageReader
	urls     URLResolver
}

func NewVehicleQueryService(vehicles VehicleReader, images ImageReader, urls URLResolver) *VehicleQueryService {
	return &VehicleQueryService{vehicles: vehicles, images: images, urls: urls}
}

func (s *VehicleQueryService) GetVehicle(ctx context.Context, q cqrs.GetVehicleQuery) (*models.VehicleView, error) {
	v, err := s.vehicles.GetByID(ctx, q.VehicleID)
	if err != nil {
		return nil, err
	}
	mains, err := s.images.MainImages(ctx, []int64{v.ID})
	if err != nil {
		return nil, err
	}
	view := s.toVehicleView(*v, mains)
	return &view, nil
}

func (s *VehicleQueryService) ListVehicles(ctx context.Context, q cqrs.ListVehiclesQuery) (models.Page[models.VehicleView], error) {
	page, err := s.vehicles.List(ctx, q.Params)
	if err != nil {
		return models.Page[models.VehicleView]{}, err
	}

	ids := make([]int64, 0, len(page.Data))
	for _, v := range page.Data {
		ids = append(ids, v.ID)
	}
	mains, err := s.images.MainImages(ctx, ids)
	if err != nil {
		return models.Page[models.VehicleView]{}, err
	}

	views := make([]models.VehicleView, 0, len(page.Data))
	for _, v := range page.Data {
		views = append(views, s.toVehicleView(v, mains))
	}
	return models.NewPage(views, page.CurrentPage, page.PerPage, page.Total), nil
}

func (s *VehicleQueryService) toVehicleView(v models.Vehicle, mains map[int64]models.VehicleImage) models.VehicleView {
	view := models.VehicleView{Vehicle: v}
	if img, ok := mains[v.ID]; ok {
		main := toView(img, s.urls)
		view.MainImage = &main
	}
	return view
}
