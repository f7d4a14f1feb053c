package command

import (
	"context"
	"strings"

	"github.com/dealerhub/platform/shared/cqrs"
	"github.com/dealerhub/platform/shared/events"
	"github.com/dealerhub/platform/shared/models"
	"github.com/rs/zerolog/log"
)

// VehicleStore is the write side of the vehicles table.
type VehicleStore interface {
	Create(ctx context.Context, v *models.Vehicle) error
	GetByID(ctx context.Context, id int64) (*models.Vehicle, error)
	Update(ctx context.Context, v *models.Vehicle) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	SoftDelete(ctx context.Context, id int64) error
}

// VehicleCommandService writes vehicle state to PostgreSQL and drops the
// Redis views it invalidates.
type VehicleCommandService struct {
	store       VehicleStore
	vehicleView ViewCache
	imageView   ViewCache
	publisher   EventPublisher
}

func NewVehicleCommandService(
	store VehicleStore,
	vehicleView ViewCache,
	imageView ViewCache,
	publisher EventPublisher,
) *VehicleCommandService {
	return &VehicleCommandService{
		store:       store,
		vehicleView: vehicleView,
		imageView:   imageView,
		publisher:   publisher,
	}
}

func (s *VehicleCommandService) CreateVehicle(ctx context.Context, cmd cqrs.CreateVehicleCommand) (*models.Vehicle, error) {
	status := cmd.Status
	if status == "" {
		status = models.StatusAvailable
	}
	v := &models.Vehicle{
		VIN:                strings.ToUpper(strings.TrimSpace(cmd.VIN)),
		RegistrationNumber: cmd.RegistrationNumber,
		BrandID:            cmd.BrandID,
		ModelID:            cmd.ModelID,
		Year:               cmd.Year,
		Color:              cmd.Color,
		Mileage:            cmd.Mileage,
		Price:              cmd.Price,
		Cost:               cmd.Cost,
		Condition:          cmd.Condition,
		Status:             status,
		FuelType:           cmd.FuelType,
		Transmission:       cmd.Transmission,
		Description:        cmd.Description,
		Location:           cmd.Location,
	}
	if err := s.store.Create(ctx, v); err != nil {
		return nil, err
	}

	s.publish(ctx, events.VehicleCreated, events.VehicleCreatedEvent{VehicleID: v.ID, VIN: v.VIN})
	return v, nil
}

// UpdateVehicle applies the non-nil fields of cmd. A request that changes
// nothing returns the vehicle untouched, without a write or an event.
func (s *VehicleCommandService) UpdateVehicle(ctx context.Context, cmd cqrs.UpdateVehicleCommand) (*models.Vehicle, error) {
	v, err := s.store.GetByID(ctx, cmd.VehicleID)
	if err != nil {
		return nil, err
	}
	from := v.Status

	var changed []string
	if cmd.VIN != nil {
		setField(&changed, "vin", &v.VIN, strings.ToUpper(strings.TrimSpace(*cmd.VIN)))
	}
	if cmd.RegistrationNumber != nil {
		setField(&changed, "registration_number", &v.RegistrationNumber, *cmd.RegistrationNumber)
	}
	if cmd.BrandID != nil {
		setField(&changed, "brand_id", &v.BrandID, *cmd.BrandID)
	}
	if cmd.ModelID != nil {
		setField(&changed, "model_id", &v.ModelID, *cmd.ModelID)
	}
	if cmd.Year != nil {
		setField(&changed, "year", &v.Year, *cmd.Year)
	}
	if cmd.Color != nil {
		setField(&changed, "color", &v.Color, *cmd.Color)
	}
	if cmd.Mileage != nil {
		setField(&changed, "mileage", &v.Mileage, *cmd.Mileage)
	}
	if cmd.Price != nil {
		setField(&changed, "price", &v.Price, *cmd.Price)
	}
	if cmd.Cost != nil {
		setField(&changed, "cost", &v.Cost, *cmd.Cost)
	}
	if cmd.Condition != nil {
		setField(&changed, "condition", &v.Condition, *cmd.Condition)
	}
	if cmd.Status != nil {
		setField(&changed, "status", &v.Status, *cmd.Status)
	}
	if cmd.FuelType != nil {
		setField(&changed, "fuel_type", &v.FuelType, *cmd.FuelType)
	}
	if cmd.Transmission != nil {
		setField(&changed, "transmission", &v.Transmission, *cmd.Transmission)
	}
	if cmd.Description != nil {
		setField(&changed, "description", &v.Description, *cmd.Description)
	}
	if cmd.Location != nil {
		setField(&changed, "location", &v.Location, *cmd.Location)
	}
	if len(changed) == 0 {
		return v, nil
	}

	if err := s.store.Update(ctx, v); err != nil {
		return nil, err
	}
	s.vehicleView.Invalidate(ctx, cmd.VehicleID)

	s.publish(ctx, events.VehicleUpdated, events.VehicleUpdatedEvent{VehicleID: v.ID, Fields: changed})
	if from != v.Status {
		s.publish(ctx, events.VehicleStatusChanged, events.VehicleStatusChangedEvent{
			VehicleID: v.ID,
			From:      from,
			To:        v.Status,
		})
	}
	return v, nil
}

func setField[T comparable](changed *[]string, name string, dst *T, value T) {
	if *dst != value {
		*dst = value
		*changed = append(*changed, name)
	}
}

func (s *VehicleCommandService) UpdateVehicleStatus(ctx context.Context, cmd cqrs.UpdateVehicleStatusCommand) (*models.Vehicle, error) {
	v, err := s.store.GetByID(ctx, cmd.VehicleID)
	if err != nil {
		return nil, err
	}
	from := v.Status
	if err := s.store.UpdateStatus(ctx, cmd.VehicleID, cmd.Status); err != nil {
		return nil, err
	}
	s.vehicleView.Invalidate(ctx, cmd.VehicleID)

	updated, err := s.store.GetByID(ctx, cmd.VehicleID)
	if err != nil {
		return nil, err
	}
	if from != updated.Status {
		s.publish(ctx, events.VehicleStatusChanged, events.VehicleStatusChangedEvent{
			VehicleID: cmd.VehicleID,
			From:      from,
			To:        updated.Status,
		})
	}
	return updated, nil
}

// DeleteVehicle soft-deletes the vehicle. Its images are purged by the
// vehicle.deleted subscriber, not inline.
func (s *VehicleCommandService) DeleteVehicle(ctx context.Context, cmd cqrs.DeleteVehicleCommand) error {
	if err := s.store.SoftDelete(ctx, cmd.VehicleID); err != nil {
		return err
	}
	s.vehicleView.Invalidate(ctx, cmd.VehicleID)
	s.imageView.Invalidate(ctx, cmd.VehicleID)

	s.publish(ctx, events.VehicleDeleted, events.VehicleDeletedEvent{VehicleID: cmd.VehicleID})
	return nil
}

func (s *VehicleCommandService) publish(ctx context.Context, eventType string, data any) {
	if err := s.publisher.Publish(ctx, events.VehicleEventsStream, eventType, data); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
