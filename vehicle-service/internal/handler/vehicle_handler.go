package handler

import (
	"context"
	"net/http"

	"github.com/dealerhub/platform/shared/cqrs"
	"github.com/dealerhub/platform/shared/middleware"
	"github.com/dealerhub/platform/shared/models"
	"github.com/gin-gonic/gin"
)

// VehicleCommander defines the write-side operations used by VehicleHandler.
type VehicleCommander interface {
	CreateVehicle(ctx context.Context, cmd cqrs.CreateVehicleCommand) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, cmd cqrs.UpdateVehicleCommand) (*models.Vehicle, error)
	UpdateVehicleStatus(ctx context.Context, cmd cqrs.UpdateVehicleStatusCommand) (*models.Vehicle, error)
	DeleteVehicle(ctx context.Context, cmd cqrs.DeleteVehicleCommand) error
}

// VehicleQuerier defines the read-side operations used by VehicleHandler.
type VehicleQuerier interface {
	GetVehicle(ctx context.Context, q cqrs.GetVehicleQuery) (*models.VehicleView, error)
	ListVehicles(ctx context.Context, q cqrs.ListVehiclesQuery) (models.Page[models.VehicleView], error)
}

// VehicleHandler routes requests to the command or query service as appropriate.
type VehicleHandler struct {
	commands VehicleCommander
	queries  VehicleQuerier
}

type CreateVehicleRequest struct {
	VIN                string  `json:"vin" validate:"required,len=17,alphanum"`
	RegistrationNumber string  `json:"registration_number" validate:"omitempty,max=20"`
	BrandID            int64   `json:"brand_id" validate:"required,gt=0"`
	ModelID            int64   `json:"model_id" validate:"required,gt=0"`
	Year               int     `json:"year" validate:"required,gte=1900,lte=2100"`
	Color              string  `json:"color" validate:"omitempty,max=50"`
	Mileage            int     `json:"mileage" validate:"gte=0"`
	Price              float64 `json:"price" validate:"required,gt=0"`
	Cost               float64 `json:"cost" validate:"gte=0"`
	Condition          string  `json:"condition" validate:"required,oneof=new used certified"`
	Status             string  `json:"status" validate:"omitempty,oneof=available reserved sold"`
	FuelType           string  `json:"fuel_type" validate:"omitempty,max=50"`
	Transmission       string  `json:"transmission" validate:"omitempty,max=50"`
	Description        string  `json:"description"`
	Location           string  `json:"location" validate:"omitempty,max=255"`
}

// UpdateVehicleRequest only touches the fields present in the body.
type UpdateVehicleRequest struct {
	VIN                *string  `json:"vin" validate:"omitempty,len=17,alphanum"`
	RegistrationNumber *string  `json:"registration_number" validate:"omitempty,max=20"`
	BrandID            *int64   `json:"brand_id" validate:"omitempty,gt=0"`
	ModelID            *int64   `json:"model_id" validate:"omitempty,gt=0"`
	Year               *int     `json:"year" validate:"omitempty,gte=1900,lte=2100"`
	Color              *string  `json:"color" validate:"omitempty,max=50"`
	Mileage            *int     `json:"mileage" validate:"omitempty,gte=0"`
	Price              *float64 `json:"price" validate:"omitempty,gt=0"`
	Cost               *float64 `json:"cost" validate:"omitempty,gte=0"`
	Condition          *string  `json:"condition" validate:"omitempty,oneof=new used certified"`
	Status             *string  `json:"status" validate:"omitempty,oneof=available reserved sold"`
	FuelType           *string  `json:"fuel_type" validate:"omitempty,max=50"`
	Transmission       *string  `json:"transmission" validate:"omitempty,max=50"`
	Description        *string  `json:"description"`
	Location           *string  `json:"location" validate:"omitempty,max=255"`
}

type UpdateVehicleStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=available reserved sold"`
}

func NewVehicleHandler(commands VehicleCommander, queries VehicleQuerier) *VehicleHandler {
	return &VehicleHandler{commands: commands, queries: queries}
}

// Register mounts the vehicle routes. Mutations go through guard, which may
// be an auth middleware or nothing.
func (h *VehicleHandler) Register(vehicles *gin.RouterGroup, guard ...gin.HandlerFunc) {
	vehicles.GET("", h.ListVehicles)
	vehicles.GET("/:id", h.GetVehicle)
	vehicles.POST("", with(guard, h.CreateVehicle)...)
	vehicles.PUT("/:id", with(guard, h.UpdateVehicle)...)
	vehicles.PUT("/:id/status", with(guard, h.UpdateVehicleStatus)...)
	vehicles.DELETE("/:id", with(guard, h.DeleteVehicle)...)
}

func with(guard []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(guard)+1)
	return append(append(out, guard...), h)
}

func (h *VehicleHandler) CreateVehicle(c *gin.Context) {
	var req CreateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	vehicle, err := h.commands.CreateVehicle(c.Request.Context(), cqrs.CreateVehicleCommand{
		VIN:                req.VIN,
		RegistrationNumber: req.RegistrationNumber,
		BrandID:            req.BrandID,
		ModelID:            req.ModelID,
		Year:               req.Year,
		Color:              req.Color,
		Mileage:            req.Mileage,
		Price:              req.Price,
		Cost:               req.Cost,
		Condition:          req.Condition,
		Status:             req.Status,
		FuelType:           req.FuelType,
		Transmission:       req.Transmission,
		Description:        req.Description,
		Location:           req.Location,
	})
	if err != nil {
		respondError(c, err, "Failed to create vehicle")
		return
	}

	c.JSON(http.StatusCreated, vehicle)
}

func (h *VehicleHandler) GetVehicle(c *gin.Context) {
	vehicleID, ok := vehicleParam(c)
	if !ok {
		return
	}
	view, err := h.queries.GetVehicle(c.Request.Context(), cqrs.GetVehicleQuery{VehicleID: vehicleID})
	if err != nil {
		respondError(c, err, "Failed to get vehicle")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *VehicleHandler) ListVehicles(c *gin.Context) {
	page, err := h.queries.ListVehicles(c.Request.Context(), cqrs.ListVehiclesQuery{Params: c.Request.URL.Query()})
	if err != nil {
		respondError(c, err, "Failed to list vehicles")
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *VehicleHandler) UpdateVehicle(c *gin.Context) {
	vehicleID, ok := vehicleParam(c)
	if !ok {
		return
	}

	var req UpdateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	vehicle, err := h.commands.UpdateVehicle(c.Request.Context(), cqrs.UpdateVehicleCommand{
		VehicleID:          vehicleID,
		VIN:                req.VIN,
		RegistrationNumber: req.RegistrationNumber,
		BrandID:            req.BrandID,
		ModelID:            req.ModelID,
		Year:               req.Year,
		Color:              req.Color,
		Mileage:            req.Mileage,
		Price:              req.Price,
		Cost:               req.Cost,
		Condition:          req.Condition,
		Status:             req.Status,
		FuelType:           req.FuelType,
		Transmission:       req.Transmission,
		Description:        req.Description,
		Location:           req.Location,
	})
	if err != nil {
		respondError(c, err, "Failed to update vehicle")
		return
	}
	c.JSON(http.StatusOK, vehicle)
}

func (h *VehicleHandler) UpdateVehicleStatus(c *gin.Context) {
	vehicleID, ok := vehicleParam(c)
	if !ok {
		return
	}

	var req UpdateVehicleStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	vehicle, err := h.commands.UpdateVehicleStatus(c.Request.Context(), cqrs.UpdateVehicleStatusCommand{
		VehicleID: vehicleID,
		Status:    req.Status,
	})
	if err != nil {
		respondError(c, err, "Failed to update vehicle status")
		return
	}
	c.JSON(http.StatusOK, vehicle)
}

func (h *VehicleHandler) DeleteVehicle(c *gin.Context) {
	vehicleID, ok := vehicleParam(c)
	if !ok {
		return
	}
	if err := h.commands.DeleteVehicle(c.Request.Context(), cqrs.DeleteVehicleCommand{VehicleID: vehicleID}); err != nil {
		respondError(c, err, "Failed to delete vehicle")
		return
	}
	c.Status(http.StatusNoContent)
}
