package cqrs

import "io"

// ---------- Vehicle commands ----------

type CreateVehicleCommand struct {
	VIN                string
	RegistrationNumber string
	BrandID            int64
	ModelID            int64
	Year               int
	Color              string
	Mileage            int
	Price              float64
	Cost               float64
	Condition          string
	Status             string
	FuelType           string
	Transmission       string
	Description        string
	Location           string
}

// UpdateVehicleCommand is a partial update; nil fields are left alone.
type UpdateVehicleCommand struct {
	VehicleID          int64
	VIN                *string
	RegistrationNumber *string
	BrandID            *int64
	ModelID            *int64
	Year               *int
	Color              *string
	Mileage            *int
	Price              *float64
	Cost               *float64
	Condition          *string
	Status             *string
	FuelType           *string
	Transmission       *string
	Description        *string
	Location           *string
}

type UpdateVehicleStatusCommand struct {
	VehicleID int64
	Status    string
}

type DeleteVehicleCommand struct {
	VehicleID int64
}

// ---------- Image commands ----------

// UploadFile is one part of a multipart upload. Content must support
// seeking back to the start after sniffing.
type UploadFile struct {
	OriginalName string
	Size         int64
	Content      io.ReadSeeker
}

type UploadImagesCommand struct {
	VehicleID     int64
	Files         []UploadFile
	RequestedMain bool
}

type SetMainImageCommand struct {
	VehicleID int64
	ImageID   int64
}

// UpdateImageMetadataCommand is a partial update; nil fields are left alone.
type UpdateImageMetadataCommand struct {
	VehicleID    int64
	ImageID      int64
	OriginalName *string
	IsMain       *bool
}

type DeleteImageCommand struct {
	VehicleID int64
	ImageID   int64
}

type ReorderImagesCommand struct {
	VehicleID int64
	Order     []int64
}
