package models

import "time"

const (
	ConditionNew       = "new"
	ConditionUsed      = "used"
	ConditionCertified = "certified"

	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusSold      = "sold"
)

type Vehicle struct {
	ID                 int64      `json:"id"`
	VIN                string     `json:"vin"`
	RegistrationNumber string     `json:"registration_number,omitempty"`
	BrandID            int64      `json:"brand_id"`
	ModelID            int64      `json:"model_id"`
	Year               int        `json:"year"`
	Color              string     `json:"color,omitempty"`
	Mileage            int        `json:"mileage"`
	Price              float64    `json:"price"`
	Cost               float64    `json:"cost,omitempty"`
	Condition          string     `json:"condition"`
	Status             string     `json:"status"`
	FuelType           string     `json:"fuel_type,omitempty"`
	Transmission       string     `json:"transmission,omitempty"`
	Description        string     `json:"description,omitempty"`
	Location           string     `json:"location,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

// VehicleImage is one stored photo of a vehicle. FilePath is the blob key.
type VehicleImage struct {
	ID           int64     `json:"id"`
	VehicleID    int64     `json:"vehicle_id"`
	FileName     string    `json:"file_name"`
	FilePath     string    `json:"file_path"`
	OriginalName string    `json:"original_name"`
	FileSize     int64     `json:"file_size"`
	MimeType     string    `json:"mime_type"`
	Checksum     string    `json:"checksum"`
	IsMain       bool      `json:"is_main"`
	Order        int       `json:"order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
