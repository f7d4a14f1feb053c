package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	VehicleCreated       = "vehicle.created"
	VehicleUpdated       = "vehicle.updated"
	VehicleStatusChanged = "vehicle.status_changed"
	VehicleDeleted       = "vehicle.deleted"

	ImageUploaded    = "image.uploaded"
	ImageUpdated     = "image.updated"
	ImageMainChanged = "image.main_changed"
	ImageDeleted     = "image.deleted"
	ImageReordered   = "image.reordered"
	ImagesPurged     = "image.purged"
)

// Stream names
const (
	VehicleEventsStream = "vehicle.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// DecodeData converts the loosely typed Data of a received event into T.
func DecodeData[T any](event Event) (T, error) {
	var out T
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return out, fmt.Errorf("failed to re-encode %s payload: %w", event.Type, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s payload: %w", event.Type, err)
	}
	return out, nil
}

// Vehicle events
type VehicleCreatedEvent struct {
	VehicleID int64  `json:"vehicle_id"`
	VIN       string `json:"vin"`
}

// VehicleUpdatedEvent lists the JSON names of the fields that changed.
type VehicleUpdatedEvent struct {
	VehicleID int64    `json:"vehicle_id"`
	Fields    []string `json:"fields"`
}

type VehicleStatusChangedEvent struct {
	VehicleID int64  `json:"vehicle_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type VehicleDeletedEvent struct {
	VehicleID int64 `json:"vehicle_id"`
}

// Image events
type ImageUploadedEvent struct {
	VehicleID int64   `json:"vehicle_id"`
	ImageIDs  []int64 `json:"image_ids"`
	MainID    int64   `json:"main_id,omitempty"`
}

type ImageUpdatedEvent struct {
	VehicleID int64 `json:"vehicle_id"`
	ImageID   int64 `json:"image_id"`
}

type ImageMainChangedEvent struct {
	VehicleID int64 `json:"vehicle_id"`
	ImageID   int64 `json:"image_id"`
}

type ImageDeletedEvent struct {
	VehicleID  int64  `json:"vehicle_id"`
	ImageID    int64  `json:"image_id"`
	FilePath   string `json:"file_path"`
	PromotedID int64  `json:"promoted_id,omitempty"`
}

type ImageReorderedEvent struct {
	VehicleID int64   `json:"vehicle_id"`
	Order     []int64 `json:"order"`
}

type ImagesPurgedEvent struct {
	VehicleID int64 `json:"vehicle_id"`
	Count     int   `json:"count"`
}
