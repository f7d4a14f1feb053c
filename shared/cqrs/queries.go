package cqrs

import "net/url"

// ---------- Vehicle queries ----------

type GetVehicleQuery struct {
	VehicleID int64
}

// ListVehiclesQuery carries the raw query string; the repository's filter
// table decides which parameters are recognised.
type ListVehiclesQuery struct {
	Params url.Values
}

// ---------- Image queries ----------

// ListImagesQuery returns a vehicle's images ordered by display position.
type ListImagesQuery struct {
	VehicleID int64
}

type GetMainImageQuery struct {
	VehicleID int64
}
