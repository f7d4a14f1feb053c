package models

// VehicleImageView is an image row plus its public retrieval URL.
type VehicleImageView struct {
	VehicleImage
	URL string `json:"url"`
}

// VehicleView is the projection returned by the vehicle endpoints.
type VehicleView struct {
	Vehicle
	MainImage *VehicleImageView `json:"main_image"`
}

// Page is a paginated result set.
type Page[T any] struct {
	Data        []T `json:"data"`
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

func NewPage[T any](data []T, page, perPage, total int) Page[T] {
	lastPage := 1
	if perPage > 0 && total > 0 {
		lastPage = (total + perPage - 1) / perPage
	}
	if data == nil {
		data = []T{}
	}
	return Page[T]{
		Data:        data,
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		LastPage:    lastPage,
	}
}
