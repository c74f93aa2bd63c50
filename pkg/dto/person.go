package dto

import "github.com/google/uuid"

// RecognizeRequest omits image_data to capture from the device.
type RecognizeRequest struct {
	ImageData string `json:"image_data,omitempty"`
}

type RecognizeResponse struct {
	PersonID    uuid.UUID `json:"person_id"`
	DisplayName string    `json:"display_name"`
	Confidence  float64   `json:"confidence"`
	Timestamp   string    `json:"timestamp"`
}

// RegisterRequest omits images to capture from the device.
type RegisterRequest struct {
	Name   string   `json:"name"`
	Images []string `json:"images,omitempty"`
}

type RegisterResponse struct {
	Message     string    `json:"message"`
	PersonID    uuid.UUID `json:"person_id"`
	DisplayName string    `json:"display_name"`
}

type PersonResponse struct {
	PersonID        uuid.UUID `json:"person_id"`
	DisplayName     string    `json:"display_name"`
	SampleCount     int       `json:"sample_count"`
	EnrolledAt      string    `json:"enrolled_at"`
	ProfileImageURL string    `json:"profile_image_url"`
}

type PersonListResponse struct {
	Persons []PersonResponse `json:"persons"`
	Total   int              `json:"total"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Attempt int    `json:"attempt,omitempty"`
}
