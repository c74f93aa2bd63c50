package dto

import "github.com/google/uuid"

type IdentityEventResponse struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type,omitempty"`
	PersonID    *uuid.UUID `json:"person_id,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Confidence  float64    `json:"confidence,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Timestamp   string     `json:"timestamp"`
}

type IdentityEventListResponse struct {
	Events []IdentityEventResponse `json:"events"`
	Total  int                     `json:"total"`
}

// WSEvent is a WebSocket message for real-time identity event delivery.
type WSEvent struct {
	Type string                `json:"type"` // enrolled, recognized, rejected
	Data IdentityEventResponse `json:"data"`
}
