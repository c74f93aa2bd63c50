package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchResult is the outcome of a successful verification. It is never persisted.
type MatchResult struct {
	PersonID    uuid.UUID `json:"person_id"`
	DisplayName string    `json:"display_name"`
	Confidence  float64   `json:"confidence"`
	QueryTime   time.Time `json:"query_time"`
}

// Neighbor is one vector store hit. Distance is cosine distance in [0, 2].
type Neighbor struct {
	ID       string
	Distance float64
	Metadata SampleMetadata
}
