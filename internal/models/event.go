package models

import (
	"time"

	"github.com/google/uuid"
)

type IdentityEventType string

const (
	EventEnrolled   IdentityEventType = "enrolled"
	EventRecognized IdentityEventType = "recognized"
	EventRejected   IdentityEventType = "rejected"
)

// IdentityEvent is published after every enrollment and verification attempt
// that reached a decision.
type IdentityEvent struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	Type        IdentityEventType `json:"type" db:"type"`
	PersonID    *uuid.UUID        `json:"person_id,omitempty" db:"person_id"`
	DisplayName string            `json:"display_name,omitempty" db:"display_name"`
	Confidence  float64           `json:"confidence,omitempty" db:"confidence"`
	Reason      string            `json:"reason,omitempty" db:"reason"`
	Timestamp   time.Time         `json:"timestamp" db:"timestamp"`
}
