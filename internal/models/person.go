package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Signature is the fixed-length embedding of one face sample.
type Signature []float32

// Clone returns an independent copy of s.
func (s Signature) Clone() Signature {
	if s == nil {
		return nil
	}
	out := make(Signature, len(s))
	copy(out, s)
	return out
}

// Person is one enrolled identity. Its samples live in the vector store,
// each carrying the person's fields in SampleMetadata.
type Person struct {
	ID              uuid.UUID `json:"person_id"`
	DisplayName     string    `json:"display_name"`
	ProfileImageRef string    `json:"profile_image_ref"`
	EnrolledAt      time.Time `json:"enrolled_at"`
	SampleCount     int       `json:"sample_count"`
}

// SampleMetadata is stored next to every sample vector.
type SampleMetadata struct {
	PersonID        uuid.UUID `json:"person_id"`
	DisplayName     string    `json:"display_name"`
	ProfileImageRef string    `json:"profile_image_ref"`
	EnrolledAt      time.Time `json:"enrolled_at"`
	SampleIndex     int       `json:"sample_index"`
}

// SampleID names the index-th sample of a person.
func SampleID(personID uuid.UUID, index int) string {
	return personID.String() + "_" + strconv.Itoa(index)
}
