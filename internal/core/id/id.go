// Package id generates identifiers for audit rows and other append-only records.
// UUIDv7 is time-ordered, so newer rows sort after older ones.
package id

import (
	"github.com/google/uuid"
)

// ID is the identifier type used for stored rows.
type ID = uuid.UUID

// New generates a UUIDv7, falling back to v4 if the clock source fails.
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// NewString is New formatted for text columns and JSON.
func NewString() string {
	return New().String()
}

// Parse converts a string to an ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// IsNil checks if id is the zero value.
func IsNil(id ID) bool {
	return id == uuid.Nil
}
