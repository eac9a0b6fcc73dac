package common

import (
	"github.com/google/uuid"
)

// NewID generates a unique record identifier
func NewID() string {
	return uuid.New().String()
}

// IsValidID reports whether s parses as a UUID
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
