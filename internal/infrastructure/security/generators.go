// Package security provides identifier generation and bearer token utilities
package security

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateULID generates a new ULID string. Used for synthesis load ids so
// they sort by creation time.
func GenerateULID() string {
	return ulid.Make().String()
}

// GenerateRequestID generates a random request id.
func GenerateRequestID() string {
	return uuid.NewString()
}

// IsULID reports whether s parses as a ULID.
func IsULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
