package crypto

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewProvisionalID generates the correlation token attached to a message
// before it is committed.
func NewProvisionalID() string {
	return ulid.Make().String()
}
