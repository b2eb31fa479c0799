package session

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
)

// NewID generates a session id using ULID
// Format: ULID (e.g., 01JB6X8Y2K9FQR4T3VWHGP5M2C)
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// ValidateID rejects ids that cannot be used as a single path segment
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return failure.Programming("INVALID_SESSION_ID", "session id is empty")
	case id == "." || id == "..":
		return failure.Programming("INVALID_SESSION_ID", "session id %q is reserved", id)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return failure.Programming("INVALID_SESSION_ID", "session id %q contains a path separator", id)
	case len(id) > 200:
		return failure.Programming("INVALID_SESSION_ID", "session id is longer than 200 bytes")
	}
	return nil
}
