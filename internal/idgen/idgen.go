// Package idgen generates identifiers for analysis runs and WebSocket
// clients.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random UUID string.
func New() string {
	return uuid.NewString()
}

// WithPrefix returns prefix followed by a dashless random UUID,
// e.g. "run_3f2a...".
func WithPrefix(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
