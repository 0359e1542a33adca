package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a short random identifier suitable for task and backtest
// handles: the first 8 hex characters of a random UUID.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
