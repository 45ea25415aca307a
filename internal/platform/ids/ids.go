package ids

import "github.com/google/uuid"

// New returns a random identifier for sessions and proposals created
// locally.
func New() string {
	return uuid.NewString()
}
