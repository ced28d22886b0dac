package pkg

import "github.com/google/uuid"

// GenerateGameID - returns a random 128-bit game id. Collisions are
// negligible at this size; the store still refuses to overwrite on create.
func GenerateGameID() string {
	return uuid.NewString()
}
