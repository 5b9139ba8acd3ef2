package database

import (
	"math/rand/v2"
)

// Alphabet for public room ids. O and l are left out to avoid
// confusion with 0 and 1 when ids are read aloud.
const roomIdAlphabet = "ABCDEFGHIJKLMNPQRSTUVWXYZ" +
	"abcdefghijkmnopqrstuvwxyz" +
	"0123456789"

const roomIdLength = 6

// GenerateRoomId returns a short public room id. Collisions are not
// actively checked; creation retries once on a unique violation.
func GenerateRoomId() string {
	id := make([]byte, roomIdLength)
	for i := range id {
		id[i] = roomIdAlphabet[rand.IntN(len(roomIdAlphabet))]
	}
	return string(id)
}
