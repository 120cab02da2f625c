package progression

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Digest is the sha256 of the player's canonical JSON encoding. Two players
// with Equal state always share a digest.
func Digest(p Player) string {
	b, err := json.Marshal(p.Clone())
	if err != nil {
		// Player holds only strings and ints.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
