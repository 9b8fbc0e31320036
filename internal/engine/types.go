package engine

import (
	"crypto/sha256"
	"encoding/hex"
)

// Seeds identifies a provably fair stream. The server seed is used as ASCII;
// do NOT hex-decode it.
type Seeds struct {
	Server string `json:"server"`
	Client string `json:"client"`
}

// HashServerSeed returns the hex SHA-256 of a server seed, the only form of it
// that may be logged or stored.
func HashServerSeed(serverSeed string) string {
	if serverSeed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}
