package app

import (
	"crypto/rand"
	"encoding/hex"
)

// newID returns a random 16-hex-char identifier for sessions and submissions.
func newID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
