package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(mint|event_type|sequence|timestamp)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(
	mint string,
	eventType string,
	sequence uint64,
	timestamp int64,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d",
		mint,
		eventType,
		sequence,
		timestamp,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
