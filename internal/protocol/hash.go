package protocol

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// ComputeHash computes the LOGIN password hash: base64(SHA-256(lower(email)+password)).
//
// This is the algorithm spec.md §4.2.1/§9 prescribes pending a captured
// real golden vector from the vendor; it mirrors the digest scheme
// observed in comparable vendor web clients.
func ComputeHash(email, password string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email) + password))
	return base64.StdEncoding.EncodeToString(sum[:])
}
