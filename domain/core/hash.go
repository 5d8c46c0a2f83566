package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// RegionHash01 deterministically maps a region string into [0,1) by hashing
// it and reducing modulo 1000, per the context-vector region encoding rule.
func RegionHash01(region string) float64 {
	if region == "" {
		return 0
	}
	sum := sha256.Sum256([]byte(region))
	n := binary.BigEndian.Uint32(sum[:4])
	return float64(n%1000) / 1000.0
}
