package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
)

// Hasher provides extensible hashing functionality
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{
		algorithm: algorithm,
	}
}

// DefaultHasher returns a hasher with the default algorithm
func DefaultHasher() *Hasher {
	return NewHasher(SHA256)
}

// Hash computes a hash of the input data
func (h *Hasher) Hash(data []byte) string {
	switch h.algorithm {
	case SHA256:
		hash := sha256.Sum256(data)
		return hex.EncodeToString(hash[:])
	default:
		hash := sha256.Sum256(data)
		return hex.EncodeToString(hash[:])
	}
}

// HashString computes a hash of a string
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashFields computes a hash from multiple fields
// Fields are concatenated with a delimiter for consistent hashing
func (h *Hasher) HashFields(fields ...string) string {
	// Sort fields for deterministic ordering
	sorted := make([]string, len(fields))
	copy(sorted, fields)
	sort.Strings(sorted)

	combined := strings.Join(sorted, "|")
	return h.HashString(combined)
}

// PermissionIdentifier derives the synthetic id of a permission record.
// The id depends only on subject and scope, so every process derives the
// same id for the same pair.
type PermissionIdentifier struct {
	hasher *Hasher
}

// NewPermissionIdentifier creates a new permission identifier
func NewPermissionIdentifier(hasher *Hasher) *PermissionIdentifier {
	if hasher == nil {
		hasher = DefaultHasher()
	}
	return &PermissionIdentifier{hasher: hasher}
}

// Generate returns the deterministic id for a subject/scope pair.
// Fields are tagged so that swapping subject and scope yields a different id.
func (pi *PermissionIdentifier) Generate(subject, scope string) string {
	return pi.hasher.HashFields(
		fmt.Sprintf("subject:%s", subject),
		fmt.Sprintf("scope:%s", scope),
	)
}

// Short returns the first 8 characters of an id for log lines
func (pi *PermissionIdentifier) Short(fullHash string) string {
	if len(fullHash) < 8 {
		return fullHash
	}
	return fullHash[:8]
}

// Verify checks if an id matches the subject/scope pair
func (pi *PermissionIdentifier) Verify(id, subject, scope string) bool {
	return id == pi.Generate(subject, scope)
}
