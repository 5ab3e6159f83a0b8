package licensing

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// KeyAlphabet is the unambiguous character set for license keys. It
// excludes 0, O, I, L, and 1, which are easy to confuse when read aloud
// or retyped.
const KeyAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// Key layout bounds.
const (
	MinKeySegments      = 2
	MaxKeySegments      = 5
	MinKeySegmentLength = 2
	MaxKeySegmentLength = 6
)

// KeyGenerator produces and validates keys of the form
// PREFIX-SEG-SEG-... with segments drawn uniformly from KeyAlphabet.
type KeyGenerator struct {
	Prefix        string
	Segments      int
	SegmentLength int
}

// DefaultKeyGenerator is the LIC-XXXX-XXXX-XXXX-XXXX layout.
func DefaultKeyGenerator() KeyGenerator {
	return KeyGenerator{Prefix: "LIC", Segments: 4, SegmentLength: 4}
}

func (g KeyGenerator) validateLayout() error {
	if g.Prefix == "" {
		return fmt.Errorf("key prefix must not be empty")
	}
	if g.Segments < MinKeySegments || g.Segments > MaxKeySegments {
		return fmt.Errorf("key segments must be between %d and %d, got %d", MinKeySegments, MaxKeySegments, g.Segments)
	}
	if g.SegmentLength < MinKeySegmentLength || g.SegmentLength > MaxKeySegmentLength {
		return fmt.Errorf("key segment length must be between %d and %d, got %d", MinKeySegmentLength, MaxKeySegmentLength, g.SegmentLength)
	}
	return nil
}

// Generate samples a fresh key. Uniqueness is the caller's concern.
func (g KeyGenerator) Generate() (string, error) {
	if err := g.validateLayout(); err != nil {
		return "", err
	}

	alphabetSize := big.NewInt(int64(len(KeyAlphabet)))
	parts := make([]string, 0, g.Segments+1)
	parts = append(parts, g.Prefix)

	for s := 0; s < g.Segments; s++ {
		var segment strings.Builder
		for c := 0; c < g.SegmentLength; c++ {
			n, err := rand.Int(rand.Reader, alphabetSize)
			if err != nil {
				return "", fmt.Errorf("sample key character: %w", err)
			}
			segment.WriteByte(KeyAlphabet[n.Int64()])
		}
		parts = append(parts, segment.String())
	}
	return strings.Join(parts, "-"), nil
}

// Validate reports whether key matches this generator's layout exactly:
// prefix, segment count, segment length, and alphabet membership.
func (g KeyGenerator) Validate(key string) bool {
	parts := strings.Split(key, "-")
	if len(parts) != g.Segments+1 {
		return false
	}
	if parts[0] != g.Prefix {
		return false
	}
	for _, segment := range parts[1:] {
		if len(segment) != g.SegmentLength {
			return false
		}
		for i := 0; i < len(segment); i++ {
			if !strings.ContainsRune(KeyAlphabet, rune(segment[i])) {
				return false
			}
		}
	}
	return true
}
