package licensing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyGeneratorFormat(t *testing.T) {
	g := DefaultKeyGenerator()
	key, err := g.Generate()
	require.NoError(t, err)

	parts := strings.Split(key, "-")
	require.Len(t, parts, 5)
	assert.Equal(t, "LIC", parts[0])
	for _, segment := range parts[1:] {
		assert.Len(t, segment, 4)
		for _, c := range segment {
			assert.Contains(t, KeyAlphabet, string(c))
		}
	}
	assert.True(t, g.Validate(key))
}

func TestKeyGeneratorAvoidsAmbiguousCharacters(t *testing.T) {
	for _, forbidden := range []string{"0", "O", "I", "L", "1"} {
		assert.NotContains(t, KeyAlphabet, forbidden)
	}
}

func TestKeyGeneratorUniqueness(t *testing.T) {
	g := DefaultKeyGenerator()
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		key, err := g.Generate()
		require.NoError(t, err)
		require.Falsef(t, seen[key], "duplicate key %s after %d draws", key, i)
		seen[key] = true
	}
}

func TestKeyGeneratorLayoutBounds(t *testing.T) {
	_, err := (KeyGenerator{Prefix: "LIC", Segments: 1, SegmentLength: 4}).Generate()
	assert.Error(t, err)
	_, err = (KeyGenerator{Prefix: "LIC", Segments: 6, SegmentLength: 4}).Generate()
	assert.Error(t, err)
	_, err = (KeyGenerator{Prefix: "LIC", Segments: 4, SegmentLength: 1}).Generate()
	assert.Error(t, err)
	_, err = (KeyGenerator{Prefix: "LIC", Segments: 4, SegmentLength: 7}).Generate()
	assert.Error(t, err)
	_, err = (KeyGenerator{Prefix: "", Segments: 4, SegmentLength: 4}).Generate()
	assert.Error(t, err)

	_, err = (KeyGenerator{Prefix: "TRI", Segments: 2, SegmentLength: 2}).Generate()
	assert.NoError(t, err)
}

func TestKeyValidatorSegmentBoundaries(t *testing.T) {
	g := KeyGenerator{Prefix: "LIC", Segments: 2, SegmentLength: 2}

	// Exactly at the minimum segment length.
	assert.True(t, g.Validate("LIC-AB-CD"))
	// One character short or long.
	assert.False(t, g.Validate("LIC-A-CD"))
	assert.False(t, g.Validate("LIC-ABC-CD"))
	// Wrong prefix, wrong segment count, ambiguous characters.
	assert.False(t, g.Validate("XXX-AB-CD"))
	assert.False(t, g.Validate("LIC-AB"))
	assert.False(t, g.Validate("LIC-AB-CD-EF"))
	assert.False(t, g.Validate("LIC-A0-CD"))
	assert.False(t, g.Validate("LIC-AB-C1"))
	assert.False(t, g.Validate(""))
}
