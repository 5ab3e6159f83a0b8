package hwid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider(t *testing.T) {
	p := Static("HW-TEST-1")
	fp, err := p.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, "HW-TEST-1", fp)
}

func TestStaticProviderEmpty(t *testing.T) {
	_, err := Static("").Fingerprint()
	assert.Error(t, err)
}

func TestDefaultProviderStable(t *testing.T) {
	p := Default()
	first, err := p.Fingerprint()
	if err != nil {
		t.Skipf("no hardware factors available in this environment: %v", err)
	}
	require.Len(t, first, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", first)

	second, err := p.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
