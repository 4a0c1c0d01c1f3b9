package secret

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestBoxRoundTrip(t *testing.T) {
	box, err := NewBoxFromHex(testKey)
	require.NoError(t, err)

	sealed, err := box.Seal("alice/p1")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "alice")

	again, err := box.Seal("alice/p1")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "alice/p1", plain)
}

func TestBoxRejectsBadInput(t *testing.T) {
	_, err := NewBoxFromHex("abcd")
	assert.Error(t, err)

	box, err := NewBoxFromHex(testKey)
	require.NoError(t, err)

	_, err = box.Open("%%%")
	assert.ErrorIs(t, err, ErrMalformed)

	sealed, err := box.Seal("bob/p2")
	require.NoError(t, err)
	tampered := strings.Repeat("A", 4) + sealed[4:]
	_, err = box.Open(tampered)
	assert.Error(t, err)

	other, err := NewBoxFromHex(strings.Repeat("ff", 32))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)
}
