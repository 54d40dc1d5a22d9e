package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestCipherRoundTrip(t *testing.T) {
	c, err := New(true, testKeyHex)
	require.NoError(t, err)
	require.True(t, c.Enabled())

	cases := []string{
		"",
		"hello",
		"¿cómo está el cultivo? 🌾",
		strings.Repeat("long message ", 400),
	}
	for _, plaintext := range cases {
		ct, nonce, err := c.Encrypt([]byte(plaintext))
		require.NoError(t, err)
		assert.NotEqual(t, []byte(plaintext), ct)
		assert.Len(t, nonce, 12)

		pt, err := c.Decrypt(ct, nonce)
		require.NoError(t, err)
		assert.Equal(t, plaintext, string(pt))
	}
}

func TestCipherUniqueNonces(t *testing.T) {
	c, err := New(true, testKeyHex)
	require.NoError(t, err)

	_, n1, err := c.Encrypt([]byte("same input"))
	require.NoError(t, err)
	_, n2, err := c.Encrypt([]byte("same input"))
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2)
}

func TestCipherWrongKey(t *testing.T) {
	c1, err := New(true, testKeyHex)
	require.NoError(t, err)
	c2, err := New(true, "a completely different secret with enough length")
	require.NoError(t, err)

	ct, nonce, err := c1.Encrypt([]byte("secret payload"))
	require.NoError(t, err)

	_, err = c2.Decrypt(ct, nonce)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestCipherTamperDetected(t *testing.T) {
	c, err := New(true, testKeyHex)
	require.NoError(t, err)

	ct, nonce, err := c.Encrypt([]byte("integrity matters"))
	require.NoError(t, err)

	ct[0] ^= 0xff
	_, err = c.Decrypt(ct, nonce)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestCipherDisabled(t *testing.T) {
	c, err := New(false, "")
	require.NoError(t, err)
	assert.False(t, c.Enabled())
}

func TestCipherKeyDerivation(t *testing.T) {
	// non-hex passphrase goes through HKDF
	c, err := New(true, "a passphrase that is at least thirty-two chars")
	require.NoError(t, err)
	ct, nonce, err := c.Encrypt([]byte("derived key works"))
	require.NoError(t, err)
	pt, err := c.Decrypt(ct, nonce)
	require.NoError(t, err)
	assert.Equal(t, "derived key works", string(pt))

	// too-short secrets are refused
	_, err = New(true, "short")
	assert.Error(t, err)
}
