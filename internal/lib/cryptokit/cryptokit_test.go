package cryptokit

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=" // 32 нулевых байта

func TestHashID(t *testing.T) {
	first := HashID("app-secret", 123456789)
	second := HashID("app-secret", 123456789)
	assert.Equal(t, first, second, "digest must be deterministic")

	other := HashID("app-secret", 987654321)
	assert.NotEqual(t, first, other)

	otherSecret := HashID("another-secret", 123456789)
	assert.NotEqual(t, first, otherSecret)

	_, err := base64.URLEncoding.DecodeString(first)
	assert.NoError(t, err, "digest must be url-safe base64")
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	encrypted, err := codec.EncryptText("hello")
	require.NoError(t, err)
	assert.NotEqual(t, "hello", encrypted)

	plain, err := codec.DecryptText(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)
}

func TestCodec_EncryptID(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	encrypted, err := codec.EncryptID(424242)
	require.NoError(t, err)

	id, err := codec.DecryptID(encrypted)
	require.NoError(t, err)
	assert.Equal(t, int64(424242), id)
}

func TestCodec_DecryptTampered(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)

	encrypted, err := codec.EncryptText("secret value")
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(encrypted)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.URLEncoding.EncodeToString(raw)

	_, err = codec.DecryptText(tampered)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestCodec_DecryptWrongKey(t *testing.T) {
	codec, err := NewCodec(testKey)
	require.NoError(t, err)
	otherKey := base64.URLEncoding.EncodeToString(append([]byte{1}, make([]byte, 31)...))
	other, err := NewCodec(otherKey)
	require.NoError(t, err)

	encrypted, err := codec.EncryptText("secret value")
	require.NoError(t, err)

	_, err = other.DecryptText(encrypted)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestNewCodec_BadKey(t *testing.T) {
	_, err := NewCodec("not-base64!!")
	assert.Error(t, err)

	short := base64.URLEncoding.EncodeToString([]byte("short"))
	_, err = NewCodec(short)
	assert.Error(t, err)
}
