package identity

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStateTokenEncodings(t *testing.T) {
	payload := []byte(`{"userId":"6f1c2b9e-3a47-4e0f-9a55-1d2c3b4a5f60","timestamp":1700000000}`)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		tok, err := DecodeStateToken(enc.EncodeToString(payload))
		require.NoError(t, err)
		assert.Equal(t, userA, tok.UserID)
		assert.Equal(t, int64(1700000000), tok.Timestamp)
	}
}

func TestDecodeStateTokenRejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"not-valid-base64",
		"%%%",
		base64.StdEncoding.EncodeToString([]byte(`not json`)),
		base64.StdEncoding.EncodeToString([]byte(`{"user":"x"}`)),
		base64.StdEncoding.EncodeToString([]byte(`{"userId":"   "}`)),
	} {
		_, err := DecodeStateToken(raw)
		assert.ErrorIs(t, err, ErrInvalidStateToken, raw)
	}
}

func TestEncodeStateTokenRoundTrip(t *testing.T) {
	raw, err := EncodeStateToken(StateToken{UserID: userB})
	require.NoError(t, err)
	tok, err := DecodeStateToken(raw)
	require.NoError(t, err)
	assert.Equal(t, userB, tok.UserID)
}
