package storage

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/taskdesk/internal/util"
)

func newKey(t *testing.T) []byte {
	t.Helper()
	key, err := util.RandomBytes(util.AESKeySize)
	require.NoError(t, err)
	return key
}

func TestSealValueRoundTrip(t *testing.T) {
	key := newKey(t)
	aad := aadFor("token")

	sealed, err := SealValue(key, "eyJhbGciOi.bearer", aad)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "bearer")

	got, err := OpenValue(key, sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, "eyJhbGciOi.bearer", got)

	again, err := SealValue(key, "eyJhbGciOi.bearer", aad)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")
}

func TestOpenValueRejects(t *testing.T) {
	key := newKey(t)
	sealed, err := SealValue(key, "secret", aadFor("token"))
	require.NoError(t, err)

	reencode := func(mutate func(*Envelope)) string {
		data, err := base64.RawURLEncoding.DecodeString(sealed)
		require.NoError(t, err)
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		mutate(&env)
		data, err = json.Marshal(env)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(data)
	}

	cases := map[string]struct {
		key    []byte
		sealed string
		aad    []byte
	}{
		"moved to another key": {key, sealed, aadFor("remember")},
		"wrong sealing key":    {newKey(t), sealed, aadFor("token")},
		"not base64":           {key, "%%%", aadFor("token")},
		"not an envelope":      {key, base64.RawURLEncoding.EncodeToString([]byte("plain")), aadFor("token")},
		"future version":       {key, reencode(func(e *Envelope) { e.Ver = 99 }), aadFor("token")},
		"unknown scheme":       {key, reencode(func(e *Envelope) { e.Scheme = "rot13" }), aadFor("token")},
		"tampered ciphertext":  {key, reencode(func(e *Envelope) { e.Ciphertext[0] ^= 0xff }), aadFor("token")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := OpenValue(tc.key, tc.sealed, tc.aad)
			require.Error(t, err)
		})
	}
}

func TestSealRecordLayout(t *testing.T) {
	env, err := SealRecord(newKey(t), []byte("x"), nil)
	require.NoError(t, err)
	assert.Equal(t, envelopeVer, env.Ver)
	assert.Equal(t, envelopeScheme, env.Scheme)
	assert.Len(t, env.Nonce, 12)
}
