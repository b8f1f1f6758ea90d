package envelope_test

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datafund/swarmprov/envelope"
)

func TestRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 100, 4096, 1 << 20} {
		buf := make([]byte, size)
		_, err := rand.Read(buf)
		require.NoError(t, err)

		env := envelope.Wrap(buf, "aabbcc", "", "")
		raw, verified, err := envelope.Unwrap(env)
		require.NoError(t, err)
		require.True(t, verified, "size %d", size)
		require.Equal(t, buf, raw)
	}
}

func TestRoundTripThroughJSON(t *testing.T) {
	env := envelope.Wrap([]byte("hello provenance"), "ff00ff00", "PROV-O", "aes-256-gcm")

	b, err := envelope.Marshal(env)
	require.NoError(t, err)

	parsed, err := envelope.Parse(b)
	require.NoError(t, err)
	require.Equal(t, env, parsed)

	raw, verified, err := envelope.Unwrap(parsed)
	require.NoError(t, err)
	require.True(t, verified)
	require.Equal(t, []byte("hello provenance"), raw)
}

// Corrupting any single byte of the wrapped data must surface as
// verified=false, never as an error or panic.
func TestUnwrapDetectsMutation(t *testing.T) {
	content := []byte("the quick brown fox")
	env := envelope.Wrap(content, "aabbcc", "", "")

	raw, err := base64.StdEncoding.DecodeString(env.Data)
	require.NoError(t, err)

	for i := range raw {
		mutated := append([]byte(nil), raw...)
		mutated[i] ^= 0x01

		corrupt := env
		corrupt.Data = base64.StdEncoding.EncodeToString(mutated)

		got, verified, err := envelope.Unwrap(corrupt)
		require.NoError(t, err)
		require.False(t, verified, "mutation at byte %d went undetected", i)
		require.Equal(t, mutated, got, "unverified bytes must still be returned")
	}
}

func TestUnwrapBadHashField(t *testing.T) {
	env := envelope.Wrap([]byte("data"), "aabbcc", "", "")

	for _, hash := range []string{"", "zz", "deadbeef", "not hex at all"} {
		bad := env
		bad.ContentHash = hash
		_, verified, err := envelope.Unwrap(bad)
		require.NoError(t, err)
		require.False(t, verified)
	}
}

func TestUnwrapBadBase64(t *testing.T) {
	env := envelope.Wrap([]byte("data"), "aabbcc", "", "")
	env.Data = "!!! not base64 !!!"
	_, _, err := envelope.Unwrap(env)
	require.Error(t, err)
}

func TestParseRejectsMissingFields(t *testing.T) {
	_, err := envelope.Parse([]byte(`{"stamp_id":"aa"}`))
	require.Error(t, err)

	_, err = envelope.Parse([]byte(`not json`))
	require.Error(t, err)
}

func TestNotarySignature(t *testing.T) {
	env := envelope.Wrap([]byte("data"), "aabbcc", "", "")
	require.Nil(t, env.NotarySignature())

	env.Signatures = []envelope.Signature{
		{Type: "witness", Signer: "0x01"},
		{Type: "notary", Signer: "0x02"},
	}
	sig := env.NotarySignature()
	require.NotNil(t, sig)
	require.Equal(t, "0x02", sig.Signer)
}
