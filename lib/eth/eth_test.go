package eth_test

import (
	"encoding/hex"
	"testing"

	gocrypto "github.com/filecoin-project/go-crypto"
	"github.com/stretchr/testify/require"

	"github.com/datafund/swarmprov/lib/eth"
)

func TestKeccak256KnownVector(t *testing.T) {
	// keccak256("") is the canonical empty-input vector.
	got := eth.Keccak256(nil)
	require.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		hex.EncodeToString(got))
}

func TestChecksumAddress(t *testing.T) {
	// EIP-55 reference vectors.
	for _, s := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
	} {
		a, err := eth.ParseAddress(s)
		require.NoError(t, err)
		require.Equal(t, s, a.String())
	}
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "0x1234", "0xzz6916095ca1df60bb79ce92ce3ea74c37c5d359", "nonsense"} {
		_, err := eth.ParseAddress(s)
		require.Error(t, err, s)
	}
}

func TestAddressEqualIsCaseInsensitive(t *testing.T) {
	a, err := eth.ParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(t, err)
	require.True(t, a.Equal("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	require.True(t, a.Equal("0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED"))
	require.False(t, a.Equal("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"))
}

func TestSignAndRecoverRoundTrip(t *testing.T) {
	priv, err := gocrypto.GenerateKey()
	require.NoError(t, err)

	want, err := eth.PubkeyToAddress(gocrypto.PublicKey(priv))
	require.NoError(t, err)

	digest := eth.Keccak256([]byte("some signed message"))
	sig, err := gocrypto.Sign(priv, digest)
	require.NoError(t, err)

	// Recovery id as produced (0/1).
	got, err := eth.RecoverAddress(digest, sig)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Ethereum convention (27/28).
	ethSig := append([]byte(nil), sig...)
	ethSig[64] += 27
	got, err = eth.RecoverAddress(digest, ethSig)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRecoverAddressWrongDigest(t *testing.T) {
	priv, err := gocrypto.GenerateKey()
	require.NoError(t, err)
	want, err := eth.PubkeyToAddress(gocrypto.PublicKey(priv))
	require.NoError(t, err)

	digest := eth.Keccak256([]byte("message one"))
	sig, err := gocrypto.Sign(priv, digest)
	require.NoError(t, err)

	other := eth.Keccak256([]byte("message two"))
	got, err := eth.RecoverAddress(other, sig)
	if err == nil {
		require.NotEqual(t, want, got)
	}
}

func TestPersonalDigestDiffersFromRawKeccak(t *testing.T) {
	msg := []byte("abc|2026-01-01T00:00:00Z")
	require.NotEqual(t, eth.Keccak256(msg), eth.PersonalDigest(msg))
	require.Len(t, eth.PersonalDigest(msg), 32)
}
