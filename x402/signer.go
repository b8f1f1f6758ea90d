package x402

import (
	"encoding/hex"
	"strings"

	gocrypto "github.com/filecoin-project/go-crypto"
	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/lib/eth"
)

// Signer is the payment signing capability. It is selected once at startup:
// when payments are enabled and a key is configured a real signer is wired
// in, otherwise the unavailable implementation fails fast at first use. The
// private key never leaves the implementation.
type Signer interface {
	Address() (eth.Address, error)
	SignDigest(digest []byte) ([]byte, error)
}

type secpSigner struct {
	priv []byte
	addr eth.Address
}

// NewSecpSigner builds a signer from a 0x-prefixed (or bare) hex secp256k1
// private key.
func NewSecpSigner(privateKeyHex string) (Signer, error) {
	if privateKeyHex == "" {
		return nil, ErrNoPrivateKey
	}
	h := strings.TrimPrefix(privateKeyHex, "0x")
	priv, err := hex.DecodeString(h)
	if err != nil {
		return nil, xerrors.Errorf("%w: not valid hex", ErrNoPrivateKey)
	}
	if len(priv) != 32 {
		return nil, xerrors.Errorf("%w: expected 32 bytes, got %d", ErrNoPrivateKey, len(priv))
	}
	addr, err := eth.PubkeyToAddress(gocrypto.PublicKey(priv))
	if err != nil {
		return nil, xerrors.Errorf("deriving signer address: %w", err)
	}
	return &secpSigner{priv: priv, addr: addr}, nil
}

func (s *secpSigner) Address() (eth.Address, error) {
	return s.addr, nil
}

// SignDigest produces a 65-byte [R||S||V] signature with the Ethereum 27/28
// recovery id convention.
func (s *secpSigner) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, xerrors.Errorf("expected 32-byte digest, got %d bytes", len(digest))
	}
	sig, err := gocrypto.Sign(s.priv, digest)
	if err != nil {
		return nil, xerrors.Errorf("signing digest: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

type missingKeySigner struct{}

// MissingKey returns the signer wired in when payments are enabled but no
// private key is configured. Every operation fails with ErrNoPrivateKey, at
// use time rather than at startup: commands that never hit a 402 stay
// unaffected.
func MissingKey() Signer {
	return missingKeySigner{}
}

func (missingKeySigner) Address() (eth.Address, error) {
	return eth.Address{}, ErrNoPrivateKey
}

func (missingKeySigner) SignDigest([]byte) ([]byte, error) {
	return nil, ErrNoPrivateKey
}

type unavailableSigner struct{}

// Unavailable returns the null signer wired in when the payment capability is
// not configured. Every operation fails with ErrSignerUnavailable.
func Unavailable() Signer {
	return unavailableSigner{}
}

func (unavailableSigner) Address() (eth.Address, error) {
	return eth.Address{}, ErrSignerUnavailable
}

func (unavailableSigner) SignDigest([]byte) ([]byte, error) {
	return nil, ErrSignerUnavailable
}
