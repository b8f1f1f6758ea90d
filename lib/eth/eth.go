// Package eth holds the small amount of Ethereum plumbing the client needs:
// keccak hashing, address parsing and EIP-55 checksumming, and secp256k1
// signature recovery. Signing itself lives with the payment code.
package eth

import (
	"encoding/hex"
	"strconv"
	"strings"

	gocrypto "github.com/filecoin-project/go-crypto"
	"golang.org/x/crypto/sha3"
	"golang.org/x/xerrors"
)

// AddressLength is the byte length of an Ethereum address.
const AddressLength = 20

type Address [AddressLength]byte

// Keccak256 hashes the concatenation of its arguments.
func Keccak256(data ...[]byte) []byte {
	hasher := sha3.NewLegacyKeccak256()
	for _, d := range data {
		hasher.Write(d)
	}
	return hasher.Sum(nil)
}

// ParseAddress decodes a 0x-prefixed (or bare) hex address.
func ParseAddress(s string) (Address, error) {
	var a Address
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(h)
	if err != nil {
		return a, xerrors.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != AddressLength {
		return a, xerrors.Errorf("invalid address %q: expected %d bytes, got %d", s, AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// String renders the address with an EIP-55 mixed-case checksum.
func (a Address) String() string {
	lower := hex.EncodeToString(a[:])
	sum := Keccak256([]byte(lower))
	out := []byte(lower)
	for i := range out {
		if out[i] >= 'a' && out[i] <= 'f' {
			// Nibble i of the hash decides the casing of hex digit i.
			nibble := sum[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				out[i] -= 'a' - 'A'
			}
		}
	}
	return "0x" + string(out)
}

// Equal compares two addresses case-insensitively by value.
func (a Address) Equal(s string) bool {
	other, err := ParseAddress(s)
	if err != nil {
		return false
	}
	return a == other
}

// PubkeyToAddress derives the address of a 65-byte uncompressed secp256k1
// public key.
func PubkeyToAddress(pub []byte) (Address, error) {
	var a Address
	if len(pub) != 65 || pub[0] != 0x04 {
		return a, xerrors.Errorf("expected 65-byte uncompressed public key, got %d bytes", len(pub))
	}
	copy(a[:], Keccak256(pub[1:])[12:])
	return a, nil
}

// RecoverAddress recovers the signing address from a 65-byte [R||S||V]
// signature over the given 32-byte digest. Both V conventions (0/1 and 27/28)
// are accepted.
func RecoverAddress(digest, sig []byte) (Address, error) {
	var a Address
	if len(digest) != 32 {
		return a, xerrors.Errorf("expected 32-byte digest, got %d bytes", len(digest))
	}
	if len(sig) != 65 {
		return a, xerrors.Errorf("expected 65-byte signature, got %d bytes", len(sig))
	}
	norm := append([]byte(nil), sig...)
	if norm[64] >= 27 {
		norm[64] -= 27
	}
	pub, err := gocrypto.EcRecover(digest, norm)
	if err != nil {
		return a, xerrors.Errorf("recovering public key: %w", err)
	}
	return PubkeyToAddress(pub)
}

// PersonalDigest computes the EIP-191 "personal message" digest of msg, the
// hash signed by eth_sign style signers.
func PersonalDigest(msg []byte) []byte {
	prefix := []byte("\x19Ethereum Signed Message:\n")
	return Keccak256(prefix, []byte(strconv.Itoa(len(msg))), msg)
}
