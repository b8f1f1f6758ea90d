package x402

import (
	"math/big"

	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/lib/eth"
)

// EIP-712 type strings for the USDC EIP-3009 transfer authorization. The
// domain separator is bound to the token contract and chain of the selected
// network, so a signature for one network is meaningless on any other.
var (
	domainTypeHash = eth.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	transferTypeHash = eth.Keccak256([]byte(
		"TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"))
)

func domainSeparator(net Network) ([]byte, error) {
	contract, err := eth.ParseAddress(net.USDC)
	if err != nil {
		return nil, xerrors.Errorf("network %s token contract: %w", net.Name, err)
	}
	return eth.Keccak256(
		domainTypeHash,
		eth.Keccak256([]byte(eip712DomainName)),
		eth.Keccak256([]byte(eip712DomainVersion)),
		encodeUint(new(big.Int).SetUint64(net.ChainID)),
		encodeAddress(contract),
	), nil
}

// transferDigest computes the EIP-712 signing digest for a transfer
// authorization: keccak(0x19 0x01 || domainSeparator || structHash).
func transferDigest(net Network, from, to eth.Address, value *big.Int, validAfter, validBefore int64, nonce [32]byte) ([]byte, error) {
	sep, err := domainSeparator(net)
	if err != nil {
		return nil, err
	}
	structHash := eth.Keccak256(
		transferTypeHash,
		encodeAddress(from),
		encodeAddress(to),
		encodeUint(value),
		encodeUint(big.NewInt(validAfter)),
		encodeUint(big.NewInt(validBefore)),
		nonce[:],
	)
	return eth.Keccak256([]byte{0x19, 0x01}, sep, structHash), nil
}

// encodeUint left-pads a non-negative integer to a 32-byte ABI word.
func encodeUint(v *big.Int) []byte {
	var word [32]byte
	v.FillBytes(word[:])
	return word[:]
}

// encodeAddress left-pads an address to a 32-byte ABI word.
func encodeAddress(a eth.Address) []byte {
	var word [32]byte
	copy(word[12:], a[:])
	return word[:]
}
