// Package notary verifies gateway notary attestations. The gateway signs
// documents with a plain Ethereum key: the signed message is
// "{data_hash}|{timestamp}" where data_hash is the SHA-256 of the RFC 8785
// canonical JSON of the document's data field, and the signature is an
// EIP-191 personal_sign over that message. Verification is fully offline;
// only the notary's address needs to be known.
package notary

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/gowebpki/jcs"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/envelope"
	"github.com/datafund/swarmprov/lib/eth"
)

var log = logging.Logger("notary")

// DefaultMessageFormat is the signed message template used when the
// signature does not carry one.
const DefaultMessageFormat = "{data_hash}|{timestamp}"

var ErrNotSigned = xerrors.New("document carries no notary signature")

// Result reports one verification. A document can fail verification without
// the check itself erroring; Reason says why.
type Result struct {
	Verified bool
	Signer   string // recovered address, EIP-55 checksummed
	Reason   string
}

// DataHash computes the hash the notary committed to: SHA-256 over the
// canonical JSON encoding of the data field's value.
func DataHash(data string) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", xerrors.Errorf("encoding data field: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", xerrors.Errorf("canonicalizing data field: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// SignedMessage renders the message template with the signature's hash and
// timestamp.
func SignedMessage(sig *envelope.Signature) string {
	format := sig.MessageFormat
	if format == "" {
		format = DefaultMessageFormat
	}
	msg := strings.ReplaceAll(format, "{data_hash}", sig.DataHash)
	return strings.ReplaceAll(msg, "{timestamp}", sig.Timestamp)
}

// Verify checks the notary signature on env. expectedAddr, when non-empty,
// pins the signer; otherwise the signature's own signer field is trusted as
// the claimed identity and only checked for consistency with the recovered
// key.
func Verify(env envelope.Envelope, expectedAddr string) (*Result, error) {
	sig := env.NotarySignature()
	if sig == nil {
		return nil, ErrNotSigned
	}

	hash, err := DataHash(env.Data)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(hash, sig.DataHash) {
		return &Result{Reason: "data hash does not match document contents"}, nil
	}

	sigBytes, err := hex.DecodeString(strings.TrimPrefix(sig.Signature, "0x"))
	if err != nil {
		return nil, xerrors.Errorf("decoding signature: %w", err)
	}
	digest := eth.PersonalDigest([]byte(SignedMessage(sig)))
	recovered, err := eth.RecoverAddress(digest, sigBytes)
	if err != nil {
		return nil, xerrors.Errorf("recovering signer: %w", err)
	}

	res := &Result{Signer: recovered.String()}
	switch {
	case sig.Signer != "" && !recovered.Equal(sig.Signer):
		res.Reason = "signature was not made by the claimed signer"
	case expectedAddr != "" && !recovered.Equal(expectedAddr):
		res.Reason = "signer does not match the expected notary address"
	default:
		res.Verified = true
	}

	if !res.Verified {
		log.Warnw("notary verification failed", "reason", res.Reason, "recovered", res.Signer)
	}
	return res, nil
}
