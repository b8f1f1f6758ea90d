// Package envelope implements the provenance metadata envelope: raw content
// is base64-wrapped together with a SHA-256 digest so that integrity is
// verifiable end to end, independent of the storage network.
//
// The digest algorithm and encoding are fixed. The envelope carries no
// algorithm negotiation field, so changing either is a breaking change to the
// stored format.
package envelope

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"

	"golang.org/x/xerrors"
)

// Envelope is the JSON document stored on Swarm in place of the raw content.
type Envelope struct {
	// Data is the base64 (standard encoding) of the original raw bytes.
	Data string `json:"data"`
	// ContentHash is the lowercase hex SHA-256 of the original raw bytes.
	ContentHash string `json:"content_hash"`
	// StampID is the postage stamp batch the upload was paid with.
	StampID string `json:"stamp_id"`

	ProvenanceStandard string `json:"provenance_standard,omitempty"`
	Encryption         string `json:"encryption,omitempty"`

	// Signatures holds notarization entries added by the gateway, if any.
	Signatures []Signature `json:"signatures,omitempty"`
}

// Signature is a single notarization entry over the envelope contents.
type Signature struct {
	Type          string   `json:"type"`
	Signer        string   `json:"signer"`
	Timestamp     string   `json:"timestamp"`
	DataHash      string   `json:"data_hash"`
	Signature     string   `json:"signature"`
	HashedFields  []string `json:"hashed_fields,omitempty"`
	MessageFormat string   `json:"signed_message_format,omitempty"`
}

// Wrap builds an envelope around raw content. Pure function, no I/O.
func Wrap(raw []byte, stampID, standard, encryption string) Envelope {
	sum := sha256.Sum256(raw)
	return Envelope{
		Data:               base64.StdEncoding.EncodeToString(raw),
		ContentHash:        hex.EncodeToString(sum[:]),
		StampID:            stampID,
		ProvenanceStandard: standard,
		Encryption:         encryption,
	}
}

// Unwrap decodes the wrapped data and recomputes its digest. A digest mismatch
// is reported through verified=false, not an error: callers decide whether to
// keep unverified bytes. An error is returned only when the data field cannot
// be decoded at all.
func Unwrap(env Envelope) (raw []byte, verified bool, err error) {
	raw, err = base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, false, xerrors.Errorf("decoding envelope data: %w", err)
	}
	sum := sha256.Sum256(raw)
	want, err := hex.DecodeString(env.ContentHash)
	if err != nil || len(want) != sha256.Size {
		return raw, false, nil
	}
	return raw, subtle.ConstantTimeCompare(sum[:], want) == 1, nil
}

// Parse decodes a stored envelope document.
func Parse(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, xerrors.Errorf("parsing envelope json: %w", err)
	}
	if env.Data == "" || env.ContentHash == "" {
		return Envelope{}, xerrors.New("envelope missing data or content_hash field")
	}
	return env, nil
}

// Marshal serializes the envelope for upload.
func Marshal(env Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, xerrors.Errorf("encoding envelope: %w", err)
	}
	return b, nil
}

// MarshalIndent is Marshal with human-readable indentation, used for the
// .meta.json artifact written on download.
func MarshalIndent(env Envelope) ([]byte, error) {
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, xerrors.Errorf("encoding envelope: %w", err)
	}
	return b, nil
}

// NotarySignature returns the first signature entry of type "notary", or nil.
func (e Envelope) NotarySignature() *Signature {
	for i := range e.Signatures {
		if e.Signatures[i].Type == "notary" {
			return &e.Signatures[i]
		}
	}
	return nil
}
