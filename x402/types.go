// Package x402 implements the pay-per-request negotiation protocol: parsing
// HTTP 402 challenges, selecting a payment option for the configured network,
// deciding the auto-pay policy, and signing EIP-712 TransferWithAuthorization
// payloads for the X-PAYMENT request header.
package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/xerrors"
)

// ProtocolVersion is the x402 wire protocol version this client speaks.
const ProtocolVersion = 1

// PaymentHeader is the request header carrying the signed payment payload.
const PaymentHeader = "X-PAYMENT"

// PaymentResponseHeader carries the settlement result on the retried request.
const PaymentResponseHeader = "X-Payment-Response"

// Network describes a settlement chain the client can pay on. Payments are
// USDC transfer authorizations; the EIP-712 signing domain is pinned to the
// USDC contract of the selected chain.
type Network struct {
	Name    string
	ChainID uint64
	USDC    string // USDC token contract address
	RPCURL  string // default JSON-RPC endpoint for balance queries
}

// Networks lists the supported settlement chains. The EIP-712 domain values
// (name "USDC", version "2") were verified against the on-chain
// DOMAIN_SEPARATOR of both contracts.
var Networks = map[string]Network{
	"base-sepolia": {
		Name:    "base-sepolia",
		ChainID: 84532,
		USDC:    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		RPCURL:  "https://sepolia.base.org",
	},
	"base": {
		Name:    "base",
		ChainID: 8453,
		USDC:    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		RPCURL:  "https://mainnet.base.org",
	},
}

const (
	eip712DomainName    = "USDC"
	eip712DomainVersion = "2"

	// usdcDecimals is the USDC token precision; amounts on the wire are in
	// smallest units.
	usdcDecimals = 1_000_000
)

// PaymentOption is one entry of the 402 challenge's accepts list. Immutable
// once parsed; the selected option determines the signing domain.
type PaymentOption struct {
	Scheme            string          `json:"scheme"`
	Network           string          `json:"network"`
	MaxAmountRequired string          `json:"maxAmountRequired"`
	Resource          string          `json:"resource,omitempty"`
	Description       string          `json:"description,omitempty"`
	MimeType          string          `json:"mimeType,omitempty"`
	PayTo             string          `json:"payTo"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds,omitempty"`
	Asset             string          `json:"asset,omitempty"`
	Extra             json.RawMessage `json:"extra,omitempty"`
}

// Challenge is the machine-readable body of a 402 response.
type Challenge struct {
	X402Version int             `json:"x402Version"`
	Error       string          `json:"error,omitempty"`
	Accepts     []PaymentOption `json:"accepts"`
}

// Authorization is the EIP-3009 TransferWithAuthorization message that gets
// signed. Integer fields travel as decimal strings.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Payload is the document carried base64-encoded in the X-PAYMENT header.
// Single use: it must never be replayed across distinct challenges.
type Payload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     InnerPayload `json:"payload"`
}

type InnerPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// Encode renders the payload as the X-PAYMENT header value.
func (p Payload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", xerrors.Errorf("encoding payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Result is the settlement outcome reported by the gateway in the
// X-Payment-Response header of the retried request.
type Result struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// ParseResult decodes an X-Payment-Response header value. Returns nil when
// the header is absent; a malformed header is reported as an error so callers
// never mistake garbage for a settlement confirmation.
func ParseResult(header string) (*Result, error) {
	if header == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, xerrors.Errorf("decoding payment response header: %w", err)
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, xerrors.Errorf("parsing payment response header: %w", err)
	}
	return &res, nil
}

// AmountUSD converts a smallest-units USDC amount string to its USD value.
func AmountUSD(amount string) (float64, error) {
	n, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("invalid payment amount %q: %w", amount, err)
	}
	return float64(n) / usdcDecimals, nil
}

// FormatUSD renders a smallest-units USDC amount as a dollar string, "$0.05".
func FormatUSD(amount string) string {
	usd, err := AmountUSD(amount)
	if err != nil {
		return "$?"
	}
	return fmt.Sprintf("$%.2f", usd)
}
