package x402

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/lib/eth"
)

var log = logging.Logger("x402")

// defaultValiditySeconds is how long a signed authorization stays valid when
// the challenge does not specify a timeout.
const defaultValiditySeconds = 300

// clockSkewSeconds backdates validAfter so a fast-settling facilitator does
// not reject an authorization from a client with a slightly fast clock.
const clockSkewSeconds = 60

// Decision is the outcome of the auto-pay policy check. It is a pure policy
// value: prompting the user is the caller's job.
type Decision int

const (
	// DecisionAutoApprove: the amount is within the auto-pay budget.
	DecisionAutoApprove Decision = iota
	// DecisionPromptRequired: the caller must obtain explicit confirmation.
	DecisionPromptRequired
)

// Negotiator drives one payment negotiation per 402 challenge: parse, select,
// decide, sign. It holds no per-request state; a fresh payload (with a fresh
// nonce) is built for every challenge.
type Negotiator struct {
	network       Network
	signer        Signer
	autoPay       bool
	maxAutoPayUSD float64
	balance       *BalanceChecker

	now func() time.Time
}

// New builds a negotiator for the named settlement network. A nil signer
// means no signing backend is available; the negotiator is still usable for
// parsing and selection, and fails with ErrSignerUnavailable at signing time.
func New(networkName string, signer Signer, autoPay bool, maxAutoPayUSD float64) (*Negotiator, error) {
	net, ok := Networks[networkName]
	if !ok {
		supported := make([]string, 0, len(Networks))
		for name := range Networks {
			supported = append(supported, name)
		}
		return nil, xerrors.Errorf("unsupported network %q, supported: %v", networkName, supported)
	}
	if signer == nil {
		signer = Unavailable()
	}
	return &Negotiator{
		network:       net,
		signer:        signer,
		autoPay:       autoPay,
		maxAutoPayUSD: maxAutoPayUSD,
		now:           time.Now,
	}, nil
}

// EnableBalanceCheck turns on the on-chain funds pre-flight against the
// given RPC endpoint (empty uses the network default). Without it, payment
// building proceeds straight to signing and an underfunded wallet only
// surfaces as a settlement failure.
func (n *Negotiator) EnableBalanceCheck(rpcURL string) {
	n.balance = NewBalanceChecker(n.network, rpcURL)
}

// VerifyFunds checks the payer's USDC balance covers the option's amount.
// No-op when the balance check is not enabled.
func (n *Negotiator) VerifyFunds(ctx context.Context, opt *PaymentOption) error {
	if n.balance == nil {
		return nil
	}
	from, err := n.signer.Address()
	if err != nil {
		return err
	}
	return n.balance.RequireBalance(ctx, from, opt.MaxAmountRequired)
}

// Network returns the configured settlement network.
func (n *Negotiator) Network() Network {
	return n.network
}

// ParseChallenge decodes a 402 response body. A body without a non-empty
// accepts list is a malformed challenge.
func ParseChallenge(body []byte) (*Challenge, error) {
	var ch Challenge
	if err := json.Unmarshal(body, &ch); err != nil {
		return nil, xerrors.Errorf("%w: %s", ErrMalformedChallenge, err)
	}
	if len(ch.Accepts) == 0 {
		return nil, xerrors.Errorf("%w: empty accepts list", ErrMalformedChallenge)
	}
	return &ch, nil
}

// SelectOption picks the payment option for the configured network,
// preferring the "exact" scheme. It never falls back to another network.
func (n *Negotiator) SelectOption(ch *Challenge) (*PaymentOption, error) {
	var compatible []*PaymentOption
	var offered []string
	for i := range ch.Accepts {
		opt := &ch.Accepts[i]
		offered = append(offered, opt.Network)
		if opt.Network == n.network.Name {
			compatible = append(compatible, opt)
		}
	}
	if len(compatible) == 0 {
		return nil, &NoMatchingNetworkError{Configured: n.network.Name, Offered: offered}
	}
	for _, opt := range compatible {
		if opt.Scheme == "exact" {
			return opt, nil
		}
	}
	return compatible[0], nil
}

// Decide applies the auto-pay policy to the selected option. Within budget
// and auto-pay on: approve; otherwise the caller must prompt.
func (n *Negotiator) Decide(opt *PaymentOption) (Decision, error) {
	usd, err := AmountUSD(opt.MaxAmountRequired)
	if err != nil {
		return DecisionPromptRequired, err
	}
	if n.autoPay && usd <= n.maxAutoPayUSD {
		return DecisionAutoApprove, nil
	}
	return DecisionPromptRequired, nil
}

// BuildPayment signs a transfer authorization for the selected option and
// returns the X-PAYMENT header value. Each call generates a fresh random
// nonce; a payload is valid for a single challenge and must not be reused.
func (n *Negotiator) BuildPayment(opt *PaymentOption) (string, error) {
	from, err := n.signer.Address()
	if err != nil {
		return "", err
	}
	to, err := eth.ParseAddress(opt.PayTo)
	if err != nil {
		return "", xerrors.Errorf("challenge payTo address: %w", err)
	}
	value, ok := new(big.Int).SetString(opt.MaxAmountRequired, 10)
	if !ok || value.Sign() < 0 {
		return "", xerrors.Errorf("%w: bad amount %q", ErrMalformedChallenge, opt.MaxAmountRequired)
	}

	validity := int64(defaultValiditySeconds)
	if opt.MaxTimeoutSeconds > 0 {
		validity = int64(opt.MaxTimeoutSeconds)
	}
	now := n.now().Unix()
	validAfter := now - clockSkewSeconds
	validBefore := now + validity

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", xerrors.Errorf("generating payment nonce: %w", err)
	}

	digest, err := transferDigest(n.network, from, to, value, validAfter, validBefore, nonce)
	if err != nil {
		return "", err
	}
	sig, err := n.signer.SignDigest(digest)
	if err != nil {
		return "", err
	}

	payload := Payload{
		X402Version: ProtocolVersion,
		Scheme:      opt.Scheme,
		Network:     n.network.Name,
		Payload: InnerPayload{
			Signature: "0x" + hex.EncodeToString(sig),
			Authorization: Authorization{
				From:        from.String(),
				To:          to.String(),
				Value:       opt.MaxAmountRequired,
				ValidAfter:  strconv.FormatInt(validAfter, 10),
				ValidBefore: strconv.FormatInt(validBefore, 10),
				Nonce:       "0x" + hex.EncodeToString(nonce[:]),
			},
		},
	}
	header, err := payload.Encode()
	if err != nil {
		return "", err
	}
	log.Debugw("payment signed", "network", n.network.Name, "amount", FormatUSD(opt.MaxAmountRequired), "payTo", opt.PayTo)
	return header, nil
}
