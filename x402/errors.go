package x402

import (
	"errors"
	"fmt"
)

// Every payment failure is fatal to the current attempt. There is no silent
// downgrade to a different network or to the free tier.
var (
	// ErrMalformedChallenge means the 402 body had no usable accepts list.
	ErrMalformedChallenge = errors.New("malformed payment challenge")

	// ErrNoPrivateKey means payments are enabled but no signing key is
	// configured.
	ErrNoPrivateKey = errors.New("x402 private key not configured")

	// ErrSignerUnavailable means the signing capability was not wired in at
	// startup (payments disabled, or no signing backend selected).
	ErrSignerUnavailable = errors.New("payment signing not available")

	// ErrPaymentRejected means a signed payment was not accepted: either the
	// retried request got a second 402, or the settlement result reported
	// failure. Never retried further.
	ErrPaymentRejected = errors.New("payment rejected")

	// ErrPaymentDeclined means the user (or policy) refused to pay.
	ErrPaymentDeclined = errors.New("payment declined")

	// ErrPaymentRequired means the server demanded payment but payments are
	// not enabled for this invocation.
	ErrPaymentRequired = errors.New("payment required but x402 not enabled")
)

// NoMatchingNetworkError is returned when none of the challenge's options
// settle on the configured network. Falling back to a different network is
// never done: funds and keys are network-specific.
type NoMatchingNetworkError struct {
	Configured string
	Offered    []string
}

func (e *NoMatchingNetworkError) Error() string {
	return fmt.Sprintf("no payment option for network %q, offered: %v", e.Configured, e.Offered)
}

// InsufficientBalanceError reports a pre-flight balance check failure.
// Amounts are in smallest USDC units.
type InsufficientBalanceError struct {
	Required  uint64
	Available uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient USDC balance: required $%.6f, available $%.6f",
		float64(e.Required)/usdcDecimals, float64(e.Available)/usdcDecimals)
}
