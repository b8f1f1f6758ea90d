package gateway_test

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	gocrypto "github.com/filecoin-project/go-crypto"
	"github.com/stretchr/testify/require"

	"github.com/datafund/swarmprov/gateway"
	"github.com/datafund/swarmprov/x402"
)

const testReference = "b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2"

func newNegotiator(t *testing.T, autoPay bool, maxUSD float64) *x402.Negotiator {
	t.Helper()
	priv, err := gocrypto.GenerateKey()
	require.NoError(t, err)
	signer, err := x402.NewSecpSigner(hex.EncodeToString(priv))
	require.NoError(t, err)
	n, err := x402.New("base-sepolia", signer, autoPay, maxUSD)
	require.NoError(t, err)
	return n
}

func challengeBody(network string) string {
	return fmt.Sprintf(`{
		"x402Version": 1,
		"accepts": [{"scheme":"exact","network":%q,"maxAmountRequired":"50000",
			"payTo":"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed","resource":"/api/v1/data/"}]
	}`, network)
}

func TestUploadPaysOnceAndSucceeds(t *testing.T) {
	var requests int
	var paidHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		require.Equal(t, "/api/v1/data/", r.URL.Path)
		if r.Header.Get("X-Payment") == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			fmt.Fprint(w, challengeBody("base-sepolia"))
			return
		}
		paidHeader = r.Header.Get("X-Payment")
		fmt.Fprintf(w, `{"reference": %q}`, testReference)
	}))
	defer srv.Close()

	c := gateway.New(srv.URL, gateway.WithPayment(newNegotiator(t, true, 1.0), nil))
	result, err := c.Upload(context.Background(), []byte("payload"), "AABB", "application/json", "")
	require.NoError(t, err)
	require.Equal(t, testReference, result.Reference)
	require.Equal(t, 2, requests, "expected exactly one retry")

	// The payment header must be a decodable x402 payload.
	raw, err := base64.StdEncoding.DecodeString(paidHeader)
	require.NoError(t, err)
	var payload x402.Payload
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, "base-sepolia", payload.Network)
}

// A second 402 after a signed payment is a hard failure, not another round
// of negotiation.
func TestUploadSecondChallengeIsRejected(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, challengeBody("base-sepolia"))
	}))
	defer srv.Close()

	c := gateway.New(srv.URL, gateway.WithPayment(newNegotiator(t, true, 1.0), nil))
	_, err := c.Upload(context.Background(), []byte("payload"), "AABB", "application/json", "")
	require.ErrorIs(t, err, x402.ErrPaymentRejected)
	require.Equal(t, 2, requests, "must not negotiate a second time")
}

func TestUploadPaymentsDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, challengeBody("base-sepolia"))
	}))
	defer srv.Close()

	c := gateway.New(srv.URL)
	_, err := c.Upload(context.Background(), []byte("payload"), "AABB", "application/json", "")
	require.ErrorIs(t, err, x402.ErrPaymentRequired)
	require.ErrorContains(t, err, "$0.05")
}

func TestUploadWrongNetworkNeverFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("X-Payment"), "must not sign for a foreign network")
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, challengeBody("base"))
	}))
	defer srv.Close()

	c := gateway.New(srv.URL, gateway.WithPayment(newNegotiator(t, true, 1.0), nil))
	_, err := c.Upload(context.Background(), []byte("payload"), "AABB", "application/json", "")
	var nm *x402.NoMatchingNetworkError
	require.ErrorAs(t, err, &nm)
}

func TestUploadOverBudgetPrompts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Payment") == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			fmt.Fprint(w, challengeBody("base-sepolia"))
			return
		}
		fmt.Fprintf(w, `{"reference": %q}`, testReference)
	}))
	defer srv.Close()

	// Budget below the asked amount, confirmation granted interactively.
	prompted := false
	confirm := func(amount, desc string) (bool, error) {
		prompted = true
		require.Equal(t, "$0.05", amount)
		return true, nil
	}
	c := gateway.New(srv.URL, gateway.WithPayment(newNegotiator(t, true, 0.01), confirm))
	_, err := c.Upload(context.Background(), []byte("payload"), "AABB", "application/json", "")
	require.NoError(t, err)
	require.True(t, prompted)

	// Confirmation refused.
	c = gateway.New(srv.URL, gateway.WithPayment(newNegotiator(t, true, 0.01),
		func(string, string) (bool, error) { return false, nil }))
	_, err = c.Upload(context.Background(), []byte("payload"), "AABB", "application/json", "")
	require.ErrorIs(t, err, x402.ErrPaymentDeclined)

	// No way to confirm at all.
	c = gateway.New(srv.URL, gateway.WithPayment(newNegotiator(t, true, 0.01), nil))
	_, err = c.Upload(context.Background(), []byte("payload"), "AABB", "application/json", "")
	require.ErrorIs(t, err, x402.ErrPaymentDeclined)
}

// With the funds pre-flight enabled, an underfunded wallet stops before a
// payment is ever signed or sent.
func TestUploadUnderfundedWalletAbortsBeforePayment(t *testing.T) {
	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// One USDC unit, far below the $0.05 asked.
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`)
	}))
	defer rpc.Close()

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		require.Empty(t, r.Header.Get("X-Payment"), "must not pay from an underfunded wallet")
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, challengeBody("base-sepolia"))
	}))
	defer srv.Close()

	neg := newNegotiator(t, true, 1.0)
	neg.EnableBalanceCheck(rpc.URL)
	c := gateway.New(srv.URL, gateway.WithPayment(neg, nil))
	_, err := c.Upload(context.Background(), []byte("payload"), "AABB", "application/json", "")
	var insufficient *x402.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 1, requests)
}

// A 200 whose settlement header reports failure must not pass as success.
func TestUploadFailedSettlementIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Payment") == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			fmt.Fprint(w, challengeBody("base-sepolia"))
			return
		}
		result, _ := json.Marshal(x402.Result{Success: false, ErrorReason: "insufficient allowance"})
		w.Header().Set("X-Payment-Response", base64.StdEncoding.EncodeToString(result))
		fmt.Fprintf(w, `{"reference": %q}`, testReference)
	}))
	defer srv.Close()

	c := gateway.New(srv.URL, gateway.WithPayment(newNegotiator(t, true, 1.0), nil))
	_, err := c.Upload(context.Background(), []byte("payload"), "AABB", "application/json", "")
	require.ErrorIs(t, err, x402.ErrPaymentRejected)
	require.ErrorContains(t, err, "insufficient allowance")
}

func TestTransientServerErrorsAreRetried(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"stamps": [], "total_count": 0}`)
	}))
	defer srv.Close()

	list, err := gateway.New(srv.URL).ListStamps(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, list.TotalCount)
	require.Equal(t, 3, requests)
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"detail":"bad depth"}`)
	}))
	defer srv.Close()

	_, err := gateway.New(srv.URL).PurchaseStamp(context.Background(), gateway.PurchaseRequest{})
	var status *gateway.StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, http.StatusBadRequest, status.StatusCode)
	require.Equal(t, 1, requests)
}

func TestGetStampNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := gateway.New(srv.URL).GetStamp(context.Background(), "AABBCC")
	require.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestGetStampLowercasesID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/stamps/aabbcc", r.URL.Path)
		fmt.Fprint(w, `{"batchID":"aabbcc","usable":true,"depth":17,"amount":"1000","bucketDepth":16,"immutableFlag":false,"batchTTL":90000}`)
	}))
	defer srv.Close()

	info, err := gateway.New(srv.URL).GetStamp(context.Background(), "AABBCC")
	require.NoError(t, err)
	require.True(t, info.Usable)
	require.Equal(t, int64(90000), info.BatchTTL)
}

func TestDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := gateway.New(srv.URL).Download(context.Background(), testReference)
	require.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestNetworkErrorIsTyped(t *testing.T) {
	// Point at a closed port.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := gateway.New(srv.URL).Health(context.Background())
	var netErr *gateway.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Retryable())
}
