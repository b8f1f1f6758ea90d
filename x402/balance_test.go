package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datafund/swarmprov/lib/eth"
)

func balanceServer(t *testing.T, result string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "eth_call", req.Method)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%q}`, result)
	}))
}

func TestUSDCBalance(t *testing.T) {
	// 2.5 USDC in smallest units.
	srv := balanceServer(t, "0x2625a0")
	defer srv.Close()

	bc := NewBalanceChecker(Networks["base-sepolia"], srv.URL)
	owner, err := eth.ParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(t, err)

	bal, err := bc.USDCBalance(context.Background(), owner)
	require.NoError(t, err)
	require.EqualValues(t, 2_500_000, bal.Uint64())
}

func TestRequireBalance(t *testing.T) {
	srv := balanceServer(t, "0x2625a0") // 2.5 USDC
	defer srv.Close()

	bc := NewBalanceChecker(Networks["base-sepolia"], srv.URL)
	owner, err := eth.ParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(t, err)

	require.NoError(t, bc.RequireBalance(context.Background(), owner, "2500000"))

	err = bc.RequireBalance(context.Background(), owner, "2500001")
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	require.EqualValues(t, 2_500_001, insufficient.Required)
	require.EqualValues(t, 2_500_000, insufficient.Available)
}

func TestVerifyFunds(t *testing.T) {
	srv := balanceServer(t, "0x2625a0") // 2.5 USDC
	defer srv.Close()

	n := testNegotiator(t, "base-sepolia", true, 1)

	// Not enabled: no RPC traffic, no error regardless of amount.
	require.NoError(t, n.VerifyFunds(context.Background(), &PaymentOption{MaxAmountRequired: "9000000000"}))

	n.EnableBalanceCheck(srv.URL)
	require.NoError(t, n.VerifyFunds(context.Background(), &PaymentOption{MaxAmountRequired: "2500000"}))

	err := n.VerifyFunds(context.Background(), &PaymentOption{MaxAmountRequired: "2500001"})
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
}

func TestUSDCBalanceRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"execution reverted"}}`)
	}))
	defer srv.Close()

	bc := NewBalanceChecker(Networks["base-sepolia"], srv.URL)
	owner, err := eth.ParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(t, err)

	_, err = bc.USDCBalance(context.Background(), owner)
	require.ErrorContains(t, err, "execution reverted")
}
