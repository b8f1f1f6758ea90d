package x402

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/lib/eth"
)

// erc20BalanceOfSelector is the 4-byte selector of balanceOf(address).
var erc20BalanceOfSelector = eth.Keccak256([]byte("balanceOf(address)"))[:4]

// BalanceChecker queries the USDC balance of an address with a single
// eth_call against the network's JSON-RPC endpoint. No chain state is
// validated; this is a read-only convenience for pre-flight checks and the
// balance command.
type BalanceChecker struct {
	net    Network
	rpcURL string
	client *http.Client
}

// NewBalanceChecker builds a checker for the given network. An empty rpcURL
// selects the network's default endpoint.
func NewBalanceChecker(net Network, rpcURL string) *BalanceChecker {
	if rpcURL == "" {
		rpcURL = net.RPCURL
	}
	return &BalanceChecker{
		net:    net,
		rpcURL: rpcURL,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// USDCBalance returns the balance in smallest units (6 decimals).
func (b *BalanceChecker) USDCBalance(ctx context.Context, owner eth.Address) (*big.Int, error) {
	var word [32]byte
	copy(word[12:], owner[:])
	data := "0x" + hex.EncodeToString(append(append([]byte(nil), erc20BalanceOfSelector...), word[:]...))

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_call",
		Params: []any{
			map[string]string{"to": b.net.USDC, "data": data},
			"latest",
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, xerrors.Errorf("encoding eth_call request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.Errorf("building eth_call request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, xerrors.Errorf("calling %s: %w", b.rpcURL, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, xerrors.Errorf("reading eth_call response: %w", err)
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, xerrors.Errorf("parsing eth_call response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, xerrors.Errorf("eth_call failed: %s (code %d)", rpcResp.Error.Message, rpcResp.Error.Code)
	}

	result := strings.TrimPrefix(rpcResp.Result, "0x")
	if result == "" {
		return big.NewInt(0), nil
	}
	balance, ok := new(big.Int).SetString(result, 16)
	if !ok {
		return nil, xerrors.Errorf("unparseable eth_call result %q", rpcResp.Result)
	}
	return balance, nil
}

// RequireBalance fails with InsufficientBalanceError when owner holds less
// than the required smallest-units amount.
func (b *BalanceChecker) RequireBalance(ctx context.Context, owner eth.Address, required string) error {
	need, ok := new(big.Int).SetString(required, 10)
	if !ok {
		return xerrors.Errorf("invalid required amount %q", required)
	}
	have, err := b.USDCBalance(ctx, owner)
	if err != nil {
		return xerrors.Errorf("checking USDC balance: %w", err)
	}
	if have.Cmp(need) < 0 {
		return &InsufficientBalanceError{Required: need.Uint64(), Available: have.Uint64()}
	}
	return nil
}
