// Package gateway is the HTTP client for the provenance gateway API. It maps
// transport and status failures onto the client's error taxonomy, retries
// transient failures with bounded backoff, and handles 402 payment
// challenges by negotiating, signing and retrying exactly once.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/lib/retry"
	"github.com/datafund/swarmprov/x402"
)

var log = logging.Logger("gateway")

const (
	apiPrefix = "/api/v1"

	// Transient-failure retry budget for a single logical request.
	retryAttempts = 3
	retryMinDelay = 500 * time.Millisecond
	retryMaxDelay = 5 * time.Second
)

// ConfirmFunc asks for payment approval when the auto-pay policy does not
// cover the amount. Called with a formatted dollar amount and a description
// of what is being paid for.
type ConfirmFunc func(amountUSD, description string) (bool, error)

// Client talks to one gateway. Safe for sequential reuse; each command
// invocation builds one.
type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	negotiator *x402.Negotiator
	confirm    ConfirmFunc
}

type Option func(*Client)

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithPayment enables 402 handling. confirm may be nil, in which case any
// payment the auto-pay policy does not cover is declined.
func WithPayment(n *x402.Negotiator, confirm ConfirmFunc) Option {
	return func(c *Client) {
		c.negotiator = n
		c.confirm = confirm
	}
}

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the gateway endpoint this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// request is a rebuildable HTTP request: the body is held as bytes so the
// payment flow can re-send it with the X-PAYMENT header attached.
type request struct {
	op          string
	method      string
	url         string
	query       url.Values
	body        []byte
	contentType string
	paid        bool
}

func (c *Client) apiURL(path string) string {
	return c.baseURL + apiPrefix + path
}

func (c *Client) send(ctx context.Context, req *request, extraHeaders map[string]string) (*http.Response, error) {
	u := req.url
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, bytes.NewReader(req.body))
	if err != nil {
		return nil, xerrors.Errorf("%s: building request: %w", req.op, err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range extraHeaders {
		httpReq.Header.Set(k, v)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: req.op, URL: u, Err: err}
	}
	return resp, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close() // nolint:errcheck
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}

// do performs the request with transient retry, then runs the payment flow
// if the server answers 402. The response body is returned for 2xx only.
func (c *Client) do(ctx context.Context, req *request) ([]byte, error) {
	type outcome struct {
		status  int
		headers http.Header
		body    []byte
	}

	attempt := func() (outcome, error) {
		resp, err := c.send(ctx, req, nil)
		if err != nil {
			return outcome{}, err
		}
		body, err := readBody(resp)
		if err != nil {
			return outcome{}, &NetworkError{Op: req.op, URL: req.url, Err: err}
		}
		if resp.StatusCode >= 500 {
			return outcome{}, &StatusError{Op: req.op, URL: req.url, StatusCode: resp.StatusCode, Body: string(body)}
		}
		return outcome{status: resp.StatusCode, headers: resp.Header, body: body}, nil
	}

	out, err := retry.Do(ctx, retryAttempts, retryMinDelay, retryMaxDelay, attempt)
	if err != nil {
		return nil, err
	}

	switch {
	case out.status == http.StatusPaymentRequired && req.paid:
		return c.payAndRetry(ctx, req, out.body)
	case out.status == http.StatusNotFound:
		return nil, xerrors.Errorf("%s: %s: %w", req.op, req.url, ErrNotFound)
	case out.status < 200 || out.status > 299:
		return nil, &StatusError{Op: req.op, URL: req.url, StatusCode: out.status, Body: string(out.body)}
	}
	return out.body, nil
}

// payAndRetry resolves one 402 challenge: select an option for the
// configured network, apply the auto-pay policy (prompting if allowed), sign
// the authorization, and retry the original request exactly once. A second
// 402 or a failed settlement result is a hard payment rejection.
func (c *Client) payAndRetry(ctx context.Context, req *request, challengeBody []byte) ([]byte, error) {
	if c.negotiator == nil {
		if ch, err := x402.ParseChallenge(challengeBody); err == nil {
			var amounts []string
			for _, opt := range ch.Accepts {
				amounts = append(amounts, x402.FormatUSD(opt.MaxAmountRequired))
			}
			return nil, xerrors.Errorf("%s (amounts: %s): %w", req.op, strings.Join(amounts, ", "), x402.ErrPaymentRequired)
		}
		return nil, xerrors.Errorf("%s: %w", req.op, x402.ErrPaymentRequired)
	}

	ch, err := x402.ParseChallenge(challengeBody)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", req.op, err)
	}
	opt, err := c.negotiator.SelectOption(ch)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", req.op, err)
	}

	decision, err := c.negotiator.Decide(opt)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", req.op, err)
	}
	if decision == x402.DecisionPromptRequired {
		if c.confirm == nil {
			return nil, xerrors.Errorf("%s: %s exceeds auto-pay budget: %w",
				req.op, x402.FormatUSD(opt.MaxAmountRequired), x402.ErrPaymentDeclined)
		}
		desc := opt.Description
		if desc == "" {
			desc = req.op
		}
		ok, err := c.confirm(x402.FormatUSD(opt.MaxAmountRequired), desc)
		if err != nil {
			return nil, xerrors.Errorf("%s: payment confirmation: %w", req.op, err)
		}
		if !ok {
			return nil, xerrors.Errorf("%s: %s: %w", req.op, x402.FormatUSD(opt.MaxAmountRequired), x402.ErrPaymentDeclined)
		}
	}

	// Funds pre-flight, when configured: an underfunded wallet is caught
	// here instead of surfacing as a settlement failure after signing.
	if err := c.negotiator.VerifyFunds(ctx, opt); err != nil {
		return nil, xerrors.Errorf("%s: %w", req.op, err)
	}

	header, err := c.negotiator.BuildPayment(opt)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", req.op, err)
	}

	log.Infow("retrying with payment", "op", req.op, "amount", x402.FormatUSD(opt.MaxAmountRequired))
	resp, err := c.send(ctx, req, map[string]string{x402.PaymentHeader: header})
	if err != nil {
		return nil, err
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, &NetworkError{Op: req.op, URL: req.url, Err: err}
	}

	if resp.StatusCode == http.StatusPaymentRequired {
		// No further negotiation: one signed payment per request, ever.
		return nil, xerrors.Errorf("%s: still unpaid after signed payment: %w", req.op, x402.ErrPaymentRejected)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: req.op, URL: req.url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	// A 200 with a failed settlement result still counts as rejected: the
	// gateway may have fallen back to the free tier, and silently treating
	// that as a paid success would hide the on-chain failure.
	result, err := x402.ParseResult(resp.Header.Get(x402.PaymentResponseHeader))
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", req.op, err)
	}
	if result != nil && !result.Success {
		reason := result.ErrorReason
		if reason == "" {
			reason = "unknown error"
		}
		return nil, xerrors.Errorf("%s: settlement failed (%s): %w", req.op, reason, x402.ErrPaymentRejected)
	}
	if result != nil {
		log.Infow("payment settled", "op", req.op, "tx", result.Transaction, "network", result.Network)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	body, err := c.do(ctx, &request{op: op, method: http.MethodGet, url: c.apiURL(path)})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return xerrors.Errorf("%s: parsing response: %w", op, err)
	}
	return nil
}

// Health probes the gateway liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, &request{op: "health check", method: http.MethodGet, url: c.baseURL + "/"})
	return err
}

// ListStamps returns all stamp batches known to the gateway.
func (c *Client) ListStamps(ctx context.Context) (*StampList, error) {
	var list StampList
	if err := c.getJSON(ctx, "list stamps", "/stamps/", &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetStamp fetches one stamp batch. Returns ErrNotFound if it does not exist.
func (c *Client) GetStamp(ctx context.Context, id string) (*StampInfo, error) {
	var info StampInfo
	if err := c.getJSON(ctx, "get stamp", "/stamps/"+strings.ToLower(id), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// PurchaseStamp creates a new stamp batch. Subject to payment challenges.
func (c *Client) PurchaseStamp(ctx context.Context, req PurchaseRequest) (*PurchaseResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, xerrors.Errorf("purchase stamp: encoding request: %w", err)
	}
	respBody, err := c.do(ctx, &request{
		op:          "purchase stamp",
		method:      http.MethodPost,
		url:         c.apiURL("/stamps/"),
		body:        body,
		contentType: "application/json",
		paid:        true,
	})
	if err != nil {
		return nil, err
	}
	var resp PurchaseResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, xerrors.Errorf("purchase stamp: parsing response: %w", err)
	}
	return &resp, nil
}

// ExtendStamp tops up an existing batch.
func (c *Client) ExtendStamp(ctx context.Context, id string, amount uint64) (*ExtendResponse, error) {
	body, err := json.Marshal(ExtendRequest{Amount: amount})
	if err != nil {
		return nil, xerrors.Errorf("extend stamp: encoding request: %w", err)
	}
	respBody, err := c.do(ctx, &request{
		op:          "extend stamp",
		method:      http.MethodPatch,
		url:         c.apiURL("/stamps/" + strings.ToLower(id) + "/extend"),
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return nil, err
	}
	var resp ExtendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, xerrors.Errorf("extend stamp: parsing response: %w", err)
	}
	return &resp, nil
}

// CheckStampHealth runs the gateway-side stamp diagnostics.
func (c *Client) CheckStampHealth(ctx context.Context, id string) (*StampHealth, error) {
	var health StampHealth
	if err := c.getJSON(ctx, "check stamp", "/stamps/"+strings.ToLower(id)+"/check", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// PoolStatus reports the pre-warmed stamp reserve.
func (c *Client) PoolStatus(ctx context.Context) (*PoolStatus, error) {
	var status PoolStatus
	if err := c.getJSON(ctx, "pool status", "/stamps/pool/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// AcquireFromPool requests a pre-warmed stamp.
func (c *Client) AcquireFromPool(ctx context.Context, req AcquireRequest) (*AcquireResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, xerrors.Errorf("pool acquire: encoding request: %w", err)
	}
	respBody, err := c.do(ctx, &request{
		op:          "pool acquire",
		method:      http.MethodPost,
		url:         c.apiURL("/stamps/pool/acquire"),
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return nil, err
	}
	var resp AcquireResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, xerrors.Errorf("pool acquire: parsing response: %w", err)
	}
	return &resp, nil
}

// Upload stores data under the given stamp. sign may be "notary" to request
// gateway-side notarization, or empty. Subject to payment challenges.
func (c *Client) Upload(ctx context.Context, data []byte, stampID, contentType, sign string) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "data")
	if err != nil {
		return nil, xerrors.Errorf("upload: building multipart body: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, xerrors.Errorf("upload: building multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, xerrors.Errorf("upload: building multipart body: %w", err)
	}

	query := url.Values{}
	query.Set("stamp_id", strings.ToLower(stampID))
	query.Set("content_type", contentType)
	if sign != "" {
		query.Set("sign", sign)
	}

	respBody, err := c.do(ctx, &request{
		op:          "upload",
		method:      http.MethodPost,
		url:         c.apiURL("/data/"),
		query:       query,
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
		paid:        true,
	})
	if err != nil {
		return nil, err
	}
	var result UploadResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, xerrors.Errorf("upload: parsing response: %w", err)
	}
	if result.Reference == "" {
		return nil, xerrors.Errorf("upload: gateway returned no reference")
	}
	return &result, nil
}

// Download fetches stored bytes by reference. Returns ErrNotFound when the
// reference is unknown to the network.
func (c *Client) Download(ctx context.Context, reference string) ([]byte, error) {
	return c.do(ctx, &request{
		op:     "download",
		method: http.MethodGet,
		url:    c.apiURL("/data/" + strings.ToLower(reference)),
	})
}

// Wallet returns the gateway's wallet address and BZZ balance.
func (c *Client) Wallet(ctx context.Context) (*WalletInfo, error) {
	var info WalletInfo
	if err := c.getJSON(ctx, "wallet", "/wallet", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Chequebook returns the gateway's chequebook contract state.
func (c *Client) Chequebook(ctx context.Context) (*ChequebookInfo, error) {
	var info ChequebookInfo
	if err := c.getJSON(ctx, "chequebook", "/chequebook", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// NotaryInfo reports whether the gateway offers notarization and under which
// signer address.
func (c *Client) NotaryInfo(ctx context.Context) (*NotaryInfo, error) {
	var info NotaryInfo
	if err := c.getJSON(ctx, "notary info", "/notary/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}
