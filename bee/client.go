// Package bee is a minimal client for a local Bee node's HTTP API. It covers
// what the upload/download flow needs: /bzz storage and /stamps batch
// purchase and lookup. A local node has no stamp pool, no extension endpoint
// and no payment surface; the error and stamp types are shared with the
// gateway package so either backend can drive the stamp lifecycle manager.
package bee

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/gateway"
	"github.com/datafund/swarmprov/lib/retry"
)

var log = logging.Logger("bee")

// ErrUnsupported marks gateway operations a local node does not offer.
var ErrUnsupported = xerrors.New("not supported by the bee backend")

const (
	batchIDHeader = "Swarm-Postage-Batch-Id"

	retryAttempts = 3
	retryMinDelay = 500 * time.Millisecond
	retryMaxDelay = 5 * time.Second
)

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

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

// BaseURL returns the node endpoint this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// do performs one request with transient retry. Same taxonomy as the
// gateway client: connection failures and 5xx retry, other statuses do not.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, headers map[string]string) ([]byte, error) {
	u := c.baseURL + path

	attempt := func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, xerrors.Errorf("%s: building request: %w", op, err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &gateway.NetworkError{Op: op, URL: u, Err: err}
		}
		defer resp.Body.Close() // nolint:errcheck
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		if err != nil {
			return nil, &gateway.NetworkError{Op: op, URL: u, Err: err}
		}
		switch {
		case resp.StatusCode >= 500:
			return nil, &gateway.StatusError{Op: op, URL: u, StatusCode: resp.StatusCode, Body: string(respBody)}
		case resp.StatusCode == http.StatusNotFound:
			return nil, xerrors.Errorf("%s: %s: %w", op, u, gateway.ErrNotFound)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return nil, &gateway.StatusError{Op: op, URL: u, StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return respBody, nil
	}

	return retry.Do(ctx, retryAttempts, retryMinDelay, retryMaxDelay, attempt)
}

// Health probes the node root endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "health check", http.MethodGet, "/", nil, nil)
	return err
}

// Upload stores data on the node under the given batch. contentType may be
// empty. Returns the 64-hex swarm reference.
func (c *Client) Upload(ctx context.Context, data []byte, batchID, contentType string) (string, error) {
	headers := map[string]string{batchIDHeader: strings.ToLower(batchID)}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	respBody, err := c.do(ctx, "upload", http.MethodPost, "/bzz", data, headers)
	if err != nil {
		return "", err
	}
	var resp struct {
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", xerrors.Errorf("upload: parsing response: %w", err)
	}
	if resp.Reference == "" {
		return "", xerrors.Errorf("upload: node returned no reference")
	}
	log.Debugw("uploaded to local node", "reference", resp.Reference)
	return resp.Reference, nil
}

// Download fetches stored bytes by reference.
func (c *Client) Download(ctx context.Context, reference string) ([]byte, error) {
	return c.do(ctx, "download", http.MethodGet, "/bzz/"+strings.ToLower(reference), nil, nil)
}

// ListStamps returns the node's local batches.
func (c *Client) ListStamps(ctx context.Context) (*gateway.StampList, error) {
	respBody, err := c.do(ctx, "list stamps", http.MethodGet, "/stamps", nil, nil)
	if err != nil {
		return nil, err
	}
	var list gateway.StampList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, xerrors.Errorf("list stamps: parsing response: %w", err)
	}
	return &list, nil
}

// GetStamp fetches one batch. Returns gateway.ErrNotFound if the node does
// not know it.
func (c *Client) GetStamp(ctx context.Context, id string) (*gateway.StampInfo, error) {
	respBody, err := c.do(ctx, "get stamp", http.MethodGet, "/stamps/"+strings.ToLower(id), nil, nil)
	if err != nil {
		return nil, err
	}
	var info gateway.StampInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, xerrors.Errorf("get stamp: parsing response: %w", err)
	}
	return &info, nil
}

// PurchaseStamp buys a batch directly from the node. Only amount and depth
// are honored; the node API has no size or duration parameters, so callers
// resolve those before calling.
func (c *Client) PurchaseStamp(ctx context.Context, req gateway.PurchaseRequest) (*gateway.PurchaseResponse, error) {
	amount := uint64(0)
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount == 0 {
		return nil, xerrors.Errorf("purchase stamp: the bee backend requires an explicit amount")
	}
	depth := 0
	if req.Depth != nil {
		depth = *req.Depth
	}
	if depth == 0 {
		return nil, xerrors.Errorf("purchase stamp: the bee backend requires an explicit depth")
	}

	path := "/stamps/" + strconv.FormatUint(amount, 10) + "/" + strconv.Itoa(depth)
	if req.Label != "" {
		path += "?label=" + req.Label
	}
	respBody, err := c.do(ctx, "purchase stamp", http.MethodPost, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var resp gateway.PurchaseResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, xerrors.Errorf("purchase stamp: parsing response: %w", err)
	}
	log.Infow("stamp purchased on local node", "batch", resp.BatchID, "amount", amount, "depth", depth)
	return &resp, nil
}

// ExtendStamp is not offered by the node API this client targets.
func (c *Client) ExtendStamp(ctx context.Context, id string, amount uint64) (*gateway.ExtendResponse, error) {
	return nil, xerrors.Errorf("extend stamp: %w", ErrUnsupported)
}

// AcquireFromPool is a gateway-only feature.
func (c *Client) AcquireFromPool(ctx context.Context, req gateway.AcquireRequest) (*gateway.AcquireResponse, error) {
	return nil, xerrors.Errorf("pool acquire: %w", ErrUnsupported)
}

// PoolStatus is a gateway-only feature. A local node behaves like a gateway
// whose pool is switched off.
func (c *Client) PoolStatus(ctx context.Context) (*gateway.PoolStatus, error) {
	return &gateway.PoolStatus{Enabled: false}, nil
}
