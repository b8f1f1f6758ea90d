package bee

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datafund/swarmprov/gateway"
)

const testRef = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
const testBatch = "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899"

func TestUploadDownload(t *testing.T) {
	var stored []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/bzz":
			require.Equal(t, testBatch, r.Header.Get("Swarm-Postage-Batch-Id"))
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			stored = body
			json.NewEncoder(w).Encode(map[string]string{"reference": testRef}) // nolint:errcheck
		case r.Method == http.MethodGet && r.URL.Path == "/bzz/"+testRef:
			w.Write(stored) // nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ref, err := c.Upload(context.Background(), []byte(`{"a":1}`), testBatch, "application/json")
	require.NoError(t, err)
	require.Equal(t, testRef, ref)

	data, err := c.Download(context.Background(), testRef)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(data))
}

func TestDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(srv.URL).Download(context.Background(), testRef)
	require.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestPurchaseStamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/stamps/1000000000/20", r.URL.Path)
		require.Equal(t, "test", r.URL.Query().Get("label"))
		json.NewEncoder(w).Encode(map[string]string{"batchID": testBatch}) // nolint:errcheck
	}))
	defer srv.Close()

	amount := uint64(1_000_000_000)
	depth := 20
	resp, err := New(srv.URL).PurchaseStamp(context.Background(), gateway.PurchaseRequest{
		Amount: &amount,
		Depth:  &depth,
		Label:  "test",
	})
	require.NoError(t, err)
	require.Equal(t, testBatch, resp.BatchID)
}

func TestPurchaseStampRequiresAmountAndDepth(t *testing.T) {
	c := New("http://localhost:1633")

	_, err := c.PurchaseStamp(context.Background(), gateway.PurchaseRequest{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "amount")

	amount := uint64(1)
	_, err = c.PurchaseStamp(context.Background(), gateway.PurchaseRequest{Amount: &amount})
	require.Error(t, err)
	require.Contains(t, err.Error(), "depth")
}

func TestGetStamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stamps/"+testBatch, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{ // nolint:errcheck
			"batchID": testBatch, "usable": true, "depth": 20, "batchTTL": 90000,
		})
	}))
	defer srv.Close()

	info, err := New(srv.URL).GetStamp(context.Background(), testBatch)
	require.NoError(t, err)
	require.True(t, info.Usable)
	require.Equal(t, 20, info.Depth)
}

func TestGatewayOnlyOperations(t *testing.T) {
	c := New("http://localhost:1633")
	ctx := context.Background()

	_, err := c.ExtendStamp(ctx, testBatch, 1)
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = c.AcquireFromPool(ctx, gateway.AcquireRequest{Size: "small"})
	require.ErrorIs(t, err, ErrUnsupported)

	status, err := c.PoolStatus(ctx)
	require.NoError(t, err)
	require.False(t, status.Enabled)
}

func TestTransientRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok")) // nolint:errcheck
	}))
	defer srv.Close()

	err := New(srv.URL).Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	var netErr *gateway.NetworkError
	err = New("http://127.0.0.1:1").Health(context.Background())
	require.Error(t, err)
	require.True(t, errors.As(err, &netErr))
}
