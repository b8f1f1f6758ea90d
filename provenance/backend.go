package provenance

import (
	"context"
	"encoding/json"

	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/bee"
	"github.com/datafund/swarmprov/gateway"
)

// UploadOutcome is what a backend hands back after storing a document.
type UploadOutcome struct {
	Reference      string
	SignedDocument json.RawMessage
}

// Backend abstracts the storage endpoint: the hosted gateway or a local Bee
// node. Stamp lifecycle operations are abstracted separately (stamp.API);
// this covers only the data path.
type Backend interface {
	Upload(ctx context.Context, data []byte, stampID, contentType string, notarize bool) (*UploadOutcome, error)
	Download(ctx context.Context, reference string) ([]byte, error)
}

// GatewayBackend adapts a gateway client to the Backend interface.
type GatewayBackend struct {
	Client *gateway.Client
}

func (b *GatewayBackend) Upload(ctx context.Context, data []byte, stampID, contentType string, notarize bool) (*UploadOutcome, error) {
	sign := ""
	if notarize {
		sign = "notary"
	}
	result, err := b.Client.Upload(ctx, data, stampID, contentType, sign)
	if err != nil {
		return nil, err
	}
	return &UploadOutcome{Reference: result.Reference, SignedDocument: result.SignedDocument}, nil
}

func (b *GatewayBackend) Download(ctx context.Context, reference string) ([]byte, error) {
	return b.Client.Download(ctx, reference)
}

// BeeBackend adapts a local node client. Notarization is a gateway service
// and not available here.
type BeeBackend struct {
	Client *bee.Client
}

func (b *BeeBackend) Upload(ctx context.Context, data []byte, stampID, contentType string, notarize bool) (*UploadOutcome, error) {
	if notarize {
		return nil, xerrors.Errorf("notarization: %w", bee.ErrUnsupported)
	}
	ref, err := b.Client.Upload(ctx, data, stampID, contentType)
	if err != nil {
		return nil, err
	}
	return &UploadOutcome{Reference: ref}, nil
}

func (b *BeeBackend) Download(ctx context.Context, reference string) ([]byte, error) {
	return b.Client.Download(ctx, reference)
}
