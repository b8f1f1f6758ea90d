// Package stamp manages the postage stamp lifecycle: purchase or
// pool-acquisition, polling until the network reports the batch usable,
// extension, and health diagnostics. A freshly purchased batch settles
// on-chain asynchronously and typically takes 20-60 seconds to become
// usable; pooled batches skip that wait.
package stamp

import (
	"context"
	"errors"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/gateway"
	"github.com/datafund/swarmprov/lib/retry"
)

var log = logging.Logger("stamp")

const (
	// DefaultPollInterval and DefaultPollTimeout bound the usability wait.
	DefaultPollInterval = 20 * time.Second
	DefaultPollTimeout  = 5 * time.Minute

	// LowTTLThreshold marks a lease as expiring soon.
	LowTTLThreshold = 24 * time.Hour

	// HighUtilizationPct marks a lease as close to exhausted.
	HighUtilizationPct = 90.0
)

// API is the slice of the gateway surface the manager needs.
type API interface {
	GetStamp(ctx context.Context, id string) (*gateway.StampInfo, error)
	PurchaseStamp(ctx context.Context, req gateway.PurchaseRequest) (*gateway.PurchaseResponse, error)
	ExtendStamp(ctx context.Context, id string, amount uint64) (*gateway.ExtendResponse, error)
	AcquireFromPool(ctx context.Context, req gateway.AcquireRequest) (*gateway.AcquireResponse, error)
	PoolStatus(ctx context.Context) (*gateway.PoolStatus, error)
}

// Lease is a postage stamp batch as seen by this client. Never cached across
// process runs; every command revalidates against the network.
type Lease struct {
	ID          string
	Depth       int
	TTL         time.Duration
	Utilization float64 // percent, 0-100
	Usable      bool
	Exists      bool

	// Substituted is set when the pool handed out a larger size class than
	// requested.
	Substituted bool
}

// Size names the lease's depth preset, if it has one.
func (l *Lease) Size() Size {
	return SizeForDepth(l.Depth)
}

func leaseFromInfo(info *gateway.StampInfo) *Lease {
	l := &Lease{
		ID:     info.BatchID,
		Depth:  info.Depth,
		TTL:    time.Duration(info.BatchTTL) * time.Second,
		Usable: info.Usable,
		Exists: true,
	}
	if info.Exists != nil {
		l.Exists = *info.Exists
	}
	if info.Utilization != nil {
		l.Utilization = *info.Utilization
	}
	return l
}

// Manager drives stamp lifecycle operations against one backend.
type Manager struct {
	api          API
	pollInterval time.Duration
	pollTimeout  time.Duration
}

type Option func(*Manager)

// WithPolling overrides the usability wait bounds.
func WithPolling(timeout, interval time.Duration) Option {
	return func(m *Manager) {
		m.pollTimeout = timeout
		m.pollInterval = interval
	}
}

func NewManager(api API, opts ...Option) *Manager {
	m := &Manager{
		api:          api,
		pollInterval: DefaultPollInterval,
		pollTimeout:  DefaultPollTimeout,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// PurchaseParams selects capacity and duration for a fresh batch. Size and
// Depth are alternatives; Depth wins when both are set.
type PurchaseParams struct {
	DurationHours int
	Size          Size
	Depth         int
	Label         string
	Amount        uint64 // legacy PLUR amount, used when DurationHours is zero
}

// Purchase creates a new batch. The returned lease is almost certainly not
// yet usable: the creation settles on-chain asynchronously, so callers
// should follow up with WaitUntilUsable.
func (m *Manager) Purchase(ctx context.Context, params PurchaseParams) (*Lease, error) {
	req := gateway.PurchaseRequest{Label: params.Label}
	if params.DurationHours > 0 {
		if params.DurationHours < MinDurationHours {
			return nil, xerrors.Errorf("duration %dh below network minimum of %dh", params.DurationHours, MinDurationHours)
		}
		req.DurationHours = &params.DurationHours
	} else if params.Amount > 0 {
		req.Amount = &params.Amount
	}
	if params.Depth > 0 {
		if params.Depth < MinDepth || params.Depth > MaxDepth {
			return nil, xerrors.Errorf("depth %d out of range [%d, %d]", params.Depth, MinDepth, MaxDepth)
		}
		req.Depth = &params.Depth
	} else if params.Size != "" {
		req.Size = string(params.Size)
	}

	resp, err := m.api.PurchaseStamp(ctx, req)
	if err != nil {
		return nil, xerrors.Errorf("purchasing stamp: %w", err)
	}
	log.Infow("stamp purchased", "batch", resp.BatchID)

	depth := params.Depth
	if depth == 0 && params.Size != "" {
		depth = params.Size.Depth()
	}
	return &Lease{ID: resp.BatchID, Depth: depth, Exists: true}, nil
}

// AcquireFromPool requests a pre-warmed batch of the given size class. The
// pool may substitute a larger class (surfaced via Lease.Substituted) but
// never a smaller one. An empty pool is ErrPoolEmpty; a gateway without a
// pool is ErrPoolDisabled. The two need different remedies, so they stay
// distinct.
func (m *Manager) AcquireFromPool(ctx context.Context, size Size) (*Lease, error) {
	resp, err := m.api.AcquireFromPool(ctx, gateway.AcquireRequest{Size: string(size)})
	if err != nil || !resp.Success {
		return nil, m.classifyPoolFailure(ctx, err)
	}

	if size != "" && resp.Depth > 0 && resp.Depth < size.Depth() {
		// A smaller batch has less capacity than asked for; the pool must
		// never hand one out.
		return nil, xerrors.Errorf("pool returned depth %d below requested class %s (depth %d)",
			resp.Depth, size, size.Depth())
	}

	lease := &Lease{
		ID:          resp.BatchID,
		Depth:       resp.Depth,
		Usable:      true,
		Exists:      true,
		Substituted: resp.FallbackUsed,
	}
	if lease.Substituted {
		log.Warnw("pool substituted a larger stamp class", "requested", size, "got", resp.SizeName, "depth", resp.Depth)
	}
	return lease, nil
}

// classifyPoolFailure distinguishes an empty pool from a disabled one by
// consulting pool status. When even the status call fails, the original
// acquisition error wins.
func (m *Manager) classifyPoolFailure(ctx context.Context, acquireErr error) error {
	status, statusErr := m.api.PoolStatus(ctx)
	if statusErr == nil && !status.Enabled {
		return ErrPoolDisabled
	}
	if statusErr == nil {
		return xerrors.Errorf("no stamp of the requested size in pool: %w", ErrPoolEmpty)
	}
	if acquireErr != nil {
		return xerrors.Errorf("acquiring stamp from pool: %w", acquireErr)
	}
	return xerrors.Errorf("acquiring stamp from pool: %w", ErrPoolEmpty)
}

// Get revalidates a lease against the network.
func (m *Manager) Get(ctx context.Context, id string) (*Lease, error) {
	info, err := m.api.GetStamp(ctx, id)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, xerrors.Errorf("stamp %s: %w", id, ErrNotFound)
		}
		return nil, xerrors.Errorf("fetching stamp %s: %w", id, err)
	}
	return leaseFromInfo(info), nil
}

// Validate fails unless the lease exists and is usable right now.
func (m *Manager) Validate(ctx context.Context, id string) (*Lease, error) {
	lease, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lease.Exists {
		return nil, xerrors.Errorf("stamp %s: %w", id, ErrNotFound)
	}
	if !lease.Usable {
		return nil, xerrors.Errorf("stamp %s: %w", id, ErrNotUsable)
	}
	return lease, nil
}

// WaitUntilUsable polls the lease until the network reports it usable.
// Lookup failures during the wait are tolerated: a freshly purchased batch
// may 404 until the creation syncs. The wait is bounded; expiry of the
// timeout yields ErrNotUsable.
func (m *Manager) WaitUntilUsable(ctx context.Context, id string) (*Lease, error) {
	attempt := 0
	lease, err := retry.Poll(ctx, m.pollTimeout, m.pollInterval, func(ctx context.Context) (*Lease, bool, error) {
		attempt++
		lease, err := m.Get(ctx, id)
		if err != nil {
			log.Debugw("stamp not ready", "batch", id, "attempt", attempt, "err", err)
			return nil, false, nil
		}
		log.Debugw("stamp status", "batch", id, "attempt", attempt, "usable", lease.Usable, "ttl", lease.TTL)
		return lease, lease.Usable, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrDeadline) {
			return nil, xerrors.Errorf("stamp %s did not become usable within %s: %w", id, m.pollTimeout, ErrNotUsable)
		}
		return nil, err
	}
	return lease, nil
}

// Extend adds capacity to an existing batch. An expired or missing batch
// cannot be extended; expiry requires a new purchase.
func (m *Manager) Extend(ctx context.Context, id string, amount uint64) (*Lease, error) {
	lease, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lease.Exists {
		return nil, xerrors.Errorf("stamp %s: %w", id, ErrNotFound)
	}
	if lease.TTL <= 0 {
		return nil, xerrors.Errorf("stamp %s cannot be extended: %w", id, ErrExpired)
	}

	resp, err := m.api.ExtendStamp(ctx, id, amount)
	if err != nil {
		return nil, xerrors.Errorf("extending stamp %s: %w", id, err)
	}
	log.Infow("stamp extended", "batch", resp.BatchID, "amount", amount)
	return m.Get(ctx, resp.BatchID)
}

// Issue is one health diagnostic.
type Issue struct {
	Code    string
	Message string
}

// Health is the result of CheckHealth: errors block uploads, warnings do
// not.
type Health struct {
	StampID   string
	CanUpload bool
	Errors    []Issue
	Warnings  []Issue
	Lease     *Lease
}

// CheckHealth derives upload-readiness diagnostics for a lease. NOT_FOUND,
// EXPIRED and NOT_USABLE are hard errors; LOW_TTL and HIGH_UTILIZATION warn
// without blocking.
func (m *Manager) CheckHealth(ctx context.Context, id string) (*Health, error) {
	health := &Health{StampID: id}

	lease, err := m.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			health.Errors = append(health.Errors, Issue{Code: "NOT_FOUND", Message: "stamp does not exist on the network"})
			return health, nil
		}
		return nil, err
	}
	health.Lease = lease

	switch {
	case lease.TTL <= 0:
		health.Errors = append(health.Errors, Issue{Code: "EXPIRED", Message: "stamp TTL has run out"})
	case !lease.Usable:
		health.Errors = append(health.Errors, Issue{Code: "NOT_USABLE", Message: "stamp is not usable for uploads"})
	}

	if lease.TTL > 0 && lease.TTL < LowTTLThreshold {
		health.Warnings = append(health.Warnings, Issue{
			Code:    "LOW_TTL",
			Message: fmt.Sprintf("stamp expires in %s", lease.TTL),
		})
	}
	if lease.Utilization > HighUtilizationPct {
		health.Warnings = append(health.Warnings, Issue{
			Code:    "HIGH_UTILIZATION",
			Message: fmt.Sprintf("stamp is %.0f%% utilized", lease.Utilization),
		})
	}

	health.CanUpload = len(health.Errors) == 0
	return health, nil
}
