package stamp

import "errors"

var (
	// ErrNotFound: the batch does not exist on the network.
	ErrNotFound = errors.New("stamp not found")

	// ErrNotUsable: the batch exists but cannot accept uploads (yet).
	ErrNotUsable = errors.New("stamp not usable")

	// ErrExpired: the batch TTL ran out. An expired batch cannot be
	// extended; a new one must be purchased.
	ErrExpired = errors.New("stamp expired")

	// ErrPoolEmpty: the pool is enabled but has no batch of a suitable
	// size class. Callers should fall back to a regular purchase.
	ErrPoolEmpty = errors.New("stamp pool has no suitable stamp available")

	// ErrPoolDisabled: the gateway does not operate a pool at all.
	ErrPoolDisabled = errors.New("stamp pool not enabled on this gateway")
)
