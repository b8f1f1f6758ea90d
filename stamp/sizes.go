package stamp

import (
	"strings"

	"golang.org/x/xerrors"
)

// Size is a named depth preset. The manager itself is depth-agnostic; sizes
// exist purely as a caller convenience. Depth bounds capacity, so a larger
// size always means at least the capacity of a smaller one.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

const (
	// MinDepth and MaxDepth bound what the network accepts for a purchase.
	MinDepth = 16
	MaxDepth = 32

	// DefaultDepth matches the "small" preset.
	DefaultDepth = 17

	// DefaultDurationHours is the purchase default; the network minimum
	// is 24.
	DefaultDurationHours = 25
	MinDurationHours     = 24
)

var sizeDepths = map[Size]int{
	SizeSmall:  17,
	SizeMedium: 20,
	SizeLarge:  22,
}

// ParseSize validates a size preset name.
func ParseSize(s string) (Size, error) {
	size := Size(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := sizeDepths[size]; !ok {
		return "", xerrors.Errorf("unknown stamp size %q, expected small, medium or large", s)
	}
	return size, nil
}

// Depth returns the depth the preset maps to.
func (s Size) Depth() int {
	return sizeDepths[s]
}

// SizeForDepth names the preset for a depth, or "" when the depth has no
// preset name.
func SizeForDepth(depth int) Size {
	for size, d := range sizeDepths {
		if d == depth {
			return size
		}
	}
	return ""
}
