// Package lease provides short-lived exclusive claims over a string key.
// A claim expires after its TTL even if the holder never releases it.
package lease

import (
	"context"
	"errors"
	"time"
)

// ErrHeld is returned by Acquire when another owner holds the key.
var ErrHeld = errors.New("lease: held by another owner")

// Lease is a granted claim. Token identifies the owner on release.
type Lease struct {
	Key   string
	Token string
}

// Store grants and releases leases. Acquire never blocks waiting for a
// holder; callers own the retry policy.
type Store interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
	Release(ctx context.Context, l *Lease) error
}
