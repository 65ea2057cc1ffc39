package ports

import (
	"context"
	"time"

	"github.com/medoxie/wristband/core"
)

// PendingStore holds credentials between a login that raised an MFA
// challenge and the resume call that completes it. At most one entry per
// user id; a later Put overwrites. Take consumes the entry exactly once and
// reports absence (or expiry) via ok=false.
type PendingStore interface {
	Put(ctx context.Context, userID string, creds core.PendingCredentials, ttl time.Duration) error
	Take(ctx context.Context, userID string) (creds core.PendingCredentials, ok bool, err error)
}
