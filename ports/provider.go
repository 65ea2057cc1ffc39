package ports

import (
	"context"
	"encoding/json"
)

// SessionProvider is the opaque third-party session client. Implementations
// map their own failure modes onto core.ErrAuthRejected,
// core.ErrConnectionFailed and core.ErrProtocolFailed.
type SessionProvider interface {
	// Restore initializes a session from a token directory previously
	// written by ProviderSession.Dump. Any error means "no usable token".
	Restore(ctx context.Context, tokenDir string) (ProviderSession, error)

	// Login authenticates with credentials. When the account has MFA
	// enabled it returns an empty session and a non-empty provider MFA
	// token; the caller must complete the handshake via Resume.
	Login(ctx context.Context, email, password string) (sess ProviderSession, mfaToken string, err error)

	// Resume completes a login that raised an MFA challenge. The original
	// credentials are required to re-establish the handshake.
	Resume(ctx context.Context, email, password, mfaToken, code string) (ProviderSession, error)
}

// ProviderSession is a live authenticated connection to the data provider.
// It lives only for the request(s) that created it and is never persisted
// directly; implementations must tolerate concurrent data calls.
type ProviderSession interface {
	// Dump writes the session's credential state into tokenDir so it can be
	// archived and restored later.
	Dump(ctx context.Context, tokenDir string) error

	DailySummary(ctx context.Context, day string) (json.RawMessage, error)
	SleepData(ctx context.Context, day string) (json.RawMessage, error)
	ActivitiesByDate(ctx context.Context, start, end, activityType string) (json.RawMessage, error)
	ActivityDetails(ctx context.Context, activityID int64, maxPoly int) (json.RawMessage, error)
}
