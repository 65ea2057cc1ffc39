package core

import "errors"

var (
	// ErrNoCredentials is returned when no usable stored token exists and
	// the caller supplied no email/password to log in with.
	ErrNoCredentials = errors.New("no stored tokens and no credentials provided")

	// ErrAuthRejected is returned when the session provider rejected the
	// supplied credentials or MFA code.
	ErrAuthRejected = errors.New("provider rejected authentication")

	// ErrConnectionFailed is returned when the session provider could not
	// be reached at the transport level.
	ErrConnectionFailed = errors.New("provider connection failed")

	// ErrProtocolFailed is returned when the session provider answered with
	// an unexpected HTTP-level failure.
	ErrProtocolFailed = errors.New("provider protocol failure")

	// ErrMFAPendingExpired is returned when a resume call finds no pending
	// credentials and none were supplied; the caller must restart login.
	ErrMFAPendingExpired = errors.New("pending MFA entry absent or expired")

	// ErrStoreUnavailable is returned when the shared key/value store could
	// not be reached. Distinct from "no token stored".
	ErrStoreUnavailable = errors.New("token store unavailable")

	// ErrProfileNotOwned is an authorization failure: the profile id is not
	// owned by the authenticated address.
	ErrProfileNotOwned = errors.New("profile not owned by address")

	// ErrUserNotResolved is returned when no provider account could be
	// resolved from the profile.
	ErrUserNotResolved = errors.New("user not resolved from profile")

	// ErrInvalidTicket is returned for a malformed, forged or expired MFA
	// resume ticket.
	ErrInvalidTicket = errors.New("invalid MFA ticket")
)
