package core

import "time"

// AuthenticatedRequest is the validated result of a profile-scoped header
// check. It is ephemeral and never persisted.
type AuthenticatedRequest struct {
	Address   string // Ethereum address of the signer, lowercased
	ProfileID string // Profile the request is scoped to, lowercased
	Timestamp int64  // Client-supplied timestamp, unix milliseconds
	Path      string // Request path the signature is bound to
}

// PendingCredentials are provider credentials held between a login that
// raised an MFA challenge and the resume call that completes it.
type PendingCredentials struct {
	Email    string
	Password string
}

// MFAChallenge signals that a credential login requires a second factor
// before the session is authenticated. Ticket must be presented to the
// resume call together with the MFA code.
type MFAChallenge struct {
	UserID    string
	Ticket    string
	ExpiresAt time.Time
}

func (c *MFAChallenge) Error() string {
	return "multi-factor authentication required"
}

// SessionEvent describes a session lifecycle transition published to other
// instances.
type SessionEvent struct {
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"` // "login", "mfa_required", "mfa_resumed"
	Address string `json:"address,omitempty"`
}
