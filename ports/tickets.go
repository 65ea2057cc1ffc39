package ports

import "time"

// Tickets signs and verifies MFA resume tickets. A ticket wraps the
// provider's opaque MFA token and binds it to a user id so the resume call
// cannot be replayed for a different user.
type Tickets interface {
	Issue(userID, providerToken string, ttl time.Duration) (ticket string, expiresAt time.Time, err error)
	Parse(ticket string) (userID, providerToken string, err error)
}
