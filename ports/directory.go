package ports

import "context"

// ProfileDirectory resolves profile ownership and the provider account
// linked to a profile. Lookups are best effort: implementations fail closed
// on any transport or decoding error.
type ProfileDirectory interface {
	// Owner returns the wallet address that owns the profile.
	Owner(ctx context.Context, profileID string) (string, error)

	// Email returns the provider account email attached to the profile
	// metadata, or core.ErrUserNotResolved.
	Email(ctx context.Context, profileID string) (string, error)
}
