package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/medoxie/wristband/core"
	"github.com/medoxie/wristband/internal/archive"
	"github.com/medoxie/wristband/ports"
	"golang.org/x/sync/singleflight"
)

const tokenKeyPrefix = "garmin:tokens:"

// SessionManager drives the provider login state machine: restore from a
// stored token blob, fall back to credential login, hold an MFA challenge
// pending, and complete it on resume. Successful logins persist a fresh blob
// before returning.
type SessionManager struct {
	kv       ports.KV
	pending  ports.PendingStore
	provider ports.SessionProvider
	tickets  ports.Tickets
	events   ports.EventPublisher
	logger   *slog.Logger

	pendingTTL time.Duration
	blobTTL    time.Duration

	// Collapses concurrent restore->login sequences per user id so two
	// requests cannot double-login or race each other's blob write.
	flight singleflight.Group
}

// NewSessionManager creates a new session manager.
func NewSessionManager(
	kv ports.KV,
	pending ports.PendingStore,
	provider ports.SessionProvider,
	tickets ports.Tickets,
	events ports.EventPublisher,
	logger *slog.Logger,
	pendingTTL, blobTTL time.Duration,
) *SessionManager {
	return &SessionManager{
		kv:         kv,
		pending:    pending,
		provider:   provider,
		tickets:    tickets,
		events:     events,
		logger:     logger,
		pendingTTL: pendingTTL,
		blobTTL:    blobTTL,
	}
}

// Establish returns a live provider session for the user. Stored tokens are
// tried first and are never authoritative: any restore failure falls through
// to credential login. A login that raises an MFA challenge returns a
// *core.MFAChallenge error carrying the resume ticket.
func (m *SessionManager) Establish(ctx context.Context, userID, email, password string) (ports.ProviderSession, error) {
	v, err, _ := m.flight.Do(userID, func() (interface{}, error) {
		return m.establish(ctx, userID, email, password)
	})
	if err != nil {
		return nil, err
	}
	return v.(ports.ProviderSession), nil
}

func (m *SessionManager) establish(ctx context.Context, userID, email, password string) (ports.ProviderSession, error) {
	blob, ok, err := m.kv.Get(ctx, tokenKey(userID))
	if err != nil {
		return nil, fmt.Errorf("load token blob: %w", core.ErrStoreUnavailable)
	}
	if ok {
		if sess := m.tryRestore(ctx, userID, blob); sess != nil {
			return sess, nil
		}
	}

	if email == "" || password == "" {
		return nil, core.ErrNoCredentials
	}

	sess, mfaToken, err := m.provider.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if mfaToken != "" {
		// Nothing is persisted until the second factor clears. The
		// credentials are parked so the resume call need not resupply them.
		creds := core.PendingCredentials{Email: email, Password: password}
		if err := m.pending.Put(ctx, userID, creds, m.pendingTTL); err != nil {
			m.logger.Warn("failed to park pending credentials", "user_id", userID, "error", err)
		}
		ticket, expiresAt, err := m.tickets.Issue(userID, mfaToken, m.pendingTTL)
		if err != nil {
			return nil, fmt.Errorf("issue MFA ticket: %w", err)
		}
		m.publish(ctx, userID, "mfa_required")
		return nil, &core.MFAChallenge{UserID: userID, Ticket: ticket, ExpiresAt: expiresAt}
	}

	if err := m.persist(ctx, userID, sess); err != nil {
		return nil, err
	}
	m.publish(ctx, userID, "login")
	return sess, nil
}

// ResumeMFA completes a login that raised an MFA challenge. Credentials come
// from the caller or from the pending entry parked at login time, consumed
// exactly once.
func (m *SessionManager) ResumeMFA(ctx context.Context, userID, ticket, code, email, password string) (ports.ProviderSession, error) {
	ticketUser, providerToken, err := m.tickets.Parse(ticket)
	if err != nil {
		return nil, err
	}
	if ticketUser != userID {
		return nil, core.ErrInvalidTicket
	}

	creds := core.PendingCredentials{Email: email, Password: password}
	if creds.Email == "" || creds.Password == "" {
		stored, ok, err := m.pending.Take(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("read pending credentials: %w", err)
		}
		if !ok {
			return nil, core.ErrMFAPendingExpired
		}
		creds = stored
	} else {
		// Caller supplied credentials; drop any parked entry so it cannot
		// be consumed later.
		if _, _, err := m.pending.Take(ctx, userID); err != nil {
			m.logger.Warn("failed to drop pending credentials", "user_id", userID, "error", err)
		}
	}

	sess, err := m.provider.Resume(ctx, creds.Email, creds.Password, providerToken, code)
	if err != nil {
		return nil, err
	}

	if err := m.persist(ctx, userID, sess); err != nil {
		return nil, err
	}
	m.publish(ctx, userID, "mfa_resumed")
	return sess, nil
}

// tryRestore materializes the blob into a fresh working dir and asks the
// provider to initialize from it. Returns nil on any failure; stored tokens
// are opportunistic.
func (m *SessionManager) tryRestore(ctx context.Context, userID, blob string) ports.ProviderSession {
	dir, err := os.MkdirTemp("", "garmin_tokens_"+sanitizeID(userID)+"_")
	if err != nil {
		m.logger.Warn("failed to create token dir", "user_id", userID, "error", err)
		return nil
	}
	defer os.RemoveAll(dir)

	if err := archive.Unpack(blob, dir); err != nil {
		m.logger.Warn("stored token blob unusable", "user_id", userID, "error", err)
		return nil
	}
	sess, err := m.provider.Restore(ctx, dir)
	if err != nil {
		m.logger.Debug("token restore failed, falling back to credential login",
			"user_id", userID, "error", err)
		return nil
	}
	return sess
}

// persist dumps the session into a fresh dir, archives it, and overwrites
// the stored blob for the user.
func (m *SessionManager) persist(ctx context.Context, userID string, sess ports.ProviderSession) error {
	dir, err := os.MkdirTemp("", "garmin_tokens_"+sanitizeID(userID)+"_")
	if err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := sess.Dump(ctx, dir); err != nil {
		return fmt.Errorf("dump session: %w", err)
	}
	blob, err := archive.Pack(dir)
	if err != nil {
		return fmt.Errorf("pack token blob: %w", err)
	}
	if err := m.kv.Set(ctx, tokenKey(userID), blob, m.blobTTL); err != nil {
		return fmt.Errorf("store token blob: %w", core.ErrStoreUnavailable)
	}
	return nil
}

func (m *SessionManager) publish(ctx context.Context, userID, kind string) {
	if m.events == nil {
		return
	}
	event := core.SessionEvent{UserID: userID, Kind: kind}
	if err := m.events.PublishSessionEvent(ctx, event); err != nil {
		// Events are advisory; the session work already succeeded.
		m.logger.Warn("failed to publish session event", "kind", kind, "error", err)
	}
}

func tokenKey(userID string) string {
	return tokenKeyPrefix + userID
}

// sanitizeID keeps temp dir names to a safe charset.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
