package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medoxie/wristband/adapters/pending"
	"github.com/medoxie/wristband/adapters/store"
	"github.com/medoxie/wristband/adapters/tokenizer"
	"github.com/medoxie/wristband/core"
	"github.com/medoxie/wristband/ports"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider simulates the external session provider. Sessions dump a
// token file; restore only succeeds for tokens the provider issued. MFA
// accounts require a valid TOTP code on resume.
type fakeProvider struct {
	mu          sync.Mutex
	email       string
	password    string
	totpSecret  string // non-empty means the account is MFA-gated
	validTokens map[string]bool

	loginCalls   int
	restoreCalls int
	resumeCalls  int
	loginDelay   time.Duration
	loginErr     error
}

func newFakeProvider(email, password string) *fakeProvider {
	return &fakeProvider{
		email:       email,
		password:    password,
		validTokens: make(map[string]bool),
	}
}

func (p *fakeProvider) issueSession() *fakeSession {
	token := uuid.New().String()
	p.validTokens[token] = true
	return &fakeSession{provider: p, token: token}
}

func (p *fakeProvider) Restore(ctx context.Context, tokenDir string) (ports.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restoreCalls++

	raw, err := os.ReadFile(filepath.Join(tokenDir, "fake_session.json"))
	if err != nil {
		return nil, err
	}
	var state struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	if !p.validTokens[state.Token] {
		return nil, errors.New("token revoked")
	}
	return &fakeSession{provider: p, token: state.Token}, nil
}

func (p *fakeProvider) Login(ctx context.Context, email, password string) (ports.ProviderSession, string, error) {
	if p.loginDelay > 0 {
		time.Sleep(p.loginDelay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginCalls++

	if p.loginErr != nil {
		return nil, "", p.loginErr
	}
	if email != p.email || password != p.password {
		return nil, "", fmt.Errorf("bad credentials: %w", core.ErrAuthRejected)
	}
	if p.totpSecret != "" {
		return nil, "mfa-" + uuid.New().String(), nil
	}
	return p.issueSession(), "", nil
}

func (p *fakeProvider) Resume(ctx context.Context, email, password, mfaToken, code string) (ports.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumeCalls++

	if email != p.email || password != p.password {
		return nil, fmt.Errorf("bad credentials: %w", core.ErrAuthRejected)
	}
	if !totp.Validate(code, p.totpSecret) {
		return nil, fmt.Errorf("bad MFA code: %w", core.ErrAuthRejected)
	}
	return p.issueSession(), nil
}

type fakeSession struct {
	provider *fakeProvider
	token    string
}

func (s *fakeSession) Dump(ctx context.Context, tokenDir string) error {
	raw, _ := json.Marshal(map[string]string{"token": s.token})
	return os.WriteFile(filepath.Join(tokenDir, "fake_session.json"), raw, 0o600)
}

func (s *fakeSession) DailySummary(ctx context.Context, day string) (json.RawMessage, error) {
	return json.RawMessage(`{"steps": 8000}`), nil
}

func (s *fakeSession) SleepData(ctx context.Context, day string) (json.RawMessage, error) {
	return json.RawMessage(`{"sleep": "ok"}`), nil
}

func (s *fakeSession) ActivitiesByDate(ctx context.Context, start, end, activityType string) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (s *fakeSession) ActivityDetails(ctx context.Context, activityID int64, maxPoly int) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type sessionFixture struct {
	manager  *SessionManager
	provider *fakeProvider
	kv       ports.KV
	pending  ports.PendingStore
}

func newSessionFixture(t *testing.T, provider *fakeProvider) *sessionFixture {
	t.Helper()

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	kv := store.NewMemoryStore()
	pendingStore := pending.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &sessionFixture{
		manager: NewSessionManager(
			kv, pendingStore, provider, tokenizer.NewJWTTickets(signKey), nil, logger,
			5*time.Minute, time.Hour,
		),
		provider: provider,
		kv:       kv,
		pending:  pendingStore,
	}
}

func (f *sessionFixture) blobStored(t *testing.T, userID string) bool {
	t.Helper()
	_, ok, err := f.kv.Get(context.Background(), "garmin:tokens:"+userID)
	require.NoError(t, err)
	return ok
}

func TestEstablishNoTokenNoCredentials(t *testing.T) {
	f := newSessionFixture(t, newFakeProvider("user@example.com", "secret"))

	_, err := f.manager.Establish(context.Background(), "user-1", "", "")
	assert.ErrorIs(t, err, core.ErrNoCredentials)
}

func TestEstablishCredentialLoginPersistsBlob(t *testing.T) {
	f := newSessionFixture(t, newFakeProvider("user@example.com", "secret"))
	ctx := context.Background()

	sess, err := f.manager.Establish(ctx, "user-1", "user@example.com", "secret")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, f.blobStored(t, "user-1"))
	assert.Equal(t, 1, f.provider.loginCalls)

	// A later call with no credentials restores from the stored blob.
	sess, err = f.manager.Establish(ctx, "user-1", "", "")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, 1, f.provider.loginCalls, "restore path must not re-login")
	assert.Equal(t, 1, f.provider.restoreCalls)
}

func TestEstablishWrongPassword(t *testing.T) {
	f := newSessionFixture(t, newFakeProvider("user@example.com", "secret"))

	_, err := f.manager.Establish(context.Background(), "user-1", "user@example.com", "wrong")
	assert.ErrorIs(t, err, core.ErrAuthRejected)
	assert.False(t, f.blobStored(t, "user-1"))
}

func TestEstablishDistinguishesProviderFailures(t *testing.T) {
	for _, kind := range []error{core.ErrConnectionFailed, core.ErrProtocolFailed} {
		provider := newFakeProvider("user@example.com", "secret")
		provider.loginErr = fmt.Errorf("upstream: %w", kind)
		f := newSessionFixture(t, provider)

		_, err := f.manager.Establish(context.Background(), "user-1", "user@example.com", "secret")
		assert.ErrorIs(t, err, kind)
	}
}

func TestEstablishStaleBlobFallsThroughToLogin(t *testing.T) {
	provider := newFakeProvider("user@example.com", "secret")
	f := newSessionFixture(t, provider)
	ctx := context.Background()

	_, err := f.manager.Establish(ctx, "user-1", "user@example.com", "secret")
	require.NoError(t, err)

	// Revoke every issued token so the stored blob no longer restores.
	provider.mu.Lock()
	provider.validTokens = make(map[string]bool)
	provider.mu.Unlock()

	sess, err := f.manager.Establish(ctx, "user-1", "user@example.com", "secret")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, 2, provider.loginCalls)
}

func TestEstablishCorruptBlobFallsThroughToLogin(t *testing.T) {
	f := newSessionFixture(t, newFakeProvider("user@example.com", "secret"))
	ctx := context.Background()

	require.NoError(t, f.kv.Set(ctx, "garmin:tokens:user-1", "not a blob", time.Hour))

	sess, err := f.manager.Establish(ctx, "user-1", "user@example.com", "secret")
	require.NoError(t, err)
	require.NotNil(t, sess)
}

func TestEstablishStoreOutageIsSurfaced(t *testing.T) {
	f := newSessionFixture(t, newFakeProvider("user@example.com", "secret"))
	f.manager.kv = failingKV{}

	_, err := f.manager.Establish(context.Background(), "user-1", "user@example.com", "secret")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestMFAChallengeDoesNotPersist(t *testing.T) {
	provider := newFakeProvider("user@example.com", "secret")
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "fake", AccountName: "user@example.com"})
	require.NoError(t, err)
	provider.totpSecret = key.Secret()
	f := newSessionFixture(t, provider)
	ctx := context.Background()

	_, err = f.manager.Establish(ctx, "user-1", "user@example.com", "secret")
	var challenge *core.MFAChallenge
	require.ErrorAs(t, err, &challenge)
	assert.Equal(t, "user-1", challenge.UserID)
	assert.NotEmpty(t, challenge.Ticket)
	assert.False(t, f.blobStored(t, "user-1"), "MFA challenge must not write a blob")

	// Resume off the parked credentials; only now is the blob written.
	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	sess, err := f.manager.ResumeMFA(ctx, "user-1", challenge.Ticket, code, "", "")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, f.blobStored(t, "user-1"))

	// The pending entry was consumed; a second resume with the same ticket
	// and no supplied credentials must fail.
	_, err = f.manager.ResumeMFA(ctx, "user-1", challenge.Ticket, code, "", "")
	assert.ErrorIs(t, err, core.ErrMFAPendingExpired)
}

func TestResumeWithCallerCredentials(t *testing.T) {
	provider := newFakeProvider("user@example.com", "secret")
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "fake", AccountName: "user@example.com"})
	require.NoError(t, err)
	provider.totpSecret = key.Secret()
	f := newSessionFixture(t, provider)
	ctx := context.Background()

	_, err = f.manager.Establish(ctx, "user-1", "user@example.com", "secret")
	var challenge *core.MFAChallenge
	require.ErrorAs(t, err, &challenge)

	// Simulate the resume landing on an instance without the pending entry.
	f.manager.pending = pending.NewMemoryStore()

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	sess, err := f.manager.ResumeMFA(ctx, "user-1", challenge.Ticket, code, "user@example.com", "secret")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, f.blobStored(t, "user-1"))
}

func TestResumeTicketBoundToUser(t *testing.T) {
	provider := newFakeProvider("user@example.com", "secret")
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "fake", AccountName: "user@example.com"})
	require.NoError(t, err)
	provider.totpSecret = key.Secret()
	f := newSessionFixture(t, provider)
	ctx := context.Background()

	_, err = f.manager.Establish(ctx, "user-1", "user@example.com", "secret")
	var challenge *core.MFAChallenge
	require.ErrorAs(t, err, &challenge)

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	_, err = f.manager.ResumeMFA(ctx, "user-2", challenge.Ticket, code, "user@example.com", "secret")
	assert.ErrorIs(t, err, core.ErrInvalidTicket)
}

func TestResumeGarbageTicket(t *testing.T) {
	f := newSessionFixture(t, newFakeProvider("user@example.com", "secret"))

	_, err := f.manager.ResumeMFA(context.Background(), "user-1", "not-a-ticket", "000000", "", "")
	assert.ErrorIs(t, err, core.ErrInvalidTicket)
}

func TestConcurrentEstablishSharesOneLogin(t *testing.T) {
	provider := newFakeProvider("user@example.com", "secret")
	provider.loginDelay = 50 * time.Millisecond
	f := newSessionFixture(t, provider)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.manager.Establish(context.Background(), "user-1", "user@example.com", "secret")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, provider.loginCalls, "concurrent callers must share one flight")
}
