package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/medoxie/wristband/core"
	"github.com/medoxie/wristband/internal/eth"
	"github.com/medoxie/wristband/ports"
)

const nonceKeyPrefix = "auth:nonce:"

// futureSkew is how far ahead of server time an issuedAt may sit before the
// message is rejected.
const futureSkew = 30 * time.Second

// WalletAuthenticator validates the nonce-challenge wallet protocol: the
// client fetches a nonce, signs a structured message embedding it, and sends
// address, message and signature headers with the request.
type WalletAuthenticator struct {
	kv ports.KV

	nonceTTL       time.Duration
	maxAge         time.Duration
	allowedOrigins map[string]struct{}

	now func() time.Time
}

// NewWalletAuthenticator creates a new wallet authenticator. An empty origin
// list leaves requests unrestricted by origin.
func NewWalletAuthenticator(kv ports.KV, nonceTTL, maxAge time.Duration, origins []string) *WalletAuthenticator {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return &WalletAuthenticator{
		kv:             kv,
		nonceTTL:       nonceTTL,
		maxAge:         maxAge,
		allowedOrigins: allowed,
		now:            time.Now,
	}
}

// IssueNonce stores a fresh single-use nonce for the address, overwriting
// any prior one, and returns it.
func (a *WalletAuthenticator) IssueNonce(ctx context.Context, address string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := base64.RawURLEncoding.EncodeToString(buf)

	key := nonceKeyPrefix + strings.ToLower(address)
	if err := a.kv.Set(ctx, key, nonce, a.nonceTTL); err != nil {
		return "", fmt.Errorf("store nonce: %w", core.ErrStoreUnavailable)
	}
	return nonce, nil
}

// Verify checks the signed message end-to-end. A nil return means the
// request is authenticated; authentication failures come back as
// *core.AuthError, store outages as core.ErrStoreUnavailable.
func (a *WalletAuthenticator) Verify(ctx context.Context, address, rawMessage, signature string) error {
	// The header may carry the message base64-encoded. The decoded form is
	// what the wallet signed; keep it untouched for recovery.
	message := decodeTransport(rawMessage)

	// Clients may send literal "\n" sequences so the message fits in one
	// header line.
	fields, missing := parseMessageFields(strings.ReplaceAll(message, `\n`, "\n"))
	if len(missing) > 0 {
		return core.NewAuthError(core.ReasonMissingFields, missing...)
	}

	headerAddress := strings.ToLower(address)
	if strings.ToLower(fields["address"]) != headerAddress {
		return core.NewAuthError(core.ReasonAddressMismatch)
	}

	recovered, err := eth.PersonalRecover([]byte(message), signature)
	if err != nil {
		return core.NewAuthError(core.ReasonBadSignature)
	}
	if strings.ToLower(recovered.Hex()) != headerAddress {
		return core.NewAuthError(core.ReasonSigMismatch)
	}

	issuedAt, err := parseIssuedAt(fields["issuedat"])
	if err != nil {
		return core.NewAuthError(core.ReasonInvalidIssuedAt)
	}
	now := a.now()
	if issuedAt.After(now.Add(futureSkew)) {
		return core.NewAuthError(core.ReasonIssuedAtFuture)
	}
	if now.Sub(issuedAt) > a.maxAge {
		return core.NewAuthError(core.ReasonIssuedAtExpired)
	}

	if len(a.allowedOrigins) > 0 {
		if _, ok := a.allowedOrigins[fields["origin"]]; !ok {
			return core.NewAuthError(core.ReasonOriginDenied)
		}
	}

	key := nonceKeyPrefix + headerAddress
	stored, ok, err := a.kv.GetDelete(ctx, key)
	if err != nil {
		return fmt.Errorf("consume nonce: %w", core.ErrStoreUnavailable)
	}
	if !ok || stored != fields["nonce"] {
		return core.NewAuthError(core.ReasonNonceInvalid)
	}

	return nil
}

// decodeTransport undoes optional base64 transport encoding. A value that
// does not decode to valid UTF-8 text is taken as plain.
func decodeTransport(raw string) string {
	trimmed := strings.TrimSpace(raw)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding,
		base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		decoded, err := enc.DecodeString(trimmed)
		if err == nil && utf8.Valid(decoded) && strings.Contains(string(decoded), ":") {
			return string(decoded)
		}
	}
	return raw
}

var requiredFields = []string{"address", "nonce", "issuedat", "origin"}

// parseMessageFields reads "key: value" lines with case-insensitive keys and
// reports which required fields are absent or empty.
func parseMessageFields(message string) (map[string]string, []string) {
	fields := make(map[string]string)
	for _, line := range strings.Split(message, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key != "" {
			fields[key] = strings.TrimSpace(value)
		}
	}

	var missing []string
	for _, k := range requiredFields {
		if fields[k] == "" {
			missing = append(missing, k)
		}
	}
	return fields, missing
}

// parseIssuedAt accepts ISO-8601 timestamps. A trailing literal Z reads as
// +00:00 and a zoneless timestamp is assumed UTC.
func parseIssuedAt(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if strings.HasSuffix(value, "Z") {
		value = value[:len(value)-1] + "+00:00"
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999999-07:00", value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse issuedAt %q: %w", raw, err)
	}
	return t, nil
}
