package service

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/medoxie/wristband/core"
	"github.com/medoxie/wristband/internal/eth"
)

// Wallet auth headers for the profile-scoped variant.
const (
	HeaderAddress   = "X-Medoxie-Address"
	HeaderProfileID = "X-Medoxie-Profile-Id"
	HeaderTimestamp = "X-Medoxie-Timestamp"
	HeaderMessage   = "X-Medoxie-Message"
	HeaderSignature = "X-Medoxie-Signature"
)

// The template re-embeds the request path, so a signature captured on one
// endpoint cannot be replayed against another.
const scopedMessageTemplate = "Medoxie Garmin API Access\n" +
	"address: %s\n" +
	"profileId: %s\n" +
	"timestamp: %s\n" +
	"path: %s"

// ScopedAuthenticator validates the profile-scoped header protocol, which
// binds a signature to address, profile id, timestamp and one request path.
type ScopedAuthenticator struct {
	tolerance time.Duration

	now func() time.Time
}

// NewScopedAuthenticator creates an authenticator with the given timestamp
// tolerance.
func NewScopedAuthenticator(tolerance time.Duration) *ScopedAuthenticator {
	return &ScopedAuthenticator{tolerance: tolerance, now: time.Now}
}

// Verify checks the scoped headers against path and returns the
// authenticated principal. Failures come back as *core.AuthError.
func (a *ScopedAuthenticator) Verify(headers http.Header, path string) (*core.AuthenticatedRequest, error) {
	address := headers.Get(HeaderAddress)
	profileID := headers.Get(HeaderProfileID)
	timestamp := headers.Get(HeaderTimestamp)
	encodedMessage := headers.Get(HeaderMessage)
	signature := headers.Get(HeaderSignature)

	var missing []string
	for _, h := range []struct{ name, value string }{
		{HeaderAddress, address},
		{HeaderProfileID, profileID},
		{HeaderTimestamp, timestamp},
		{HeaderMessage, encodedMessage},
		{HeaderSignature, signature},
	} {
		if h.value == "" {
			missing = append(missing, strings.ToLower(h.name))
		}
	}
	if len(missing) > 0 {
		return nil, core.NewAuthError(core.ReasonMissingHeaders, missing...)
	}

	address = strings.ToLower(address)
	profileID = strings.ToLower(profileID)

	message, err := decodeScopedMessage(encodedMessage)
	if err != nil {
		return nil, core.NewAuthError(core.ReasonInvalidMessage)
	}

	timestampMS, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, core.NewAuthError(core.ReasonInvalidTimestamp)
	}
	age := a.now().UnixMilli() - timestampMS
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Millisecond > a.tolerance {
		return nil, core.NewAuthError(core.ReasonInvalidTimestamp)
	}

	expected := fmt.Sprintf(scopedMessageTemplate, address, profileID, timestamp, path)
	if message != expected {
		return nil, core.NewAuthError(core.ReasonInvalidMessage)
	}

	recovered, err := eth.PersonalRecover([]byte(message), signature)
	if err != nil {
		return nil, core.NewAuthError(core.ReasonInvalidSignature)
	}
	if strings.ToLower(recovered.Hex()) != address {
		return nil, core.NewAuthError(core.ReasonInvalidSignature)
	}

	return &core.AuthenticatedRequest{
		Address:   address,
		ProfileID: profileID,
		Timestamp: timestampMS,
		Path:      path,
	}, nil
}

// decodeScopedMessage base64-decodes the message header, tolerating missing
// padding, and requires the result to be UTF-8 text.
func decodeScopedMessage(encoded string) (string, error) {
	raw := strings.TrimSpace(encoded)
	if pad := len(raw) % 4; pad != 0 {
		raw += strings.Repeat("=", 4-pad)
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(raw)
	}
	if err != nil {
		return "", fmt.Errorf("decode message: %w", err)
	}
	if !utf8.Valid(decoded) {
		return "", fmt.Errorf("message is not valid UTF-8")
	}
	return string(decoded), nil
}
