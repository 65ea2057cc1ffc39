// Package garmin implements the session-provider port against a
// Garmin-Connect-style SSO and REST API: credential or token login, an MFA
// verification step, and the fitness data endpoints.
package garmin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/medoxie/wristband/core"
	"github.com/medoxie/wristband/ports"
)

const defaultTimeout = 30 * time.Second

// Client implements the SessionProvider interface.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a provider client for the given API base URL.
func NewClient(baseURL string) ports.SessionProvider {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// Restore initializes a session from a previously dumped token dir. The
// stored token is validated against the profile endpoint so a stale blob is
// detected here rather than on the first data call.
func (c *Client) Restore(ctx context.Context, tokenDir string) (ports.ProviderSession, error) {
	tok, err := readToken(tokenDir)
	if err != nil {
		return nil, err
	}
	sess := &session{client: c, token: tok}
	if _, err := sess.get(ctx, "/userprofile-service/socialProfile", nil); err != nil {
		return nil, fmt.Errorf("stored token rejected: %w", err)
	}
	return sess, nil
}

type signinResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	MFAToken     string `json:"mfa_token"`
}

// Login authenticates with credentials. An MFA-gated account yields a nil
// session and the provider's MFA continuation token.
func (c *Client) Login(ctx context.Context, email, password string) (ports.ProviderSession, string, error) {
	body := map[string]string{"username": email, "password": password}
	resp, err := c.postJSON(ctx, "/sso/signin", body)
	if err != nil {
		return nil, "", err
	}
	if resp.MFAToken != "" {
		return nil, resp.MFAToken, nil
	}
	return c.sessionFrom(resp)
}

// Resume completes an MFA-gated login with the verification code.
func (c *Client) Resume(ctx context.Context, email, password, mfaToken, code string) (ports.ProviderSession, error) {
	body := map[string]string{
		"username":  email,
		"password":  password,
		"mfa_token": mfaToken,
		"code":      code,
	}
	resp, err := c.postJSON(ctx, "/sso/verifyMFA", body)
	if err != nil {
		return nil, err
	}
	sess, _, err := c.sessionFrom(resp)
	return sess, err
}

func (c *Client) sessionFrom(resp *signinResponse) (ports.ProviderSession, string, error) {
	if resp.AccessToken == "" {
		return nil, "", fmt.Errorf("signin response without token: %w", core.ErrProtocolFailed)
	}
	tok := oauthToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	return &session{client: c, token: tok}, "", nil
}

func (c *Client) postJSON(ctx context.Context, path string, body map[string]string) (*signinResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", path, err, core.ErrConnectionFailed)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s: status %d: %w", path, resp.StatusCode, core.ErrAuthRejected)
	default:
		return nil, fmt.Errorf("%s: status %d: %w", path, resp.StatusCode, core.ErrProtocolFailed)
	}

	var parsed signinResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", path, core.ErrProtocolFailed)
	}
	return &parsed, nil
}

// session is a live authenticated connection.
type session struct {
	client *Client
	token  oauthToken
}

// Dump writes the session's credential state into tokenDir.
func (s *session) Dump(ctx context.Context, tokenDir string) error {
	return writeToken(tokenDir, s.token)
}

func (s *session) DailySummary(ctx context.Context, day string) (json.RawMessage, error) {
	return s.get(ctx, "/usersummary-service/usersummary/daily", map[string]string{"calendarDate": day})
}

func (s *session) SleepData(ctx context.Context, day string) (json.RawMessage, error) {
	return s.get(ctx, "/wellness-service/wellness/dailySleepData", map[string]string{"date": day})
}

func (s *session) ActivitiesByDate(ctx context.Context, start, end, activityType string) (json.RawMessage, error) {
	params := map[string]string{"startDate": start, "endDate": end}
	if activityType != "" {
		params["activityType"] = activityType
	}
	return s.get(ctx, "/activitylist-service/activities/search/activities", params)
}

func (s *session) ActivityDetails(ctx context.Context, activityID int64, maxPoly int) (json.RawMessage, error) {
	path := fmt.Sprintf("/activity-service/activity/%d/details", activityID)
	params := map[string]string{}
	if maxPoly > 0 {
		params["maxpoly"] = fmt.Sprintf("%d", maxPoly)
	}
	return s.get(ctx, path, params)
}

func (s *session) get(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	q := req.URL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)

	resp, err := s.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", path, err, core.ErrConnectionFailed)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s: status %d: %w", path, resp.StatusCode, core.ErrAuthRejected)
	default:
		return nil, fmt.Errorf("%s: status %d: %w", path, resp.StatusCode, core.ErrProtocolFailed)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", path, core.ErrConnectionFailed)
	}
	return json.RawMessage(raw), nil
}
