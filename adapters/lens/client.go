// Package lens resolves profile ownership and linked provider accounts via
// the Lens HTTP API. Lookups fail closed: any transport, status or decoding
// problem reads as "not established".
package lens

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/medoxie/wristband/core"
	"github.com/medoxie/wristband/ports"
)

const defaultTimeout = 10 * time.Second

// Client implements the ProfileDirectory interface over the Lens API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a directory client for the given API base URL.
func NewClient(baseURL string) ports.ProfileDirectory {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

type accountResponse struct {
	Address string          `json:"address"`
	OwnedBy string          `json:"ownedBy"`
	Account *accountPayload `json:"account"`

	Metadata *metadata `json:"metadata"`
}

type accountPayload struct {
	Address  string    `json:"address"`
	Metadata *metadata `json:"metadata"`
}

type metadata struct {
	Attributes []attribute `json:"attributes"`
}

type attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Owner returns the wallet address that owns the profile.
func (c *Client) Owner(ctx context.Context, profileID string) (string, error) {
	acct, err := c.fetch(ctx, profileID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", err, core.ErrProfileNotOwned)
	}

	owner := acct.Address
	if acct.Account != nil && acct.Account.Address != "" {
		owner = acct.Account.Address
	}
	if owner == "" {
		owner = acct.OwnedBy
	}
	if owner == "" {
		return "", core.ErrProfileNotOwned
	}
	return strings.ToLower(owner), nil
}

// Email returns the provider account email attached to the profile metadata.
func (c *Client) Email(ctx context.Context, profileID string) (string, error) {
	acct, err := c.fetch(ctx, profileID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", err, core.ErrUserNotResolved)
	}

	md := acct.Metadata
	if md == nil && acct.Account != nil {
		md = acct.Account.Metadata
	}
	if md == nil {
		return "", core.ErrUserNotResolved
	}

	for _, attr := range md.Attributes {
		switch strings.ToLower(attr.Key) {
		case "garminconnect", "garmin", "email", "emailaddress":
		default:
			continue
		}
		if attr.Value == "" {
			continue
		}
		return extractEmail(attr.Value), nil
	}
	return "", core.ErrUserNotResolved
}

// Profiles sometimes store the link as a JSON object rather than a bare
// email string.
func extractEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	var parsed struct {
		Email        string `json:"email"`
		EmailAddress string `json:"emailAddress"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return trimmed
	}
	if parsed.Email != "" {
		return parsed.Email
	}
	if parsed.EmailAddress != "" {
		return parsed.EmailAddress
	}
	return trimmed
}

func (c *Client) fetch(ctx context.Context, profileID string) (*accountResponse, error) {
	endpoint := fmt.Sprintf("%s/account?address=%s", c.baseURL, url.QueryEscape(profileID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile lookup status %d", resp.StatusCode)
	}

	var acct accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return nil, fmt.Errorf("decode profile response: %w", err)
	}
	return &acct, nil
}
