package garmin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// tokenFileName is the credential file written into a token dir. The dir as
// a whole is what gets archived into a blob, so the layout must stay stable
// across dump and restore.
const tokenFileName = "oauth2_token.json"

type oauthToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func readToken(dir string) (oauthToken, error) {
	raw, err := os.ReadFile(filepath.Join(dir, tokenFileName))
	if err != nil {
		return oauthToken{}, fmt.Errorf("read token file: %w", err)
	}
	var tok oauthToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return oauthToken{}, fmt.Errorf("decode token file: %w", err)
	}
	if tok.AccessToken == "" {
		return oauthToken{}, fmt.Errorf("token file has no access token")
	}
	return tok, nil
}

func writeToken(dir string, tok oauthToken) error {
	raw, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tokenFileName), raw, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
