package tokenizer

import "github.com/golang-jwt/jwt/v5"

// MFATicketClaims combines standard claims with the wrapped provider token.
type MFATicketClaims struct {
	jwt.RegisteredClaims
	ProviderToken string `json:"ptk"`
}
