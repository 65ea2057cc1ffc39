package tokenizer

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/medoxie/wristband/core"
	"github.com/medoxie/wristband/ports"
)

const AudienceMFATicket = "session:mfa"

// JWTTickets implements the Tickets interface using ES256 JWTs. The
// provider's opaque MFA token rides inside the ticket, bound to the user id
// via the subject claim.
type JWTTickets struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTickets creates a new JWT ticket codec.
func NewJWTTickets(signKey *ecdsa.PrivateKey) ports.Tickets {
	return &JWTTickets{signKey: signKey}
}

// Issue signs a ticket wrapping the provider MFA token for userID.
func (j *JWTTickets) Issue(userID, providerToken string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := MFATicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceMFATicket},
		},
		ProviderToken: providerToken,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signed, err := token.SignedString(j.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign ticket: %w", err)
	}

	return signed, expiresAt, nil
}

// Parse validates a ticket and returns the bound user id and provider token.
func (j *JWTTickets) Parse(ticketStr string) (string, string, error) {
	token, err := jwt.ParseWithClaims(ticketStr, &MFATicketClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceMFATicket))

	if err != nil {
		return "", "", fmt.Errorf("failed to parse ticket: %w", core.ErrInvalidTicket)
	}

	if !token.Valid {
		return "", "", core.ErrInvalidTicket
	}

	claims, ok := token.Claims.(*MFATicketClaims)
	if !ok {
		return "", "", core.ErrInvalidTicket
	}

	return claims.Subject, claims.ProviderToken, nil
}
