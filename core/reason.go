package core

import (
	"fmt"
	"strings"
)

// Reason is a machine-readable code describing why a wallet authentication
// attempt failed (or succeeded). Values are wire-stable.
type Reason string

const (
	ReasonOK Reason = "ok"

	// Nonce-challenge variant.
	ReasonMissingFields   Reason = "missing_fields"
	ReasonAddressMismatch Reason = "address_mismatch"
	ReasonBadSignature    Reason = "bad_signature"
	ReasonSigMismatch     Reason = "signature_mismatch"
	ReasonInvalidIssuedAt Reason = "invalid_issued_at"
	ReasonIssuedAtFuture  Reason = "issued_at_in_future"
	ReasonIssuedAtExpired Reason = "issued_at_expired"
	ReasonOriginDenied    Reason = "origin_not_allowed"
	ReasonNonceInvalid    Reason = "nonce_invalid"

	// Profile-scoped header variant.
	ReasonMissingHeaders   Reason = "missing_headers"
	ReasonInvalidMessage   Reason = "invalid_message"
	ReasonInvalidTimestamp Reason = "invalid_timestamp"
	ReasonInvalidSignature Reason = "invalid_signature"
)

// AuthError is a failed authentication check carrying a structured reason
// code. Callers branch on Reason, never on the message text.
type AuthError struct {
	Reason Reason
	Fields []string // missing fields or headers, when applicable
}

func (e *AuthError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s:%s", e.Reason, strings.Join(e.Fields, ","))
	}
	return string(e.Reason)
}

// Code returns the full reason string including the field list, matching
// what is reported to clients.
func (e *AuthError) Code() string { return e.Error() }

// NewAuthError builds an AuthError for the given reason code.
func NewAuthError(reason Reason, fields ...string) *AuthError {
	return &AuthError{Reason: reason, Fields: fields}
}
