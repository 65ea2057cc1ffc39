package http

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/medoxie/wristband/core"
	"github.com/medoxie/wristband/ports"
	"github.com/medoxie/wristband/service"
	"golang.org/x/time/rate"
)

const (
	ctxAddress   = "walletAddress"
	ctxProfileID = "profileID"
	ctxUserID    = "userID"
)

// WalletAuthMiddleware guards the auth endpoints with the nonce-challenge
// protocol. A configured static API key may bypass it for trusted
// server-to-server callers.
func WalletAuthMiddleware(auth *service.WalletAuthenticator, apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey != "" && c.GetHeader("Authorization") == "Bearer "+apiKey {
			c.Next()
			return
		}

		address := c.GetHeader(service.HeaderAddress)
		message := c.GetHeader(service.HeaderMessage)
		signature := c.GetHeader(service.HeaderSignature)
		if address == "" || message == "" || signature == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  "unauthorized",
				"reason": "missing_wallet_headers",
			})
			return
		}

		if err := auth.Verify(c.Request.Context(), address, message, signature); err != nil {
			abortAuthError(c, err)
			return
		}

		c.Set(ctxAddress, normalizeAddress(address))
		c.Next()
	}
}

// ScopedAuthMiddleware guards the data endpoints with the profile-scoped
// protocol and then confirms profile ownership. Authentication failures are
// 401; the ownership and user-resolution checks that follow are 403.
func ScopedAuthMiddleware(auth *service.ScopedAuthenticator, directory ports.ProfileDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := auth.Verify(c.Request.Header, c.Request.URL.Path)
		if err != nil {
			abortAuthError(c, err)
			return
		}

		owner, err := directory.Owner(c.Request.Context(), req.ProfileID)
		if err != nil || owner != req.Address {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":  "forbidden",
				"reason": "profile_not_owned",
			})
			return
		}

		userID, err := directory.Email(c.Request.Context(), req.ProfileID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":  "forbidden",
				"reason": "user_not_resolved",
			})
			return
		}

		c.Set(ctxAddress, req.Address)
		c.Set(ctxProfileID, req.ProfileID)
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func abortAuthError(c *gin.Context, err error) {
	var authErr *core.AuthError
	if errors.As(err, &authErr) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":  "unauthorized",
			"reason": authErr.Code(),
		})
		return
	}
	if errors.Is(err, core.ErrStoreUnavailable) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": "store_unavailable",
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// RateLimitMiddleware applies a per-client token bucket, used on nonce
// issuance so an attacker cannot churn stored nonces for arbitrary
// addresses.
func RateLimitMiddleware(rps rate.Limit, burst int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(rps, burst)
			limiters[key] = l
		}
		return l
	}

	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}
