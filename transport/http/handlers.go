package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/medoxie/wristband/core"
	"github.com/medoxie/wristband/ports"
	"github.com/medoxie/wristband/service"
)

// Handlers contains the HTTP handlers for auth and data endpoints.
type Handlers struct {
	wallet   *service.WalletAuthenticator
	sessions *service.SessionManager
}

// NewHandlers creates new handlers.
func NewHandlers(wallet *service.WalletAuthenticator, sessions *service.SessionManager) *Handlers {
	return &Handlers{wallet: wallet, sessions: sessions}
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Nonce issues a fresh single-use nonce for an address.
func (h *Handlers) Nonce(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address query parameter required"})
		return
	}

	nonce, err := h.wallet.IssueNonce(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "nonce_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"nonce": nonce})
}

// AuthStart begins a provider login. If the account requires a second
// factor the response carries a resume ticket instead of a session.
func (h *Handlers) AuthStart(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	_, err := h.sessions.Establish(c.Request.Context(), req.UserID, req.Email, req.Password)
	if err != nil {
		var challenge *core.MFAChallenge
		if errors.As(err, &challenge) {
			c.JSON(http.StatusOK, gin.H{
				"status":     "needs_mfa",
				"mfa_ticket": challenge.Ticket,
				"expires_at": challenge.ExpiresAt.UTC().Format(time.RFC3339),
			})
			return
		}
		respondSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AuthResume completes an MFA-gated login.
func (h *Handlers) AuthResume(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		Ticket   string `json:"mfa_ticket" binding:"required"`
		Code     string `json:"mfa_code" binding:"required"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	_, err := h.sessions.ResumeMFA(c.Request.Context(), req.UserID, req.Ticket, req.Code, req.Email, req.Password)
	if err != nil {
		respondSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DailySummary returns the user summary for one day.
func (h *Handlers) DailySummary(c *gin.Context) {
	h.withSession(c, func(sess ports.ProviderSession) (any, error) {
		return sess.DailySummary(c.Request.Context(), c.Param("day"))
	})
}

// Sleep returns sleep data for one day.
func (h *Handlers) Sleep(c *gin.Context) {
	h.withSession(c, func(sess ports.ProviderSession) (any, error) {
		return sess.SleepData(c.Request.Context(), c.Param("day"))
	})
}

// Activities returns activities from (today - days) through today.
func (h *Handlers) Activities(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "14"))
	if err != nil || days < 1 {
		days = 14
	}
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	h.withSession(c, func(sess ports.ProviderSession) (any, error) {
		return sess.ActivitiesByDate(c.Request.Context(),
			start.Format("2006-01-02"), end.Format("2006-01-02"), c.Query("activity_type"))
	})
}

// ActivityDetails returns detail for one activity.
func (h *Handlers) ActivityDetails(c *gin.Context) {
	activityID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid activity id"})
		return
	}
	maxPoly, _ := strconv.Atoi(c.DefaultQuery("maxpoly", "0"))

	h.withSession(c, func(sess ports.ProviderSession) (any, error) {
		return sess.ActivityDetails(c.Request.Context(), activityID, maxPoly)
	})
}

// withSession establishes a provider session for the resolved user and runs
// the data call. Data endpoints never carry credentials; only a stored token
// can satisfy them.
func (h *Handlers) withSession(c *gin.Context, fn func(ports.ProviderSession) (any, error)) {
	userID := c.GetString(ctxUserID)
	if userID == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user not resolved in context"})
		return
	}

	sess, err := h.sessions.Establish(c.Request.Context(), userID, "", "")
	if err != nil {
		respondSessionError(c, err)
		return
	}

	payload, err := fn(sess)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// respondSessionError maps the session error taxonomy onto HTTP statuses so
// callers can tell "wrong password" from "service unreachable".
func respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrNoCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated", "reason": "no_credentials"})
	case errors.Is(err, core.ErrAuthRejected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth_rejected", "reason": "auth_rejected"})
	case errors.Is(err, core.ErrMFAPendingExpired):
		c.JSON(http.StatusGone, gin.H{"error": "mfa_pending_expired", "reason": "mfa_pending_expired"})
	case errors.Is(err, core.ErrInvalidTicket):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_ticket", "reason": "invalid_ticket"})
	case errors.Is(err, core.ErrConnectionFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider_unreachable", "reason": "connection_failed"})
	case errors.Is(err, core.ErrProtocolFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider_error", "reason": "protocol_failed"})
	case errors.Is(err, core.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable", "reason": "store_unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
