package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hendo420/P2PLendingPlatform/internal/auth"
	"github.com/hendo420/P2PLendingPlatform/internal/http/middleware"
)

// SessionHandler lets browser clients trade a bearer token for the access
// cookie the websocket endpoint reads.
type SessionHandler struct {
	cookies      auth.CookieConfig
	enableBearer bool
	ttl          time.Duration
}

func NewSessionHandler(cookies auth.CookieConfig, enableBearer bool, ttl time.Duration) *SessionHandler {
	return &SessionHandler{cookies: cookies, enableBearer: enableBearer, ttl: ttl}
}

func (h *SessionHandler) Create(c *gin.Context) {
	token := auth.TokenFromRequest(c.Request, h.enableBearer)
	auth.SetAccessCookie(c.Writer, h.cookies, token, h.ttl)
	c.JSON(http.StatusOK, gin.H{
		"account": c.GetString(middleware.ContextUserID),
		"role":    c.GetString(middleware.ContextUserRole),
	})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	auth.ClearAccessCookie(c.Writer, h.cookies)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}
