package auth

import (
	"net/http"
	"strings"
	"time"
)

const AccessCookieName = "p2p_access"

type CookieConfig struct {
	Domain string
	Secure bool
}

func (cfg CookieConfig) accessCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     AccessCookieName,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Domain,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	}
}

func SetAccessCookie(w http.ResponseWriter, cfg CookieConfig, accessToken string, ttl time.Duration) {
	http.SetCookie(w, cfg.accessCookie(accessToken, int(ttl.Seconds())))
}

func ClearAccessCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, cfg.accessCookie("", -1))
}

// TokenFromRequest prefers an Authorization bearer token when enabled and
// falls back to the access cookie.
func TokenFromRequest(r *http.Request, enableBearer bool) string {
	if enableBearer {
		h := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	if c, err := r.Cookie(AccessCookieName); err == nil {
		return c.Value
	}
	return ""
}
