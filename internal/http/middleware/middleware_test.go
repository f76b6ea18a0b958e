package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hendo420/P2PLendingPlatform/internal/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthedEngine(jwt *auth.JWTManager, bearer bool, roles ...string) *gin.Engine {
	r := gin.New()
	handlers := []gin.HandlerFunc{RequireAuth(jwt, bearer)}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRole(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserID))
	})
	r.GET("/p", handlers...)
	return r
}

func TestRequireAuthAcceptsBearerAndCookie(t *testing.T) {
	jwt := auth.NewJWTManager("iss", "aud", "secret")
	tok, err := jwt.Mint("alice", auth.RoleUser, auth.TokenTypeAccess, time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	r := newAuthedEngine(jwt, true)

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "alice" {
		t.Fatalf("bearer: got %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/p", nil)
	req.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: tok})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie: got %d", rec.Code)
	}
}

func TestRequireAuthRejectsMissingAndBearerWhenDisabled(t *testing.T) {
	jwt := auth.NewJWTManager("iss", "aud", "secret")
	tok, _ := jwt.Mint("alice", auth.RoleUser, auth.TokenTypeAccess, time.Minute)
	r := newAuthedEngine(jwt, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bearer disabled, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	jwt := auth.NewJWTManager("iss", "aud", "secret")
	userTok, _ := jwt.Mint("alice", auth.RoleUser, auth.TokenTypeAccess, time.Minute)
	adminTok, _ := jwt.Mint("root", auth.RoleAdmin, auth.TokenTypeAccess, time.Minute)
	r := newAuthedEngine(jwt, true, auth.RoleAdmin)

	for tok, want := range map[string]int{userTok: http.StatusForbidden, adminTok: http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("expected %d, got %d", want, rec.Code)
		}
	}
}

func TestRequestIDAssignsAndKeeps(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/p", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p", nil))
	if rec.Header().Get(RequestIDHeader) == "" || rec.Body.String() != rec.Header().Get(RequestIDHeader) {
		t.Fatalf("expected generated request id, got %q", rec.Header().Get(RequestIDHeader))
	}

	const given = "6f1d3c1e-8c55-4a5b-9b38-0b7e2e4f6a10"
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set(RequestIDHeader, given)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Body.String() != given {
		t.Fatalf("expected caller id to be kept, got %q", rec.Body.String())
	}
}

func TestRequestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(RequestBodyLimit(4))
	r.POST("/p", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/p", strings.NewReader("too long")))
	if rec.Code != http.StatusRequestEntityTooLarge || !strings.Contains(rec.Body.String(), "request_too_large") {
		t.Fatalf("expected declared oversize body to be refused, got %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/p", strings.NewReader("too long"))
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected capped reader to fail, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/p", strings.NewReader("ok")))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected small body to pass, got %d", rec.Code)
	}
}
