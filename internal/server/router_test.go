package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/hendo420/P2PLendingPlatform/internal/auth"
	"github.com/hendo420/P2PLendingPlatform/internal/config"
	admindomain "github.com/hendo420/P2PLendingPlatform/internal/domain/admin"
	"github.com/hendo420/P2PLendingPlatform/internal/domain/collateral"
	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
	"github.com/hendo420/P2PLendingPlatform/internal/observability"
	"github.com/hendo420/P2PLendingPlatform/internal/oracle"
	"github.com/hendo420/P2PLendingPlatform/internal/repository/memory"
	"github.com/hendo420/P2PLendingPlatform/internal/ws"
)

type testServer struct {
	t       *testing.T
	engine  *gin.Engine
	jwt     *auth.JWTManager
	audit   *memory.AuditLog
	service *ledger.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rate, err := oracle.NewStatic(uint256.NewInt(2))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	store := memory.NewStore()
	svc := ledger.NewService(store, rate, ledger.Config{
		Admin:           "root",
		LoanCurrency:    "USDC",
		NativeCurrency:  "NATIVE",
		Reserve:         ledger.DefaultReserveAccount,
		ShortfallPolicy: collateral.ShortfallInsure,
	}, ledger.WithRecorder(observability.NewMetrics(reg)))
	audit := memory.NewAuditLog()
	jwt := auth.NewJWTManager("p2p", "p2p-api", "secret")

	cfg := config.Config{
		Env:              "test",
		AuthEnableBearer: true,
		JWTAccessTTL:     time.Minute,
		RequestMaxBytes:  1 << 20,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := NewRouter(cfg, logger, Dependencies{
		Pinger:     store,
		Ledger:     svc,
		Admin:      admindomain.NewService(svc, audit),
		JWTManager: jwt,
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return &testServer{t: t, engine: engine, jwt: jwt, audit: audit, service: svc}
}

func (s *testServer) token(account, role string) string {
	tok, err := s.jwt.Mint(account, role, auth.TokenTypeAccess, time.Minute)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) (int, map[string]any) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec.Code, out
}

func TestPublicEndpoints(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	code, body := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(http.StatusOK, code)
	require.Equal("ok", body["status"])

	code, _ = s.do(http.MethodGet, "/ready", "", nil)
	require.Equal(http.StatusOK, code)

	code, body = s.do(http.MethodGet, "/v1/meta", "", nil)
	require.Equal(http.StatusOK, code)
	ledgerMeta := body["ledger"].(map[string]any)
	require.Equal("USDC", ledgerMeta["loan_currency"])
	require.Equal("insure", ledgerMeta["shortfall_policy"])

	code, body = s.do(http.MethodGet, "/v1/oracle/rate", "", nil)
	require.Equal(http.StatusOK, code)
	require.Equal("2", body["rate"])

	code, body = s.do(http.MethodGet, "/nope", "", nil)
	require.Equal(http.StatusNotFound, code)
	require.Equal("not_found", body["error"])
}

func TestLendingLifecycleOverHTTP(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)
	root := s.token("root", auth.RoleAdmin)
	alice := s.token("alice", auth.RoleUser)
	bob := s.token("bob", auth.RoleUser)

	code, _ := s.do(http.MethodPost, "/admin/deposits", root, map[string]string{"account": "alice", "currency": "usdc", "amount": "1000"})
	require.Equal(http.StatusOK, code)
	code, _ = s.do(http.MethodPost, "/admin/deposits", root, map[string]string{"account": "bob", "currency": "NATIVE", "amount": "1000"})
	require.Equal(http.StatusOK, code)
	code, _ = s.do(http.MethodPost, "/admin/deposits", root, map[string]string{"account": "bob", "currency": "USDC", "amount": "10"})
	require.Equal(http.StatusOK, code)
	require.Len(s.audit.Entries(), 3)

	code, body := s.do(http.MethodGet, "/admin/audit?limit=2", root, nil)
	require.Equal(http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(items, 2)
	latest := items[0].(map[string]any)
	require.Equal("balance_deposited", latest["action"])
	require.Equal("bob", latest["target_id"])

	code, body = s.do(http.MethodPost, "/v1/lending-positions", alice, map[string]any{"amount": "500", "interest_rate_percent": 10})
	require.Equal(http.StatusCreated, code)
	require.EqualValues(1, body["id"])
	require.Equal("500", body["available"])

	code, body = s.do(http.MethodPost, "/v1/loans", bob, map[string]any{"lending_position_id": 1, "amount": "100", "collateral": "100"})
	require.Equal(http.StatusCreated, code)
	require.EqualValues(2, body["id"])
	require.Equal("110", body["due"])

	code, body = s.do(http.MethodGet, "/v1/loans/2/health", bob, nil)
	require.Equal(http.StatusOK, code)
	require.Equal("200.00", body["ratio_percent"])
	require.Equal(false, body["liquidatable"])

	code, body = s.do(http.MethodPost, "/v1/loans/2/liquidate", alice, nil)
	require.Equal(http.StatusConflict, code)
	require.Equal("collateral_still_sufficient", body["error"])

	code, body = s.do(http.MethodGet, "/v1/lending-positions/1/loans", alice, nil)
	require.Equal(http.StatusOK, code)
	require.Len(body["items"], 1)

	code, body = s.do(http.MethodGet, "/v1/lending-positions", alice, nil)
	require.Equal(http.StatusOK, code)
	require.Len(body["items"], 1)

	code, body = s.do(http.MethodGet, "/v1/loans", bob, nil)
	require.Equal(http.StatusOK, code)
	require.Len(body["items"], 1)

	code, body = s.do(http.MethodGet, "/v1/positions/2/owner", alice, nil)
	require.Equal(http.StatusOK, code)
	require.Equal("bob", body["owner"])

	code, body = s.do(http.MethodPost, "/v1/loans/2/repay", bob, map[string]string{"amount": "200"})
	require.Equal(http.StatusBadRequest, code)
	require.Equal("exceeds_due", body["error"])

	code, body = s.do(http.MethodPost, "/v1/loans/2/repay", bob, map[string]string{"amount": "110"})
	require.Equal(http.StatusOK, code)
	require.Equal(true, body["closed"])

	code, body = s.do(http.MethodPost, "/v1/lending-positions/1/collect", alice, nil)
	require.Equal(http.StatusOK, code)
	require.Equal("110", body["collected"])

	code, body = s.do(http.MethodGet, "/v1/accounts/me/balances?currency=usdc", alice, nil)
	require.Equal(http.StatusOK, code)
	require.Equal("610", body["balances"].(map[string]any)["USDC"])

	code, body = s.do(http.MethodGet, "/v1/positions/supply", alice, nil)
	require.Equal(http.StatusOK, code)
	require.EqualValues(1, body["current_supply"])
}

func TestLiquidationAfterPriceDrop(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)
	root := s.token("root", auth.RoleAdmin)
	alice := s.token("alice", auth.RoleUser)
	bob := s.token("bob", auth.RoleUser)

	s.do(http.MethodPost, "/admin/deposits", root, map[string]string{"account": "alice", "currency": "USDC", "amount": "1000"})
	s.do(http.MethodPost, "/admin/deposits", root, map[string]string{"account": "bob", "currency": "NATIVE", "amount": "1000"})
	s.do(http.MethodPost, "/admin/deposits", root, map[string]string{"account": string(ledger.DefaultReserveAccount), "currency": "USDC", "amount": "1000"})
	s.do(http.MethodPost, "/v1/lending-positions", alice, map[string]any{"amount": "500", "interest_rate_percent": 10})
	code, _ := s.do(http.MethodPut, "/admin/oracle", root, map[string]string{"rate": "3"})
	require.Equal(http.StatusOK, code)
	code, _ = s.do(http.MethodPost, "/v1/loans", bob, map[string]any{"lending_position_id": 1, "amount": "100", "collateral": "56"})
	require.Equal(http.StatusCreated, code)

	code, _ = s.do(http.MethodPut, "/admin/oracle", root, map[string]string{"rate": "1"})
	require.Equal(http.StatusOK, code)

	code, body := s.do(http.MethodPost, "/v1/loans/2/liquidate", bob, nil)
	require.Equal(http.StatusForbidden, code)
	require.Equal("unauthorized", body["error"])

	code, body = s.do(http.MethodPost, "/v1/loans/2/liquidate", alice, nil)
	require.Equal(http.StatusOK, code)
	require.Equal("reserve", body["settlement"])
	require.Equal("110", body["recovered_due"])
	require.Equal("56", body["seized_collateral"])
	require.Equal("54", body["shortfall"])
	require.Equal("0", body["returned_collateral"])

	code, body = s.do(http.MethodGet, "/v1/lending-positions/1", alice, nil)
	require.Equal(http.StatusOK, code)
	require.Equal("510", body["available"])

	code, _ = s.do(http.MethodGet, "/v1/loans/2", alice, nil)
	require.Equal(http.StatusNotFound, code)
}

func TestAuthorizationBoundaries(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)
	alice := s.token("alice", auth.RoleUser)
	mallory := s.token("mallory", auth.RoleAdmin)

	code, _ := s.do(http.MethodGet, "/v1/accounts/me/positions", "", nil)
	require.Equal(http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodPut, "/admin/loan-currency", alice, map[string]string{"currency": "DAI"})
	require.Equal(http.StatusForbidden, code)

	code, body := s.do(http.MethodPut, "/admin/loan-currency", mallory, map[string]string{"currency": "DAI"})
	require.Equal(http.StatusForbidden, code)
	require.Equal("unauthorized", body["error"])
	require.Equal("USDC", s.service.LoanCurrency())

	code, body = s.do(http.MethodPost, "/v1/lending-positions", alice, map[string]any{"amount": "abc", "interest_rate_percent": 10})
	require.Equal(http.StatusBadRequest, code)
	require.Equal("invalid_amount", body["error"])

	code, body = s.do(http.MethodPost, "/v1/lending-positions", alice, map[string]any{"amount": "10", "interest_rate_percent": 101})
	require.Equal(http.StatusBadRequest, code)
	require.Equal("invalid_rate", body["error"])

	code, body = s.do(http.MethodPost, "/v1/lending-positions", alice, map[string]any{"amount": "10", "interest_rate_percent": 1})
	require.Equal(http.StatusUnprocessableEntity, code)
	require.Equal("insufficient_funds", body["error"])

	code, body = s.do(http.MethodGet, "/v1/lending-positions/abc", alice, nil)
	require.Equal(http.StatusBadRequest, code)
	require.Equal("invalid_position_id", body["error"])
}

func TestSessionCookieAndMetrics(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)
	alice := s.token("alice", auth.RoleUser)

	req := httptest.NewRequest(http.MethodPost, "/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+alice)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	require.Equal(http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(cookies, 1)
	require.Equal(auth.AccessCookieName, cookies[0].Name)

	req = httptest.NewRequest(http.MethodGet, "/v1/accounts/me/positions", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	require.Equal(http.StatusOK, rec.Code)

	s.do(http.MethodPost, "/v1/lending-positions", alice, map[string]any{"amount": "10", "interest_rate_percent": 1})
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	require.Equal(http.StatusOK, rec.Code)
	require.Contains(rec.Body.String(), "insufficient_funds")
}

func TestWebSocketReceivesLedgerEvents(t *testing.T) {
	require := require.New(t)
	gin.SetMode(gin.TestMode)

	rate, err := oracle.NewStatic(uint256.NewInt(2))
	require.NoError(err)
	store := memory.NewStore()
	svc := ledger.NewService(store, rate, ledger.Config{
		Admin:          "root",
		LoanCurrency:   "USDC",
		NativeCurrency: "NATIVE",
		Reserve:        ledger.DefaultReserveAccount,
	})
	jwt := auth.NewJWTManager("p2p", "p2p-api", "secret")
	hub := ws.NewHub()
	notifier := ws.NewNotifier(store, hub, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = notifier.Run(ctx) }()

	r := NewRouter(config.Config{Env: "test", AuthEnableBearer: true}, slog.New(slog.NewTextHandler(io.Discard, nil)), Dependencies{
		Pinger:     store,
		Ledger:     svc,
		JWTManager: jwt,
		WSHandler:  ws.NewHandler(hub),
	})
	ts := httptest.NewServer(r)
	defer ts.Close()

	tok, err := jwt.Mint("alice", auth.RoleUser, auth.TokenTypeAccess, time.Minute)
	require.NoError(err)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	wsCfg, err := websocket.NewConfig(wsURL, ts.URL)
	require.NoError(err)
	wsCfg.Header = make(http.Header)
	wsCfg.Header.Set("Authorization", "Bearer "+tok)
	conn, err := websocket.DialConfig(wsCfg)
	require.NoError(err)
	defer conn.Close()

	require.NoError(websocket.Message.Send(conn, `{"action":"subscribe","channel":"account"}`))
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var ack string
	require.NoError(websocket.Message.Receive(conn, &ack))
	require.Contains(ack, `"subscribed"`)
	require.Contains(ack, "account:alice")

	require.NoError(svc.Deposit(context.Background(), "root", "alice", "USDC", uint256.NewInt(50)))

	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var msg string
	require.NoError(websocket.Message.Receive(conn, &msg))
	require.Contains(msg, ledger.TopicBalanceDeposited)
}
