package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/assetd/internal/auth"
	"github.com/memohai/assetd/internal/config"
	"github.com/memohai/assetd/internal/errs"
	"github.com/memohai/assetd/internal/handlers"
)

const secret = "server-test-secret"

type echoHandler struct{}

func (echoHandler) Register(e *echo.Echo) {
	e.POST("/echo", func(c echo.Context) error {
		id, err := auth.UserIDFromContext(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, id)
	})
	e.GET("/boom", func(echo.Context) error {
		return errs.NotImplemented("not yet")
	})
}

func newTestServer(cfg config.ServerConfig) http.Handler {
	s := NewServer(slog.Default(), cfg, config.AuthConfig{JWTSecret: secret, JWTAlgorithm: "HS256"},
		handlers.NewPingHandler(slog.Default()), echoHandler{})
	return s.HTTPHandler()
}

func token(t *testing.T) string {
	t.Helper()
	tok, _, err := auth.GenerateToken("user-1", secret, "HS256", time.Hour)
	require.NoError(t, err)
	return tok
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPublicPathsSkipAuth(t *testing.T) {
	h := newTestServer(config.ServerConfig{})
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodHead, "/health", nil)).Code)
}

func TestProtectedPathsRequireToken(t *testing.T) {
	h := newTestServer(config.ServerConfig{})
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/echo", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)

	req := httptest.NewRequest(http.MethodPost, "/echo", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t))
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
}

func TestClassifiedErrorsAreMapped(t *testing.T) {
	h := newTestServer(config.ServerConfig{})
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t))
	rec := serve(h, req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.JSONEq(t, `{"error":"not yet","kind":"not_implemented"}`, rec.Body.String())
}

func TestBodyLimit(t *testing.T) {
	h := newTestServer(config.ServerConfig{BodyLimit: "1K"})
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("a", 4096)))
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t))
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(h, req).Code)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(config.ServerConfig{RateLimit: 1})
	tok := token(t)
	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/echo", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
		codes = append(codes, serve(h, req).Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes[1:], http.StatusTooManyRequests)

	// health checks are never limited
	for range 3 {
		assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
	}
}

func TestResponsesCarryRequestID(t *testing.T) {
	h := newTestServer(config.ServerConfig{})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"build":{"version":`)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	rec = serve(h, req)
	assert.Equal(t, "req-42", rec.Header().Get(echo.HeaderXRequestID))
}
