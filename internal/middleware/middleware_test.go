package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clubdesk/internal/config"
	"github.com/iliyamo/clubdesk/internal/utils"
)

const secret = "test-secret"

func bearer(t *testing.T, staffID, role, key string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(key, staffID, role, 10)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func serve(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func whoami(c echo.Context) error { return c.String(http.StatusOK, StaffID(c)) }

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/staff", whoami, JWTAuth(secret))

	rec := serve(e, http.MethodGet, "/staff", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")

	rec = serve(e, http.MethodGet, "/staff", bearer(t, "staff-1", RoleStaff, "wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/staff", bearer(t, "staff-1", RoleStaff, secret))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "staff-1", rec.Body.String())
}

func TestOptionalJWT(t *testing.T) {
	e := echo.New()
	e.GET("/kiosk", whoami, OptionalJWT(secret))

	rec := serve(e, http.MethodGet, "/kiosk", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = serve(e, http.MethodGet, "/kiosk", bearer(t, "staff-2", RoleStaff, secret))
	assert.Equal(t, "staff-2", rec.Body.String())

	rec = serve(e, http.MethodGet, "/kiosk", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/office", whoami, JWTAuth(secret), RequireRole(RoleManager))

	rec := serve(e, http.MethodGet, "/office", bearer(t, "staff-1", RoleStaff, secret))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(e, http.MethodGet, "/office", bearer(t, "boss", RoleManager, secret))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDAndAccessLog(t *testing.T) {
	e := echo.New()
	e.Use(RequestID(), AccessLog(zerolog.Nop()))
	e.GET("/id", func(c echo.Context) error { return c.String(http.StatusOK, GetRequestID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Body.String())
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	rec = serve(e, http.MethodGet, "/id", "")
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, rec.Header().Get(HeaderRequestID), rec.Body.String())

	rec = serve(e, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLimiterAndCacheWithoutRedis(t *testing.T) {
	e := echo.New()
	calls := 0
	e.GET("/lane/:laneId/waitlist-info", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	},
		NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, zerolog.Nop()),
		NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil, zerolog.Nop()),
	)
	for i := 0; i < 3; i++ {
		rec := serve(e, http.MethodGet, "/lane/L1/waitlist-info", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, 3, calls)
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/lane/L7/sign-agreement", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/lane/:laneId/sign-agreement")
	c.SetParamNames("laneId")
	c.SetParamValues("L7")

	cfg := config.RateLimitConfig{Prefix: "rl"}
	assert.Equal(t, "rl:ip:10.0.0.9:lane:L7:route:POST /lane/:laneId/sign-agreement", rateKey(cfg, c))
	cfg.KeyStrategy = "lane"
	assert.Equal(t, "rl:lane:L7", rateKey(cfg, c))
	cfg.KeyStrategy = "ip_user"
	assert.Equal(t, "rl:ip:10.0.0.9:user:kiosk", rateKey(cfg, c))
}

func TestCacheEntryCodec(t *testing.T) {
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	bs, err := encodeEntry(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, got, body, ok := decodeEntry(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodeEntry([]byte{0, 1})
	assert.False(t, ok)
}

func TestCaptureWriterLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	assert.False(t, cw.over)
	_, _ = cw.Write([]byte("def"))
	assert.True(t, cw.over)
	assert.Equal(t, "abcdef", rec.Body.String())
}
