package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/middleware"
)

func render(t *testing.T, staff string, err error) (int, map[string]any) {
	t.Helper()
	e := echo.New()
	e.Use(middleware.RequestID())
	e.GET("/", func(c echo.Context) error {
		if staff != "" {
			c.Set("staff_id", staff)
		}
		return writeError(c, zerolog.Nop(), err)
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestWriteErrorMergesDetails(t *testing.T) {
	code, body := render(t, "", apperr.AlreadyCheckedIn("customer is already checked in").With("activeCheckin", map[string]any{"visitId": "v1"}))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_CHECKED_IN", body["error"])
	assert.Equal(t, "customer is already checked in", body["message"])
	assert.Equal(t, map[string]any{"visitId": "v1"}, body["activeCheckin"])
}

func TestWriteErrorHidesInternalCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:3306: connection refused")

	code, body := render(t, "", apperr.Internal(cause, "insert visit"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "INTERNAL", body["error"])
	assert.Equal(t, "internal error", body["message"])
	assert.NotContains(t, body, "requestId")

	code, body = render(t, "staff-1", cause)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal error", body["message"])
	assert.NotEmpty(t, body["requestId"])
}
