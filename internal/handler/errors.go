package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/middleware"
)

// writeError renders err as {"error": kind, "message": msg, ...details}.
// Internal failures are logged with their cause and rendered without it;
// authenticated callers additionally get the request id to quote.
func writeError(c echo.Context, log zerolog.Logger, err error) error {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Internal(err, "internal error")
	}
	if ae.Kind == apperr.KindInternal {
		log.Error().Err(err).
			Str("request_id", middleware.GetRequestID(c)).
			Str("path", c.Path()).
			Msg("request failed")
		body := echo.Map{"error": ae.Kind, "message": "internal error"}
		if middleware.StaffID(c) != "" {
			body["requestId"] = middleware.GetRequestID(c)
		}
		return c.JSON(http.StatusInternalServerError, body)
	}
	body := echo.Map{}
	for k, v := range ae.Details {
		body[k] = v
	}
	body["error"] = ae.Kind
	body["message"] = ae.Message
	return c.JSON(ae.Status(), body)
}

// bind decodes the request body, reporting malformed input as VALIDATION.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

// requireStaff rejects anonymous callers on routes that are public only for
// the customer side of the lane.
func requireStaff(c echo.Context) (string, error) {
	id := middleware.StaffID(c)
	if id == "" {
		return "", apperr.Unauthorized("staff authentication required")
	}
	return id, nil
}
