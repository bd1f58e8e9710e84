package middleware

import "github.com/labstack/echo/v4"

// StaffID returns the authenticated staff member, or "" on anonymous kiosk
// requests.
func StaffID(c echo.Context) string {
	if s, ok := c.Get(ctxStaffID).(string); ok {
		return s
	}
	return ""
}

// rateSubject identifies the caller for rate limiting: the staff id when
// authenticated, "kiosk" otherwise.
func rateSubject(c echo.Context) string {
	if s := StaffID(c); s != "" {
		return s
	}
	return "kiosk"
}
