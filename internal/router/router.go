// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clubdesk/internal/config"
	"github.com/iliyamo/clubdesk/internal/handler"
	"github.com/iliyamo/clubdesk/internal/middleware"
)

// Guards are the middleware chains applied per route class.
type Guards struct {
	// Staff requires a valid bearer token with a staff role.
	Staff []echo.MiddlewareFunc
	// Kiosk accepts anonymous callers, identifies staff when a token is
	// present and rate limits by client.
	Kiosk []echo.MiddlewareFunc
	// Cache serves short-lived copies of read-mostly responses.
	Cache echo.MiddlewareFunc
}

// NewGuards builds the route guards.  rdb may be nil, in which case rate
// limiting and caching pass requests straight through.
func NewGuards(jwtSecret string, rl config.RateLimitConfig, cc config.CacheConfig, rdb *redis.Client, log zerolog.Logger) Guards {
	return Guards{
		Staff: []echo.MiddlewareFunc{
			middleware.JWTAuth(jwtSecret),
			middleware.RequireRole(middleware.RoleStaff, middleware.RoleManager),
		},
		Kiosk: []echo.MiddlewareFunc{
			middleware.OptionalJWT(jwtSecret),
			middleware.NewTokenBucket(rl, rdb, log),
		},
		Cache: middleware.NewRedisCache(cc, rdb, log),
	}
}

// RegisterRoutes registers the health check and the request id and access
// log middleware shared by every route.
func RegisterRoutes(e *echo.Echo, log zerolog.Logger) {
	e.Use(middleware.RequestID())
	e.Use(middleware.AccessLog(log))
	e.GET("/healthz", handler.Health)
}

// RegisterLane registers the check-in workflow.  Negotiation routes are
// public so the kiosk can call them; the handler demands a token when the
// acting party is the employee.
func RegisterLane(e *echo.Echo, h *handler.LaneHandler, g Guards) {
	lane := e.Group("/lane/:laneId")

	lane.POST("/start", h.Start, g.Staff...)
	lane.POST("/select-rental", h.SelectRental, g.Staff...)
	lane.POST("/assign", h.Assign, g.Staff...)
	lane.POST("/create-payment-intent", h.CreatePaymentIntent, g.Staff...)
	lane.POST("/past-due-bypass", h.PastDueBypass, g.Staff...)
	lane.POST("/cancel", h.Cancel, g.Staff...)
	lane.POST("/clear", h.Clear, g.Staff...)

	lane.POST("/propose-selection", h.ProposeSelection, g.Kiosk...)
	lane.POST("/confirm-selection", h.ConfirmSelection, g.Kiosk...)
	lane.POST("/acknowledge-selection", h.AcknowledgeSelection, g.Kiosk...)
	lane.POST("/sign-agreement", h.SignAgreement, g.Kiosk...)
	lane.POST("/customer-confirm", h.CustomerConfirm, g.Kiosk...)
	lane.GET("/waitlist-info", h.WaitlistInfo, append(g.Kiosk, g.Cache)...)

	e.POST("/payments/:id/mark-paid", h.MarkPaid, g.Staff...)
}

// RegisterCheckout registers the kiosk checkout flow and staff overrides.
func RegisterCheckout(e *echo.Echo, h *handler.CheckoutHandler, g Guards) {
	co := e.Group("/checkout")

	co.POST("/resolve-key", h.ResolveKey, g.Kiosk...)
	co.POST("/request", h.Request, g.Kiosk...)

	co.POST("/manual-resolve", h.ManualResolve, g.Staff...)
	co.POST("/manual-complete", h.ManualComplete, g.Staff...)
	co.POST("/:requestId/claim", h.Claim, g.Staff...)
	co.POST("/:requestId/confirm-items", h.ConfirmItems, g.Staff...)
	co.POST("/:requestId/mark-fee-paid", h.MarkFeePaid, g.Staff...)
	co.POST("/:requestId/complete", h.Complete, g.Staff...)
}

// RegisterInventory registers the resource ledger routes.
func RegisterInventory(e *echo.Echo, h *handler.InventoryHandler, g Guards) {
	e.GET("/inventory", h.List, append(g.Kiosk, g.Cache)...)
	e.POST("/resources/:type/:id/status", h.SetStatus, g.Staff...)
}

// RegisterObservers registers the WebSocket event stream.
func RegisterObservers(e *echo.Echo, h *handler.ObserverHandler) {
	e.GET("/ws", h.Stream)
}
