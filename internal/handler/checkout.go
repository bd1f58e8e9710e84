package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clubdesk/internal/middleware"
	"github.com/iliyamo/clubdesk/internal/service"
)

// CheckoutHandler serves the kiosk checkout flow and the staff manual
// overrides.
type CheckoutHandler struct {
	Svc *service.Service
	Log zerolog.Logger
}

// NewCheckoutHandler panics if svc is nil.
func NewCheckoutHandler(svc *service.Service, log zerolog.Logger) *CheckoutHandler {
	if svc == nil {
		panic("nil service passed to NewCheckoutHandler")
	}
	return &CheckoutHandler{Svc: svc, Log: log.With().Str("component", "checkout_handler").Logger()}
}

type resolveKeyRequest struct {
	Key string `json:"key"`
}

// ResolveKey handles POST /checkout/resolve-key.
func (h *CheckoutHandler) ResolveKey(c echo.Context) error {
	var req resolveKeyRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	sum, err := h.Svc.ResolveKey(c.Request().Context(), req.Key)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, sum)
}

type checkoutRequestBody struct {
	OccupancyID string          `json:"occupancyId"`
	Items       map[string]bool `json:"items"`
}

// Request handles POST /checkout/request.  A new request answers 201, a
// repeat for the same occupancy 200 with the open request.
func (h *CheckoutHandler) Request(c echo.Context) error {
	var req checkoutRequestBody
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	res, err := h.Svc.RequestCheckout(c.Request().Context(), req.OccupancyID, req.Items)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

// Claim handles POST /checkout/:requestId/claim.
func (h *CheckoutHandler) Claim(c echo.Context) error {
	r, err := h.Svc.ClaimCheckout(c.Request().Context(), c.Param("requestId"), middleware.StaffID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"request": r})
}

type confirmItemsRequest struct {
	Items map[string]bool `json:"items"`
}

// ConfirmItems handles POST /checkout/:requestId/confirm-items.
func (h *CheckoutHandler) ConfirmItems(c echo.Context) error {
	var req confirmItemsRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	r, err := h.Svc.ConfirmItems(c.Request().Context(), c.Param("requestId"), middleware.StaffID(c), req.Items)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"request": r})
}

// MarkFeePaid handles POST /checkout/:requestId/mark-fee-paid.
func (h *CheckoutHandler) MarkFeePaid(c echo.Context) error {
	r, err := h.Svc.MarkCheckoutFeePaid(c.Request().Context(), c.Param("requestId"), middleware.StaffID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"request": r})
}

// Complete handles POST /checkout/:requestId/complete.
func (h *CheckoutHandler) Complete(c echo.Context) error {
	res, err := h.Svc.CompleteCheckout(c.Request().Context(), c.Param("requestId"), middleware.StaffID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

type manualResolveRequest struct {
	Key        string `json:"key"`
	CustomerID string `json:"customerId"`
}

// ManualResolve handles POST /checkout/manual-resolve.
func (h *CheckoutHandler) ManualResolve(c echo.Context) error {
	var req manualResolveRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	sum, err := h.Svc.ManualResolve(c.Request().Context(), req.Key, req.CustomerID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, sum)
}

type manualCompleteRequest struct {
	OccupancyID string `json:"occupancyId"`
	FeePaid     bool   `json:"feePaid"`
}

// ManualComplete handles POST /checkout/manual-complete.  Repeats answer 200
// with alreadyCheckedOut set.
func (h *CheckoutHandler) ManualComplete(c echo.Context) error {
	var req manualCompleteRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	res, err := h.Svc.ManualComplete(c.Request().Context(), req.OccupancyID, middleware.StaffID(c), req.FeePaid)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}
