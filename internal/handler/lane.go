package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clubdesk/internal/apperr"
	"github.com/iliyamo/clubdesk/internal/middleware"
	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/service"
)

// LaneHandler serves the lane check-in workflow for both the staff register
// and the customer kiosk.
type LaneHandler struct {
	Svc *service.Service
	Log zerolog.Logger
}

// NewLaneHandler panics if svc is nil.
func NewLaneHandler(svc *service.Service, log zerolog.Logger) *LaneHandler {
	if svc == nil {
		panic("nil service passed to NewLaneHandler")
	}
	return &LaneHandler{Svc: svc, Log: log.With().Str("component", "lane_handler").Logger()}
}

type startRequest struct {
	CustomerID  string `json:"customerId"`
	IDScanValue string `json:"idScanValue"`
	VisitID     string `json:"visitId"`
}

// Start handles POST /lane/:laneId/start.
func (h *LaneHandler) Start(c echo.Context) error {
	var req startRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	res, err := h.Svc.Start(c.Request().Context(), service.StartInput{
		LaneID:     c.Param("laneId"),
		StaffID:    middleware.StaffID(c),
		CustomerID: req.CustomerID,
		Scan:       req.IDScanValue,
		VisitID:    req.VisitID,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

type selectRentalRequest struct {
	DesiredRentalType   model.RentalType  `json:"desiredRentalType"`
	BackupRentalType    *model.RentalType `json:"backupRentalType"`
	WaitlistDesiredType *model.RentalType `json:"waitlistDesiredType"`
}

// SelectRental handles POST /lane/:laneId/select-rental.
func (h *LaneHandler) SelectRental(c echo.Context) error {
	var req selectRentalRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	snap, err := h.Svc.SelectRental(c.Request().Context(), service.SelectRentalInput{
		LaneID:   c.Param("laneId"),
		StaffID:  middleware.StaffID(c),
		Desired:  req.DesiredRentalType,
		Backup:   req.BackupRentalType,
		Waitlist: req.WaitlistDesiredType,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session": snap})
}

type proposeRequest struct {
	RentalType model.RentalType `json:"rentalType"`
	ProposedBy model.Actor      `json:"proposedBy"`
}

// actorStaff returns the staff id acting for actor.  EMPLOYEE actions
// require a bearer token even on the public lane routes.
func actorStaff(c echo.Context, actor model.Actor) (string, error) {
	if actor == model.ActorEmployee {
		return requireStaff(c)
	}
	return middleware.StaffID(c), nil
}

// ProposeSelection handles POST /lane/:laneId/propose-selection.
func (h *LaneHandler) ProposeSelection(c echo.Context) error {
	var req proposeRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	staffID, err := actorStaff(c, req.ProposedBy)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	snap, err := h.Svc.ProposeSelection(c.Request().Context(), service.ProposeInput{
		LaneID:     c.Param("laneId"),
		Actor:      req.ProposedBy,
		StaffID:    staffID,
		RentalType: req.RentalType,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session": snap})
}

type confirmRequest struct {
	ConfirmedBy model.Actor `json:"confirmedBy"`
}

// ConfirmSelection handles POST /lane/:laneId/confirm-selection.  A repeat
// confirmation answers 200 with alreadyConfirmed set.
func (h *LaneHandler) ConfirmSelection(c echo.Context) error {
	var req confirmRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	staffID, err := actorStaff(c, req.ConfirmedBy)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	res, err := h.Svc.ConfirmSelection(c.Request().Context(), c.Param("laneId"), req.ConfirmedBy, staffID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

type acknowledgeRequest struct {
	AcknowledgedBy model.Actor `json:"acknowledgedBy"`
}

// AcknowledgeSelection handles POST /lane/:laneId/acknowledge-selection.
func (h *LaneHandler) AcknowledgeSelection(c echo.Context) error {
	var req acknowledgeRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	if _, err := actorStaff(c, req.AcknowledgedBy); err != nil {
		return writeError(c, h.Log, err)
	}
	snap, err := h.Svc.AcknowledgeSelection(c.Request().Context(), c.Param("laneId"), req.AcknowledgedBy)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session": snap, "acknowledgedBy": req.AcknowledgedBy})
}

// WaitlistInfo handles GET /lane/:laneId/waitlist-info?desiredTier=&currentTier=.
func (h *LaneHandler) WaitlistInfo(c echo.Context) error {
	desired := model.RentalType(c.QueryParam("desiredTier"))
	var current *model.RentalType
	if v := c.QueryParam("currentTier"); v != "" {
		rt := model.RentalType(v)
		current = &rt
	}
	info, err := h.Svc.WaitlistInfo(c.Request().Context(), c.Param("laneId"), desired, current)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, info)
}

type assignRequest struct {
	ResourceType model.ResourceType `json:"resourceType"`
	ResourceID   string             `json:"resourceId"`
}

// Assign handles POST /lane/:laneId/assign.  Losing a race answers 409; the
// lane's observers have already been told through assignment-failed.
func (h *LaneHandler) Assign(c echo.Context) error {
	var req assignRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	res, err := h.Svc.Assign(c.Request().Context(), service.AssignInput{
		LaneID:       c.Param("laneId"),
		StaffID:      middleware.StaffID(c),
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

type customerConfirmRequest struct {
	SessionID string `json:"sessionId"`
	Confirmed *bool  `json:"confirmed"`
}

// CustomerConfirm handles POST /lane/:laneId/customer-confirm.
func (h *LaneHandler) CustomerConfirm(c echo.Context) error {
	var req customerConfirmRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	if req.Confirmed == nil {
		return writeError(c, h.Log, apperr.Validation("confirmed is required"))
	}
	snap, err := h.Svc.CustomerConfirm(c.Request().Context(), service.CustomerConfirmInput{
		LaneID:    c.Param("laneId"),
		SessionID: req.SessionID,
		Confirmed: *req.Confirmed,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session": snap, "confirmed": *req.Confirmed})
}

// CreatePaymentIntent handles POST /lane/:laneId/create-payment-intent.
func (h *LaneHandler) CreatePaymentIntent(c echo.Context) error {
	res, err := h.Svc.CreatePaymentIntent(c.Request().Context(), c.Param("laneId"), middleware.StaffID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// MarkPaid handles POST /payments/:id/mark-paid.  Repeats answer 200 with
// alreadyPaid set.
func (h *LaneHandler) MarkPaid(c echo.Context) error {
	res, err := h.Svc.MarkPaid(c.Request().Context(), c.Param("id"), middleware.StaffID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

type signRequest struct {
	SignaturePayload string `json:"signaturePayload"`
}

// SignAgreement handles POST /lane/:laneId/sign-agreement.
func (h *LaneHandler) SignAgreement(c echo.Context) error {
	var req signRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	res, err := h.Svc.SignAgreement(c.Request().Context(), c.Param("laneId"), req.SignaturePayload)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// PastDueBypass handles POST /lane/:laneId/past-due-bypass.
func (h *LaneHandler) PastDueBypass(c echo.Context) error {
	snap, err := h.Svc.PastDueBypass(c.Request().Context(), c.Param("laneId"), middleware.StaffID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session": snap})
}

// Cancel handles POST /lane/:laneId/cancel.
func (h *LaneHandler) Cancel(c echo.Context) error {
	snap, err := h.Svc.Cancel(c.Request().Context(), c.Param("laneId"), middleware.StaffID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session": snap})
}

// Clear handles POST /lane/:laneId/clear.
func (h *LaneHandler) Clear(c echo.Context) error {
	snap, err := h.Svc.Clear(c.Request().Context(), c.Param("laneId"), middleware.StaffID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session": snap})
}
