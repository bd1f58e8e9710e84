package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clubdesk/internal/middleware"
	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/service"
)

// InventoryHandler exposes the resource ledger.
type InventoryHandler struct {
	Svc *service.Service
	Log zerolog.Logger
}

// NewInventoryHandler panics if svc is nil.
func NewInventoryHandler(svc *service.Service, log zerolog.Logger) *InventoryHandler {
	if svc == nil {
		panic("nil service passed to NewInventoryHandler")
	}
	return &InventoryHandler{Svc: svc, Log: log.With().Str("component", "inventory_handler").Logger()}
}

// List handles GET /inventory.
func (h *InventoryHandler) List(c echo.Context) error {
	inv, err := h.Svc.Inventory(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, inv)
}

type resourceStatusRequest struct {
	Status model.ResourceStatus `json:"status"`
}

// SetStatus handles POST /resources/:type/:id/status.
func (h *InventoryHandler) SetStatus(c echo.Context) error {
	var req resourceStatusRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	r, err := h.Svc.SetResourceStatus(c.Request().Context(),
		model.ResourceType(c.Param("type")), c.Param("id"), req.Status, middleware.StaffID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"resource": r})
}
