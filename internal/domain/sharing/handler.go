package sharing

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/junejamohit13/fhir-cmc-app/internal/config"
	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhirclient"
)

type Handler struct {
	svc  *Service
	role string
}

func NewHandler(svc *Service, role string) *Handler {
	return &Handler{svc: svc, role: role}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	switch h.role {
	case config.RoleSponsor:
		api.POST("/protocols/:id/share", h.Share)
		api.GET("/protocols/:id/shares", h.ListShares)
	case config.RoleCRO:
		api.POST("/sponsor/shared-resources", h.Receive)
	}
}

// Share runs the workflow and answers 200 even when some organizations
// failed; callers inspect the per-organization results.
func (h *Handler) Share(c echo.Context) error {
	var req ShareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.Share(c.Request().Context(), c.Param("id"), &req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListShares(c echo.Context) error {
	shares, err := h.svc.ListShares(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, shares)
}

func (h *Handler) Receive(c echo.Context) error {
	var bundle fhir.Bundle
	if err := c.Bind(&bundle); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.Receive(c.Request().Context(), &bundle)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func mapError(err error) error {
	var re *fhirclient.RepositoryError
	if errors.As(err, &re) {
		return echo.NewHTTPError(re.Status, re.Body)
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
