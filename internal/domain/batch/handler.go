package batch

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/junejamohit13/fhir-cmc-app/internal/config"
	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhirclient"
	"github.com/junejamohit13/fhir-cmc-app/pkg/pagination"
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
		api.POST("/batches", h.Create)
		api.GET("/batches", h.List)
		api.GET("/batches/:id", h.Get)
		api.PUT("/batches/:id", h.Update)
		api.DELETE("/batches/:id", h.Delete)
	case config.RoleCRO:
		api.GET("/batches", h.ListShared)
		api.GET("/batches/:id", h.GetShared)
	}
}

func (h *Handler) Create(c echo.Context) error {
	var b Batch
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.Create(c.Request().Context(), &b)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Get(c echo.Context) error {
	b, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) GetShared(c echo.Context) error {
	b, err := h.svc.GetShared(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Update(c echo.Context) error {
	var b Batch
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.Update(c.Request().Context(), c.Param("id"), &b)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	return h.list(c, false)
}

func (h *Handler) ListShared(c echo.Context) error {
	return h.list(c, true)
}

func (h *Handler) list(c echo.Context, sharedOnly bool) error {
	items, err := h.svc.List(c.Request().Context(), c.QueryParam("protocol_id"), sharedOnly)
	if err != nil {
		return mapError(err)
	}
	pg := pagination.FromContext(c)
	start, end := pg.Slice(len(items))
	return c.JSON(http.StatusOK, pagination.NewResponse(items[start:end], len(items), pg.Limit, pg.Offset))
}

func mapError(err error) error {
	if errors.Is(err, ErrNotShared) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	var re *fhirclient.RepositoryError
	if errors.As(err, &re) {
		return echo.NewHTTPError(re.Status, re.Body)
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
