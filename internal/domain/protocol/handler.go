package protocol

import (
	"context"
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

// RegisterRoutes wires the role's protocol surface. Sponsors author
// protocols; CROs and regulators only see what was shared with them.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	switch h.role {
	case config.RoleSponsor:
		api.POST("/protocols", h.Create)
		api.GET("/protocols", h.List)
		api.GET("/protocols/:id", h.Get)
		api.PUT("/protocols/:id", h.Update)
		api.DELETE("/protocols/:id", h.Delete)
	case config.RoleCRO:
		api.GET("/protocols", h.ListShared)
		api.GET("/protocols/:id", h.GetShared)
	case config.RoleRegulator:
		api.GET("/protocols", h.ListShared)
		api.GET("/protocols/:id", h.GetShared)
	}
}

func (h *Handler) Create(c echo.Context) error {
	var p Protocol
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.Create(c.Request().Context(), &p)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Get(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetShared(c echo.Context) error {
	p, err := h.svc.GetShared(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Update(c echo.Context) error {
	var p Protocol
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.Update(c.Request().Context(), c.Param("id"), &p)
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
	return h.listWith(c, h.svc.List)
}

func (h *Handler) ListShared(c echo.Context) error {
	return h.listWith(c, h.svc.ListShared)
}

func (h *Handler) listWith(c echo.Context, list func(ctx context.Context) ([]*Protocol, error)) error {
	items, err := list(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	pg := pagination.FromContext(c)
	start, end := pg.Slice(len(items))
	return c.JSON(http.StatusOK, pagination.NewResponse(items[start:end], len(items), pg.Limit, pg.Offset))
}

// mapError translates service errors into HTTP responses: repository status
// codes pass through, visibility failures become 403.
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
