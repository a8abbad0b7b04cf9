package result

import (
	"encoding/json"
	"errors"
	"io"
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

// RegisterRoutes wires the role's result surface. CROs capture and share
// results; sponsors and regulators read what was shared with them.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	switch h.role {
	case config.RoleCRO:
		api.POST("/results", h.Create)
		api.GET("/results", h.List)
		api.GET("/results/:id", h.Get)
		api.PUT("/results/:id", h.Update)
		api.DELETE("/results/:id", h.Delete)
		api.POST("/results/:id/share", h.Share)
		api.POST("/results/external", h.ReceiveExternal)
	case config.RoleSponsor:
		api.GET("/results/shared", h.ListShared)
		api.POST("/results/external", h.ReceiveExternal)
		api.GET("/results/:id", h.GetShared)
	case config.RoleRegulator:
		api.GET("/results", h.ListShared)
		api.GET("/results/:id", h.GetShared)
	}
}

func (h *Handler) Create(c echo.Context) error {
	var r TestResult
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.Create(c.Request().Context(), &r)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Get(c echo.Context) error {
	r, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) GetShared(c echo.Context) error {
	r, err := h.svc.GetShared(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Update(c echo.Context) error {
	var r TestResult
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.Update(c.Request().Context(), c.Param("id"), &r)
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

func (h *Handler) Share(c echo.Context) error {
	outcome, err := h.svc.Share(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) ReceiveExternal(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.ReceiveExternal(c.Request().Context(), json.RawMessage(raw))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) List(c echo.Context) error {
	return h.list(c, false)
}

func (h *Handler) ListShared(c echo.Context) error {
	return h.list(c, true)
}

func (h *Handler) list(c echo.Context, sharedOnly bool) error {
	filter := ListFilter{
		ProtocolID:       c.QueryParam("protocol_id"),
		BatchID:          c.QueryParam("batch_id"),
		TestDefinitionID: c.QueryParam("test_definition_id"),
		TimepointID:      c.QueryParam("timepoint_id"),
		SharedOnly:       sharedOnly,
	}
	items, err := h.svc.List(c.Request().Context(), filter)
	if err != nil {
		return mapError(err)
	}
	pg := pagination.FromContext(c)
	start, end := pg.Slice(len(items))
	return c.JSON(http.StatusOK, pagination.NewResponse(items[start:end], len(items), pg.Limit, pg.Offset))
}

func mapError(err error) error {
	if errors.Is(err, ErrResultLocked) || errors.Is(err, ErrNotShared) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	var re *fhirclient.RepositoryError
	if errors.As(err, &re) {
		return echo.NewHTTPError(re.Status, re.Body)
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
