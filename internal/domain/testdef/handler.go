package testdef

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
		api.POST("/test-definitions", h.Create)
		api.GET("/test-definitions", h.List)
		api.GET("/test-definitions/:id", h.Get)
		api.PUT("/test-definitions/:id", h.Update)
		api.DELETE("/test-definitions/:id", h.Delete)
		api.POST("/test-definitions/:id/measurements", h.CreateMeasurement)
		api.GET("/test-definitions/:id/measurements", h.ListMeasurements)
		api.DELETE("/measurements/:id", h.DeleteMeasurement)
		api.POST("/test-definitions/:id/specimens", h.CreateSpecimen)
		api.GET("/test-definitions/:id/specimens", h.ListSpecimens)
		api.DELETE("/specimens/:id", h.DeleteSpecimen)
	case config.RoleCRO:
		api.GET("/test-definitions", h.ListShared)
		api.GET("/test-definitions/:id", h.GetShared)
		api.GET("/test-definitions/:id/measurements", h.ListMeasurements)
		api.GET("/test-definitions/:id/specimens", h.ListSpecimens)
	}
}

func (h *Handler) Create(c echo.Context) error {
	var td TestDefinition
	if err := c.Bind(&td); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.Create(c.Request().Context(), &td)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Get(c echo.Context) error {
	td, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, td)
}

func (h *Handler) GetShared(c echo.Context) error {
	td, err := h.svc.GetShared(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, td)
}

func (h *Handler) Update(c echo.Context) error {
	var td TestDefinition
	if err := c.Bind(&td); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.Update(c.Request().Context(), c.Param("id"), &td)
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
	protocolID := c.QueryParam("protocol_id")
	items, err := h.svc.List(c.Request().Context(), protocolID, sharedOnly)
	if err != nil {
		return mapError(err)
	}
	pg := pagination.FromContext(c)
	start, end := pg.Slice(len(items))
	return c.JSON(http.StatusOK, pagination.NewResponse(items[start:end], len(items), pg.Limit, pg.Offset))
}

func (h *Handler) CreateMeasurement(c echo.Context) error {
	var m Measurement
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.TestID = c.Param("id")
	created, err := h.svc.CreateMeasurement(c.Request().Context(), &m)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListMeasurements(c echo.Context) error {
	items, err := h.svc.ListMeasurements(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DeleteMeasurement(c echo.Context) error {
	if err := h.svc.DeleteMeasurement(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateSpecimen(c echo.Context) error {
	var sp Specimen
	if err := c.Bind(&sp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sp.TestID = c.Param("id")
	created, err := h.svc.CreateSpecimen(c.Request().Context(), &sp)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListSpecimens(c echo.Context) error {
	items, err := h.svc.ListSpecimens(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DeleteSpecimen(c echo.Context) error {
	if err := h.svc.DeleteSpecimen(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
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
