package product

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
	// Only the sponsor maintains the product catalogue.
	if h.role != config.RoleSponsor {
		return
	}
	api.POST("/products", h.Create)
	api.GET("/products", h.List)
	api.GET("/products/:id", h.Get)
	api.PUT("/products/:id", h.Update)
	api.DELETE("/products/:id", h.Delete)
}

func (h *Handler) Create(c echo.Context) error {
	var p Product
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

func (h *Handler) Update(c echo.Context) error {
	var p Product
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
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	pg := pagination.FromContext(c)
	start, end := pg.Slice(len(items))
	return c.JSON(http.StatusOK, pagination.NewResponse(items[start:end], len(items), pg.Limit, pg.Offset))
}

func mapError(err error) error {
	var re *fhirclient.RepositoryError
	if errors.As(err, &re) {
		return echo.NewHTTPError(re.Status, re.Body)
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
