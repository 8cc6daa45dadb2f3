package stats

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/stats", auth.RequireCapability(auth.ViewStatistics))
	g.GET("/summary", h.GetSummary)
	g.GET("/monthly", h.GetMonthly)
}

func (h *Handler) GetSummary(c echo.Context) error {
	out, err := h.svc.Summary(c.Request().Context(), c.QueryParam("window"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// GetMonthly defaults to the current year.
func (h *Handler) GetMonthly(c echo.Context) error {
	year := h.svc.now().Year()
	if y := c.QueryParam("year"); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
		year = n
	}
	out, err := h.svc.Monthly(c.Request().Context(), year)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}
