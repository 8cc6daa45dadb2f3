package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/auth"
	"github.com/therapy/clinic/pkg/caldate"
	"github.com/therapy/clinic/pkg/pagination"
)

type Handler struct {
	svc   *Service
	today func() caldate.Date
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, today: caldate.Today}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/patients", auth.RequireCapability(auth.ViewPatients))
	read.GET("", h.ListPatients)
	read.GET("/:id", h.GetPatient)
	read.GET("/:id/conditions", h.ListConditions)

	write := api.Group("/patients", auth.RequireCapability(auth.ManagePatients))
	write.POST("", h.RegisterPatient)
	write.PUT("/:id", h.UpdatePatient)
	write.PUT("/:id/conditions", h.ReconcileConditions)
	write.DELETE("/:id", h.DeletePatient)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var req PatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec := req.record()
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = h.today()
	}
	var conds []ConditionInput
	if req.Conditions != nil {
		conds = *req.Conditions
	}

	p, err := h.svc.RegisterPatient(c.Request().Context(), rec, conds)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// ListPatients filters by ?q=; ?national_id= looks up a single record.
func (h *Handler) ListPatients(c echo.Context) error {
	if nid := c.QueryParam("national_id"); nid != "" {
		p, err := h.svc.GetPatientByNationalID(c.Request().Context(), nid)
		if err != nil {
			return apperr.HTTPError(err)
		}
		return c.JSON(http.StatusOK, p)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListConditions(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	conds, err := h.svc.ListConditions(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if conds == nil {
		conds = []*ConditionEntry{}
	}
	return c.JSON(http.StatusOK, conds)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req PatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec := req.record()
	rec.ID = id

	ctx := c.Request().Context()
	_, summary, err := h.svc.UpdatePatientRecord(ctx, rec, req.Conditions)
	if err != nil {
		return apperr.HTTPError(err)
	}
	p, err := h.svc.GetPatient(ctx, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if summary != nil {
		c.Response().Header().Set("X-Reconcile-Summary", summary.String())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ReconcileConditions(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ConditionsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return apperr.HTTPError(err)
	}

	ctx := c.Request().Context()
	summary, err := h.svc.ReconcileConditions(ctx, id, *req.Conditions)
	if err != nil {
		return apperr.HTTPError(err)
	}
	conds, err := h.svc.ListConditions(ctx, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if conds == nil {
		conds = []*ConditionEntry{}
	}
	return c.JSON(http.StatusOK, ConditionsResponse{Summary: summary, Conditions: conds})
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.DeletePatientRecord(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}
