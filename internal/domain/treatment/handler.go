package treatment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/auth"
	"github.com/therapy/clinic/internal/reconcile"
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
	read := api.Group("/visits", auth.RequireCapability(auth.ViewPatients))
	read.GET("", h.ListVisits)
	read.GET("/:id", h.GetVisit)
	read.GET("/:id/points", h.ListPoints)

	write := api.Group("/visits", auth.RequireCapability(auth.RecordTreatments))
	write.POST("", h.RecordVisit)
	write.PUT("/:id", h.UpdateVisit)
	write.PUT("/:id/points", h.ReconcilePoints)
	write.DELETE("/:id", h.DeleteVisit)
}

type pointsResponse struct {
	Summary reconcile.Summary   `json:"summary"`
	Points  []*MeasurementPoint `json:"points"`
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// currentTherapist is the authenticated account id, when it is one.
func currentTherapist(c echo.Context) uuid.UUID {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (h *Handler) RecordVisit(c echo.Context) error {
	var req VisitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	v := req.visit()
	if v.TherapistID == uuid.Nil {
		v.TherapistID = currentTherapist(c)
	}
	if v.VisitDate.IsZero() {
		v.VisitDate = h.today()
	}
	var points []PointInput
	if req.Points != nil {
		points = *req.Points
	}

	out, err := h.svc.RecordVisit(c.Request().Context(), v, points)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetVisit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.GetVisit(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListVisits(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id query parameter is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListVisitsForPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListPoints(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pts, err := h.svc.ListPoints(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if pts == nil {
		pts = []*MeasurementPoint{}
	}
	return c.JSON(http.StatusOK, pts)
}

func (h *Handler) UpdateVisit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req VisitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	v := req.visit()
	v.ID = id

	ctx := c.Request().Context()
	_, summary, err := h.svc.UpdateTreatmentVisit(ctx, v, req.Points)
	if err != nil {
		return apperr.HTTPError(err)
	}
	out, err := h.svc.GetVisit(ctx, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if summary != nil {
		c.Response().Header().Set("X-Reconcile-Summary", summary.String())
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ReconcilePoints(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req PointsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return apperr.HTTPError(err)
	}

	ctx := c.Request().Context()
	summary, err := h.svc.ReconcilePoints(ctx, id, *req.Points)
	if err != nil {
		return apperr.HTTPError(err)
	}
	pts, err := h.svc.ListPoints(ctx, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if pts == nil {
		pts = []*MeasurementPoint{}
	}
	return c.JSON(http.StatusOK, pointsResponse{Summary: summary, Points: pts})
}

func (h *Handler) DeleteVisit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	points, err := h.svc.DeleteTreatmentVisit(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"visit_id": id, "points": points})
}
