package history

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/domain/patient"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole(auth.RoleClinician))

	clinical.GET("/patients/:id/comprehensive-history", h.GetComprehensiveHistory)
	clinical.POST("/patients/:id/activities", h.LogActivity)
	clinical.GET("/patients/:id/activities", h.ListActivities)
	clinical.POST("/patients/:id/visits", h.CreateVisit)
	clinical.GET("/patients/:id/visits", h.ListVisits)
	clinical.PUT("/patients/:id/visits/:visit_id", h.UpdateVisit)
	clinical.POST("/patients/:id/timeline", h.AddTimelineEvent)
	clinical.GET("/patients/:id/timeline", h.ListTimeline)
}

// mapError turns service errors into HTTP errors. Unclassified errors pass
// through to the echo error handler as 500s.
func mapError(err error, patientID string) error {
	switch {
	case errors.Is(err, patient.ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("Patient with ID %s not found", patientID))
	case errors.Is(err, ErrVisitNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Visit not found")
	case errors.Is(err, ErrDuplicateVisit):
		return echo.NewHTTPError(http.StatusBadRequest, "Visit number already exists")
	case errors.Is(err, ErrInvalidActivityType), errors.Is(err, patient.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

// bindError keeps echo's own 400 as it is so the message is not nested.
func bindError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return bindError(err)
	}
	if err := c.Validate(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func queryLimit(c echo.Context, def int) int {
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		return n
	}
	return def
}

func (h *Handler) GetComprehensiveHistory(c echo.Context) error {
	id := c.Param("id")
	hist, err := h.svc.ComprehensiveHistory(c.Request().Context(), id)
	if err != nil {
		return mapError(err, id)
	}
	return c.JSON(http.StatusOK, hist)
}

func (h *Handler) LogActivity(c echo.Context) error {
	id := c.Param("id")
	var a Activity
	if err := bind(c, &a); err != nil {
		return err
	}
	a.PatientID = id
	if a.PerformedBy == nil {
		a.PerformedBy = optional(auth.UserIDFromContext(c.Request().Context()))
	}
	if err := h.svc.LogActivity(c.Request().Context(), &a); err != nil {
		return mapError(err, id)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListActivities(c echo.Context) error {
	items, err := h.svc.ListActivities(c.Request().Context(), c.Param("id"), queryLimit(c, DefaultActivityLimit))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) CreateVisit(c echo.Context) error {
	id := c.Param("id")
	var v Visit
	if err := bind(c, &v); err != nil {
		return err
	}
	v.PatientID = id
	if err := h.svc.CreateVisit(c.Request().Context(), &v); err != nil {
		return mapError(err, id)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) ListVisits(c echo.Context) error {
	items, err := h.svc.ListVisits(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) UpdateVisit(c echo.Context) error {
	id := c.Param("id")
	visitID, err := strconv.ParseInt(c.Param("visit_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit_id")
	}
	var u VisitUpdate
	if err := bind(c, &u); err != nil {
		return err
	}
	v, err := h.svc.UpdateVisit(c.Request().Context(), id, visitID, &u)
	if err != nil {
		return mapError(err, id)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) AddTimelineEvent(c echo.Context) error {
	id := c.Param("id")
	var e TimelineEvent
	if err := bind(c, &e); err != nil {
		return err
	}
	e.PatientID = id
	if err := h.svc.AddTimelineEvent(c.Request().Context(), &e); err != nil {
		return mapError(err, id)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) ListTimeline(c echo.Context) error {
	items, err := h.svc.ListTimeline(c.Request().Context(), c.Param("id"), queryLimit(c, DefaultTimelineLimit))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(items))
}
