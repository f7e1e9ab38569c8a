package assistant

import (
	"errors"
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

	clinical.POST("/generate-instructions/:patient_id", h.GenerateInstructions)
	clinical.POST("/ask-question/:patient_id", h.AskQuestion)
	clinical.POST("/ask-question-enhanced/:patient_id", h.AskQuestionEnhanced)
	clinical.POST("/generate-quick-discharge/:patient_id", h.QuickDischarge)
	clinical.GET("/patients/:id/safe-summary", h.SafeSummary)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, patient.ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, patient.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Medical record not found for this patient")
	case errors.Is(err, patient.ErrNoteNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Discharge note not found for this medical record")
	case errors.Is(err, ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, "Question is required")
	case errors.Is(err, ErrLLMUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "AI service is not available. OpenRouter API key is not configured.")
	}
	return err
}

func recordID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.QueryParam("medical_record_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "medical_record_id must be a positive integer")
	}
	return id, nil
}

func (h *Handler) GenerateInstructions(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return err
	}
	instr, err := h.svc.GenerateInstructions(c.Request().Context(), c.Param("patient_id"), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, instr)
}

func (h *Handler) AskQuestion(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return err
	}
	resp, err := h.svc.AskQuestion(c.Request().Context(), c.Param("patient_id"), c.QueryParam("question"), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) AskQuestionEnhanced(c echo.Context) error {
	var req QuestionRequest
	if err := c.Bind(&req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.AskQuestionEnhanced(c.Request().Context(), c.Param("patient_id"), req.Question)
	if errors.Is(err, ErrLLMUnavailable) {
		return c.JSON(http.StatusServiceUnavailable, UnavailableResponse(req.Question))
	}
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) QuickDischarge(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.QuickDischargeSummary(c.Request().Context(), c.Param("patient_id"), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) SafeSummary(c echo.Context) error {
	out, err := h.svc.SafeSummary(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, out)
}
