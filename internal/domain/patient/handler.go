package patient

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/auth"
	"github.com/AbhaySingh31/ai-discharge-instructions/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole(auth.RoleClinician))

	clinical.POST("/patients", h.CreatePatient)
	clinical.GET("/patients", h.ListPatients)
	clinical.GET("/patients/search/:query", h.SearchPatients)
	clinical.GET("/patients/:id", h.GetPatient)
	clinical.PUT("/patients/:id", h.UpdatePatient)
	clinical.DELETE("/patients/:id", h.DeletePatient)
	clinical.GET("/patients/:id/summary", h.GetPatientSummary)

	clinical.POST("/medical-records", h.CreateMedicalRecord)
	clinical.GET("/medical-records/:patient_id", h.ListMedicalRecords)
	clinical.GET("/medical-records/record/:id", h.GetMedicalRecord)

	clinical.POST("/discharge-notes", h.CreateDischargeNote)
	clinical.GET("/discharge-notes/:patient_id", h.ListDischargeNotes)
}

// bind decodes and validates the request body into v.
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

func patientNotFound(id string) error {
	return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("Patient with ID %s not found", id))
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := bind(c, &p); err != nil {
		return err
	}
	err := h.svc.CreatePatient(c.Request().Context(), &p)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, p)
	case errors.Is(err, ErrDuplicatePatient):
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Patient with ID %s already exists", p.PatientID))
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}

func (h *Handler) GetPatient(c echo.Context) error {
	id := c.Param("id")
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if errors.Is(err, ErrPatientNotFound) {
		return patientNotFound(id)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// ListPatients pages through all patients, or through search matches when
// ?search= is given.
func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.SearchPatients(c.Request().Context(), c.QueryParam("search"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	pagination.SetTotal(c, total)
	return c.JSON(http.StatusOK, nonNil(patients))
}

func (h *Handler) SearchPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, _, err := h.svc.SearchPatients(c.Request().Context(), c.Param("query"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(patients))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id := c.Param("id")
	var u PatientUpdate
	if err := bind(c, &u); err != nil {
		return err
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, &u)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, p)
	case errors.Is(err, ErrPatientNotFound):
		return patientNotFound(id)
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id := c.Param("id")
	err := h.svc.DeletePatient(c.Request().Context(), id)
	if errors.Is(err, ErrPatientNotFound) {
		return patientNotFound(id)
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetPatientSummary(c echo.Context) error {
	id := c.Param("id")
	sum, err := h.svc.PatientSummary(c.Request().Context(), id)
	if errors.Is(err, ErrPatientNotFound) {
		return patientNotFound(id)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

// -- Medical Record Handlers --

func (h *Handler) CreateMedicalRecord(c echo.Context) error {
	var r MedicalRecord
	if err := bind(c, &r); err != nil {
		return err
	}
	err := h.svc.CreateMedicalRecord(c.Request().Context(), &r)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, r)
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Patient with ID %s not found", r.PatientID))
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}

func (h *Handler) ListMedicalRecords(c echo.Context) error {
	records, err := h.svc.ListMedicalRecords(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(records))
}

func (h *Handler) GetMedicalRecord(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.GetMedicalRecord(c.Request().Context(), id)
	if errors.Is(err, ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Medical record not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

// -- Discharge Note Handlers --

func (h *Handler) CreateDischargeNote(c echo.Context) error {
	var n DischargeNote
	if err := bind(c, &n); err != nil {
		return err
	}
	err := h.svc.CreateDischargeNote(c.Request().Context(), &n)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, n)
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Patient with ID %s not found", n.PatientID))
	case errors.Is(err, ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("Medical record %d not found for patient %s", n.MedicalRecordID, n.PatientID))
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}

func (h *Handler) ListDischargeNotes(c echo.Context) error {
	notes, err := h.svc.ListDischargeNotes(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(notes))
}

// nonNil keeps empty lists serialized as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
