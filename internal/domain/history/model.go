package history

import (
	"encoding/json"
	"time"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/domain/patient"
	"github.com/AbhaySingh31/ai-discharge-instructions/pkg/datetime"
)

const (
	ActivityAdmission            = "admission"
	ActivityDischarge            = "discharge"
	ActivityUpdate               = "update"
	ActivityMedicationAdded      = "medication_added"
	ActivityMedicationRemoved    = "medication_removed"
	ActivityDiagnosisUpdated     = "diagnosis_updated"
	ActivityProcedurePerformed   = "procedure_performed"
	ActivityVisitScheduled       = "visit_scheduled"
	ActivityVisitCompleted       = "visit_completed"
	ActivityInstructionGenerated = "instruction_generated"
	ActivityQuestionAsked        = "question_asked"
)

const (
	VisitActive      = "active"
	VisitDischarged  = "discharged"
	VisitTransferred = "transferred"
)

const (
	StatusInpatient  = "inpatient"
	StatusOutpatient = "outpatient"
)

var activityTypes = map[string]bool{
	ActivityAdmission:            true,
	ActivityDischarge:            true,
	ActivityUpdate:               true,
	ActivityMedicationAdded:      true,
	ActivityMedicationRemoved:    true,
	ActivityDiagnosisUpdated:     true,
	ActivityProcedurePerformed:   true,
	ActivityVisitScheduled:       true,
	ActivityVisitCompleted:       true,
	ActivityInstructionGenerated: true,
	ActivityQuestionAsked:        true,
}

// ValidActivityType reports whether t is one of the Activity* constants.
func ValidActivityType(t string) bool {
	return activityTypes[t]
}

type Activity struct {
	ID           int64                  `json:"id"`
	PatientID    string                 `json:"patient_id"`
	ActivityType string                 `json:"activity_type" validate:"required"`
	Description  string                 `json:"description" validate:"notblank"`
	Details      map[string]interface{} `json:"details"`
	PerformedBy  *string                `json:"performed_by"`
	Timestamp    time.Time              `json:"timestamp"`
}

type Visit struct {
	ID                   int64      `json:"id"`
	PatientID            string     `json:"patient_id"`
	VisitNumber          string     `json:"visit_number" validate:"notblank,max=64"`
	AdmissionDate        time.Time  `json:"admission_date"`
	DischargeDate        *time.Time `json:"discharge_date"`
	VisitType            string     `json:"visit_type" validate:"notblank,max=64"`
	Department           *string    `json:"department"`
	AttendingPhysician   *string    `json:"attending_physician"`
	Status               string     `json:"status"`
	ChiefComplaint       *string    `json:"chief_complaint"`
	VisitSummary         *string    `json:"visit_summary"`
	DischargeDisposition *string    `json:"discharge_disposition"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type VisitUpdate struct {
	DischargeDate        *time.Time `json:"discharge_date"`
	Status               *string    `json:"status" validate:"omitempty,oneof=active discharged transferred"`
	VisitSummary         *string    `json:"visit_summary"`
	DischargeDisposition *string    `json:"discharge_disposition"`
	AttendingPhysician   *string    `json:"attending_physician"`
}

type TimelineEvent struct {
	ID               int64                  `json:"id"`
	PatientID        string                 `json:"patient_id"`
	VisitID          *int64                 `json:"visit_id"`
	EventType        string                 `json:"event_type" validate:"notblank,max=64"`
	EventTitle       string                 `json:"event_title" validate:"notblank,max=255"`
	EventDescription *string                `json:"event_description"`
	EventDate        time.Time              `json:"event_date"`
	Severity         *string                `json:"severity"`
	Category         *string                `json:"category"`
	PerformedBy      *string                `json:"performed_by"`
	Location         *string                `json:"location"`
	EventData        map[string]interface{} `json:"event_data"`
	CreatedAt        time.Time              `json:"created_at"`
}

type ComprehensiveHistory struct {
	Patient             *patient.Patient         `json:"patient"`
	Visits              []*Visit                 `json:"visits"`
	Activities          []*Activity              `json:"activities"`
	Timeline            []*TimelineEvent         `json:"timeline"`
	MedicalRecords      []*patient.MedicalRecord `json:"medical_records"`
	DischargeNotes      []*patient.DischargeNote `json:"discharge_notes"`
	TotalVisits         int                      `json:"total_visits"`
	TotalDaysInHospital int                      `json:"total_days_in_hospital"`
	LastVisitDate       *time.Time               `json:"last_visit_date"`
	CurrentStatus       string                   `json:"current_status"`
}

func (v *Visit) UnmarshalJSON(b []byte) error {
	type alias Visit
	aux := struct {
		*alias
		AdmissionDate datetime.Time  `json:"admission_date"`
		DischargeDate *datetime.Time `json:"discharge_date"`
	}{alias: (*alias)(v)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	v.AdmissionDate, v.DischargeDate = aux.AdmissionDate.Time, aux.DischargeDate.Ptr()
	return nil
}

func (u *VisitUpdate) UnmarshalJSON(b []byte) error {
	type alias VisitUpdate
	aux := struct {
		*alias
		DischargeDate *datetime.Time `json:"discharge_date"`
	}{alias: (*alias)(u)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	u.DischargeDate = aux.DischargeDate.Ptr()
	return nil
}

func (e *TimelineEvent) UnmarshalJSON(b []byte) error {
	type alias TimelineEvent
	aux := struct {
		*alias
		EventDate datetime.Time `json:"event_date"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.EventDate = aux.EventDate.Time
	return nil
}
