package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/domain/patient"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/hipaa"
	"github.com/AbhaySingh31/ai-discharge-instructions/pkg/datetime"
)

const (
	DefaultActivityLimit = 50
	DefaultTimelineLimit = 100

	questionPreviewLen = 100
)

type Service struct {
	activities ActivityRepository
	visits     VisitRepository
	timeline   TimelineRepository
	patients   patient.PatientRepository
	records    patient.MedicalRecordRepository
	notes      patient.DischargeNoteRepository
	tx         patient.TxRunner
	logger     zerolog.Logger
}

func NewService(activities ActivityRepository, visits VisitRepository, timeline TimelineRepository,
	patients patient.PatientRepository, records patient.MedicalRecordRepository, notes patient.DischargeNoteRepository,
	tx patient.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		activities: activities,
		visits:     visits,
		timeline:   timeline,
		patients:   patients,
		records:    records,
		notes:      notes,
		tx:         tx,
		logger:     logger.With().Str("component", "history").Logger(),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", patient.ErrInvalid, fmt.Sprintf(format, args...))
}

// -- Activities --

// LogActivity appends a to the patient's audit trail. The activity type must
// be known and the patient must exist.
func (s *Service) LogActivity(ctx context.Context, a *Activity) error {
	if !ValidActivityType(a.ActivityType) {
		return fmt.Errorf("%w: %q", ErrInvalidActivityType, a.ActivityType)
	}
	if strings.TrimSpace(a.Description) == "" {
		return invalid("description is required")
	}
	if _, err := s.patients.GetByPatientID(ctx, a.PatientID); err != nil {
		return err
	}
	a.Timestamp = time.Now().UTC()
	if err := s.activities.Create(ctx, a); err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	s.logger.Debug().
		Str("patient_hash", hipaa.HashPatientID(a.PatientID)).
		Str("activity_type", a.ActivityType).
		Fields(hipaa.SanitizeForLogging(a.Details)).
		Msg("activity logged")
	return nil
}

func (s *Service) ListActivities(ctx context.Context, patientID string, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	return s.activities.ListByPatient(ctx, patientID, limit)
}

func (s *Service) log(ctx context.Context, patientID, activityType, description string, details map[string]interface{}, performedBy string) error {
	return s.LogActivity(ctx, &Activity{
		PatientID:    patientID,
		ActivityType: activityType,
		Description:  description,
		Details:      details,
		PerformedBy:  optional(performedBy),
	})
}

func (s *Service) LogMedicationChange(ctx context.Context, patientID, action, medication, performedBy string) error {
	kind := ActivityMedicationRemoved
	if action == "added" {
		kind = ActivityMedicationAdded
	}
	return s.log(ctx, patientID, kind,
		fmt.Sprintf("Medication %s: %s", action, medication),
		map[string]interface{}{"medication": medication, "action": action},
		performedBy)
}

func (s *Service) LogDiagnosisUpdate(ctx context.Context, patientID, diagnosis, performedBy string) error {
	return s.log(ctx, patientID, ActivityDiagnosisUpdated,
		"Diagnosis updated: "+diagnosis,
		map[string]interface{}{"diagnosis": diagnosis},
		performedBy)
}

func (s *Service) LogProcedure(ctx context.Context, patientID, procedure, performedBy string) error {
	return s.log(ctx, patientID, ActivityProcedurePerformed,
		"Procedure performed: "+procedure,
		map[string]interface{}{"procedure": procedure},
		performedBy)
}

func (s *Service) LogPatientUpdate(ctx context.Context, patientID string, changes map[string]interface{}, performedBy string) error {
	return s.log(ctx, patientID, ActivityUpdate, "Patient record updated", changes, performedBy)
}

func (s *Service) LogInstructionGeneration(ctx context.Context, patientID, instructionType, performedBy string) error {
	return s.log(ctx, patientID, ActivityInstructionGenerated,
		"Discharge instructions generated: "+instructionType,
		map[string]interface{}{"instruction_type": instructionType},
		performedBy)
}

func (s *Service) LogQuestionAsked(ctx context.Context, patientID, question, performedBy string) error {
	return s.log(ctx, patientID, ActivityQuestionAsked,
		"Question asked about patient care",
		map[string]interface{}{"question_preview": QuestionPreview(question)},
		performedBy)
}

// QuestionPreview truncates question to 100 characters followed by "...".
func QuestionPreview(question string) string {
	r := []rune(question)
	if len(r) <= questionPreviewLen {
		return question
	}
	return string(r[:questionPreviewLen]) + "..."
}

// -- Visits --

// CreateVisit opens an active visit and records the admission.
func (s *Service) CreateVisit(ctx context.Context, v *Visit) error {
	if v.AdmissionDate.IsZero() {
		return invalid("admission_date is required")
	}
	v.Status = VisitActive
	v.DischargeDate = nil
	v.AdmissionDate = datetime.UTC(v.AdmissionDate)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByPatientID(ctx, v.PatientID); err != nil {
			return err
		}
		if err := s.visits.Create(ctx, v); err != nil {
			return err
		}
		return s.log(ctx, v.PatientID, ActivityAdmission,
			fmt.Sprintf("Patient admitted for %s visit", v.VisitType),
			map[string]interface{}{
				"visit_number":    v.VisitNumber,
				"department":      v.Department,
				"chief_complaint": v.ChiefComplaint,
			},
			deref(v.AttendingPhysician))
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("patient_hash", hipaa.HashPatientID(v.PatientID)).Str("visit_number", v.VisitNumber).Msg("visit created")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// UpdateVisit applies u to visit id of patientID. A discharge date is only
// accepted while the visit has none, and marks it discharged. Any other
// provided field overwrites the stored value. The update and its activity
// rows commit together.
func (s *Service) UpdateVisit(ctx context.Context, patientID string, id int64, u *VisitUpdate) (*Visit, error) {
	var visit *Visit
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		v, err := s.visits.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if patientID != "" && v.PatientID != patientID {
			return ErrVisitNotFound
		}

		by := deref(u.AttendingPhysician)
		changes := map[string]interface{}{}

		if u.DischargeDate != nil && v.DischargeDate == nil {
			d := datetime.UTC(*u.DischargeDate)
			v.DischargeDate = &d
			v.Status = VisitDischarged
			changes["discharge_date"] = d.Format(time.RFC3339)
			if err := s.log(ctx, v.PatientID, ActivityDischarge,
				fmt.Sprintf("Patient discharged from visit %s", v.VisitNumber),
				map[string]interface{}{
					"visit_number":          v.VisitNumber,
					"discharge_disposition": u.DischargeDisposition,
				}, by); err != nil {
				return err
			}
		}
		if u.Status != nil && *u.Status != "" {
			v.Status = *u.Status
			changes["status"] = *u.Status
		}
		if u.VisitSummary != nil && *u.VisitSummary != "" {
			v.VisitSummary = u.VisitSummary
			changes["visit_summary"] = "Updated"
		}
		if u.DischargeDisposition != nil && *u.DischargeDisposition != "" {
			v.DischargeDisposition = u.DischargeDisposition
			changes["discharge_disposition"] = *u.DischargeDisposition
		}
		if u.AttendingPhysician != nil && *u.AttendingPhysician != "" {
			v.AttendingPhysician = u.AttendingPhysician
			changes["attending_physician"] = *u.AttendingPhysician
		}

		if err := s.visits.Update(ctx, v); err != nil {
			return err
		}
		if len(changes) > 0 {
			if err := s.log(ctx, v.PatientID, ActivityUpdate,
				fmt.Sprintf("Visit %s updated", v.VisitNumber), changes, by); err != nil {
				return err
			}
		}
		visit = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_hash", hipaa.HashPatientID(visit.PatientID)).Str("visit_number", visit.VisitNumber).Msg("visit updated")
	return visit, nil
}

func (s *Service) ListVisits(ctx context.Context, patientID string) ([]*Visit, error) {
	return s.visits.ListByPatient(ctx, patientID)
}

// -- Timeline --

func (s *Service) AddTimelineEvent(ctx context.Context, e *TimelineEvent) error {
	if e.EventDate.IsZero() {
		return invalid("event_date is required")
	}
	e.EventDate = datetime.UTC(e.EventDate)
	if _, err := s.patients.GetByPatientID(ctx, e.PatientID); err != nil {
		return err
	}
	if e.VisitID != nil {
		v, err := s.visits.GetByID(ctx, *e.VisitID)
		if err != nil {
			return err
		}
		if v.PatientID != e.PatientID {
			return ErrVisitNotFound
		}
	}
	if err := s.timeline.Create(ctx, e); err != nil {
		return err
	}
	s.logger.Info().Str("patient_hash", hipaa.HashPatientID(e.PatientID)).Str("event_type", e.EventType).Msg("timeline event added")
	return nil
}

func (s *Service) ListTimeline(ctx context.Context, patientID string, limit int) ([]*TimelineEvent, error) {
	if limit <= 0 {
		limit = DefaultTimelineLimit
	}
	return s.timeline.ListByPatient(ctx, patientID, limit)
}

// -- Comprehensive History --

func (s *Service) ComprehensiveHistory(ctx context.Context, patientID string) (*ComprehensiveHistory, error) {
	p, err := s.patients.GetByPatientID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	visits, err := s.visits.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	activities, err := s.ListActivities(ctx, patientID, DefaultActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	timeline, err := s.ListTimeline(ctx, patientID, DefaultTimelineLimit)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	records, err := s.records.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list medical records: %w", err)
	}
	notes, err := s.notes.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list discharge notes: %w", err)
	}

	h := &ComprehensiveHistory{
		Patient:             p,
		Visits:              nonNil(visits),
		Activities:          nonNil(activities),
		Timeline:            nonNil(timeline),
		MedicalRecords:      nonNil(records),
		DischargeNotes:      nonNil(notes),
		TotalVisits:         len(visits),
		TotalDaysInHospital: DaysInHospital(visits),
		CurrentStatus:       CurrentStatus(visits),
	}
	for _, v := range visits {
		if h.LastVisitDate == nil || v.AdmissionDate.After(*h.LastVisitDate) {
			d := v.AdmissionDate
			h.LastVisitDate = &d
		}
	}
	return h, nil
}

// DaysInHospital sums whole days between admission and discharge over the
// discharged visits, counting every stay as at least one day.
func DaysInHospital(visits []*Visit) int {
	total := 0
	for _, v := range visits {
		if v.DischargeDate == nil || v.AdmissionDate.IsZero() {
			continue
		}
		days := int(v.DischargeDate.Sub(v.AdmissionDate).Hours() / 24)
		if days < 1 {
			days = 1
		}
		total += days
	}
	return total
}

// CurrentStatus is inpatient while any visit is still active.
func CurrentStatus(visits []*Visit) string {
	for _, v := range visits {
		if v.Status == VisitActive {
			return StatusInpatient
		}
	}
	return StatusOutpatient
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
