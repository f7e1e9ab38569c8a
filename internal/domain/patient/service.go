package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/auth"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/hipaa"
	"github.com/AbhaySingh31/ai-discharge-instructions/pkg/datetime"
)

// TxRunner runs fn as one unit of work. *db.TxManager satisfies it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ActivityRecorder receives the audit-trail events produced by patient writes.
// Calls happen inside the caller's transaction.
type ActivityRecorder interface {
	LogMedicationChange(ctx context.Context, patientID, action, medication, performedBy string) error
	LogDiagnosisUpdate(ctx context.Context, patientID, diagnosis, performedBy string) error
	LogProcedure(ctx context.Context, patientID, procedure, performedBy string) error
	LogPatientUpdate(ctx context.Context, patientID string, changes map[string]interface{}, performedBy string) error
}

type Service struct {
	patients PatientRepository
	records  MedicalRecordRepository
	notes    DischargeNoteRepository
	tx       TxRunner
	activity ActivityRecorder
	logger   zerolog.Logger
}

func NewService(patients PatientRepository, records MedicalRecordRepository, notes DischargeNoteRepository,
	tx TxRunner, activity ActivityRecorder, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		records:  records,
		notes:    notes,
		tx:       tx,
		activity: activity,
		logger:   logger.With().Str("component", "patient").Logger(),
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.PatientID = strings.TrimSpace(p.PatientID)
	if p.PatientID == "" {
		return invalid("patient_id is required")
	}
	if p.DateOfBirth.IsZero() {
		return invalid("date_of_birth is required")
	}
	p.DateOfBirth = datetime.UTC(p.DateOfBirth)

	if _, err := s.patients.GetByPatientID(ctx, p.PatientID); err == nil {
		return ErrDuplicatePatient
	} else if !errors.Is(err, ErrPatientNotFound) {
		return fmt.Errorf("lookup patient: %w", err)
	}

	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("patient_hash", hipaa.HashPatientID(p.PatientID)).Msg("patient created")
	return nil
}

func (s *Service) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	return s.patients.GetByPatientID(ctx, patientID)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) SearchPatients(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.patients.List(ctx, limit, offset)
	}
	return s.patients.Search(ctx, query, limit, offset)
}

// UpdatePatient overwrites each non-nil field of u. Medication additions and
// removals, and any other changed fields, are written to the activity trail in
// the same transaction as the update.
func (s *Service) UpdatePatient(ctx context.Context, patientID string, u *PatientUpdate) (*Patient, error) {
	var updated *Patient
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.patients.GetByPatientID(ctx, patientID)
		if err != nil {
			return err
		}

		changes := applyUpdate(p, u)
		if changes.empty() {
			updated = p
			return nil
		}
		if err := s.patients.Update(ctx, p); err != nil {
			return err
		}
		if err := s.recordUpdate(ctx, p.PatientID, changes); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_hash", hipaa.HashPatientID(patientID)).Msg("patient updated")
	return updated, nil
}

type patientChanges struct {
	fields             []string
	medicationsAdded   []string
	medicationsRemoved []string
	historyAdded       []string
	historyRemoved     []string
}

func (c patientChanges) empty() bool { return len(c.fields) == 0 }

func applyUpdate(p *Patient, u *PatientUpdate) patientChanges {
	var c patientChanges
	set := func(name string) { c.fields = append(c.fields, name) }

	if u.FirstName != nil && *u.FirstName != p.FirstName {
		p.FirstName = *u.FirstName
		set("first_name")
	}
	if u.LastName != nil && *u.LastName != p.LastName {
		p.LastName = *u.LastName
		set("last_name")
	}
	if u.DateOfBirth != nil && !u.DateOfBirth.Equal(p.DateOfBirth) {
		p.DateOfBirth = datetime.UTC(*u.DateOfBirth)
		set("date_of_birth")
	}
	if u.Gender != nil && *u.Gender != p.Gender {
		p.Gender = *u.Gender
		set("gender")
	}
	if u.Phone != nil {
		p.Phone = u.Phone
		set("phone")
	}
	if u.Email != nil {
		p.Email = u.Email
		set("email")
	}
	if u.EmergencyContact != nil {
		p.EmergencyContact = u.EmergencyContact
		set("emergency_contact")
	}
	if u.MedicalHistory != nil {
		c.historyAdded, c.historyRemoved = diffNames(p.MedicalHistory, *u.MedicalHistory)
		p.MedicalHistory = *u.MedicalHistory
		set("medical_history")
	}
	if u.Allergies != nil {
		p.Allergies = *u.Allergies
		set("allergies")
	}
	if u.CurrentMedications != nil {
		c.medicationsAdded, c.medicationsRemoved = diffNames(medicationNames(p.CurrentMedications), medicationNames(*u.CurrentMedications))
		p.CurrentMedications = *u.CurrentMedications
		set("current_medications")
	}
	return c
}

func (s *Service) recordUpdate(ctx context.Context, patientID string, c patientChanges) error {
	if s.activity == nil {
		return nil
	}
	by := auth.UserIDFromContext(ctx)
	for _, name := range c.medicationsAdded {
		if err := s.activity.LogMedicationChange(ctx, patientID, "added", name, by); err != nil {
			return err
		}
	}
	for _, name := range c.medicationsRemoved {
		if err := s.activity.LogMedicationChange(ctx, patientID, "removed", name, by); err != nil {
			return err
		}
	}

	details := map[string]interface{}{"fields": c.fields}
	if len(c.historyAdded) > 0 {
		details["medical_history_added"] = c.historyAdded
	}
	if len(c.historyRemoved) > 0 {
		details["medical_history_removed"] = c.historyRemoved
	}
	return s.activity.LogPatientUpdate(ctx, patientID, details, by)
}

// diffNames returns the entries of next missing from prev, and of prev missing
// from next.
func diffNames(prev, next []string) (added, removed []string) {
	seen := make(map[string]bool, len(prev))
	for _, n := range prev {
		seen[n] = true
	}
	kept := make(map[string]bool, len(next))
	for _, n := range next {
		kept[n] = true
		if !seen[n] {
			added = append(added, n)
		}
	}
	for _, n := range prev {
		if !kept[n] {
			removed = append(removed, n)
		}
	}
	return added, removed
}

func medicationNames(meds []Medication) []string {
	names := make([]string, 0, len(meds))
	for _, m := range meds {
		names = append(names, m.Name)
	}
	return names
}

// DeletePatient removes the patient's discharge notes, then medical records,
// then the patient row, as one transaction.
func (s *Service) DeletePatient(ctx context.Context, patientID string) error {
	var notes, records int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByPatientID(ctx, patientID); err != nil {
			return err
		}
		var err error
		if notes, err = s.notes.DeleteByPatient(ctx, patientID); err != nil {
			return fmt.Errorf("delete discharge notes: %w", err)
		}
		if records, err = s.records.DeleteByPatient(ctx, patientID); err != nil {
			return fmt.Errorf("delete medical records: %w", err)
		}
		return s.patients.Delete(ctx, patientID)
	})
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("patient_hash", hipaa.HashPatientID(patientID)).
		Int64("discharge_notes", notes).
		Int64("medical_records", records).
		Msg("patient deleted with associated records")
	return nil
}

// PatientSummary returns the patient with all admissions and discharges,
// newest first.
func (s *Service) PatientSummary(ctx context.Context, patientID string) (*Summary, error) {
	p, err := s.patients.GetByPatientID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	records, err := s.records.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list medical records: %w", err)
	}
	notes, err := s.notes.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list discharge notes: %w", err)
	}

	sum := &Summary{
		Patient:         p,
		MedicalRecords:  records,
		DischargeNotes:  notes,
		TotalAdmissions: len(records),
	}
	if len(records) > 0 {
		sum.LatestAdmission = records[0]
	}
	if len(notes) > 0 {
		sum.LatestDischarge = notes[0]
	}
	return sum, nil
}

// -- Medical Record --

// CreateMedicalRecord stores r for an existing patient and logs the primary
// diagnosis and each procedure to the activity trail.
func (s *Service) CreateMedicalRecord(ctx context.Context, r *MedicalRecord) error {
	if r.AdmissionDate.IsZero() {
		return invalid("admission_date is required")
	}
	r.AdmissionDate, r.DischargeDate = datetime.UTC(r.AdmissionDate), datetime.UTCPtr(r.DischargeDate)
	if r.SeverityLevel == "" {
		r.SeverityLevel = SeverityModerate
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByPatientID(ctx, r.PatientID); err != nil {
			return err
		}
		if err := s.records.Create(ctx, r); err != nil {
			return err
		}
		if s.activity == nil {
			return nil
		}
		by := auth.UserIDFromContext(ctx)
		if err := s.activity.LogDiagnosisUpdate(ctx, r.PatientID, r.PrimaryDiagnosis, by); err != nil {
			return err
		}
		for _, proc := range r.ProceduresPerformed {
			if err := s.activity.LogProcedure(ctx, r.PatientID, proc, by); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("patient_hash", hipaa.HashPatientID(r.PatientID)).Int64("record_id", r.ID).Msg("medical record created")
	return nil
}

func (s *Service) GetMedicalRecord(ctx context.Context, id int64) (*MedicalRecord, error) {
	return s.records.GetByID(ctx, id)
}

// GetPatientRecord returns record id only when it belongs to patientID.
func (s *Service) GetPatientRecord(ctx context.Context, patientID string, id int64) (*MedicalRecord, error) {
	r, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.PatientID != patientID {
		return nil, ErrRecordNotFound
	}
	return r, nil
}

func (s *Service) ListMedicalRecords(ctx context.Context, patientID string) ([]*MedicalRecord, error) {
	return s.records.ListByPatient(ctx, patientID)
}

// -- Discharge Note --

// CreateDischargeNote requires both the patient and a medical record owned by
// that same patient.
func (s *Service) CreateDischargeNote(ctx context.Context, n *DischargeNote) error {
	if n.DischargeDate.IsZero() {
		return invalid("discharge_date is required")
	}
	n.DischargeDate = datetime.UTC(n.DischargeDate)
	if _, err := s.patients.GetByPatientID(ctx, n.PatientID); err != nil {
		return err
	}
	if _, err := s.GetPatientRecord(ctx, n.PatientID, n.MedicalRecordID); err != nil {
		return err
	}
	if err := s.notes.Create(ctx, n); err != nil {
		return err
	}
	s.logger.Info().Str("patient_hash", hipaa.HashPatientID(n.PatientID)).Int64("note_id", n.ID).Msg("discharge note created")
	return nil
}

func (s *Service) ListDischargeNotes(ctx context.Context, patientID string) ([]*DischargeNote, error) {
	return s.notes.ListByPatient(ctx, patientID)
}

func (s *Service) ListDischargeNotesByRecord(ctx context.Context, recordID int64) ([]*DischargeNote, error) {
	return s.notes.ListByRecord(ctx, recordID)
}

func (s *Service) LatestDischargeNote(ctx context.Context, patientID string) (*DischargeNote, error) {
	return s.notes.LatestByPatient(ctx, patientID)
}
