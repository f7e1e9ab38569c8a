package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/db"
)

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, patient_id, first_name, last_name, date_of_birth, gender, phone, email,
	emergency_contact, medical_history, allergies, current_medications, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	normalizePatient(p)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (
			patient_id, first_name, last_name, date_of_birth, gender, phone, email,
			emergency_contact, medical_history, allergies, current_medications
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at`,
		p.PatientID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Phone, p.Email,
		p.EmergencyContact, p.MedicalHistory, p.Allergies, p.CurrentMedications,
	).Scan(&p.ID, &p.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicatePatient
	}
	return err
}

func (r *patientRepoPG) GetByPatientID(ctx context.Context, patientID string) (*Patient, error) {
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE patient_id = $1`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	normalizePatient(p)
	now := time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, date_of_birth=$4, gender=$5, phone=$6, email=$7,
			emergency_contact=$8, medical_history=$9, allergies=$10, current_medications=$11, updated_at=$12
		WHERE patient_id = $1`,
		p.PatientID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Phone, p.Email,
		p.EmergencyContact, p.MedicalHistory, p.Allergies, p.CurrentMedications, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	p.UpdatedAt = &now
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, patientID string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patients WHERE patient_id = $1`, patientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+patientCols+` FROM patients ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	patients, err := collectPatients(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("patient list: %w", err)
	}
	return patients, total, nil
}

func (r *patientRepoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	pattern := "%" + escapeLike(query) + "%"
	where := ` WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR patient_id ILIKE $1`

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+patientCols+` FROM patients`+where+` ORDER BY last_name, first_name LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	patients, err := collectPatients(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("patient search: %w", err)
	}
	return patients, total, nil
}

// escapeLike makes query match literally inside an ILIKE pattern.
func escapeLike(query string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
}

func normalizePatient(p *Patient) {
	if p.MedicalHistory == nil {
		p.MedicalHistory = []string{}
	}
	if p.Allergies == nil {
		p.Allergies = []Allergy{}
	}
	if p.CurrentMedications == nil {
		p.CurrentMedications = []Medication{}
	}
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.PatientID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.Phone, &p.Email,
		&p.EmergencyContact, &p.MedicalHistory, &p.Allergies, &p.CurrentMedications, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPatients(rows pgx.Rows) ([]*Patient, error) {
	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// -- Medical Record Repository --

type medicalRecordRepoPG struct {
	pool *pgxpool.Pool
}

func NewMedicalRecordRepo(pool *pgxpool.Pool) MedicalRecordRepository {
	return &medicalRecordRepoPG{pool: pool}
}

const recordCols = `id, patient_id, admission_date, discharge_date, primary_diagnosis, secondary_diagnoses,
	procedures_performed, treatment_summary, physician_notes, nursing_notes, lab_results, vital_signs,
	severity_level, visit_id, created_at, updated_at`

func (r *medicalRecordRepoPG) Create(ctx context.Context, m *MedicalRecord) error {
	if m.SecondaryDiagnoses == nil {
		m.SecondaryDiagnoses = []string{}
	}
	if m.ProceduresPerformed == nil {
		m.ProceduresPerformed = []string{}
	}
	if m.LabResults == nil {
		m.LabResults = []LabResult{}
	}
	if m.VitalSigns == nil {
		m.VitalSigns = []VitalSigns{}
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medical_records (
			patient_id, admission_date, discharge_date, primary_diagnosis, secondary_diagnoses,
			procedures_performed, treatment_summary, physician_notes, nursing_notes, lab_results,
			vital_signs, severity_level, visit_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at`,
		m.PatientID, m.AdmissionDate, m.DischargeDate, m.PrimaryDiagnosis, m.SecondaryDiagnoses,
		m.ProceduresPerformed, m.TreatmentSummary, m.PhysicianNotes, m.NursingNotes, m.LabResults,
		m.VitalSigns, m.SeverityLevel, m.VisitID,
	).Scan(&m.ID, &m.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return ErrPatientNotFound
	}
	return err
}

func (r *medicalRecordRepoPG) GetByID(ctx context.Context, id int64) (*MedicalRecord, error) {
	m, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM medical_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return m, err
}

func (r *medicalRecordRepoPG) ListByPatient(ctx context.Context, patientID string) ([]*MedicalRecord, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+recordCols+` FROM medical_records WHERE patient_id = $1 ORDER BY admission_date DESC, id DESC`,
		patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*MedicalRecord
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, m)
	}
	return records, rows.Err()
}

func (r *medicalRecordRepoPG) DeleteByPatient(ctx context.Context, patientID string) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM medical_records WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var m MedicalRecord
	err := row.Scan(
		&m.ID, &m.PatientID, &m.AdmissionDate, &m.DischargeDate, &m.PrimaryDiagnosis, &m.SecondaryDiagnoses,
		&m.ProceduresPerformed, &m.TreatmentSummary, &m.PhysicianNotes, &m.NursingNotes, &m.LabResults, &m.VitalSigns,
		&m.SeverityLevel, &m.VisitID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// -- Discharge Note Repository --

type dischargeNoteRepoPG struct {
	pool *pgxpool.Pool
}

func NewDischargeNoteRepo(pool *pgxpool.Pool) DischargeNoteRepository {
	return &dischargeNoteRepoPG{pool: pool}
}

const noteCols = `id, patient_id, medical_record_id, discharge_summary, medications_at_discharge,
	follow_up_instructions, activity_restrictions, diet_instructions, warning_signs,
	discharge_physician, discharge_date, created_at`

func (r *dischargeNoteRepoPG) Create(ctx context.Context, n *DischargeNote) error {
	if n.MedicationsAtDischarge == nil {
		n.MedicationsAtDischarge = []Medication{}
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO discharge_notes (
			patient_id, medical_record_id, discharge_summary, medications_at_discharge,
			follow_up_instructions, activity_restrictions, diet_instructions, warning_signs,
			discharge_physician, discharge_date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, created_at`,
		n.PatientID, n.MedicalRecordID, n.DischargeSummary, n.MedicationsAtDischarge,
		n.FollowUpInstructions, n.ActivityRestrictions, n.DietInstructions, n.WarningSigns,
		n.DischargePhysician, n.DischargeDate,
	).Scan(&n.ID, &n.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return ErrRecordNotFound
	}
	return err
}

func (r *dischargeNoteRepoPG) ListByPatient(ctx context.Context, patientID string) ([]*DischargeNote, error) {
	return r.list(ctx, `WHERE patient_id = $1`, patientID)
}

func (r *dischargeNoteRepoPG) ListByRecord(ctx context.Context, recordID int64) ([]*DischargeNote, error) {
	return r.list(ctx, `WHERE medical_record_id = $1`, recordID)
}

func (r *dischargeNoteRepoPG) LatestByPatient(ctx context.Context, patientID string) (*DischargeNote, error) {
	n, err := scanNote(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+noteCols+` FROM discharge_notes WHERE patient_id = $1 ORDER BY discharge_date DESC, id DESC LIMIT 1`,
		patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	return n, err
}

func (r *dischargeNoteRepoPG) DeleteByPatient(ctx context.Context, patientID string) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM discharge_notes WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *dischargeNoteRepoPG) list(ctx context.Context, where string, arg interface{}) ([]*DischargeNote, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+noteCols+` FROM discharge_notes `+where+` ORDER BY discharge_date DESC, id DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*DischargeNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func scanNote(row pgx.Row) (*DischargeNote, error) {
	var n DischargeNote
	err := row.Scan(
		&n.ID, &n.PatientID, &n.MedicalRecordID, &n.DischargeSummary, &n.MedicationsAtDischarge,
		&n.FollowUpInstructions, &n.ActivityRestrictions, &n.DietInstructions, &n.WarningSigns,
		&n.DischargePhysician, &n.DischargeDate, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
