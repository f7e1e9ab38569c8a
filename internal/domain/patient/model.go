package patient

import (
	"encoding/json"
	"time"

	"github.com/AbhaySingh31/ai-discharge-instructions/pkg/datetime"
)

const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

const (
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

type EmergencyContact struct {
	Name         string  `json:"name" validate:"notblank"`
	Relationship string  `json:"relationship" validate:"notblank"`
	Phone        string  `json:"phone" validate:"notblank"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
}

type Allergy struct {
	Allergen string `json:"allergen" validate:"notblank"`
	Reaction string `json:"reaction" validate:"notblank"`
	Severity string `json:"severity" validate:"oneof=low moderate high critical"`
}

type Medication struct {
	Name         string     `json:"name" validate:"notblank"`
	Dosage       string     `json:"dosage" validate:"notblank"`
	Frequency    string     `json:"frequency" validate:"notblank"`
	Route        string     `json:"route" validate:"notblank"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Instructions *string    `json:"instructions,omitempty"`
}

// LabResult status is one of normal, abnormal or critical by convention but is
// stored as entered.
type LabResult struct {
	TestName       string    `json:"test_name" validate:"notblank"`
	Value          string    `json:"value" validate:"required"`
	Unit           string    `json:"unit"`
	ReferenceRange string    `json:"reference_range"`
	Status         string    `json:"status" validate:"required"`
	RecordedAt     time.Time `json:"recorded_at"`
}

type VitalSigns struct {
	Temperature            *float64  `json:"temperature,omitempty"`
	BloodPressureSystolic  *int      `json:"blood_pressure_systolic,omitempty"`
	BloodPressureDiastolic *int      `json:"blood_pressure_diastolic,omitempty"`
	HeartRate              *int      `json:"heart_rate,omitempty"`
	RespiratoryRate        *int      `json:"respiratory_rate,omitempty"`
	OxygenSaturation       *float64  `json:"oxygen_saturation,omitempty"`
	RecordedAt             time.Time `json:"recorded_at"`
}

// Patient is keyed externally by PatientID; ID is the database surrogate.
type Patient struct {
	ID                 int64             `json:"id"`
	PatientID          string            `json:"patient_id" validate:"required,identifier"`
	FirstName          string            `json:"first_name" validate:"notblank,max=255"`
	LastName           string            `json:"last_name" validate:"notblank,max=255"`
	DateOfBirth        time.Time         `json:"date_of_birth"`
	Gender             string            `json:"gender" validate:"oneof=male female other unknown"`
	Phone              *string           `json:"phone"`
	Email              *string           `json:"email" validate:"omitempty,email"`
	EmergencyContact   *EmergencyContact `json:"emergency_contact"`
	MedicalHistory     []string          `json:"medical_history"`
	Allergies          []Allergy         `json:"allergies" validate:"dive"`
	CurrentMedications []Medication      `json:"current_medications" validate:"dive"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          *time.Time        `json:"updated_at"`
}

// FullName is only for display in operator-facing output. It never goes into
// prompts sent to the completion API.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// AgeAt returns the patient's age in whole years at t.
func (p *Patient) AgeAt(t time.Time) int {
	dob := p.DateOfBirth
	age := t.Year() - dob.Year()
	if t.Month() < dob.Month() || (t.Month() == dob.Month() && t.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// PatientUpdate carries the mutable patient fields. Nil fields are left as
// they are.
type PatientUpdate struct {
	FirstName          *string           `json:"first_name" validate:"omitempty,notblank,max=255"`
	LastName           *string           `json:"last_name" validate:"omitempty,notblank,max=255"`
	DateOfBirth        *time.Time        `json:"date_of_birth"`
	Gender             *string           `json:"gender" validate:"omitempty,oneof=male female other unknown"`
	Phone              *string           `json:"phone"`
	Email              *string           `json:"email" validate:"omitempty,email"`
	EmergencyContact   *EmergencyContact `json:"emergency_contact"`
	MedicalHistory     *[]string         `json:"medical_history"`
	Allergies          *[]Allergy        `json:"allergies" validate:"omitempty,dive"`
	CurrentMedications *[]Medication     `json:"current_medications" validate:"omitempty,dive"`
}

type MedicalRecord struct {
	ID                  int64        `json:"id"`
	PatientID           string       `json:"patient_id" validate:"required,identifier"`
	AdmissionDate       time.Time    `json:"admission_date"`
	DischargeDate       *time.Time   `json:"discharge_date"`
	PrimaryDiagnosis    string       `json:"primary_diagnosis" validate:"notblank,max=512"`
	SecondaryDiagnoses  []string     `json:"secondary_diagnoses"`
	ProceduresPerformed []string     `json:"procedures_performed"`
	TreatmentSummary    string       `json:"treatment_summary" validate:"notblank"`
	PhysicianNotes      *string      `json:"physician_notes"`
	NursingNotes        *string      `json:"nursing_notes"`
	LabResults          []LabResult  `json:"lab_results" validate:"dive"`
	VitalSigns          []VitalSigns `json:"vital_signs" validate:"dive"`
	SeverityLevel       string       `json:"severity_level" validate:"omitempty,oneof=low moderate high critical"`
	VisitID             *int64       `json:"visit_id,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           *time.Time   `json:"updated_at"`
}

type DischargeNote struct {
	ID                     int64        `json:"id"`
	PatientID              string       `json:"patient_id" validate:"required,identifier"`
	MedicalRecordID        int64        `json:"medical_record_id" validate:"gt=0"`
	DischargeSummary       string       `json:"discharge_summary" validate:"notblank"`
	MedicationsAtDischarge []Medication `json:"medications_at_discharge" validate:"dive"`
	FollowUpInstructions   *string      `json:"follow_up_instructions"`
	ActivityRestrictions   *string      `json:"activity_restrictions"`
	DietInstructions       *string      `json:"diet_instructions"`
	WarningSigns           *string      `json:"warning_signs"`
	DischargePhysician     *string      `json:"discharge_physician"`
	DischargeDate          time.Time    `json:"discharge_date"`
	CreatedAt              time.Time    `json:"created_at"`
}

// Summary is the per-patient rollup served by GET /patients/:id/summary.
type Summary struct {
	Patient         *Patient         `json:"patient"`
	MedicalRecords  []*MedicalRecord `json:"medical_records"`
	DischargeNotes  []*DischargeNote `json:"discharge_notes"`
	TotalAdmissions int              `json:"total_admissions"`
	LatestAdmission *MedicalRecord   `json:"latest_admission"`
	LatestDischarge *DischargeNote   `json:"latest_discharge"`
}

// Request bodies may carry dates as RFC 3339, naive ISO date-times or bare
// dates. The decoders below shadow each date field with datetime.Time.

func (m *Medication) UnmarshalJSON(b []byte) error {
	type alias Medication
	aux := struct {
		*alias
		StartDate *datetime.Time `json:"start_date"`
		EndDate   *datetime.Time `json:"end_date"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	m.StartDate, m.EndDate = aux.StartDate.Ptr(), aux.EndDate.Ptr()
	return nil
}

func (l *LabResult) UnmarshalJSON(b []byte) error {
	type alias LabResult
	aux := struct {
		*alias
		RecordedAt datetime.Time `json:"recorded_at"`
	}{alias: (*alias)(l)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	l.RecordedAt = aux.RecordedAt.Time
	return nil
}

func (v *VitalSigns) UnmarshalJSON(b []byte) error {
	type alias VitalSigns
	aux := struct {
		*alias
		RecordedAt datetime.Time `json:"recorded_at"`
	}{alias: (*alias)(v)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	v.RecordedAt = aux.RecordedAt.Time
	return nil
}

func (p *Patient) UnmarshalJSON(b []byte) error {
	type alias Patient
	aux := struct {
		*alias
		DateOfBirth datetime.Time `json:"date_of_birth"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.DateOfBirth = aux.DateOfBirth.Time
	return nil
}

func (u *PatientUpdate) UnmarshalJSON(b []byte) error {
	type alias PatientUpdate
	aux := struct {
		*alias
		DateOfBirth *datetime.Time `json:"date_of_birth"`
	}{alias: (*alias)(u)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	u.DateOfBirth = aux.DateOfBirth.Ptr()
	return nil
}

func (r *MedicalRecord) UnmarshalJSON(b []byte) error {
	type alias MedicalRecord
	aux := struct {
		*alias
		AdmissionDate datetime.Time  `json:"admission_date"`
		DischargeDate *datetime.Time `json:"discharge_date"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.AdmissionDate, r.DischargeDate = aux.AdmissionDate.Time, aux.DischargeDate.Ptr()
	return nil
}

func (n *DischargeNote) UnmarshalJSON(b []byte) error {
	type alias DischargeNote
	aux := struct {
		*alias
		DischargeDate datetime.Time `json:"discharge_date"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	n.DischargeDate = aux.DischargeDate.Time
	return nil
}
