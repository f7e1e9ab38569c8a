package patient

import (
	"context"
	"errors"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrDuplicatePatient = errors.New("patient already exists")
	ErrRecordNotFound   = errors.New("medical record not found")
	ErrNoteNotFound     = errors.New("discharge note not found")
	ErrInvalid          = errors.New("invalid request")
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByPatientID(ctx context.Context, patientID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, patientID string) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	// Search matches query case-insensitively as a substring of first_name,
	// last_name or patient_id.
	Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error)
}

type MedicalRecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id int64) (*MedicalRecord, error)
	// ListByPatient orders by admission_date, newest first.
	ListByPatient(ctx context.Context, patientID string) ([]*MedicalRecord, error)
	DeleteByPatient(ctx context.Context, patientID string) (int64, error)
}

type DischargeNoteRepository interface {
	Create(ctx context.Context, n *DischargeNote) error
	// ListByPatient and ListByRecord order by discharge_date, newest first.
	ListByPatient(ctx context.Context, patientID string) ([]*DischargeNote, error)
	ListByRecord(ctx context.Context, recordID int64) ([]*DischargeNote, error)
	LatestByPatient(ctx context.Context, patientID string) (*DischargeNote, error)
	DeleteByPatient(ctx context.Context, patientID string) (int64, error)
}
