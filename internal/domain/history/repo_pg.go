package history

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/domain/patient"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/db"
)

// -- Activity Repository --

type activityRepoPG struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepoPG{pool: pool}
}

const activityCols = `id, patient_id, activity_type, description, details, performed_by, timestamp`

func (r *activityRepoPG) Create(ctx context.Context, a *Activity) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_activities (patient_id, activity_type, description, details, performed_by, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id`,
		a.PatientID, a.ActivityType, a.Description, a.Details, a.PerformedBy, a.Timestamp,
	).Scan(&a.ID)
	if db.IsForeignKeyViolation(err) {
		return patient.ErrPatientNotFound
	}
	return err
}

func (r *activityRepoPG) ListByPatient(ctx context.Context, patientID string, limit int) ([]*Activity, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+activityCols+` FROM patient_activities WHERE patient_id = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`,
		patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.PatientID, &a.ActivityType, &a.Description, &a.Details, &a.PerformedBy, &a.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// -- Visit Repository --

type visitRepoPG struct {
	pool *pgxpool.Pool
}

func NewVisitRepo(pool *pgxpool.Pool) VisitRepository {
	return &visitRepoPG{pool: pool}
}

const visitCols = `id, patient_id, visit_number, admission_date, discharge_date, visit_type, department,
	attending_physician, status, chief_complaint, visit_summary, discharge_disposition, created_at, updated_at`

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_visits (
			patient_id, visit_number, admission_date, discharge_date, visit_type, department,
			attending_physician, status, chief_complaint, visit_summary, discharge_disposition,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`,
		v.PatientID, v.VisitNumber, v.AdmissionDate, v.DischargeDate, v.VisitType, v.Department,
		v.AttendingPhysician, v.Status, v.ChiefComplaint, v.VisitSummary, v.DischargeDisposition,
		v.CreatedAt, v.UpdatedAt,
	).Scan(&v.ID)
	switch {
	case db.IsUniqueViolation(err):
		return ErrDuplicateVisit
	case db.IsForeignKeyViolation(err):
		return patient.ErrPatientNotFound
	}
	return err
}

func (r *visitRepoPG) GetByID(ctx context.Context, id int64) (*Visit, error) {
	v, err := scanVisit(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+visitCols+` FROM patient_visits WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVisitNotFound
	}
	return v, err
}

func (r *visitRepoPG) Update(ctx context.Context, v *Visit) error {
	v.UpdatedAt = time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient_visits SET discharge_date=$2, status=$3, visit_summary=$4, discharge_disposition=$5,
			attending_physician=$6, updated_at=$7
		WHERE id = $1`,
		v.ID, v.DischargeDate, v.Status, v.VisitSummary, v.DischargeDisposition, v.AttendingPhysician, v.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVisitNotFound
	}
	return nil
}

func (r *visitRepoPG) ListByPatient(ctx context.Context, patientID string) ([]*Visit, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+visitCols+` FROM patient_visits WHERE patient_id = $1 ORDER BY admission_date DESC, id DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(
		&v.ID, &v.PatientID, &v.VisitNumber, &v.AdmissionDate, &v.DischargeDate, &v.VisitType, &v.Department,
		&v.AttendingPhysician, &v.Status, &v.ChiefComplaint, &v.VisitSummary, &v.DischargeDisposition,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// -- Timeline Repository --

type timelineRepoPG struct {
	pool *pgxpool.Pool
}

func NewTimelineRepo(pool *pgxpool.Pool) TimelineRepository {
	return &timelineRepoPG{pool: pool}
}

const timelineCols = `id, patient_id, visit_id, event_type, event_title, event_description, event_date,
	severity, category, performed_by, location, event_data, created_at`

func (r *timelineRepoPG) Create(ctx context.Context, e *TimelineEvent) error {
	e.CreatedAt = time.Now().UTC()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_timeline (
			patient_id, visit_id, event_type, event_title, event_description, event_date,
			severity, category, performed_by, location, event_data, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`,
		e.PatientID, e.VisitID, e.EventType, e.EventTitle, e.EventDescription, e.EventDate,
		e.Severity, e.Category, e.PerformedBy, e.Location, e.EventData, e.CreatedAt,
	).Scan(&e.ID)
	if db.IsForeignKeyViolation(err) {
		return ErrVisitNotFound
	}
	return err
}

func (r *timelineRepoPG) ListByPatient(ctx context.Context, patientID string, limit int) ([]*TimelineEvent, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+timelineCols+` FROM patient_timeline WHERE patient_id = $1 ORDER BY event_date DESC, id DESC LIMIT $2`,
		patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TimelineEvent
	for rows.Next() {
		var e TimelineEvent
		if err := rows.Scan(
			&e.ID, &e.PatientID, &e.VisitID, &e.EventType, &e.EventTitle, &e.EventDescription, &e.EventDate,
			&e.Severity, &e.Category, &e.PerformedBy, &e.Location, &e.EventData, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
