package history

import (
	"context"
	"errors"
)

var (
	ErrVisitNotFound       = errors.New("visit not found")
	ErrDuplicateVisit      = errors.New("visit number already exists")
	ErrInvalidActivityType = errors.New("invalid activity type")
)

type ActivityRepository interface {
	Create(ctx context.Context, a *Activity) error
	// ListByPatient returns the newest limit activities.
	ListByPatient(ctx context.Context, patientID string, limit int) ([]*Activity, error)
}

type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id int64) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	// ListByPatient orders by admission_date, newest first.
	ListByPatient(ctx context.Context, patientID string) ([]*Visit, error)
}

type TimelineRepository interface {
	Create(ctx context.Context, e *TimelineEvent) error
	// ListByPatient returns the newest limit events by event_date.
	ListByPatient(ctx context.Context, patientID string, limit int) ([]*TimelineEvent, error)
}
