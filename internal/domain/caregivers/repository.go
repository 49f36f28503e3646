package caregivers

import "context"

type Repository interface {
	Create(ctx context.Context, g Grant) error
	Update(ctx context.Context, g Grant) error
	GetByID(ctx context.Context, id string) (Grant, error)
	ListByPatient(ctx context.Context, patientID string) ([]Grant, error)
	ListByCaregiver(ctx context.Context, caregiverUserID string) ([]Grant, error)
	GetActiveGrant(ctx context.Context, patientID, caregiverUserID string) (Grant, error)
}
