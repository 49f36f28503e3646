package doselog

import (
	"context"
	"time"
)

type Repository interface {
	// Append agrega la entrada aplicando CheckAppend sobre las entradas del
	// mismo slot, de forma atómica respecto de otros Append del slot.
	Append(ctx context.Context, e Entry) error
	GetByID(ctx context.Context, id string) (Entry, error)
	ListByPatient(ctx context.Context, patientID string, filter ListFilter) ([]Entry, error)
}

// ListFilter filtra por ActionAt en [From, To). Limit 0 = sin límite.
type ListFilter struct {
	From         *time.Time
	To           *time.Time
	MedicationID string
	Limit        int
}
