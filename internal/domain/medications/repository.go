package medications

import "context"

type Repository interface {
	// Create persiste el medicamento junto con sus reglas.
	Create(ctx context.Context, m Medication) error
	// Update reemplaza los campos y hace upsert de m.Schedules (por ID).
	Update(ctx context.Context, m Medication) error
	GetByID(ctx context.Context, id string) (Medication, error)
	ListByPatient(ctx context.Context, patientID string, includeInactive bool) ([]Medication, error)
	// PatientsWithActiveMedications devuelve los pacientes con al menos un
	// medicamento activo con alguna regla activa.
	PatientsWithActiveMedications(ctx context.Context) ([]string, error)
}
