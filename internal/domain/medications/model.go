package medications

import (
	"time"

	"medication-reminder/pkg/schedule"
)

// Medication es un medicamento registrado para un paciente.
// No se borra físicamente: SoftDelete lo marca inactivo para que el
// historial de tomas que lo referencia siga siendo válido.
type Medication struct {
	ID        string
	PatientID string

	Name         string
	Dosage       string // "500 mg", "10 ml"
	Presentation string // comprimido, jarabe, etc. (opcional)
	Instructions string
	Color        string // para la UI (opcional)

	Active    bool
	Schedules []ScheduleRule

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// ScheduleRule pertenece a un único medicamento. Al editar los horarios las
// reglas viejas quedan inactivas (superseded) en vez de borrarse.
type ScheduleRule struct {
	ID           string
	MedicationID string

	TimeOfDay     schedule.TimeOfDay // UTC
	Frequency     schedule.FrequencyKind
	IntervalHours int   // solo HOURLY
	DaysOfWeek    []int // solo WEEKLY, 0=domingo

	Active    bool
	CreatedAt time.Time
}

// Rule convierte a la representación del core.
func (r ScheduleRule) Rule() schedule.Rule {
	return schedule.Rule{
		ID:            r.ID,
		MedicationID:  r.MedicationID,
		TimeOfDay:     r.TimeOfDay,
		Kind:          r.Frequency,
		IntervalHours: r.IntervalHours,
		DaysOfWeek:    append([]int(nil), r.DaysOfWeek...),
		Active:        r.Active,
	}
}

// ActiveSchedules filtra las reglas vigentes.
func (m Medication) ActiveSchedules() []ScheduleRule {
	out := make([]ScheduleRule, 0, len(m.Schedules))
	for _, s := range m.Schedules {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}
