package doselog

import (
	"fmt"
	"time"

	"medication-reminder/pkg/schedule"
)

type ActorType string

const (
	ActorTypePatient   ActorType = "PATIENT"
	ActorTypeCaregiver ActorType = "CAREGIVER"
)

type Actor struct {
	Type ActorType
	ID   string
}

// Entry es un hecho histórico: una vez escrita no se modifica ni se borra.
// Las correcciones se escriben como una entrada nueva con SupersedesID.
type Entry struct {
	ID        string
	PatientID string

	MedicationID   string
	ScheduleRuleID string // opcional

	ScheduledFor time.Time // instante del slot, truncado al minuto (UTC)
	Action       schedule.Action
	ActionAt     time.Time
	Note         string

	Actor        Actor
	SupersedesID string
}

// SlotKey identifica el slot (medicamento, scheduledFor al minuto).
func SlotKey(medicationID string, scheduledFor time.Time) string {
	return fmt.Sprintf("%s|%s", medicationID, scheduledFor.UTC().Truncate(time.Minute).Format(time.RFC3339))
}

func (e Entry) SlotKey() string {
	return SlotKey(e.MedicationID, e.ScheduledFor)
}

// LogEntry es la vista que consume el conciliador.
func (e Entry) LogEntry() schedule.LogEntry {
	return schedule.LogEntry{
		EntryID:        e.ID,
		MedicationID:   e.MedicationID,
		ScheduleRuleID: e.ScheduleRuleID,
		ScheduledFor:   e.ScheduledFor,
		Action:         e.Action,
		ActionAt:       e.ActionAt,
	}
}

// ToLogEntries convierte en bloque para el conciliador.
func ToLogEntries(entries []Entry) []schedule.LogEntry {
	out := make([]schedule.LogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.LogEntry())
	}
	return out
}
