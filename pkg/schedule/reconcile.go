package schedule

import (
	"fmt"
	"sort"
	"time"
)

// DefaultPostponeWindow es cuánto tarda en volver a disparar una dosis pospuesta.
const DefaultPostponeWindow = 10 * time.Minute

// Action es lo que el paciente hizo con una ocurrencia.
type Action string

const (
	ActionTaken     Action = "TAKEN"
	ActionSkipped   Action = "SKIPPED"
	ActionPostponed Action = "POSTPONED"
)

func (a Action) Valid() bool {
	switch a {
	case ActionTaken, ActionSkipped, ActionPostponed:
		return true
	default:
		return false
	}
}

// Terminal: TAKEN y SKIPPED cierran el slot, nunca se vuelve a emitir.
func (a Action) Terminal() bool {
	return a == ActionTaken || a == ActionSkipped
}

// LogEntry es la vista mínima de una entrada del registro que necesita el conciliador.
type LogEntry struct {
	// EntryID desempata entradas con el mismo ActionAt (gana el mayor).
	EntryID string

	MedicationID   string
	ScheduleRuleID string // opcional

	ScheduledFor time.Time
	Action       Action
	ActionAt     time.Time
}

// Occurrence es un disparo concreto de una regla. Se calcula al vuelo, no se persiste.
type Occurrence struct {
	MedicationID   string
	ScheduleRuleID string

	ScheduledAt time.Time
	Postponed   bool

	// SlotFor es el instante programado del slot al que pertenece la ocurrencia.
	// Igual a ScheduledAt salvo en las pospuestas, donde es el scheduledFor
	// original: es el valor a usar al registrar la acción.
	SlotFor time.Time
}

// SlotKey identifica el slot de dosis con precisión de minuto.
func (o Occurrence) SlotKey() string {
	return fmt.Sprintf("%s|%s|%s", o.MedicationID, o.ScheduleRuleID, o.ScheduledAt.UTC().Truncate(time.Minute).Format(time.RFC3339))
}

type Config struct {
	// PostponeWindow <= 0 usa DefaultPostponeWindow.
	PostponeWindow time.Duration
}

type Reconciler struct {
	postponeWindow time.Duration
}

func NewReconciler(cfg Config) *Reconciler {
	w := cfg.PostponeWindow
	if w <= 0 {
		w = DefaultPostponeWindow
	}
	return &Reconciler{postponeWindow: w}
}

func (r *Reconciler) PostponeWindow() time.Duration {
	return r.postponeWindow
}

// Pending devuelve las ocurrencias pendientes/próximas ordenadas por instante
// (empates por medicamento y luego por regla).
//
// todaysLog ya viene filtrado al "hoy" del llamador; acá no se calculan bordes de día.
// Reglas inactivas o mal formadas simplemente no aportan nada.
func (r *Reconciler) Pending(items []Item, now time.Time, todaysLog []LogEntry) []Occurrence {
	now = now.UTC()
	out := make([]Occurrence, 0, len(items))

	for _, it := range items {
		if !it.Rule.Active {
			continue
		}

		trigger, ok := NextTrigger(it.Rule, now)
		if !ok {
			continue
		}

		match, found := latestMatch(todaysLog, it.MedicationID, trigger)
		if !found {
			out = append(out, Occurrence{
				MedicationID:   it.MedicationID,
				ScheduleRuleID: it.Rule.ID,
				ScheduledAt:    trigger,
				SlotFor:        trigger,
			})
			continue
		}

		switch match.Action {
		case ActionTaken, ActionSkipped:
			// resuelto
		case ActionPostponed:
			retrigger := match.ActionAt.UTC().Add(r.postponeWindow)
			if retrigger.After(now) {
				out = append(out, Occurrence{
					MedicationID:   it.MedicationID,
					ScheduleRuleID: it.Rule.ID,
					ScheduledAt:    retrigger,
					Postponed:      true,
					SlotFor:        match.ScheduledFor.UTC().Truncate(time.Minute),
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		if out[i].MedicationID != out[j].MedicationID {
			return out[i].MedicationID < out[j].MedicationID
		}
		return out[i].ScheduleRuleID < out[j].ScheduleRuleID
	})

	return out
}

// Next es la cabeza de Pending.
func (r *Reconciler) Next(items []Item, now time.Time, todaysLog []LogEntry) (Occurrence, bool) {
	pending := r.Pending(items, now, todaysLog)
	if len(pending) == 0 {
		return Occurrence{}, false
	}
	return pending[0], true
}

// ReconcileOccurrences usa la ventana por defecto.
func ReconcileOccurrences(items []Item, nowUTC time.Time, todaysLog []LogEntry) []Occurrence {
	return NewReconciler(Config{}).Pending(items, nowUTC, todaysLog)
}

// latestMatch busca entradas del mismo medicamento cuyo scheduledFor tenga la
// misma hora y minuto (UTC) que el trigger. El día calendario NO se compara:
// el trigger pudo haber rolado a mañana mientras la entrada quedó con la fecha de hoy.
// Si hay varias, gana la de ActionAt más reciente (una corrección reemplaza a la anterior);
// con igual ActionAt gana el EntryID mayor, así el resultado no depende del orden de log.
func latestMatch(log []LogEntry, medicationID string, trigger time.Time) (LogEntry, bool) {
	var winner LogEntry
	found := false

	for _, e := range log {
		if e.MedicationID != medicationID {
			continue
		}
		sf := e.ScheduledFor.UTC()
		if sf.Hour() != trigger.Hour() || sf.Minute() != trigger.Minute() {
			continue
		}
		if !found ||
			e.ActionAt.After(winner.ActionAt) ||
			(e.ActionAt.Equal(winner.ActionAt) && e.EntryID > winner.EntryID) {
			winner = e
			found = true
		}
	}
	return winner, found
}
