// Package schedule resuelve cuándo toca la próxima dosis de cada regla y
// concilia ese plan con el registro de acciones del paciente.
//
// No hace I/O ni lee el reloj: todo "now" llega como parámetro, así el
// servidor y cualquier caché cliente pueden usar exactamente el mismo código.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
	ErrInvalidRule      = errors.New("invalid schedule rule")
)

// FrequencyKind es el tipo de recurrencia. Enumeración cerrada.
type FrequencyKind string

const (
	FrequencyDaily  FrequencyKind = "DAILY"
	FrequencyHourly FrequencyKind = "HOURLY"
	FrequencyWeekly FrequencyKind = "WEEKLY"
)

func (k FrequencyKind) Valid() bool {
	switch k {
	case FrequencyDaily, FrequencyHourly, FrequencyWeekly:
		return true
	default:
		return false
	}
}

// ParseFrequencyKind acepta mayúsculas o minúsculas ("daily", "DAILY").
func ParseFrequencyKind(s string) (FrequencyKind, error) {
	k := FrequencyKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, s)
	}
	return k, nil
}

// TimeOfDay es una hora de reloj interpretada SIEMPRE como UTC.
// La conversión desde/hacia hora local del dispositivo ocurre fuera de este paquete.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parsea "HH:MM" (24h), exactamente dos dígitos por parte.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || !twoDigits(parts[0]) || !twoDigits(parts[1]) {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	t := TimeOfDay{
		Hour:   int(parts[0][0]-'0')*10 + int(parts[0][1]-'0'),
		Minute: int(parts[1][0]-'0')*10 + int(parts[1][1]-'0'),
	}
	if !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return t, nil
}

func twoDigits(p string) bool {
	return len(p) == 2 && p[0] >= '0' && p[0] <= '9' && p[1] >= '0' && p[1] <= '9'
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On devuelve el instante UTC de ese día calendario a esta hora.
func (t TimeOfDay) On(day time.Time) time.Time {
	day = day.UTC()
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
}

// MarshalText / UnmarshalText permiten usar "08:00" directamente en JSON.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Rule es una regla de recurrencia asociada a un medicamento.
type Rule struct {
	ID           string
	MedicationID string

	TimeOfDay TimeOfDay
	Kind      FrequencyKind

	// Solo para HOURLY (>= 1).
	IntervalHours int
	// Solo para WEEKLY: 0=domingo .. 6=sábado.
	DaysOfWeek []int

	Active bool
}

// Validate se usa en el camino de escritura. El resolver no la llama:
// una regla mal formada simplemente no produce ocurrencias.
func (r Rule) Validate() error {
	if !r.TimeOfDay.Valid() {
		return ErrInvalidTimeOfDay
	}
	switch r.Kind {
	case FrequencyDaily:
		return nil
	case FrequencyHourly:
		if r.IntervalHours < 1 {
			return fmt.Errorf("%w: HOURLY requires interval_hours >= 1", ErrInvalidRule)
		}
		return nil
	case FrequencyWeekly:
		if len(r.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: WEEKLY requires at least one day", ErrInvalidRule)
		}
		for _, d := range r.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: day of week %d out of range 0..6", ErrInvalidRule, d)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, r.Kind)
	}
}

// Item es el par (medicamento, regla) que consume el conciliador.
type Item struct {
	MedicationID string
	Rule         Rule
}
