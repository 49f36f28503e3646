package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medication-reminder/internal/domain/doselog"
	"medication-reminder/internal/domain/medications"
	"medication-reminder/internal/platform/metrics"
	"medication-reminder/pkg/schedule"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable: no se pudo leer catálogo o registro. Nunca se devuelve
	// un resultado parcial en ese caso.
	ErrUnavailable = errors.New("couldn't determine next dose")
)

// Offsets reales van de UTC-12 a UTC+14.
const (
	minTZOffsetMinutes = -12 * 60
	maxTZOffsetMinutes = 14 * 60
)

// MedicationCatalog es lo que necesitamos del módulo de medicamentos.
type MedicationCatalog interface {
	ListByPatient(ctx context.Context, patientID string, includeInactive bool) ([]medications.Medication, error)
	ListPatientsWithActiveMedications(ctx context.Context) ([]string, error)
}

// DoseLog es lo que necesitamos del registro de tomas.
type DoseLog interface {
	TodaysEntries(ctx context.Context, patientID string, from, to time.Time) ([]doselog.Entry, error)
}

// PendingOccurrence es una ocurrencia del core enriquecida para la UI.
type PendingOccurrence struct {
	schedule.Occurrence

	MedicationName string
	Dosage         string
	TimeOfDay      string // HH:MM UTC de la regla
}

type Service struct {
	meds       MedicationCatalog
	logs       DoseLog
	reconciler *schedule.Reconciler
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Options struct {
	PostponeWindow time.Duration
	Metrics        *metrics.Metrics
}

func NewService(meds MedicationCatalog, logs DoseLog, opts Options) *Service {
	return &Service{
		meds:       meds,
		logs:       logs,
		reconciler: schedule.NewReconciler(schedule.Config{PostponeWindow: opts.PostponeWindow}),
		metrics:    opts.Metrics,
		now:        time.Now,
	}
}

// Now expone el reloj del servicio (los handlers no leen time.Now directo).
func (s *Service) Now() time.Time {
	return s.now()
}

// TodayWindow devuelve [medianoche local, +24h) en UTC para un offset fijo
// expresado en minutos al este de UTC (-180 = UTC-3).
func TodayWindow(now time.Time, tzOffsetMinutes int) (time.Time, time.Time) {
	loc := time.FixedZone("", tzOffsetMinutes*60)
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.UTC(), midnight.Add(24 * time.Hour).UTC()
}

func ValidTZOffset(minutes int) bool {
	return minutes >= minTZOffsetMinutes && minutes <= maxTZOffsetMinutes
}

// Pending trae catálogo activo + registro de hoy y concilia.
func (s *Service) Pending(ctx context.Context, patientID string, now time.Time, tzOffsetMinutes int) ([]PendingOccurrence, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" || !ValidTZOffset(tzOffsetMinutes) {
		return nil, ErrInvalidInput
	}

	started := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ReconcileDuration.Observe(time.Since(started).Seconds())
		}
	}()

	meds, err := s.meds.ListByPatient(ctx, patientID, false)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog: %v", ErrUnavailable, err)
	}

	from, to := TodayWindow(now, tzOffsetMinutes)
	entries, err := s.logs.TodaysEntries(ctx, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: dose log: %v", ErrUnavailable, err)
	}

	occs := s.reconciler.Pending(medications.CatalogItems(meds), now, doselog.ToLogEntries(entries))

	byID := make(map[string]medications.Medication, len(meds))
	rules := make(map[string]medications.ScheduleRule)
	for _, m := range meds {
		byID[m.ID] = m
		for _, r := range m.Schedules {
			rules[r.ID] = r
		}
	}

	out := make([]PendingOccurrence, 0, len(occs))
	for _, o := range occs {
		m := byID[o.MedicationID]
		po := PendingOccurrence{
			Occurrence:     o,
			MedicationName: m.Name,
			Dosage:         m.Dosage,
		}
		if r, ok := rules[o.ScheduleRuleID]; ok {
			po.TimeOfDay = r.TimeOfDay.String()
		}
		out = append(out, po)

		if s.metrics != nil {
			kind := "scheduled"
			if o.Postponed {
				kind = "postponed"
			}
			s.metrics.OccurrencesEmitted.WithLabelValues(kind).Inc()
		}
	}
	return out, nil
}

// Next es la cabeza de Pending; false si no hay nada pendiente.
func (s *Service) Next(ctx context.Context, patientID string, now time.Time, tzOffsetMinutes int) (PendingOccurrence, bool, error) {
	pending, err := s.Pending(ctx, patientID, now, tzOffsetMinutes)
	if err != nil {
		return PendingOccurrence{}, false, err
	}
	if len(pending) == 0 {
		return PendingOccurrence{}, false, nil
	}
	return pending[0], true, nil
}

func (s *Service) PatientsWithActiveMedications(ctx context.Context) ([]string, error) {
	ids, err := s.meds.ListPatientsWithActiveMedications(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog: %v", ErrUnavailable, err)
	}
	return ids, nil
}
