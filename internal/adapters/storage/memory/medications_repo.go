package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"medication-reminder/internal/domain/medications"
)

type medicationRepo struct {
	mu   sync.RWMutex
	byID map[string]medications.Medication
}

func NewMedicationsRepo() medications.Repository {
	return &medicationRepo{
		byID: make(map[string]medications.Medication),
	}
}

func (r *medicationRepo) Create(ctx context.Context, m medications.Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(m.ID) == "" {
		return errors.New("medication id required")
	}
	if _, exists := r.byID[m.ID]; exists {
		return errors.New("medication already exists")
	}
	r.byID[m.ID] = cloneMedication(m)
	return nil
}

// Update hace upsert de reglas por ID: las que ya existían se reemplazan,
// las nuevas se agregan. Una regla nunca se borra.
func (r *medicationRepo) Update(ctx context.Context, m medications.Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.byID[m.ID]
	if !exists {
		return medications.ErrNotFound
	}

	merged := cloneMedication(m)
	incoming := make(map[string]bool, len(m.Schedules))
	for _, s := range m.Schedules {
		incoming[s.ID] = true
	}
	for _, s := range prev.Schedules {
		if !incoming[s.ID] {
			merged.Schedules = append(merged.Schedules, s)
		}
	}
	sort.SliceStable(merged.Schedules, func(i, j int) bool {
		return merged.Schedules[i].CreatedAt.Before(merged.Schedules[j].CreatedAt)
	})

	r.byID[m.ID] = merged
	return nil
}

func (r *medicationRepo) GetByID(ctx context.Context, id string) (medications.Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return medications.Medication{}, medications.ErrNotFound
	}
	return cloneMedication(m), nil
}

func (r *medicationRepo) ListByPatient(ctx context.Context, patientID string, includeInactive bool) ([]medications.Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]medications.Medication, 0)
	for _, m := range r.byID {
		if m.PatientID != patientID {
			continue
		}
		if !includeInactive && !m.Active {
			continue
		}
		out = append(out, cloneMedication(m))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *medicationRepo) PatientsWithActiveMedications(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]struct{}{}
	for _, m := range r.byID {
		if !m.Active || len(m.ActiveSchedules()) == 0 {
			continue
		}
		seen[m.PatientID] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// cloneMedication evita que el llamador mute lo guardado a través de slices compartidos.
func cloneMedication(m medications.Medication) medications.Medication {
	scheds := make([]medications.ScheduleRule, 0, len(m.Schedules))
	for _, s := range m.Schedules {
		s.DaysOfWeek = append([]int(nil), s.DaysOfWeek...)
		scheds = append(scheds, s)
	}
	m.Schedules = scheds
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		m.DeletedAt = &t
	}
	return m
}
