package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"medication-reminder/internal/domain/doselog"
)

// doseLogRepo es append-only. El lock global hace atómico el
// chequeo del slot + inserción.
type doseLogRepo struct {
	mu      sync.RWMutex
	byID    map[string]doselog.Entry
	bySlot  map[string][]string // slot key -> ids en orden de inserción
	ordered []string
}

func NewDoseLogRepo() doselog.Repository {
	return &doseLogRepo{
		byID:   make(map[string]doselog.Entry),
		bySlot: make(map[string][]string),
	}
}

func (r *doseLogRepo) Append(ctx context.Context, e doselog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		return errors.New("entry id required")
	}
	if _, exists := r.byID[e.ID]; exists {
		return errors.New("entry already exists")
	}

	key := e.SlotKey()
	slot := make([]doselog.Entry, 0, len(r.bySlot[key]))
	for _, id := range r.bySlot[key] {
		slot = append(slot, r.byID[id])
	}
	if err := doselog.CheckAppend(slot, e); err != nil {
		return err
	}

	r.byID[e.ID] = e
	r.bySlot[key] = append(r.bySlot[key], e.ID)
	r.ordered = append(r.ordered, e.ID)
	return nil
}

func (r *doseLogRepo) GetByID(ctx context.Context, id string) (doselog.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return doselog.Entry{}, doselog.ErrNotFound
	}
	return e, nil
}

// ListByPatient devuelve lo más reciente primero (ActionAt desc).
func (r *doseLogRepo) ListByPatient(ctx context.Context, patientID string, f doselog.ListFilter) ([]doselog.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]doselog.Entry, 0)
	for _, id := range r.ordered {
		e := r.byID[id]
		if e.PatientID != patientID {
			continue
		}
		if f.MedicationID != "" && e.MedicationID != f.MedicationID {
			continue
		}
		if f.From != nil && e.ActionAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !e.ActionAt.Before(*f.To) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ActionAt.Equal(out[j].ActionAt) {
			return out[i].ActionAt.After(out[j].ActionAt)
		}
		return out[i].ID > out[j].ID
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
