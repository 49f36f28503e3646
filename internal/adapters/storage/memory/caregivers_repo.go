package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"medication-reminder/internal/domain/caregivers"
)

var (
	ErrNotFound = errors.New("not found")
)

type grantRepo struct {
	mu   sync.RWMutex
	byID map[string]caregivers.Grant
}

func NewCaregiversRepo() caregivers.Repository {
	return &grantRepo{
		byID: make(map[string]caregivers.Grant),
	}
}

func (r *grantRepo) Create(ctx context.Context, g caregivers.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g.ID == "" {
		return errors.New("grant id required")
	}
	if _, exists := r.byID[g.ID]; exists {
		return errors.New("grant already exists")
	}
	r.byID[g.ID] = cloneGrant(g)
	return nil
}

func (r *grantRepo) Update(ctx context.Context, g caregivers.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g.ID == "" {
		return errors.New("grant id required")
	}
	if _, exists := r.byID[g.ID]; !exists {
		return ErrNotFound
	}
	r.byID[g.ID] = cloneGrant(g)
	return nil
}

func (r *grantRepo) GetByID(ctx context.Context, id string) (caregivers.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.byID[id]
	if !ok {
		return caregivers.Grant{}, ErrNotFound
	}
	return cloneGrant(g), nil
}

func (r *grantRepo) ListByPatient(ctx context.Context, patientID string) ([]caregivers.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]caregivers.Grant, 0)
	for _, g := range r.byID {
		if g.PatientID == patientID {
			out = append(out, cloneGrant(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *grantRepo) ListByCaregiver(ctx context.Context, caregiverUserID string) ([]caregivers.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]caregivers.Grant, 0)
	for _, g := range r.byID {
		if g.CaregiverUserID == caregiverUserID {
			out = append(out, cloneGrant(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Si por data sucia existieran varios grants activos, gana el de UpdatedAt
// más reciente (empate: CreatedAt).
func (r *grantRepo) GetActiveGrant(ctx context.Context, patientID, caregiverUserID string) (caregivers.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var winner caregivers.Grant
	has := false

	for _, g := range r.byID {
		if g.PatientID != patientID || g.CaregiverUserID != caregiverUserID {
			continue
		}
		if g.Status != caregivers.StatusActive {
			continue
		}

		if !has {
			winner = g
			has = true
			continue
		}
		if g.UpdatedAt.After(winner.UpdatedAt) ||
			(g.UpdatedAt.Equal(winner.UpdatedAt) && g.CreatedAt.After(winner.CreatedAt)) {
			winner = g
		}
	}

	if !has {
		return caregivers.Grant{}, ErrNotFound
	}
	return cloneGrant(winner), nil
}

func cloneGrant(g caregivers.Grant) caregivers.Grant {
	g.Scopes = append([]caregivers.Scope(nil), g.Scopes...)
	return g
}
