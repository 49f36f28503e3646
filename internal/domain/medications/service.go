package medications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"medication-reminder/pkg/schedule"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("medication not found")
	ErrMedicationInactive = errors.New("medication is inactive")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// ScheduleInput llega del handler ya como strings/ints crudos.
type ScheduleInput struct {
	TimeOfDay     string // HH:MM UTC
	Frequency     string
	IntervalHours int
	DaysOfWeek    []int
}

type CreateInput struct {
	Name         string
	Dosage       string
	Presentation string
	Instructions string
	Color        string
	Schedules    []ScheduleInput
}

func (s *Service) Create(ctx context.Context, patientID string, in CreateInput) (Medication, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return Medication{}, ErrInvalidInput
	}
	if strings.TrimSpace(in.Name) == "" {
		return Medication{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if len(in.Schedules) == 0 {
		return Medication{}, fmt.Errorf("%w: at least one schedule required", ErrInvalidInput)
	}

	now := s.now().UTC()
	m := Medication{
		ID:           uuid.NewString(),
		PatientID:    patientID,
		Name:         strings.TrimSpace(in.Name),
		Dosage:       strings.TrimSpace(in.Dosage),
		Presentation: strings.TrimSpace(in.Presentation),
		Instructions: strings.TrimSpace(in.Instructions),
		Color:        strings.TrimSpace(in.Color),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	rules, err := buildRules(m.ID, in.Schedules, now)
	if err != nil {
		return Medication{}, err
	}
	m.Schedules = rules

	if err := s.repo.Create(ctx, m); err != nil {
		return Medication{}, err
	}
	return m, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Medication, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Medication{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, includeInactive bool) ([]Medication, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByPatient(ctx, patientID, includeInactive)
}

// UpdateInput: punteros para PATCH real (nil = no tocar).
// Si Schedules != nil, las reglas activas se desactivan y se crean las nuevas.
type UpdateInput struct {
	Name         *string
	Dosage       *string
	Presentation *string
	Instructions *string
	Color        *string
	Schedules    *[]ScheduleInput
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Medication, error) {
	m, err := s.GetByID(ctx, id)
	if err != nil {
		return Medication{}, err
	}
	if !m.Active {
		return Medication{}, ErrMedicationInactive
	}

	now := s.now().UTC()

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Medication{}, fmt.Errorf("%w: name required", ErrInvalidInput)
		}
		m.Name = name
	}
	if in.Dosage != nil {
		m.Dosage = strings.TrimSpace(*in.Dosage)
	}
	if in.Presentation != nil {
		m.Presentation = strings.TrimSpace(*in.Presentation)
	}
	if in.Instructions != nil {
		m.Instructions = strings.TrimSpace(*in.Instructions)
	}
	if in.Color != nil {
		m.Color = strings.TrimSpace(*in.Color)
	}

	if in.Schedules != nil {
		if len(*in.Schedules) == 0 {
			return Medication{}, fmt.Errorf("%w: at least one schedule required", ErrInvalidInput)
		}
		rules, err := buildRules(m.ID, *in.Schedules, now)
		if err != nil {
			return Medication{}, err
		}
		for i := range m.Schedules {
			m.Schedules[i].Active = false
		}
		m.Schedules = append(m.Schedules, rules...)
	}

	m.UpdatedAt = now
	if err := s.repo.Update(ctx, m); err != nil {
		return Medication{}, err
	}
	return m, nil
}

// SoftDelete marca el medicamento inactivo y desactiva sus reglas. Idempotente.
func (s *Service) SoftDelete(ctx context.Context, id string) (Medication, error) {
	m, err := s.GetByID(ctx, id)
	if err != nil {
		return Medication{}, err
	}
	if !m.Active {
		return m, nil
	}

	now := s.now().UTC()
	m.Active = false
	m.DeletedAt = &now
	m.UpdatedAt = now
	for i := range m.Schedules {
		m.Schedules[i].Active = false
	}

	if err := s.repo.Update(ctx, m); err != nil {
		return Medication{}, err
	}
	return m, nil
}

// ActiveCatalog arma los pares (medicamento activo, regla activa) del paciente
// en el formato que consume el conciliador.
func (s *Service) ActiveCatalog(ctx context.Context, patientID string) ([]schedule.Item, error) {
	meds, err := s.ListByPatient(ctx, patientID, false)
	if err != nil {
		return nil, err
	}
	return CatalogItems(meds), nil
}

// CatalogItems filtra medicamentos y reglas inactivas.
func CatalogItems(meds []Medication) []schedule.Item {
	items := make([]schedule.Item, 0)
	for _, m := range meds {
		if !m.Active {
			continue
		}
		for _, r := range m.ActiveSchedules() {
			items = append(items, schedule.Item{
				MedicationID: m.ID,
				Rule:         r.Rule(),
			})
		}
	}
	return items
}

func (s *Service) ListPatientsWithActiveMedications(ctx context.Context) ([]string, error) {
	ids, err := s.repo.PatientsWithActiveMedications(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func buildRules(medicationID string, in []ScheduleInput, now time.Time) ([]ScheduleRule, error) {
	out := make([]ScheduleRule, 0, len(in))
	for i, si := range in {
		tod, err := schedule.ParseTimeOfDay(si.TimeOfDay)
		if err != nil {
			return nil, fmt.Errorf("%w: schedules[%d]: time_of_day must be HH:MM", ErrInvalidInput, i)
		}
		kind, err := schedule.ParseFrequencyKind(si.Frequency)
		if err != nil {
			return nil, fmt.Errorf("%w: schedules[%d]: frequency must be DAILY, HOURLY or WEEKLY", ErrInvalidInput, i)
		}

		r := ScheduleRule{
			ID:           uuid.NewString(),
			MedicationID: medicationID,
			TimeOfDay:    tod,
			Frequency:    kind,
			Active:       true,
			CreatedAt:    now,
		}
		// Solo guardamos el campo que aplica al tipo.
		switch kind {
		case schedule.FrequencyHourly:
			r.IntervalHours = si.IntervalHours
		case schedule.FrequencyWeekly:
			r.DaysOfWeek = normalizeDays(si.DaysOfWeek)
		}

		if err := r.Rule().Validate(); err != nil {
			return nil, fmt.Errorf("%w: schedules[%d]: %v", ErrInvalidInput, i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// normalizeDays ordena y quita duplicados. Los valores fuera de rango se dejan
// para que Validate los rechace.
func normalizeDays(in []int) []int {
	seen := map[int]struct{}{}
	out := make([]int, 0, len(in))
	for _, d := range in {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
