package doselog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/platform/metrics"
	"medication-reminder/internal/ports/events"
	"medication-reminder/pkg/schedule"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("log entry not found")
	ErrSlotResolved      = errors.New("dose slot already resolved")
	ErrSupersedeMismatch = errors.New("superseded entry does not belong to this slot")
)

const maxNoteLen = 500

type Options struct {
	// Publisher opcional: si es nil no se emiten eventos.
	Publisher events.Publisher
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

type Service struct {
	repo    Repository
	pub     events.Publisher
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo Repository, opts Options) *Service {
	l := opts.Logger
	if l == nil {
		l = logger.Nop()
	}
	return &Service{
		repo:    repo,
		pub:     opts.Publisher,
		log:     l.With(map[string]any{"module": "doselog"}),
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

type RecordInput struct {
	MedicationID   string
	ScheduleRuleID string
	ScheduledFor   time.Time
	Action         schedule.Action
	Note           string
	SupersedesID   string
}

// Record agrega una acción al registro. ActionAt lo pone el servidor.
func (s *Service) Record(ctx context.Context, patientID string, actor Actor, in RecordInput) (Entry, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return Entry{}, ErrInvalidInput
	}
	if actor.Type == "" || strings.TrimSpace(actor.ID) == "" {
		return Entry{}, ErrInvalidInput
	}
	if strings.TrimSpace(in.MedicationID) == "" {
		return Entry{}, fmt.Errorf("%w: medication_id required", ErrInvalidInput)
	}
	if !in.Action.Valid() {
		return Entry{}, fmt.Errorf("%w: action must be TAKEN, SKIPPED or POSTPONED", ErrInvalidInput)
	}
	if in.ScheduledFor.IsZero() {
		return Entry{}, fmt.Errorf("%w: scheduled_for required", ErrInvalidInput)
	}
	note := strings.TrimSpace(in.Note)
	if utf8.RuneCountInString(note) > maxNoteLen {
		return Entry{}, fmt.Errorf("%w: note too long", ErrInvalidInput)
	}

	e := Entry{
		ID:             uuid.NewString(),
		PatientID:      patientID,
		MedicationID:   strings.TrimSpace(in.MedicationID),
		ScheduleRuleID: strings.TrimSpace(in.ScheduleRuleID),
		ScheduledFor:   in.ScheduledFor.UTC().Truncate(time.Minute),
		Action:         in.Action,
		ActionAt:       s.now().UTC(),
		Note:           note,
		Actor:          actor,
		SupersedesID:   strings.TrimSpace(in.SupersedesID),
	}

	if err := s.repo.Append(ctx, e); err != nil {
		s.countRejected(err)
		return Entry{}, err
	}

	if s.metrics != nil {
		s.metrics.DoseActionsRecorded.WithLabelValues(string(e.Action)).Inc()
	}

	s.publish(ctx, e)
	return e, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Entry{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, filter ListFilter) ([]Entry, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByPatient(ctx, patientID, filter)
}

// TodaysEntries devuelve las entradas con ActionAt en [from, to).
// El cálculo del "hoy" local lo hace el llamador.
func (s *Service) TodaysEntries(ctx context.Context, patientID string, from, to time.Time) ([]Entry, error) {
	if !to.After(from) {
		return nil, ErrInvalidInput
	}
	from, to = from.UTC(), to.UTC()
	return s.ListByPatient(ctx, patientID, ListFilter{From: &from, To: &to})
}

// publish nunca hace fallar el append: la entrada ya está persistida.
func (s *Service) publish(ctx context.Context, e Entry) {
	if s.pub == nil {
		return
	}
	err := s.pub.PublishDoseAction(ctx, events.DoseActionRecorded{
		EntryID:        e.ID,
		PatientID:      e.PatientID,
		MedicationID:   e.MedicationID,
		ScheduleRuleID: e.ScheduleRuleID,
		ScheduledFor:   e.ScheduledFor,
		Action:         string(e.Action),
		ActionAt:       e.ActionAt,
		ActorType:      string(e.Actor.Type),
		ActorID:        e.Actor.ID,
		SupersedesID:   e.SupersedesID,
	})
	if err != nil {
		s.log.Warn("publish dose action failed", map[string]any{
			"entry_id": e.ID,
			"slot":     e.SlotKey(),
			"error":    err,
		})
	}
}

func (s *Service) countRejected(err error) {
	if s.metrics == nil {
		return
	}
	reason := "error"
	switch {
	case errors.Is(err, ErrSlotResolved):
		reason = "slot_resolved"
	case errors.Is(err, ErrSupersedeMismatch):
		reason = "supersede_mismatch"
	}
	s.metrics.DoseActionsRejected.WithLabelValues(reason).Inc()
}
