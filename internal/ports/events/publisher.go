package events

import (
	"context"
	"time"
)

const TopicDoseActionRecorded = "dose.action.recorded"

// DoseActionRecorded se emite después de que una acción quedó persistida.
type DoseActionRecorded struct {
	EntryID        string    `json:"entry_id"`
	PatientID      string    `json:"patient_id"`
	MedicationID   string    `json:"medication_id"`
	ScheduleRuleID string    `json:"schedule_rule_id,omitempty"`
	ScheduledFor   time.Time `json:"scheduled_for"`
	Action         string    `json:"action"`
	ActionAt       time.Time `json:"action_at"`
	ActorType      string    `json:"actor_type"`
	ActorID        string    `json:"actor_id"`
	SupersedesID   string    `json:"supersedes_id,omitempty"`
}

// Publisher publica eventos de dominio hacia afuera (Kafka/Redpanda, etc.).
type Publisher interface {
	PublishDoseAction(ctx context.Context, evt DoseActionRecorded) error
}
