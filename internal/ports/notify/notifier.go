package notify

import (
	"context"
	"time"
)

// Reminder es lo que se le entrega al canal de notificaciones para una
// ocurrencia próxima. Cómo llega al dispositivo no es problema nuestro.
type Reminder struct {
	PatientID      string    `json:"patient_id"`
	MedicationID   string    `json:"medication_id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage,omitempty"`
	ScheduleRuleID string    `json:"schedule_rule_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	SlotFor        time.Time `json:"slot_for"`
	Postponed      bool      `json:"postponed"`
	// SlotKey sirve como idempotency key del lado del gateway.
	SlotKey string `json:"slot_key"`
}

type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}
