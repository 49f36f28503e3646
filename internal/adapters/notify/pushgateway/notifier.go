package pushgateway

import (
	"context"
	"fmt"
	"time"

	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/ports/notify"
)

// Notifier implementa notify.Notifier contra el push gateway.
type Notifier struct {
	client *Client
}

func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) Notify(ctx context.Context, r notify.Reminder) error {
	if n == nil || !n.client.IsConfigured() {
		return ErrPushNotConfigured
	}
	return n.client.Send(ctx, toNotification(r))
}

func toNotification(r notify.Reminder) Notification {
	title := "Hora de tu medicamento"
	if r.Postponed {
		title = "Recordatorio pospuesto"
	}
	body := r.MedicationName
	if r.Dosage != "" {
		body = fmt.Sprintf("%s (%s)", r.MedicationName, r.Dosage)
	}

	return Notification{
		UserID:   r.PatientID,
		DedupKey: r.SlotKey,
		Title:    title,
		Body:     body,
		Data: map[string]string{
			"medication_id":    r.MedicationID,
			"schedule_rule_id": r.ScheduleRuleID,
			"scheduled_at":     r.ScheduledAt.UTC().Format(time.RFC3339),
			"slot_for":         r.SlotFor.UTC().Format(time.RFC3339),
		},
	}
}

// LogNotifier solo loguea; se usa cuando no hay gateway configurado (dev).
type LogNotifier struct {
	Log logger.Logger
}

func (l LogNotifier) Notify(ctx context.Context, r notify.Reminder) error {
	log := l.Log
	if log == nil {
		log = logger.Nop()
	}
	log.Info("reminder due", map[string]any{
		"patient_id":    r.PatientID,
		"medication_id": r.MedicationID,
		"medication":    r.MedicationName,
		"scheduled_at":  r.ScheduledAt.UTC().Format(time.RFC3339),
		"postponed":     r.Postponed,
		"slot":          r.SlotKey,
	})
	return nil
}
