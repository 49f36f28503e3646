package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/platform/metrics"
	"medication-reminder/internal/ports/notify"

	"github.com/robfig/cron/v3"
)

const (
	DefaultDispatchSchedule = "@every 1m"
	DefaultLookahead        = time.Minute
)

type DispatcherOptions struct {
	// Expresión cron (robfig): "@every 1m", "*/5 * * * *", etc.
	Schedule  string
	Lookahead time.Duration
	// Offset usado para el "hoy" del registro cuando barre pacientes.
	TZOffsetMinutes int

	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Dispatcher barre periódicamente a los pacientes con medicación activa y
// entrega al Notifier cada ocurrencia que vence dentro del lookahead. Cada
// slot se entrega una sola vez por proceso.
type Dispatcher struct {
	svc      *Service
	notifier notify.Notifier
	opts     DispatcherOptions
	log      logger.Logger

	mu   sync.Mutex
	sent map[string]time.Time // slot key -> ScheduledAt

	cron *cron.Cron
	now  func() time.Time
}

func NewDispatcher(svc *Service, notifier notify.Notifier, opts DispatcherOptions) (*Dispatcher, error) {
	if svc == nil || notifier == nil {
		return nil, errors.New("reminders: dispatcher requires service and notifier")
	}
	if strings.TrimSpace(opts.Schedule) == "" {
		opts.Schedule = DefaultDispatchSchedule
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if !ValidTZOffset(opts.TZOffsetMinutes) {
		return nil, fmt.Errorf("reminders: invalid tz offset %d", opts.TZOffsetMinutes)
	}
	l := opts.Logger
	if l == nil {
		l = logger.Nop()
	}
	l = l.With(map[string]any{"module": "reminders.dispatcher"})

	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{l}),
		cron.SkipIfStillRunning(cronLogger{l}),
	))

	return &Dispatcher{
		svc:      svc,
		notifier: notifier,
		opts:     opts,
		log:      l,
		sent:     map[string]time.Time{},
		cron:     c,
		now:      time.Now,
	}, nil
}

// Start registra el barrido en cron y arranca. No bloquea.
func (d *Dispatcher) Start(ctx context.Context) error {
	if _, err := d.cron.AddFunc(d.opts.Schedule, func() {
		if _, err := d.Sweep(ctx); err != nil {
			d.log.Warn("reminder sweep failed", map[string]any{"error": err})
		}
	}); err != nil {
		return fmt.Errorf("reminders: invalid dispatch schedule %q: %w", d.opts.Schedule, err)
	}
	d.cron.Start()
	d.log.Info("reminder dispatcher started", map[string]any{
		"schedule":  d.opts.Schedule,
		"lookahead": d.opts.Lookahead.String(),
	})
	return nil
}

// Stop espera a que termine el barrido en curso (o a que venza ctx).
func (d *Dispatcher) Stop(ctx context.Context) error {
	stopped := d.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep hace un barrido completo y devuelve cuántos recordatorios entregó.
// Un paciente que falla no corta el barrido de los demás.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	started := time.Now()
	defer func() {
		if d.opts.Metrics != nil {
			d.opts.Metrics.DispatchSweepSeconds.Observe(time.Since(started).Seconds())
		}
	}()

	now := d.now().UTC()
	d.prune(now)

	patients, err := d.svc.PatientsWithActiveMedications(ctx)
	if err != nil {
		return 0, err
	}

	horizon := now.Add(d.opts.Lookahead)
	sent := 0
	var errs []error

	for _, patientID := range patients {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		pending, err := d.svc.Pending(ctx, patientID, now, d.opts.TZOffsetMinutes)
		if err != nil {
			errs = append(errs, fmt.Errorf("patient %s: %w", patientID, err))
			continue
		}

		for _, o := range pending {
			// ordenadas por instante: lo que sigue queda fuera del horizonte
			if o.ScheduledAt.After(horizon) {
				break
			}
			key := o.SlotKey()
			if d.alreadySent(key) {
				continue
			}

			err := d.notifier.Notify(ctx, notify.Reminder{
				PatientID:      patientID,
				MedicationID:   o.MedicationID,
				MedicationName: o.MedicationName,
				Dosage:         o.Dosage,
				ScheduleRuleID: o.ScheduleRuleID,
				ScheduledAt:    o.ScheduledAt,
				SlotFor:        o.SlotFor,
				Postponed:      o.Postponed,
				SlotKey:        key,
			})
			if err != nil {
				if d.opts.Metrics != nil {
					d.opts.Metrics.RemindersFailed.Inc()
				}
				d.log.Warn("notify failed", map[string]any{"patient_id": patientID, "slot": key, "error": err})
				continue
			}

			d.markSent(key, o.ScheduledAt)
			sent++
			if d.opts.Metrics != nil {
				d.opts.Metrics.RemindersDispatched.Inc()
			}
		}
	}

	if sent > 0 {
		d.log.Debug("reminders dispatched", map[string]any{"count": sent})
	}
	return sent, errors.Join(errs...)
}

func (d *Dispatcher) alreadySent(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.sent[key]
	return ok
}

func (d *Dispatcher) markSent(key string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent[key] = at
}

// prune olvida slots ya pasados: el resolver nunca vuelve a emitir un
// instante <= now, así que no pueden reaparecer.
func (d *Dispatcher) prune(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, at := range d.sent {
		if !at.After(now) {
			delete(d.sent, k)
		}
	}
}

// cronLogger adapta logger.Logger a cron.Logger.
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvToMap(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvToMap(keysAndValues)
	fields["error"] = err
	c.l.Error("cron: "+msg, fields)
}

func kvToMap(kv []interface{}) map[string]any {
	out := make(map[string]any, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out[k] = kv[i+1]
	}
	return out
}
