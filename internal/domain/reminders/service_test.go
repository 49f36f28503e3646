package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"medication-reminder/internal/domain/doselog"
	"medication-reminder/internal/domain/medications"
	"medication-reminder/internal/platform/metrics"
	"medication-reminder/pkg/schedule"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	meds []medications.Medication
	err  error
}

func (c *fakeCatalog) ListByPatient(ctx context.Context, patientID string, includeInactive bool) ([]medications.Medication, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]medications.Medication, 0)
	for _, m := range c.meds {
		if m.PatientID != patientID {
			continue
		}
		if !includeInactive && !m.Active {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *fakeCatalog) ListPatientsWithActiveMedications(ctx context.Context) ([]string, error) {
	if c.err != nil {
		return nil, c.err
	}
	seen := map[string]bool{}
	out := make([]string, 0)
	for _, m := range c.meds {
		if m.Active && !seen[m.PatientID] {
			seen[m.PatientID] = true
			out = append(out, m.PatientID)
		}
	}
	return out, nil
}

type fakeLog struct {
	entries []doselog.Entry
	err     error

	gotFrom, gotTo time.Time
}

func (l *fakeLog) TodaysEntries(ctx context.Context, patientID string, from, to time.Time) ([]doselog.Entry, error) {
	l.gotFrom, l.gotTo = from, to
	if l.err != nil {
		return nil, l.err
	}
	out := make([]doselog.Entry, 0)
	for _, e := range l.entries {
		if e.PatientID == patientID && !e.ActionAt.Before(from) && e.ActionAt.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func dailyMed(id, patientID, name, hhmm string) medications.Medication {
	tod, err := schedule.ParseTimeOfDay(hhmm)
	if err != nil {
		panic(err)
	}
	return medications.Medication{
		ID:        id,
		PatientID: patientID,
		Name:      name,
		Dosage:    "500 mg",
		Active:    true,
		Schedules: []medications.ScheduleRule{{
			ID:           id + "-r1",
			MedicationID: id,
			TimeOfDay:    tod,
			Frequency:    schedule.FrequencyDaily,
			Active:       true,
		}},
	}
}

func TestTodayWindow(t *testing.T) {
	// 02:00 UTC del 2 de enero = 23:00 del 1 de enero en UTC-3
	now := time.Date(2024, 1, 2, 2, 0, 0, 0, time.UTC)

	from, to := TodayWindow(now, -180)
	assert.Equal(t, time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC), to)

	from, to = TodayWindow(now, 0)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), to)
}

func TestValidTZOffset(t *testing.T) {
	assert.True(t, ValidTZOffset(-720))
	assert.True(t, ValidTZOffset(840))
	assert.True(t, ValidTZOffset(0))
	assert.False(t, ValidTZOffset(-721))
	assert.False(t, ValidTZOffset(841))
}

func TestPending_EnrichesAndOrders(t *testing.T) {
	cat := &fakeCatalog{meds: []medications.Medication{
		dailyMed("m2", "p1", "Ibuprofeno", "12:00"),
		dailyMed("m1", "p1", "Amoxicilina", "08:00"),
		dailyMed("m3", "p2", "Otro paciente", "09:00"),
	}}
	m := metrics.New()
	svc := NewService(cat, &fakeLog{}, Options{Metrics: m})

	now := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	got, err := svc.Pending(context.Background(), "p1", now, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "m1", got[0].MedicationID)
	assert.Equal(t, "Amoxicilina", got[0].MedicationName)
	assert.Equal(t, "500 mg", got[0].Dosage)
	assert.Equal(t, "08:00", got[0].TimeOfDay)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), got[0].ScheduledAt)
	assert.Equal(t, "m2", got[1].MedicationID)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.OccurrencesEmitted.WithLabelValues("scheduled")))
}

func TestPending_TakenDoseIsHidden(t *testing.T) {
	cat := &fakeCatalog{meds: []medications.Medication{dailyMed("m1", "p1", "Amoxicilina", "08:00")}}
	log := &fakeLog{entries: []doselog.Entry{{
		ID:           "e1",
		PatientID:    "p1",
		MedicationID: "m1",
		ScheduledFor: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		Action:       schedule.ActionTaken,
		ActionAt:     time.Date(2024, 1, 1, 7, 50, 0, 0, time.UTC),
	}}}
	svc := NewService(cat, log, Options{})

	got, err := svc.Pending(context.Background(), "p1", time.Date(2024, 1, 1, 7, 55, 0, 0, time.UTC), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPending_PostponedCarriesOriginalSlot(t *testing.T) {
	cat := &fakeCatalog{meds: []medications.Medication{dailyMed("m1", "p1", "Amoxicilina", "08:00")}}
	log := &fakeLog{entries: []doselog.Entry{{
		ID:           "e1",
		PatientID:    "p1",
		MedicationID: "m1",
		ScheduledFor: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		Action:       schedule.ActionPostponed,
		ActionAt:     time.Date(2024, 1, 1, 8, 1, 0, 0, time.UTC),
	}}}
	m := metrics.New()
	svc := NewService(cat, log, Options{PostponeWindow: 15 * time.Minute, Metrics: m})

	got, err := svc.Pending(context.Background(), "p1", time.Date(2024, 1, 1, 8, 5, 0, 0, time.UTC), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Postponed)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 16, 0, 0, time.UTC), got[0].ScheduledAt)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), got[0].SlotFor)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OccurrencesEmitted.WithLabelValues("postponed")))
}

func TestPending_UsesLocalDayWindow(t *testing.T) {
	log := &fakeLog{}
	svc := NewService(&fakeCatalog{}, log, Options{})

	_, err := svc.Pending(context.Background(), "p1", time.Date(2024, 1, 2, 2, 0, 0, 0, time.UTC), -180)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), log.gotFrom)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC), log.gotTo)
}

func TestPending_FetchFailureIsUnavailable(t *testing.T) {
	now := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	cat := &fakeCatalog{meds: []medications.Medication{dailyMed("m1", "p1", "Amoxicilina", "08:00")}}

	svc := NewService(&fakeCatalog{err: errors.New("db down")}, &fakeLog{}, Options{})
	_, err := svc.Pending(context.Background(), "p1", now, 0)
	assert.ErrorIs(t, err, ErrUnavailable)

	svc = NewService(cat, &fakeLog{err: errors.New("db down")}, Options{})
	got, err := svc.Pending(context.Background(), "p1", now, 0)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, got)
}

func TestPending_InvalidInput(t *testing.T) {
	svc := NewService(&fakeCatalog{}, &fakeLog{}, Options{})
	now := time.Now()

	_, err := svc.Pending(context.Background(), " ", now, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Pending(context.Background(), "p1", now, 900)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNext(t *testing.T) {
	cat := &fakeCatalog{meds: []medications.Medication{
		dailyMed("m1", "p1", "Amoxicilina", "08:00"),
		dailyMed("m2", "p1", "Ibuprofeno", "06:00"),
	}}
	svc := NewService(cat, &fakeLog{}, Options{})

	// a las 07:00 el de 06:00 ya rodó a mañana
	o, ok, err := svc.Next(context.Background(), "p1", time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m1", o.MedicationID)

	_, ok, err = svc.Next(context.Background(), "nobody", time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}
