package pushgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medication-reminder/internal/ports/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_SendsNotification(t *testing.T) {
	var got Notification
	var idem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sendPath, r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		idem = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	err = NewNotifier(c).Notify(context.Background(), notify.Reminder{
		PatientID:      "p1",
		MedicationID:   "m1",
		MedicationName: "Amoxicilina",
		Dosage:         "500 mg",
		ScheduledAt:    at,
		SlotFor:        at,
		SlotKey:        "m1|r1|2024-01-01T08:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, "p1", got.UserID)
	assert.Equal(t, "Amoxicilina (500 mg)", got.Body)
	assert.Equal(t, "m1|r1|2024-01-01T08:00:00Z", got.DedupKey)
	assert.Equal(t, got.DedupKey, idem)
	assert.Equal(t, "2024-01-01T08:00:00Z", got.Data["scheduled_at"])
}

func TestNotifier_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)
	err = NewNotifier(c).Notify(context.Background(), notify.Reminder{PatientID: "p1"})
	assert.ErrorIs(t, err, ErrPushUnauthorized)

	empty, err := NewClient(Config{})
	require.NoError(t, err)
	assert.ErrorIs(t, NewNotifier(empty).Notify(context.Background(), notify.Reminder{PatientID: "p1"}), ErrPushNotConfigured)
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, LogNotifier{}.Notify(context.Background(), notify.Reminder{PatientID: "p1"}))
}
