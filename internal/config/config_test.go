package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 10*time.Minute, cfg.Reminders.PostponeWindow)
	assert.Equal(t, "@every 1m", cfg.Reminders.DispatchSchedule)
	assert.Equal(t, "dose.actions", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Database.DSN)
}

func TestLoad_ShortEnvAliases(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DSN", "postgres://u:p@localhost:5432/meds")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://u:p@localhost:5432/meds", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_PrefixedEnvAndLists(t *testing.T) {
	t.Setenv("MEDREMIND_REMINDERS_POSTPONE_WINDOW", "15m")
	t.Setenv("MEDREMIND_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Reminders.PostponeWindow)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medremind.yaml")
	content := `
server:
  port: 7070
reminders:
  postpone_window: 5m
  default_tz_offset_minutes: -180
notify:
  push:
    base_url: http://push.local
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Reminders.PostponeWindow)
	assert.Equal(t, -180, cfg.Reminders.DefaultTZOffsetMinutes)
	assert.Equal(t, "http://push.local", cfg.Notify.Push.BaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsNonPositivePostponeWindow(t *testing.T) {
	t.Setenv("MEDREMIND_REMINDERS_POSTPONE_WINDOW", "0s")

	_, err := Load("")
	assert.ErrorContains(t, err, "postpone_window")
}

func TestLoad_RejectsOutOfRangeOffset(t *testing.T) {
	t.Setenv("MEDREMIND_REMINDERS_DEFAULT_TZ_OFFSET_MINUTES", "1000")

	_, err := Load("")
	assert.ErrorContains(t, err, "default_tz_offset_minutes")
}
