package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		sql: `
CREATE TABLE IF NOT EXISTS medications (
  id TEXT PRIMARY KEY,
  patient_id TEXT NOT NULL,
  name TEXT NOT NULL,
  dosage TEXT NOT NULL DEFAULT '',
  presentation TEXT NOT NULL DEFAULT '',
  instructions TEXT NOT NULL DEFAULT '',
  color TEXT NOT NULL DEFAULT '',
  active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  deleted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_medications_patient ON medications(patient_id);

CREATE TABLE IF NOT EXISTS schedule_rules (
  id TEXT PRIMARY KEY,
  medication_id TEXT NOT NULL REFERENCES medications(id),
  time_of_day TEXT NOT NULL CHECK (time_of_day ~ '^([01][0-9]|2[0-3]):[0-5][0-9]$'),
  frequency TEXT NOT NULL CHECK (frequency IN ('DAILY','HOURLY','WEEKLY')),
  interval_hours INTEGER NOT NULL DEFAULT 0,
  days_of_week INTEGER[] NOT NULL DEFAULT '{}',
  active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_schedule_rules_medication ON schedule_rules(medication_id);

CREATE TABLE IF NOT EXISTS dose_log_entries (
  id TEXT PRIMARY KEY,
  patient_id TEXT NOT NULL,
  medication_id TEXT NOT NULL REFERENCES medications(id),
  schedule_rule_id TEXT,
  scheduled_for TIMESTAMPTZ NOT NULL,
  action TEXT NOT NULL CHECK (action IN ('TAKEN','SKIPPED','POSTPONED')),
  action_at TIMESTAMPTZ NOT NULL,
  note TEXT NOT NULL DEFAULT '',
  actor_type TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  supersedes_id TEXT REFERENCES dose_log_entries(id)
);

CREATE INDEX IF NOT EXISTS idx_dose_log_patient_action_at ON dose_log_entries(patient_id, action_at DESC);
CREATE INDEX IF NOT EXISTS idx_dose_log_slot ON dose_log_entries(medication_id, scheduled_for);

CREATE TABLE IF NOT EXISTS caregiver_grants (
  id TEXT PRIMARY KEY,
  patient_id TEXT NOT NULL,
  caregiver_user_id TEXT NOT NULL,
  scopes TEXT[] NOT NULL DEFAULT '{}',
  status TEXT NOT NULL CHECK (status IN ('invited','active','revoked')),
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  revoked_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_caregiver_grants_patient ON caregiver_grants(patient_id);
CREATE INDEX IF NOT EXISTS idx_caregiver_grants_caregiver ON caregiver_grants(caregiver_user_id);
`,
	},
}

// ApplyMigrations aplica en orden las migraciones que falten. Cada una corre
// en su propia transacción junto con su registro en schema_migrations.
func ApplyMigrations(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = $1`, m.version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return applied, fmt.Errorf("check migration version %d: %w", m.version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("begin migration tx: %w", err)
		}

		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("apply migration version %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, m.version, m.name); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("record migration version %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit migration version %d: %w", m.version, err)
		}
		applied++
	}

	return applied, nil
}
