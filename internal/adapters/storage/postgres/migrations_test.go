package postgres

import (
	"strings"
	"testing"
)

func TestMigrations_OrderedAndNamed(t *testing.T) {
	prev := 0
	for _, m := range migrations {
		if m.version <= prev {
			t.Fatalf("migration %d (%s) out of order after %d", m.version, m.name, prev)
		}
		if strings.TrimSpace(m.name) == "" || strings.TrimSpace(m.sql) == "" {
			t.Fatalf("migration %d missing name or sql", m.version)
		}
		prev = m.version
	}
}

func TestMigrations_InitialSchemaTables(t *testing.T) {
	sql := migrations[0].sql
	for _, table := range []string{"medications", "schedule_rules", "dose_log_entries", "caregiver_grants"} {
		if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("initial schema missing table %s", table)
		}
	}
}
