package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"medication-reminder/internal/domain/doselog"
	"medication-reminder/pkg/schedule"
)

type DoseLogRepo struct {
	db *sql.DB
}

func NewDoseLogRepo(db *sql.DB) *DoseLogRepo {
	return &DoseLogRepo{db: db}
}

const entryColumns = `
	id, patient_id,
	medication_id, schedule_rule_id,
	scheduled_for, action, action_at, note,
	actor_type, actor_id, supersedes_id`

// Append serializa las escrituras del mismo slot con un advisory lock de
// transacción, relee el slot y aplica CheckAppend antes de insertar.
func (r *DoseLogRepo) Append(ctx context.Context, e doselog.Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, e.SlotKey()); err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM dose_log_entries
		WHERE medication_id = $1
		  AND scheduled_for = $2
	`, e.MedicationID, e.ScheduledFor.UTC())
	if err != nil {
		return err
	}
	slot := make([]doselog.Entry, 0)
	for rows.Next() {
		x, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return err
		}
		slot = append(slot, x)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if err := doselog.CheckAppend(slot, e); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dose_log_entries (`+entryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		e.ID,
		e.PatientID,
		e.MedicationID,
		nullString(e.ScheduleRuleID),
		e.ScheduledFor.UTC(),
		string(e.Action),
		e.ActionAt.UTC(),
		e.Note,
		string(e.Actor.Type),
		e.Actor.ID,
		nullString(e.SupersedesID),
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *DoseLogRepo) GetByID(ctx context.Context, id string) (doselog.Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return doselog.Entry{}, doselog.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM dose_log_entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return doselog.Entry{}, doselog.ErrNotFound
	}
	return e, err
}

func (r *DoseLogRepo) ListByPatient(ctx context.Context, patientID string, filter doselog.ListFilter) ([]doselog.Entry, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, nil
	}

	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + entryColumns + ` FROM dose_log_entries WHERE patient_id = $1`)

	args := []any{patientID}
	argN := 2

	if filter.MedicationID != "" {
		sb.WriteString(fmt.Sprintf(" AND medication_id = $%d", argN))
		args = append(args, filter.MedicationID)
		argN++
	}
	if filter.From != nil {
		sb.WriteString(fmt.Sprintf(" AND action_at >= $%d", argN))
		args = append(args, filter.From.UTC())
		argN++
	}
	if filter.To != nil {
		sb.WriteString(fmt.Sprintf(" AND action_at < $%d", argN))
		args = append(args, filter.To.UTC())
		argN++
	}

	sb.WriteString(" ORDER BY action_at DESC, id DESC")
	if filter.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", argN))
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]doselog.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row rowScanner) (doselog.Entry, error) {
	var e doselog.Entry
	var ruleID, supersedes sql.NullString
	var action, actorType string

	if err := row.Scan(
		&e.ID,
		&e.PatientID,
		&e.MedicationID,
		&ruleID,
		&e.ScheduledFor,
		&action,
		&e.ActionAt,
		&e.Note,
		&actorType,
		&e.Actor.ID,
		&supersedes,
	); err != nil {
		return doselog.Entry{}, err
	}

	e.ScheduleRuleID = ruleID.String
	e.SupersedesID = supersedes.String
	e.Action = schedule.Action(action)
	e.Actor.Type = doselog.ActorType(actorType)
	e.ScheduledFor = e.ScheduledFor.UTC()
	e.ActionAt = e.ActionAt.UTC()
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
