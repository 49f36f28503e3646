package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"medication-reminder/internal/domain/medications"
	"medication-reminder/pkg/schedule"

	"github.com/jackc/pgx/v5/pgtype"
)

type MedicationsRepo struct {
	db *sql.DB
}

func NewMedicationsRepo(db *sql.DB) *MedicationsRepo {
	return &MedicationsRepo{db: db}
}

const medicationColumns = `
	id, patient_id,
	name, dosage, presentation, instructions, color,
	active, created_at, updated_at, deleted_at`

// Create inserta medicamento + reglas en una transacción.
func (r *MedicationsRepo) Create(ctx context.Context, m medications.Medication) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO medications (`+medicationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		m.ID,
		m.PatientID,
		m.Name,
		m.Dosage,
		m.Presentation,
		m.Instructions,
		m.Color,
		m.Active,
		m.CreatedAt,
		m.UpdatedAt,
		toNullTime(m.DeletedAt),
	); err != nil {
		return err
	}

	if err := upsertRules(ctx, tx, m.Schedules); err != nil {
		return err
	}
	return tx.Commit()
}

// Update reemplaza los campos del medicamento y hace upsert de las reglas por ID.
// Las reglas no se borran nunca: el registro de tomas puede referenciarlas.
func (r *MedicationsRepo) Update(ctx context.Context, m medications.Medication) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE medications
		SET
			name = $2,
			dosage = $3,
			presentation = $4,
			instructions = $5,
			color = $6,
			active = $7,
			updated_at = $8,
			deleted_at = $9
		WHERE id = $1
	`,
		m.ID,
		m.Name,
		m.Dosage,
		m.Presentation,
		m.Instructions,
		m.Color,
		m.Active,
		m.UpdatedAt,
		toNullTime(m.DeletedAt),
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return medications.ErrNotFound
	}

	if err := upsertRules(ctx, tx, m.Schedules); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertRules(ctx context.Context, tx *sql.Tx, rules []medications.ScheduleRule) error {
	for _, s := range rules {
		days := s.DaysOfWeek
		if days == nil {
			days = []int{}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_rules (
				id, medication_id,
				time_of_day, frequency, interval_hours, days_of_week,
				active, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO UPDATE SET active = EXCLUDED.active
		`,
			s.ID,
			s.MedicationID,
			s.TimeOfDay.String(),
			string(s.Frequency),
			s.IntervalHours,
			days,
			s.Active,
			s.CreatedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *MedicationsRepo) GetByID(ctx context.Context, id string) (medications.Medication, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return medications.Medication{}, medications.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+medicationColumns+` FROM medications WHERE id = $1`, id)
	m, err := scanMedication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return medications.Medication{}, medications.ErrNotFound
	}
	if err != nil {
		return medications.Medication{}, err
	}

	byMed, err := r.rulesFor(ctx, []string{m.ID})
	if err != nil {
		return medications.Medication{}, err
	}
	m.Schedules = byMed[m.ID]
	return m, nil
}

func (r *MedicationsRepo) ListByPatient(ctx context.Context, patientID string, includeInactive bool) ([]medications.Medication, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, nil
	}

	q := `SELECT ` + medicationColumns + ` FROM medications WHERE patient_id = $1`
	if !includeInactive {
		q += ` AND active`
	}
	q += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, q, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]medications.Medication, 0)
	ids := make([]string, 0)
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	byMed, err := r.rulesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Schedules = byMed[out[i].ID]
	}
	return out, nil
}

func (r *MedicationsRepo) PatientsWithActiveMedications(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT m.patient_id
		FROM medications m
		JOIN schedule_rules s ON s.medication_id = m.id
		WHERE m.active AND s.active
		ORDER BY m.patient_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// rulesFor trae todas las reglas (activas o no) de los medicamentos dados.
func (r *MedicationsRepo) rulesFor(ctx context.Context, medicationIDs []string) (map[string][]medications.ScheduleRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, medication_id,
			time_of_day, frequency, interval_hours, days_of_week,
			active, created_at
		FROM schedule_rules
		WHERE medication_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, medicationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]medications.ScheduleRule, len(medicationIDs))
	m := pgtype.NewMap()
	for rows.Next() {
		var s medications.ScheduleRule
		var tod, freq string
		var days []int

		if err := rows.Scan(
			&s.ID,
			&s.MedicationID,
			&tod,
			&freq,
			&s.IntervalHours,
			m.SQLScanner(&days),
			&s.Active,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}

		parsed, err := schedule.ParseTimeOfDay(tod)
		if err != nil {
			return nil, err
		}
		s.TimeOfDay = parsed
		s.Frequency = schedule.FrequencyKind(freq)
		if len(days) > 0 {
			s.DaysOfWeek = days
		}
		s.CreatedAt = s.CreatedAt.UTC()

		out[s.MedicationID] = append(out[s.MedicationID], s)
	}
	return out, rows.Err()
}

func scanMedication(row rowScanner) (medications.Medication, error) {
	var m medications.Medication
	var deletedAt sql.NullTime

	if err := row.Scan(
		&m.ID,
		&m.PatientID,
		&m.Name,
		&m.Dosage,
		&m.Presentation,
		&m.Instructions,
		&m.Color,
		&m.Active,
		&m.CreatedAt,
		&m.UpdatedAt,
		&deletedAt,
	); err != nil {
		return medications.Medication{}, err
	}

	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	m.DeletedAt = fromNullTime(deletedAt)
	return m, nil
}
