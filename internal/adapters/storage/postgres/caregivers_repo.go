package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"medication-reminder/internal/domain/caregivers"

	"github.com/jackc/pgx/v5/pgtype"
)

type CaregiversRepo struct {
	db *sql.DB
}

func NewCaregiversRepo(db *sql.DB) *CaregiversRepo {
	return &CaregiversRepo{db: db}
}

const grantColumns = `
	id, patient_id, caregiver_user_id,
	scopes, status,
	created_at, updated_at, revoked_at`

func (r *CaregiversRepo) Create(ctx context.Context, g caregivers.Grant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO caregiver_grants (`+grantColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		g.ID,
		g.PatientID,
		g.CaregiverUserID,
		scopesToTextArray(g.Scopes),
		string(g.Status),
		g.CreatedAt,
		g.UpdatedAt,
		toNullTime(g.RevokedAt),
	)
	return err
}

func (r *CaregiversRepo) Update(ctx context.Context, g caregivers.Grant) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE caregiver_grants
		SET
			scopes = $2,
			status = $3,
			updated_at = $4,
			revoked_at = $5
		WHERE id = $1
	`,
		g.ID,
		scopesToTextArray(g.Scopes),
		string(g.Status),
		g.UpdatedAt,
		toNullTime(g.RevokedAt),
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CaregiversRepo) GetByID(ctx context.Context, id string) (caregivers.Grant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return caregivers.Grant{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM caregiver_grants WHERE id = $1`, id)
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return caregivers.Grant{}, ErrNotFound
	}
	return g, err
}

func (r *CaregiversRepo) ListByPatient(ctx context.Context, patientID string) ([]caregivers.Grant, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, nil
	}
	return r.list(ctx, `
		SELECT `+grantColumns+`
		FROM caregiver_grants
		WHERE patient_id = $1
		ORDER BY created_at ASC
	`, patientID)
}

func (r *CaregiversRepo) ListByCaregiver(ctx context.Context, caregiverUserID string) ([]caregivers.Grant, error) {
	caregiverUserID = strings.TrimSpace(caregiverUserID)
	if caregiverUserID == "" {
		return nil, nil
	}
	return r.list(ctx, `
		SELECT `+grantColumns+`
		FROM caregiver_grants
		WHERE caregiver_user_id = $1
		ORDER BY updated_at DESC
	`, caregiverUserID)
}

func (r *CaregiversRepo) GetActiveGrant(ctx context.Context, patientID, caregiverUserID string) (caregivers.Grant, error) {
	patientID = strings.TrimSpace(patientID)
	caregiverUserID = strings.TrimSpace(caregiverUserID)
	if patientID == "" || caregiverUserID == "" {
		return caregivers.Grant{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM caregiver_grants
		WHERE patient_id = $1
		  AND caregiver_user_id = $2
		  AND status = 'active'
		ORDER BY updated_at DESC, created_at DESC
		LIMIT 1
	`, patientID, caregiverUserID)

	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return caregivers.Grant{}, ErrNotFound
	}
	return g, err
}

func (r *CaregiversRepo) list(ctx context.Context, query string, args ...any) ([]caregivers.Grant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]caregivers.Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// rowScanner cubre *sql.Row y *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (caregivers.Grant, error) {
	var g caregivers.Grant
	var status string
	var scopes []string
	var revokedAt sql.NullTime

	// database/sql no sabe escanear text[]; pgtype sí.
	m := pgtype.NewMap()
	if err := row.Scan(
		&g.ID,
		&g.PatientID,
		&g.CaregiverUserID,
		m.SQLScanner(&scopes),
		&status,
		&g.CreatedAt,
		&g.UpdatedAt,
		&revokedAt,
	); err != nil {
		return caregivers.Grant{}, err
	}

	g.Status = caregivers.Status(status)
	g.Scopes = textArrayToScopes(scopes)
	g.RevokedAt = fromNullTime(revokedAt)
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return g, nil
}

func scopesToTextArray(in []caregivers.Scope) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

func textArrayToScopes(in []string) []caregivers.Scope {
	out := make([]caregivers.Scope, 0, len(in))
	for _, s := range in {
		out = append(out, caregivers.Scope(s))
	}
	return out
}
