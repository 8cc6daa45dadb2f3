package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/db"
)

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, national_id, name, gender, birth_date, phone, address, registered_at, created_at, updated_at`

func scanPatient(row pgx.Row) (*PatientRecord, error) {
	var p PatientRecord
	err := row.Scan(&p.ID, &p.NationalID, &p.Name, &p.Gender, &p.BirthDate, &p.Phone, &p.Address,
		&p.RegisteredAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *PatientRecord) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_record (id, national_id, name, gender, birth_date, phone, address, registered_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.NationalID, p.Name, p.Gender, p.BirthDate, p.Phone, p.Address, p.RegisteredAt, p.CreatedAt, p.UpdatedAt,
	)
	return apperr.FromPG("create", "patient", err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PatientRecord, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient_record WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromPG("get", "patient", err)
	}
	return p, nil
}

func (r *patientRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*PatientRecord, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient_record WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, apperr.FromPG("lock", "patient", err)
	}
	return p, nil
}

func (r *patientRepoPG) GetByNationalID(ctx context.Context, nationalID string) (*PatientRecord, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient_record WHERE national_id = $1`, nationalID))
	if err != nil {
		return nil, apperr.FromPG("get", "patient", err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *PatientRecord) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_record SET
			national_id=$2, name=$3, gender=$4, birth_date=$5, phone=$6, address=$7, registered_at=$8, updated_at=$9
		WHERE id = $1`,
		p.ID, p.NationalID, p.Name, p.Gender, p.BirthDate, p.Phone, p.Address, p.RegisteredAt, p.UpdatedAt,
	)
	if err != nil {
		return apperr.FromPG("update", "patient", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("update", "patient", "no patient %s", p.ID)
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_record WHERE id = $1`, id)
	if err != nil {
		return apperr.FromPG("delete", "patient", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("delete", "patient", "no patient %s", id)
	}
	return nil
}

// List filters by a case-insensitive name fragment or an exact national id.
func (r *patientRepoPG) List(ctx context.Context, query string, limit, offset int) ([]*PatientRecord, int, error) {
	const where = ` WHERE ($1::text = '' OR name ILIKE '%' || $1::text || '%' OR national_id = $1::text)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient_record`+where, query).Scan(&total); err != nil {
		return nil, 0, apperr.FromPG("list", "patient", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient_record`+where+
		` ORDER BY registered_at DESC, name LIMIT $2 OFFSET $3`, query, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromPG("list", "patient", err)
	}
	defer rows.Close()

	var items []*PatientRecord
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, apperr.FromPG("list", "patient", err)
		}
		items = append(items, p)
	}
	return items, total, apperr.FromPG("list", "patient", rows.Err())
}

// -- Condition Repository --

type conditionRepoPG struct {
	pool *pgxpool.Pool
}

func NewConditionRepo(pool *pgxpool.Pool) ConditionRepository {
	return &conditionRepoPG{pool: pool}
}

func (r *conditionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *conditionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*ConditionEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, condition, medication FROM condition_entry
		WHERE patient_id = $1 ORDER BY condition`, patientID)
	if err != nil {
		return nil, apperr.FromPG("list", "condition", err)
	}
	defer rows.Close()

	var items []*ConditionEntry
	for rows.Next() {
		var e ConditionEntry
		if err := rows.Scan(&e.ID, &e.PatientID, &e.Condition, &e.Medication); err != nil {
			return nil, apperr.FromPG("list", "condition", err)
		}
		items = append(items, &e)
	}
	return items, apperr.FromPG("list", "condition", rows.Err())
}

func (r *conditionRepoPG) Insert(ctx context.Context, e *ConditionEntry) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO condition_entry (id, patient_id, condition, medication) VALUES ($1,$2,$3,$4)`,
		e.ID, e.PatientID, e.Condition, e.Medication,
	)
	return apperr.FromPG("insert", "condition", err)
}

func (r *conditionRepoPG) UpdateMedication(ctx context.Context, id uuid.UUID, medication string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE condition_entry SET medication = $2 WHERE id = $1`, id, medication)
	if err != nil {
		return apperr.FromPG("update", "condition", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("update", "condition", "no condition %s", id)
	}
	return nil
}

func (r *conditionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM condition_entry WHERE id = $1`, id)
	if err != nil {
		return apperr.FromPG("delete", "condition", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("delete", "condition", "no condition %s", id)
	}
	return nil
}

func (r *conditionRepoPG) DeleteByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM condition_entry WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, apperr.FromPG("delete", "condition", err)
	}
	return int(tag.RowsAffected()), nil
}
