package treatment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/db"
)

// -- Visit Repository --

type visitRepoPG struct {
	pool *pgxpool.Pool
}

func NewVisitRepo(pool *pgxpool.Pool) VisitRepository {
	return &visitRepoPG{pool: pool}
}

func (r *visitRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const visitCols = `id, patient_id, therapist_id, visit_date, frequency, pre_measurement, post_measurement,
	package_label, complication, comment, created_at, updated_at`

func scanVisit(row pgx.Row) (*TreatmentVisit, error) {
	var v TreatmentVisit
	err := row.Scan(&v.ID, &v.PatientID, &v.TherapistID, &v.VisitDate, &v.Frequency,
		&v.PreMeasurement, &v.PostMeasurement, &v.PackageLabel, &v.Complication, &v.Comment,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *visitRepoPG) Create(ctx context.Context, v *TreatmentVisit) error {
	v.ID = uuid.New()
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO treatment_visit (
			id, patient_id, therapist_id, visit_date, frequency, pre_measurement, post_measurement,
			package_label, complication, comment, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		v.ID, v.PatientID, v.TherapistID, v.VisitDate, v.Frequency, v.PreMeasurement, v.PostMeasurement,
		v.PackageLabel, v.Complication, v.Comment, v.CreatedAt, v.UpdatedAt,
	)
	return apperr.FromPG("create", "visit", err)
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TreatmentVisit, error) {
	v, err := scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM treatment_visit WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromPG("get", "visit", err)
	}
	return v, nil
}

func (r *visitRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*TreatmentVisit, error) {
	v, err := scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM treatment_visit WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, apperr.FromPG("lock", "visit", err)
	}
	return v, nil
}

func (r *visitRepoPG) Update(ctx context.Context, v *TreatmentVisit) error {
	v.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE treatment_visit SET
			therapist_id=$2, visit_date=$3, frequency=$4, pre_measurement=$5, post_measurement=$6,
			package_label=$7, complication=$8, comment=$9, updated_at=$10
		WHERE id = $1`,
		v.ID, v.TherapistID, v.VisitDate, v.Frequency, v.PreMeasurement, v.PostMeasurement,
		v.PackageLabel, v.Complication, v.Comment, v.UpdatedAt,
	)
	if err != nil {
		return apperr.FromPG("update", "visit", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("update", "visit", "no visit %s", v.ID)
	}
	return nil
}

func (r *visitRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM treatment_visit WHERE id = $1`, id)
	if err != nil {
		return apperr.FromPG("delete", "visit", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("delete", "visit", "no visit %s", id)
	}
	return nil
}

func (r *visitRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*TreatmentVisit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM treatment_visit WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, apperr.FromPG("list", "visit", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+visitCols+` FROM treatment_visit WHERE patient_id = $1
		ORDER BY visit_date DESC, created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromPG("list", "visit", err)
	}
	defer rows.Close()

	var items []*TreatmentVisit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, apperr.FromPG("list", "visit", err)
		}
		items = append(items, v)
	}
	return items, total, apperr.FromPG("list", "visit", rows.Err())
}

// IDsByPatient locks and returns the ids of every visit of the patient.
func (r *visitRepoPG) IDsByPatient(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id FROM treatment_visit WHERE patient_id = $1 ORDER BY id FOR UPDATE`, patientID)
	if err != nil {
		return nil, apperr.FromPG("list", "visit", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, apperr.FromPG("list", "visit", err)
	}
	return ids, nil
}

// -- Point Repository --

type pointRepoPG struct {
	pool *pgxpool.Pool
}

func NewPointRepo(pool *pgxpool.Pool) PointRepository {
	return &pointRepoPG{pool: pool}
}

func (r *pointRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *pointRepoPG) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*MeasurementPoint, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, visit_id, location, x, y, reaction, quantity FROM measurement_point
		WHERE visit_id = $1 ORDER BY location, x, y`, visitID)
	if err != nil {
		return nil, apperr.FromPG("list", "point", err)
	}
	defer rows.Close()

	var items []*MeasurementPoint
	for rows.Next() {
		var p MeasurementPoint
		if err := rows.Scan(&p.ID, &p.VisitID, &p.Location, &p.X, &p.Y, &p.Reaction, &p.Quantity); err != nil {
			return nil, apperr.FromPG("list", "point", err)
		}
		items = append(items, &p)
	}
	return items, apperr.FromPG("list", "point", rows.Err())
}

func (r *pointRepoPG) Insert(ctx context.Context, p *MeasurementPoint) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO measurement_point (id, visit_id, location, x, y, reaction, quantity)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.VisitID, p.Location, p.X, p.Y, p.Reaction, p.Quantity,
	)
	return apperr.FromPG("insert", "point", err)
}

func (r *pointRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM measurement_point WHERE id = $1`, id)
	if err != nil {
		return apperr.FromPG("delete", "point", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("delete", "point", "no point %s", id)
	}
	return nil
}
