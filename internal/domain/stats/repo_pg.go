package stats

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/db"
	"github.com/therapy/clinic/pkg/caldate"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) count(ctx context.Context, op, sql string, args ...interface{}) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, apperr.FromPG(op, "stats", err)
	}
	return n, nil
}

func (r *repoPG) CountPatients(ctx context.Context) (int, error) {
	return r.count(ctx, "count patients", `SELECT COUNT(*) FROM patient_record`)
}

func (r *repoPG) CountPatientsSince(ctx context.Context, since caldate.Date) (int, error) {
	return r.count(ctx, "count patients", `SELECT COUNT(*) FROM patient_record WHERE registered_at >= $1`, since)
}

func (r *repoPG) CountVisitsSince(ctx context.Context, since caldate.Date) (int, error) {
	return r.count(ctx, "count visits", `SELECT COUNT(*) FROM treatment_visit WHERE visit_date >= $1`, since)
}

func (r *repoPG) PatientsByMonth(ctx context.Context, year int) (map[int]int, error) {
	return r.byMonth(ctx, "patients by month", `
		SELECT EXTRACT(MONTH FROM registered_at)::int, COUNT(*)
		FROM patient_record
		WHERE EXTRACT(YEAR FROM registered_at) = $1
		GROUP BY 1`, year)
}

func (r *repoPG) VisitsByMonth(ctx context.Context, year int) (map[int]int, error) {
	return r.byMonth(ctx, "visits by month", `
		SELECT EXTRACT(MONTH FROM visit_date)::int, COUNT(*)
		FROM treatment_visit
		WHERE EXTRACT(YEAR FROM visit_date) = $1
		GROUP BY 1`, year)
}

func (r *repoPG) byMonth(ctx context.Context, op, sql string, year int) (map[int]int, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, year)
	if err != nil {
		return nil, apperr.FromPG(op, "stats", err)
	}
	defer rows.Close()

	out := make(map[int]int, 12)
	for rows.Next() {
		var month, n int
		if err := rows.Scan(&month, &n); err != nil {
			return nil, apperr.FromPG(op, "stats", err)
		}
		out[month] = n
	}
	return out, apperr.FromPG(op, "stats", rows.Err())
}
