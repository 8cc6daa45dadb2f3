package stats

import (
	"context"

	"github.com/therapy/clinic/pkg/caldate"
)

// Repository runs the read-only aggregate queries.
type Repository interface {
	CountPatients(ctx context.Context) (int, error)
	CountPatientsSince(ctx context.Context, since caldate.Date) (int, error)
	CountVisitsSince(ctx context.Context, since caldate.Date) (int, error)
	// PatientsByMonth and VisitsByMonth key counts by month number; months
	// without rows are absent.
	PatientsByMonth(ctx context.Context, year int) (map[int]int, error)
	VisitsByMonth(ctx context.Context, year int) (map[int]int, error)
}
