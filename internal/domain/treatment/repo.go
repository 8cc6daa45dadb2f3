package treatment

import (
	"context"

	"github.com/google/uuid"
)

type VisitRepository interface {
	Create(ctx context.Context, v *TreatmentVisit) error
	GetByID(ctx context.Context, id uuid.UUID) (*TreatmentVisit, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*TreatmentVisit, error)
	Update(ctx context.Context, v *TreatmentVisit) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*TreatmentVisit, int, error)
	IDsByPatient(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error)
}

type PointRepository interface {
	ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*MeasurementPoint, error)
	Insert(ctx context.Context, p *MeasurementPoint) error
	Delete(ctx context.Context, id uuid.UUID) error
}
