package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *PatientRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*PatientRecord, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*PatientRecord, error)
	GetByNationalID(ctx context.Context, nationalID string) (*PatientRecord, error)
	Update(ctx context.Context, p *PatientRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, query string, limit, offset int) ([]*PatientRecord, int, error)
}

type ConditionRepository interface {
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*ConditionEntry, error)
	Insert(ctx context.Context, e *ConditionEntry) error
	UpdateMedication(ctx context.Context, id uuid.UUID, medication string) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByPatient(ctx context.Context, patientID uuid.UUID) (int, error)
}
