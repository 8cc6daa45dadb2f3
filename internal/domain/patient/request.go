package patient

import (
	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/reconcile"
	"github.com/therapy/clinic/pkg/caldate"
)

// PatientRequest is the body of POST /patients and PUT /patients/:id.
// Conditions is optional: absent leaves stored conditions alone, an empty
// array removes them.
type PatientRequest struct {
	NationalID   string            `json:"national_id"`
	Name         string            `json:"name"`
	Gender       *string           `json:"gender"`
	BirthDate    caldate.Date      `json:"birth_date"`
	Phone        string            `json:"phone"`
	Address      string            `json:"address"`
	RegisteredAt caldate.Date      `json:"registered_at"`
	Conditions   *[]ConditionInput `json:"conditions"`
}

func (r *PatientRequest) record() *PatientRecord {
	return &PatientRecord{
		NationalID:   r.NationalID,
		Name:         r.Name,
		Gender:       r.Gender,
		BirthDate:    r.BirthDate,
		Phone:        r.Phone,
		Address:      r.Address,
		RegisteredAt: r.RegisteredAt,
	}
}

// ConditionsRequest is the body of PUT /patients/:id/conditions.
type ConditionsRequest struct {
	Conditions *[]ConditionInput `json:"conditions"`
}

func (r *ConditionsRequest) Validate() error {
	if r.Conditions == nil {
		return apperr.Validationf("condition", "conditions is required; send [] to remove all")
	}
	return nil
}

// ConditionsResponse reports a reconciliation and the resulting collection.
type ConditionsResponse struct {
	Summary    reconcile.Summary `json:"summary"`
	Conditions []*ConditionEntry `json:"conditions"`
}
