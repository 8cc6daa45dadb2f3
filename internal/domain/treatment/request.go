package treatment

import (
	"github.com/google/uuid"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/pkg/caldate"
)

// VisitRequest is the body of POST /visits and PUT /visits/:id. Points is
// optional: absent leaves stored points alone, an empty array removes them.
type VisitRequest struct {
	PatientID       uuid.UUID     `json:"patient_id"`
	TherapistID     *uuid.UUID    `json:"therapist_id"`
	VisitDate       caldate.Date  `json:"visit_date"`
	Frequency       int           `json:"frequency"`
	PreMeasurement  *float64      `json:"pre_measurement"`
	PostMeasurement *float64      `json:"post_measurement"`
	PackageLabel    string        `json:"package_label"`
	Complication    string        `json:"complication"`
	Comment         string        `json:"comment"`
	Points          *[]PointInput `json:"points"`
}

func (r *VisitRequest) visit() *TreatmentVisit {
	v := &TreatmentVisit{
		PatientID:       r.PatientID,
		VisitDate:       r.VisitDate,
		Frequency:       r.Frequency,
		PreMeasurement:  r.PreMeasurement,
		PostMeasurement: r.PostMeasurement,
		PackageLabel:    r.PackageLabel,
		Complication:    r.Complication,
		Comment:         r.Comment,
	}
	if r.TherapistID != nil {
		v.TherapistID = *r.TherapistID
	}
	return v
}

// PointsRequest is the body of PUT /visits/:id/points.
type PointsRequest struct {
	Points *[]PointInput `json:"points"`
}

func (r *PointsRequest) Validate() error {
	if r.Points == nil {
		return apperr.Validationf("point", "points is required; send [] to remove all")
	}
	return nil
}
