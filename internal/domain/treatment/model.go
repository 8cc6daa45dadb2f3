package treatment

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/pkg/caldate"
)

const maxTextLen = 255

// TreatmentVisit is one therapy session of a patient with a therapist.
type TreatmentVisit struct {
	ID              uuid.UUID           `json:"id"`
	PatientID       uuid.UUID           `json:"patient_id"`
	TherapistID     uuid.UUID           `json:"therapist_id"`
	VisitDate       caldate.Date        `json:"visit_date"`
	Frequency       int                 `json:"frequency"`
	PreMeasurement  *float64            `json:"pre_measurement"`
	PostMeasurement *float64            `json:"post_measurement"`
	PackageLabel    string              `json:"package_label"`
	Complication    string              `json:"complication"`
	Comment         string              `json:"comment"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Points          []*MeasurementPoint `json:"points,omitempty"`
}

// MeasurementPoint is one body-location reading taken during a visit.
type MeasurementPoint struct {
	ID       uuid.UUID `json:"id"`
	VisitID  uuid.UUID `json:"visit_id"`
	Location string    `json:"location"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Reaction int       `json:"reaction"`
	Quantity int       `json:"quantity"`
}

func finite(f *float64) bool {
	return f == nil || (!math.IsNaN(*f) && !math.IsInf(*f, 0))
}

func (v *TreatmentVisit) Validate() error {
	v.PackageLabel = strings.TrimSpace(v.PackageLabel)
	v.Complication = strings.TrimSpace(v.Complication)
	v.Comment = strings.TrimSpace(v.Comment)

	if v.PatientID == uuid.Nil {
		return apperr.Validationf("visit", "patient_id is required")
	}
	if v.TherapistID == uuid.Nil {
		return apperr.Validationf("visit", "therapist_id is required")
	}
	if v.VisitDate.IsZero() {
		return apperr.Validationf("visit", "visit_date is required")
	}
	if v.Frequency < 0 {
		return apperr.Validationf("visit", "frequency must not be negative")
	}
	if !finite(v.PreMeasurement) || !finite(v.PostMeasurement) {
		return apperr.Validationf("visit", "measurements must be finite numbers")
	}
	if len(v.PackageLabel) > maxTextLen {
		return apperr.Validationf("visit", "package_label must be at most %d characters", maxTextLen)
	}
	return nil
}
