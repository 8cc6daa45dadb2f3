package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/pkg/caldate"
)

const (
	maxNationalIDLen = 32
	maxNameLen       = 255
)

// PatientRecord is a person under care, identified by a surrogate id and a
// unique national id.
type PatientRecord struct {
	ID           uuid.UUID         `json:"id"`
	NationalID   string            `json:"national_id"`
	Name         string            `json:"name"`
	Gender       *string           `json:"gender,omitempty"`
	BirthDate    caldate.Date      `json:"birth_date"`
	Phone        string            `json:"phone"`
	Address      string            `json:"address"`
	RegisteredAt caldate.Date      `json:"registered_at"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Conditions   []*ConditionEntry `json:"conditions,omitempty"`
}

// ConditionEntry is one condition and the medication prescribed for it.
// A patient has at most one entry per condition label.
type ConditionEntry struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patient_id"`
	Condition  string    `json:"condition"`
	Medication string    `json:"medication"`
}

// CascadeResult counts what DeletePatientRecord removed.
type CascadeResult struct {
	PatientID  uuid.UUID `json:"patient_id"`
	Visits     int       `json:"visits"`
	Points     int       `json:"points"`
	Conditions int       `json:"conditions"`
}

func (p *PatientRecord) normalize() {
	p.NationalID = strings.TrimSpace(p.NationalID)
	p.Name = strings.TrimSpace(p.Name)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Address = strings.TrimSpace(p.Address)
	if p.Gender != nil {
		g := strings.TrimSpace(*p.Gender)
		if g == "" {
			p.Gender = nil
		} else {
			p.Gender = &g
		}
	}
}

// Validate checks the record's own fields. A zero registered_at passes;
// registration requires it and updates keep the stored one.
func (p *PatientRecord) Validate() error {
	p.normalize()
	if p.NationalID == "" {
		return apperr.Validationf("patient", "national_id is required")
	}
	if len(p.NationalID) > maxNationalIDLen {
		return apperr.Validationf("patient", "national_id must be at most %d characters", maxNationalIDLen)
	}
	if p.Name == "" {
		return apperr.Validationf("patient", "name is required")
	}
	if len(p.Name) > maxNameLen {
		return apperr.Validationf("patient", "name must be at most %d characters", maxNameLen)
	}
	if !p.BirthDate.IsZero() && !p.RegisteredAt.IsZero() && p.BirthDate.After(p.RegisteredAt) {
		return apperr.Validationf("patient", "birth_date %s is after registered_at %s", p.BirthDate, p.RegisteredAt)
	}
	return nil
}
