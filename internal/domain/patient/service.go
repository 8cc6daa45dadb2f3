package patient

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/db"
	"github.com/therapy/clinic/internal/platform/notification"
	"github.com/therapy/clinic/internal/platform/telemetry"
	"github.com/therapy/clinic/internal/reconcile"
)

// VisitCascade removes every treatment visit of a patient together with the
// visits' measurement points. It runs inside the caller's transaction.
type VisitCascade interface {
	DeleteVisitsForPatient(ctx context.Context, patientID uuid.UUID) (visits, points int, err error)
}

type Service struct {
	tx         db.Transactor
	patients   Repository
	conditions ConditionRepository
	visits     VisitCascade
	notifier   notification.Notifier
	metrics    *telemetry.Metrics
	log        zerolog.Logger
}

func NewService(
	tx db.Transactor,
	patients Repository,
	conditions ConditionRepository,
	visits VisitCascade,
	notifier notification.Notifier,
	metrics *telemetry.Metrics,
	log zerolog.Logger,
) *Service {
	return &Service{
		tx:         tx,
		patients:   patients,
		conditions: conditions,
		visits:     visits,
		notifier:   notifier,
		metrics:    metrics,
		log:        log,
	}
}

// RegisterPatient stores rec and its initial conditions in one transaction.
func (s *Service) RegisterPatient(ctx context.Context, rec *PatientRecord, conditions []ConditionInput) (*PatientRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if rec.RegisteredAt.IsZero() {
		return nil, apperr.Validationf("patient", "registered_at is required")
	}
	clean, err := NormalizeConditions(conditions)
	if err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Create(ctx, rec); err != nil {
			return err
		}
		rec.Conditions = make([]*ConditionEntry, 0, len(clean))
		for _, in := range clean {
			e := &ConditionEntry{PatientID: rec.ID, Condition: in.Condition, Medication: in.Medication}
			if err := s.conditions.Insert(ctx, e); err != nil {
				return err
			}
			rec.Conditions = append(rec.Conditions, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("patient_id", rec.ID.String()).Int("conditions", len(clean)).Msg("patient registered")
	s.notify(ctx, notification.EventPatientRegistered, map[string]string{
		"patient_id":    rec.ID.String(),
		"name":          rec.Name,
		"national_id":   rec.NationalID,
		"registered_at": rec.RegisteredAt.String(),
	})
	return rec, nil
}

// GetPatient returns the record with its conditions.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*PatientRecord, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	conds, err := s.conditions.ListByPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Conditions = conds
	return p, nil
}

func (s *Service) GetPatientByNationalID(ctx context.Context, nationalID string) (*PatientRecord, error) {
	return s.patients.GetByNationalID(ctx, nationalID)
}

func (s *Service) ListPatients(ctx context.Context, query string, limit, offset int) ([]*PatientRecord, int, error) {
	return s.patients.List(ctx, query, limit, offset)
}

// ListConditions returns the stored conditions of an existing patient.
func (s *Service) ListConditions(ctx context.Context, patientID uuid.UUID) ([]*ConditionEntry, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	return s.conditions.ListByPatient(ctx, patientID)
}

// UpdatePatientRecord replaces the record's fields and, when desired is not
// nil, reconciles its conditions to *desired in the same transaction. A nil
// desired leaves conditions as they are; an empty one removes them all. The
// returned summary is nil when conditions were not touched.
func (s *Service) UpdatePatientRecord(ctx context.Context, rec *PatientRecord, desired *[]ConditionInput) (*PatientRecord, *reconcile.Summary, error) {
	if err := rec.Validate(); err != nil {
		return nil, nil, err
	}

	var summary *reconcile.Summary
	start := time.Now()
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.patients.GetByIDForUpdate(ctx, rec.ID)
		if err != nil {
			return err
		}
		rec.CreatedAt = existing.CreatedAt
		if rec.RegisteredAt.IsZero() {
			rec.RegisteredAt = existing.RegisteredAt
		}
		if err := s.patients.Update(ctx, rec); err != nil {
			return err
		}
		if desired == nil {
			return nil
		}
		sum, err := s.reconcileConditions(ctx, rec.ID, *desired)
		if err != nil {
			return err
		}
		summary = &sum
		return nil
	})
	if desired != nil {
		s.observe(rec.ID, summary, err, time.Since(start))
	}
	if err != nil {
		return nil, nil, err
	}

	changes := "unchanged"
	if summary != nil {
		changes = summary.String()
	}
	s.notify(ctx, notification.EventPatientUpdated, map[string]string{
		"patient_id": rec.ID.String(),
		"name":       rec.Name,
		"changes":    changes,
	})
	return rec, summary, nil
}

// ReconcileConditions moves the patient's stored conditions to desired:
// labels missing from storage are added, labels whose medication differs
// are updated, and stored labels absent from desired are deleted. Either
// every change is committed or none is.
func (s *Service) ReconcileConditions(ctx context.Context, patientID uuid.UUID, desired []ConditionInput) (reconcile.Summary, error) {
	var summary reconcile.Summary
	start := time.Now()
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByIDForUpdate(ctx, patientID); err != nil {
			return err
		}
		var err error
		summary, err = s.reconcileConditions(ctx, patientID, desired)
		return err
	})
	s.observe(patientID, &summary, err, time.Since(start))
	if err != nil {
		return reconcile.Summary{}, err
	}

	s.notify(ctx, notification.EventConditionsReconciled, map[string]string{
		"patient_id": patientID.String(),
		"changes":    summary.String(),
	})
	return summary, nil
}

// reconcileConditions expects ctx to carry a transaction holding the
// patient's row lock.
func (s *Service) reconcileConditions(ctx context.Context, patientID uuid.UUID, desired []ConditionInput) (reconcile.Summary, error) {
	clean, err := NormalizeConditions(desired)
	if err != nil {
		return reconcile.Summary{}, err
	}
	current, err := s.conditions.ListByPatient(ctx, patientID)
	if err != nil {
		return reconcile.Summary{}, err
	}

	plan := DiffConditions(current, clean)
	return reconcile.Apply(ctx, plan, reconcile.Ops[*ConditionEntry, ConditionInput]{
		Delete: func(ctx context.Context, c *ConditionEntry) error {
			return s.conditions.Delete(ctx, c.ID)
		},
		Update: func(ctx context.Context, c *ConditionEntry, in ConditionInput) error {
			return s.conditions.UpdateMedication(ctx, c.ID, in.Medication)
		},
		Insert: func(ctx context.Context, in ConditionInput) error {
			return s.conditions.Insert(ctx, &ConditionEntry{PatientID: patientID, Condition: in.Condition, Medication: in.Medication})
		},
	})
}

// DeletePatientRecord removes the patient, every visit with its points, and
// every condition in one transaction. Children go before their parents.
func (s *Service) DeletePatientRecord(ctx context.Context, patientID uuid.UUID) (*CascadeResult, error) {
	res := &CascadeResult{PatientID: patientID}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByIDForUpdate(ctx, patientID); err != nil {
			return err
		}
		visits, points, err := s.visits.DeleteVisitsForPatient(ctx, patientID)
		if err != nil {
			return err
		}
		res.Visits, res.Points = visits, points

		if res.Conditions, err = s.conditions.DeleteByPatient(ctx, patientID); err != nil {
			return err
		}
		return s.patients.Delete(ctx, patientID)
	})
	if err != nil {
		s.log.Error().Err(err).Str("patient_id", patientID.String()).Msg("patient delete rolled back")
		return nil, err
	}

	s.metrics.ObserveCascade("patient", 1)
	s.metrics.ObserveCascade("visit", res.Visits)
	s.metrics.ObserveCascade("point", res.Points)
	s.metrics.ObserveCascade("condition", res.Conditions)
	s.log.Info().
		Str("patient_id", patientID.String()).
		Int("visits", res.Visits).
		Int("points", res.Points).
		Int("conditions", res.Conditions).
		Msg("patient deleted")
	s.notify(ctx, notification.EventPatientDeleted, map[string]string{
		"patient_id": patientID.String(),
		"visits":     strconv.Itoa(res.Visits),
		"points":     strconv.Itoa(res.Points),
		"conditions": strconv.Itoa(res.Conditions),
	})
	return res, nil
}

func (s *Service) observe(patientID uuid.UUID, sum *reconcile.Summary, err error, elapsed time.Duration) {
	if err != nil {
		s.metrics.ObserveReconcile("conditions", outcome(err), 0, 0, 0, elapsed)
		ev := s.log.Error()
		if k := apperr.KindOf(err); k == apperr.Validation || k == apperr.Conflict || k == apperr.NotFound {
			ev = s.log.Debug()
		}
		ev.Err(err).Str("patient_id", patientID.String()).Msg("condition reconcile rolled back")
		return
	}
	s.metrics.ObserveReconcile("conditions", "ok", sum.Added, sum.Updated, sum.Deleted, elapsed)
	s.log.Debug().Str("patient_id", patientID.String()).Stringer("summary", sum).Msg("conditions reconciled")
}

func outcome(err error) string {
	if k := apperr.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

func (s *Service) notify(ctx context.Context, event notification.Event, data map[string]string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, event, data); err != nil {
		s.log.Warn().Err(err).Str("event", string(event)).Msg("notification not delivered")
	}
}
