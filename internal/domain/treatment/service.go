package treatment

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therapy/clinic/internal/domain/account"
	"github.com/therapy/clinic/internal/domain/patient"
	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/db"
	"github.com/therapy/clinic/internal/platform/notification"
	"github.com/therapy/clinic/internal/platform/telemetry"
	"github.com/therapy/clinic/internal/reconcile"
)

type PatientLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.PatientRecord, error)
}

type TherapistLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

type Service struct {
	tx         db.Transactor
	visits     VisitRepository
	points     PointRepository
	patients   PatientLookup
	therapists TherapistLookup
	notifier   notification.Notifier
	metrics    *telemetry.Metrics
	log        zerolog.Logger
}

func NewService(
	tx db.Transactor,
	visits VisitRepository,
	points PointRepository,
	patients PatientLookup,
	therapists TherapistLookup,
	notifier notification.Notifier,
	metrics *telemetry.Metrics,
	log zerolog.Logger,
) *Service {
	return &Service{
		tx:         tx,
		visits:     visits,
		points:     points,
		patients:   patients,
		therapists: therapists,
		notifier:   notifier,
		metrics:    metrics,
		log:        log,
	}
}

// RecordVisit stores v and its initial points in one transaction.
func (s *Service) RecordVisit(ctx context.Context, v *TreatmentVisit, points []PointInput) (*TreatmentVisit, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	clean, err := NormalizePoints(points)
	if err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByID(ctx, v.PatientID); err != nil {
			return err
		}
		if err := s.checkTherapist(ctx, v.TherapistID); err != nil {
			return err
		}
		if err := s.visits.Create(ctx, v); err != nil {
			return err
		}
		v.Points = make([]*MeasurementPoint, 0, len(clean))
		for _, in := range clean {
			p := newPoint(v.ID, in)
			if err := s.points.Insert(ctx, p); err != nil {
				return err
			}
			v.Points = append(v.Points, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("visit_id", v.ID.String()).Str("patient_id", v.PatientID.String()).Int("points", len(clean)).Msg("visit recorded")
	s.notify(ctx, notification.EventVisitRecorded, map[string]string{
		"visit_id":     v.ID.String(),
		"patient_id":   v.PatientID.String(),
		"therapist_id": v.TherapistID.String(),
		"visit_date":   v.VisitDate.String(),
		"points":       strconv.Itoa(len(clean)),
	})
	return v, nil
}

func (s *Service) checkTherapist(ctx context.Context, id uuid.UUID) error {
	a, err := s.therapists.GetByID(ctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return apperr.Validationf("visit", "therapist %s does not exist", id)
		}
		return err
	}
	if !a.IsTherapist() {
		return apperr.Validationf("visit", "account %s is not a therapist", a.Username)
	}
	return nil
}

func newPoint(visitID uuid.UUID, in PointInput) *MeasurementPoint {
	return &MeasurementPoint{
		VisitID:  visitID,
		Location: in.Location,
		X:        in.X,
		Y:        in.Y,
		Reaction: in.Reaction,
		Quantity: in.Quantity,
	}
}

// GetVisit returns the visit with its points.
func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*TreatmentVisit, error) {
	v, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pts, err := s.points.ListByVisit(ctx, id)
	if err != nil {
		return nil, err
	}
	v.Points = pts
	return v, nil
}

func (s *Service) ListVisitsForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*TreatmentVisit, int, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.visits.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListPoints(ctx context.Context, visitID uuid.UUID) ([]*MeasurementPoint, error) {
	if _, err := s.visits.GetByID(ctx, visitID); err != nil {
		return nil, err
	}
	return s.points.ListByVisit(ctx, visitID)
}

// UpdateTreatmentVisit replaces the visit's fields and, when desired is not
// nil, reconciles its points to *desired in the same transaction. A visit
// never moves to another patient.
func (s *Service) UpdateTreatmentVisit(ctx context.Context, v *TreatmentVisit, desired *[]PointInput) (*TreatmentVisit, *reconcile.Summary, error) {
	var summary *reconcile.Summary
	start := time.Now()
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.visits.GetByIDForUpdate(ctx, v.ID)
		if err != nil {
			return err
		}
		v.PatientID = existing.PatientID
		v.CreatedAt = existing.CreatedAt
		if v.TherapistID == uuid.Nil {
			v.TherapistID = existing.TherapistID
		}
		if v.VisitDate.IsZero() {
			v.VisitDate = existing.VisitDate
		}
		if err := v.Validate(); err != nil {
			return err
		}
		if v.TherapistID != existing.TherapistID {
			if err := s.checkTherapist(ctx, v.TherapistID); err != nil {
				return err
			}
		}
		if err := s.visits.Update(ctx, v); err != nil {
			return err
		}
		if desired == nil {
			return nil
		}
		sum, err := s.reconcilePoints(ctx, v.ID, *desired)
		if err != nil {
			return err
		}
		summary = &sum
		return nil
	})
	if desired != nil {
		s.observe(v.ID, summary, err, time.Since(start))
	}
	if err != nil {
		return nil, nil, err
	}

	changes := "unchanged"
	if summary != nil {
		changes = summary.String()
	}
	s.notify(ctx, notification.EventVisitUpdated, map[string]string{
		"visit_id": v.ID.String(),
		"changes":  changes,
	})
	return v, summary, nil
}

// ReconcilePoints moves the visit's stored points to desired. Points whose
// tuple is kept are not rewritten. Either every change is committed or none
// is.
func (s *Service) ReconcilePoints(ctx context.Context, visitID uuid.UUID, desired []PointInput) (reconcile.Summary, error) {
	var summary reconcile.Summary
	start := time.Now()
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.visits.GetByIDForUpdate(ctx, visitID); err != nil {
			return err
		}
		var err error
		summary, err = s.reconcilePoints(ctx, visitID, desired)
		return err
	})
	s.observe(visitID, &summary, err, time.Since(start))
	if err != nil {
		return reconcile.Summary{}, err
	}

	s.notify(ctx, notification.EventPointsReconciled, map[string]string{
		"visit_id": visitID.String(),
		"changes":  summary.String(),
	})
	return summary, nil
}

func (s *Service) reconcilePoints(ctx context.Context, visitID uuid.UUID, desired []PointInput) (reconcile.Summary, error) {
	clean, err := NormalizePoints(desired)
	if err != nil {
		return reconcile.Summary{}, err
	}
	current, err := s.points.ListByVisit(ctx, visitID)
	if err != nil {
		return reconcile.Summary{}, err
	}

	plan := DiffPoints(current, clean)
	return reconcile.Apply(ctx, plan, reconcile.Ops[*MeasurementPoint, PointInput]{
		Delete: func(ctx context.Context, p *MeasurementPoint) error {
			return s.points.Delete(ctx, p.ID)
		},
		Insert: func(ctx context.Context, in PointInput) error {
			return s.points.Insert(ctx, newPoint(visitID, in))
		},
	})
}

// DeleteTreatmentVisit removes the visit's points and then the visit, in
// one transaction. It returns the number of points removed.
func (s *Service) DeleteTreatmentVisit(ctx context.Context, visitID uuid.UUID) (int, error) {
	var points int
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.visits.GetByIDForUpdate(ctx, visitID); err != nil {
			return err
		}
		var err error
		points, err = s.deleteVisit(ctx, visitID)
		return err
	})
	if err != nil {
		s.log.Error().Err(err).Str("visit_id", visitID.String()).Msg("visit delete rolled back")
		return 0, err
	}

	s.metrics.ObserveCascade("visit", 1)
	s.metrics.ObserveCascade("point", points)
	s.log.Info().Str("visit_id", visitID.String()).Int("points", points).Msg("visit deleted")
	s.notify(ctx, notification.EventVisitDeleted, map[string]string{
		"visit_id": visitID.String(),
		"points":   strconv.Itoa(points),
	})
	return points, nil
}

// DeleteVisitsForPatient removes every visit of the patient and their
// points. It joins the caller's transaction when there is one.
func (s *Service) DeleteVisitsForPatient(ctx context.Context, patientID uuid.UUID) (visits, points int, err error) {
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		ids, err := s.visits.IDsByPatient(ctx, patientID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, err := s.deleteVisit(ctx, id)
			if err != nil {
				return err
			}
			points += n
		}
		visits = len(ids)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return visits, points, nil
}

func (s *Service) deleteVisit(ctx context.Context, visitID uuid.UUID) (int, error) {
	pts, err := s.points.ListByVisit(ctx, visitID)
	if err != nil {
		return 0, err
	}
	for _, p := range pts {
		if err := s.points.Delete(ctx, p.ID); err != nil {
			return 0, err
		}
	}
	if err := s.visits.Delete(ctx, visitID); err != nil {
		return 0, err
	}
	return len(pts), nil
}

func (s *Service) observe(visitID uuid.UUID, sum *reconcile.Summary, err error, elapsed time.Duration) {
	if err != nil {
		s.metrics.ObserveReconcile("points", outcome(err), 0, 0, 0, elapsed)
		ev := s.log.Error()
		if k := apperr.KindOf(err); k == apperr.Validation || k == apperr.Conflict || k == apperr.NotFound {
			ev = s.log.Debug()
		}
		ev.Err(err).Str("visit_id", visitID.String()).Msg("point reconcile rolled back")
		return
	}
	s.metrics.ObserveReconcile("points", "ok", sum.Added, sum.Updated, sum.Deleted, elapsed)
	s.log.Debug().Str("visit_id", visitID.String()).Stringer("summary", sum).Msg("points reconciled")
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
