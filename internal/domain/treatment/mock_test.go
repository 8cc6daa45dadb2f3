package treatment

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therapy/clinic/internal/domain/account"
	"github.com/therapy/clinic/internal/domain/patient"
	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/notification"
)

// store backs every mock in this package so fakeTx can snapshot and
// restore all of it at once.
type store struct {
	patients   map[uuid.UUID]patient.PatientRecord
	conditions map[uuid.UUID]patient.ConditionEntry
	accounts   map[uuid.UUID]account.Account
	visits     map[uuid.UUID]TreatmentVisit
	points     map[uuid.UUID]MeasurementPoint

	writes int
	failAt int
}

func newStore() *store {
	return &store{
		patients:   make(map[uuid.UUID]patient.PatientRecord),
		conditions: make(map[uuid.UUID]patient.ConditionEntry),
		accounts:   make(map[uuid.UUID]account.Account),
		visits:     make(map[uuid.UUID]TreatmentVisit),
		points:     make(map[uuid.UUID]MeasurementPoint),
	}
}

func (s *store) write(op, entity string) error {
	s.writes++
	if s.failAt > 0 && s.writes == s.failAt {
		return apperr.StoreErr(op, entity, errors.New("injected failure"))
	}
	return nil
}

func (s *store) snapshot() *store {
	cp := newStore()
	for k, v := range s.patients {
		cp.patients[k] = v
	}
	for k, v := range s.conditions {
		cp.conditions[k] = v
	}
	for k, v := range s.accounts {
		cp.accounts[k] = v
	}
	for k, v := range s.visits {
		cp.visits[k] = v
	}
	for k, v := range s.points {
		cp.points[k] = v
	}
	return cp
}

func (s *store) restore(snap *store) {
	s.patients = snap.patients
	s.conditions = snap.conditions
	s.accounts = snap.accounts
	s.visits = snap.visits
	s.points = snap.points
}

// pointsOf returns the stored points of a visit keyed by id.
func (s *store) pointsOf(visitID uuid.UUID) map[uuid.UUID]MeasurementPoint {
	out := make(map[uuid.UUID]MeasurementPoint)
	for id, p := range s.points {
		if p.VisitID == visitID {
			out[id] = p
		}
	}
	return out
}

// -- Fake Transactor --

type fakeTx struct {
	st        *store
	depth     int
	commits   int
	rollbacks int
}

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if f.depth > 0 {
		return fn(ctx)
	}
	snap := f.st.snapshot()
	f.depth++
	err := fn(ctx)
	f.depth--
	if err != nil {
		f.st.restore(snap)
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

// -- Mock Visit Repository --

type mockVisitRepo struct{ st *store }

func (m *mockVisitRepo) Create(_ context.Context, v *TreatmentVisit) error {
	if err := m.st.write("create", "visit"); err != nil {
		return err
	}
	v.ID = uuid.New()
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	cp := *v
	cp.Points = nil
	m.st.visits[v.ID] = cp
	return nil
}

func (m *mockVisitRepo) GetByID(_ context.Context, id uuid.UUID) (*TreatmentVisit, error) {
	v, ok := m.st.visits[id]
	if !ok {
		return nil, apperr.NotFoundf("get", "visit", "not found")
	}
	return &v, nil
}

func (m *mockVisitRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*TreatmentVisit, error) {
	return m.GetByID(ctx, id)
}

func (m *mockVisitRepo) Update(_ context.Context, v *TreatmentVisit) error {
	if _, ok := m.st.visits[v.ID]; !ok {
		return apperr.NotFoundf("update", "visit", "not found")
	}
	if err := m.st.write("update", "visit"); err != nil {
		return err
	}
	cp := *v
	cp.Points = nil
	m.st.visits[v.ID] = cp
	return nil
}

func (m *mockVisitRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.st.visits[id]; !ok {
		return apperr.NotFoundf("delete", "visit", "not found")
	}
	for _, p := range m.st.points {
		if p.VisitID == id {
			return apperr.StoreErr("delete", "visit", errors.New("foreign key violation: points still reference visit"))
		}
	}
	if err := m.st.write("delete", "visit"); err != nil {
		return err
	}
	delete(m.st.visits, id)
	return nil
}

func (m *mockVisitRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*TreatmentVisit, int, error) {
	var result []*TreatmentVisit
	for _, v := range m.st.visits {
		if v.PatientID == patientID {
			v := v
			result = append(result, &v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].VisitDate.After(result[j].VisitDate) })
	total := len(result)
	if offset > total {
		offset = total
	}
	if end := offset + limit; end < total {
		return result[offset:end], total, nil
	}
	return result[offset:], total, nil
}

func (m *mockVisitRepo) IDsByPatient(_ context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, v := range m.st.visits {
		if v.PatientID == patientID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// -- Mock Point Repository --

type mockPointRepo struct{ st *store }

func (m *mockPointRepo) ListByVisit(_ context.Context, visitID uuid.UUID) ([]*MeasurementPoint, error) {
	var result []*MeasurementPoint
	for _, p := range m.st.points {
		if p.VisitID == visitID {
			p := p
			result = append(result, &p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (m *mockPointRepo) Insert(_ context.Context, p *MeasurementPoint) error {
	if _, ok := m.st.visits[p.VisitID]; !ok {
		return apperr.StoreErr("insert", "point", errors.New("foreign key violation: visit does not exist"))
	}
	if err := m.st.write("insert", "point"); err != nil {
		return err
	}
	p.ID = uuid.New()
	m.st.points[p.ID] = *p
	return nil
}

func (m *mockPointRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.st.points[id]; !ok {
		return apperr.NotFoundf("delete", "point", "not found")
	}
	if err := m.st.write("delete", "point"); err != nil {
		return err
	}
	delete(m.st.points, id)
	return nil
}

// -- Lookups --

type mockPatientRepo struct{ st *store }

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.PatientRecord, error) {
	p, ok := m.st.patients[id]
	if !ok {
		return nil, apperr.NotFoundf("get", "patient", "not found")
	}
	return &p, nil
}

type mockAccountRepo struct{ st *store }

func (m *mockAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	a, ok := m.st.accounts[id]
	if !ok {
		return nil, apperr.NotFoundf("get", "account", "not found")
	}
	return &a, nil
}

type recordingNotifier struct {
	events []notification.Event
	data   []map[string]string
}

func (n *recordingNotifier) Notify(_ context.Context, e notification.Event, data map[string]string) (*notification.Notification, error) {
	n.events = append(n.events, e)
	n.data = append(n.data, data)
	return &notification.Notification{Event: e}, nil
}

type fixture struct {
	svc       *Service
	st        *store
	tx        *fakeTx
	notifier  *recordingNotifier
	patientID uuid.UUID
	therapist uuid.UUID
}

func newFixture() *fixture {
	st := newStore()
	tx := &fakeTx{st: st}
	n := &recordingNotifier{}
	svc := NewService(tx, &mockVisitRepo{st: st}, &mockPointRepo{st: st},
		&mockPatientRepo{st: st}, &mockAccountRepo{st: st}, n, nil, zerolog.Nop())

	pid, tid := uuid.New(), uuid.New()
	st.patients[pid] = patient.PatientRecord{ID: pid, NationalID: "1100", Name: "Malee"}
	st.accounts[tid] = account.Account{ID: tid, Username: "thera1", Role: "therapist"}
	return &fixture{svc: svc, st: st, tx: tx, notifier: n, patientID: pid, therapist: tid}
}
