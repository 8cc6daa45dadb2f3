package patient

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/notification"
)

// store backs every mock in this package so that fakeTx can snapshot and
// restore all of it at once.
type store struct {
	patients   map[uuid.UUID]PatientRecord
	conditions map[uuid.UUID]ConditionEntry
	// visits maps a patient to the point count of each of its visits.
	visits map[uuid.UUID][]int

	writes int
	failAt int
}

func newStore() *store {
	return &store{
		patients:   make(map[uuid.UUID]PatientRecord),
		conditions: make(map[uuid.UUID]ConditionEntry),
		visits:     make(map[uuid.UUID][]int),
	}
}

// write counts one mutation and fails the failAt-th one.
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
	for k, v := range s.visits {
		cp.visits[k] = append([]int(nil), v...)
	}
	return cp
}

func (s *store) restore(snap *store) {
	s.patients = snap.patients
	s.conditions = snap.conditions
	s.visits = snap.visits
}

func (s *store) conditionsOf(patientID uuid.UUID) map[string]string {
	out := make(map[string]string)
	for _, c := range s.conditions {
		if c.PatientID == patientID {
			out[c.Condition] = c.Medication
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

// -- Mock Patient Repository --

type mockPatientRepo struct{ st *store }

func (m *mockPatientRepo) Create(_ context.Context, p *PatientRecord) error {
	for _, o := range m.st.patients {
		if o.NationalID == p.NationalID {
			return apperr.Conflictf("create", "patient", "duplicate patient_record_national_id_key")
		}
	}
	if err := m.st.write("create", "patient"); err != nil {
		return err
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	cp.Conditions = nil
	m.st.patients[p.ID] = cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*PatientRecord, error) {
	p, ok := m.st.patients[id]
	if !ok {
		return nil, apperr.NotFoundf("get", "patient", "not found")
	}
	return &p, nil
}

func (m *mockPatientRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*PatientRecord, error) {
	return m.GetByID(ctx, id)
}

func (m *mockPatientRepo) GetByNationalID(_ context.Context, nationalID string) (*PatientRecord, error) {
	for _, p := range m.st.patients {
		if p.NationalID == nationalID {
			return &p, nil
		}
	}
	return nil, apperr.NotFoundf("get", "patient", "not found")
}

func (m *mockPatientRepo) Update(_ context.Context, p *PatientRecord) error {
	if _, ok := m.st.patients[p.ID]; !ok {
		return apperr.NotFoundf("update", "patient", "not found")
	}
	if err := m.st.write("update", "patient"); err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	cp := *p
	cp.Conditions = nil
	m.st.patients[p.ID] = cp
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.st.patients[id]; !ok {
		return apperr.NotFoundf("delete", "patient", "not found")
	}
	if err := m.st.write("delete", "patient"); err != nil {
		return err
	}
	delete(m.st.patients, id)
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, query string, limit, offset int) ([]*PatientRecord, int, error) {
	var result []*PatientRecord
	for _, p := range m.st.patients {
		if query == "" || p.Name == query || p.NationalID == query {
			p := p
			result = append(result, &p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	total := len(result)
	if offset > total {
		offset = total
	}
	if end := offset + limit; end < total {
		return result[offset:end], total, nil
	}
	return result[offset:], total, nil
}

// -- Mock Condition Repository --

type mockConditionRepo struct{ st *store }

func (m *mockConditionRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*ConditionEntry, error) {
	var result []*ConditionEntry
	for _, c := range m.st.conditions {
		if c.PatientID == patientID {
			c := c
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Condition < result[j].Condition })
	return result, nil
}

func (m *mockConditionRepo) Insert(_ context.Context, e *ConditionEntry) error {
	for _, c := range m.st.conditions {
		if c.PatientID == e.PatientID && c.Condition == e.Condition {
			return apperr.Conflictf("insert", "condition", "duplicate condition_entry_patient_id_condition_key")
		}
	}
	if err := m.st.write("insert", "condition"); err != nil {
		return err
	}
	e.ID = uuid.New()
	m.st.conditions[e.ID] = *e
	return nil
}

func (m *mockConditionRepo) UpdateMedication(_ context.Context, id uuid.UUID, medication string) error {
	c, ok := m.st.conditions[id]
	if !ok {
		return apperr.NotFoundf("update", "condition", "not found")
	}
	if err := m.st.write("update", "condition"); err != nil {
		return err
	}
	c.Medication = medication
	m.st.conditions[id] = c
	return nil
}

func (m *mockConditionRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.st.conditions[id]; !ok {
		return apperr.NotFoundf("delete", "condition", "not found")
	}
	if err := m.st.write("delete", "condition"); err != nil {
		return err
	}
	delete(m.st.conditions, id)
	return nil
}

func (m *mockConditionRepo) DeleteByPatient(_ context.Context, patientID uuid.UUID) (int, error) {
	if err := m.st.write("delete", "condition"); err != nil {
		return 0, err
	}
	n := 0
	for id, c := range m.st.conditions {
		if c.PatientID == patientID {
			delete(m.st.conditions, id)
			n++
		}
	}
	return n, nil
}

// -- Fake Visit Cascade --

type fakeCascade struct{ st *store }

func (f *fakeCascade) DeleteVisitsForPatient(_ context.Context, patientID uuid.UUID) (int, int, error) {
	visits := f.st.visits[patientID]
	points := 0
	for _, n := range visits {
		if err := f.st.write("delete", "visit"); err != nil {
			return 0, 0, err
		}
		points += n
	}
	delete(f.st.visits, patientID)
	return len(visits), points, nil
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
	svc      *Service
	st       *store
	tx       *fakeTx
	notifier *recordingNotifier
}

func newFixture() *fixture {
	st := newStore()
	tx := &fakeTx{st: st}
	n := &recordingNotifier{}
	svc := NewService(tx, &mockPatientRepo{st: st}, &mockConditionRepo{st: st}, &fakeCascade{st: st}, n, nil, zerolog.Nop())
	return &fixture{svc: svc, st: st, tx: tx, notifier: n}
}
