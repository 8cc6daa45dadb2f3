// Package notification records clinic events (patients registered, visits
// recorded, collections reconciled, records deleted), renders them through
// templates and hands them to a Sender.
package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Event string

const (
	EventAccountCreated       Event = "account.created"
	EventPatientRegistered    Event = "patient.registered"
	EventPatientUpdated       Event = "patient.updated"
	EventPatientDeleted       Event = "patient.deleted"
	EventConditionsReconciled Event = "conditions.reconciled"
	EventVisitRecorded        Event = "visit.recorded"
	EventVisitUpdated         Event = "visit.updated"
	EventVisitDeleted         Event = "visit.deleted"
	EventPointsReconciled     Event = "points.reconciled"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification is one rendered event.
type Notification struct {
	ID        string            `json:"id"`
	Event     Event             `json:"event"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Status    string            `json:"status"`
	Attempts  int               `json:"attempts"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	SentAt    *time.Time        `json:"sent_at,omitempty"`
}

// Sender delivers a rendered notification.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// Notifier is what domain services depend on.
type Notifier interface {
	Notify(ctx context.Context, event Event, data map[string]string) (*Notification, error)
}

// -- Templates --

type Template struct {
	Event   Event  `json:"event"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine renders {{key}} placeholders.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[Event]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[Event]Template)}
	for _, t := range builtInTemplates {
		e.templates[t.Event] = t
	}
	return e
}

var builtInTemplates = []Template{
	{EventAccountCreated, "New {{role}} account", "Account {{username}} was created with role {{role}}."},
	{EventPatientRegistered, "Patient registered", "Patient {{name}} ({{national_id}}) was registered on {{registered_at}}."},
	{EventPatientUpdated, "Patient updated", "Patient {{name}} was updated. Conditions: {{changes}}."},
	{EventPatientDeleted, "Patient record deleted", "Patient {{patient_id}} was deleted with {{visits}} visits, {{points}} points and {{conditions}} conditions."},
	{EventConditionsReconciled, "Conditions updated", "Conditions for patient {{patient_id}}: {{changes}}."},
	{EventVisitRecorded, "Treatment visit recorded", "Visit on {{visit_date}} for patient {{patient_id}} by therapist {{therapist_id}} with {{points}} points."},
	{EventVisitUpdated, "Treatment visit updated", "Visit {{visit_id}} was updated. Points: {{changes}}."},
	{EventVisitDeleted, "Treatment visit deleted", "Visit {{visit_id}} was deleted with {{points}} points."},
	{EventPointsReconciled, "Measurement points updated", "Points for visit {{visit_id}}: {{changes}}."},
}

func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.Event] = t
}

// Render fills the event's template. Placeholders without data stay as-is.
func (e *TemplateEngine) Render(event Event, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[event]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("no template for event %q", event)
	}

	pairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}

// -- Manager --

const defaultCapacity = 1000

// Manager renders, sends and keeps the most recent notifications in memory.
type Manager struct {
	sender    Sender
	templates *TemplateEngine
	capacity  int
	now       func() time.Time

	mu    sync.RWMutex
	byID  map[string]*Notification
	order []string
}

func NewManager(sender Sender, tpl *TemplateEngine) *Manager {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Manager{
		sender:    sender,
		templates: tpl,
		capacity:  defaultCapacity,
		now:       func() time.Time { return time.Now().UTC() },
		byID:      make(map[string]*Notification),
	}
}

// Notify renders event with data and sends it. The notification is stored
// even when sending fails so it can be retried.
func (m *Manager) Notify(ctx context.Context, event Event, data map[string]string) (*Notification, error) {
	subject, body, err := m.templates.Render(event, data)
	if err != nil {
		return nil, err
	}
	n := &Notification{
		ID:        uuid.NewString(),
		Event:     event,
		Subject:   subject,
		Body:      body,
		Data:      data,
		CreatedAt: m.now(),
	}
	err = m.deliver(ctx, n)
	m.store(n)
	return n, err
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	n.Attempts++
	out := *n
	m.mu.Unlock()

	err := m.sender.Send(ctx, &out)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		return err
	}
	sentAt := m.now()
	n.Status = StatusSent
	n.Error = ""
	n.SentAt = &sentAt
	return nil
}

func (m *Manager) store(n *Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[n.ID] = n
	m.order = append(m.order, n.ID)
	for len(m.order) > m.capacity {
		delete(m.byID, m.order[0])
		m.order = m.order[1:]
	}
}

func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	cp := *n
	return &cp, nil
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Event  Event
	Status string
	Limit  int
}

// List returns matching notifications, newest first.
func (m *Manager) List(_ context.Context, f Filter) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Notification
	for i := len(m.order) - 1; i >= 0; i-- {
		n := m.byID[m.order[i]]
		if f.Event != "" && n.Event != f.Event {
			continue
		}
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		cp := *n
		out = append(out, &cp)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Retry re-sends a failed notification.
func (m *Manager) Retry(ctx context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.byID[id]
	status := ""
	if ok {
		status = n.Status
	}
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	if status != StatusFailed {
		return nil, fmt.Errorf("notification %q is %s, only failed notifications can be retried", id, status)
	}
	err := m.deliver(ctx, n)
	return m.snapshot(n), err
}

func (m *Manager) snapshot(n *Notification) *Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *n
	return &cp
}

// Stats counts stored notifications by status and by event.
func (m *Manager) Stats(_ context.Context) map[string]map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byStatus := map[string]int{}
	byEvent := map[string]int{}
	for _, n := range m.byID {
		byStatus[n.Status]++
		byEvent[string(n.Event)]++
	}
	return map[string]map[string]int{"status": byStatus, "event": byEvent}
}

// Events lists the events that have a template, sorted.
func (m *Manager) Events() []Event {
	m.templates.mu.RLock()
	defer m.templates.mu.RUnlock()
	out := make([]Event, 0, len(m.templates.templates))
	for e := range m.templates.templates {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
