package stats

import (
	"context"

	"github.com/therapy/clinic/internal/platform/notification"
)

// countedEvents are the committed writes that move a patient or visit count.
var countedEvents = map[notification.Event]bool{
	notification.EventPatientRegistered: true,
	notification.EventPatientUpdated:    true,
	notification.EventPatientDeleted:    true,
	notification.EventVisitRecorded:     true,
	notification.EventVisitUpdated:      true,
	notification.EventVisitDeleted:      true,
}

// InvalidatingNotifier drops cached aggregates when a counted event is
// published, then forwards the event.
type InvalidatingNotifier struct {
	next  notification.Notifier
	stats *Service
}

func NewInvalidatingNotifier(next notification.Notifier, stats *Service) *InvalidatingNotifier {
	return &InvalidatingNotifier{next: next, stats: stats}
}

func (n *InvalidatingNotifier) Notify(ctx context.Context, event notification.Event, data map[string]string) (*notification.Notification, error) {
	if countedEvents[event] && n.stats != nil {
		n.stats.Invalidate(ctx)
	}
	if n.next == nil {
		return nil, nil
	}
	return n.next.Notify(ctx, event, data)
}
