package output

import "context"

// Notification kinds.
const (
	NotifyJoined       = "joined"
	NotifyWaitlisted   = "waitlisted"
	NotifyPromoted     = "promoted"
	NotifyCancelled    = "cancelled"
	NotifyCapacityFull = "capacity_full"
)

// Notification describes one RSVP transition for external sinks.
type Notification struct {
	EventID    string
	EventTitle string
	UserID     string
	AttendeeID string
	Kind       string
	// Position is the waitlist position when Kind is waitlisted.
	Position int
}

// NotificationSink is informed of status transitions. It is fire-and-forget:
// callers log a returned error but never block or roll back on it.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}
