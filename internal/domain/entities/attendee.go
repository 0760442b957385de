package entities

import "time"

// Attendee represents one person's RSVP record for one event.
// At most one primary attendee exists per (EventID, UserID); family members
// and guests are additional records under the same UserID. Records are
// soft-deleted, never removed. CreatedAt is the waitlist FIFO ordering key.
type Attendee struct {
	ID          string
	EventID     string
	UserID      string // empty for ghost/offline attendees
	DisplayName string
	Type        string
	Status      string
	IsDeleted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
