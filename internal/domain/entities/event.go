package entities

import "time"

// Event is a community event with its capacity policy. MaxAttendees nil means
// unlimited capacity; MaxAttendees zero means the event is full from creation.
// GoingCount is the denormalized occupancy counter; it is only ever moved
// inside the same transaction as the attendee write it accounts for.
type Event struct {
	ID              string
	Title           string
	Description     string
	OrganizerID     string
	MaxAttendees    *int
	WaitlistEnabled bool
	WaitlistLimit   *int
	GoingCount      int
	StartsAt        time.Time // zero = not scheduled yet
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (e *Event) HasCapacityLimit() bool {
	return e.MaxAttendees != nil
}
