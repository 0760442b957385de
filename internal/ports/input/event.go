package input

import (
	"context"

	"rsvphub/internal/domain/capacity"
	"rsvphub/internal/domain/entities"
)

type EventUseCase interface {
	CreateEvent(ctx context.Context, event *entities.Event, organizerName string) error
	GetEvent(ctx context.Context, id string) (*entities.Event, error)
	ListEvents(ctx context.Context) ([]entities.Event, error)
	// UpdatePolicy replaces the capacity policy; rejects reductions below the
	// current going count.
	UpdatePolicy(ctx context.Context, eventID, organizerID string, policy capacity.Policy) (*entities.Event, error)
	CapacityState(ctx context.Context, locale, eventID string) (capacity.State, capacity.Counts, error)
	ListAttendees(ctx context.Context, eventID, status string) ([]entities.Attendee, error)
	// RemoveAttendee soft-deletes an attendee record; organizer only. A going
	// attendee releases their slot on removal.
	RemoveAttendee(ctx context.Context, eventID, organizerID, attendeeID string) error
	// DeleteEvent removes the event and its attendee records; organizer only.
	DeleteEvent(ctx context.Context, eventID, organizerID string) error
}
