package output

import (
	"context"

	"rsvphub/internal/domain/capacity"
	"rsvphub/internal/domain/entities"
)

// AttendeeRepository persists attendee records for events.
//
// ClaimGoing, JoinWaitlist and ReleaseGoing are the only operations allowed
// to change occupancy; each one moves the event's going counter atomically
// with the attendee write, so capacity enforcement is never a client-side
// check-then-act.
type AttendeeRepository interface {
	Create(ctx context.Context, attendee *entities.Attendee) error
	FindByID(ctx context.Context, id string) (*entities.Attendee, error)
	FindByEventID(ctx context.Context, eventID string) ([]entities.Attendee, error)
	FindByEventIDAndStatus(ctx context.Context, eventID, status string) ([]entities.Attendee, error)
	// FindPrimary returns the user's primary attendee record for the event,
	// or domain.ErrAttendeeNotFound.
	FindPrimary(ctx context.Context, eventID, userID string) (*entities.Attendee, error)
	// FindFamilyMembers returns the user's family_member records for the event.
	FindFamilyMembers(ctx context.Context, eventID, userID string) ([]entities.Attendee, error)
	// CountsByEvent aggregates live per-status counts; TotalGoing carries the
	// event row's denormalized counter.
	CountsByEvent(ctx context.Context, eventID string) (capacity.Counts, error)

	// ClaimGoing atomically re-checks capacity under a lock on the event row,
	// upserts the attendee as going and increments the going counter. Returns
	// domain.ErrCapacityConflict when the slot was taken since the caller's
	// snapshot. Idempotent per record: a claim for an attendee that is
	// already going succeeds without moving the counter.
	ClaimGoing(ctx context.Context, eventID string, attendee *entities.Attendee) error
	// JoinWaitlist atomically re-checks the waitlist limit and upserts the
	// attendee as waitlisted. Returns domain.ErrWaitlistFull when the
	// waitlist filled since the caller's snapshot.
	JoinWaitlist(ctx context.Context, eventID string, attendee *entities.Attendee) error
	// ReleaseGoing moves an attendee out of going into newStatus, decrementing
	// the going counter in the same transaction. A no-op on the counter when
	// the attendee was not going.
	ReleaseGoing(ctx context.Context, attendeeID, newStatus string) error

	// UpdateStatus applies a transition that cannot affect occupancy
	// (pending/waitlisted/not-going moves between each other).
	UpdateStatus(ctx context.Context, id, status string) error
	SoftDelete(ctx context.Context, id string) error
}
