package domain

import "errors"

// Domain errors.
var (
	ErrEventNotFound        = errors.New("event not found")
	ErrAttendeeNotFound     = errors.New("attendee not found")
	ErrInvalidStatus        = errors.New("invalid rsvp status")
	ErrInvalidAttendeeType  = errors.New("invalid attendee type")
	ErrCapacityExceeded     = errors.New("event is full and the waitlist is unavailable")
	ErrCapacityConflict     = errors.New("capacity slot was claimed concurrently")
	ErrWaitlistFull         = errors.New("waitlist is full")
	ErrDuplicatePrimary     = errors.New("user already has a primary attendee for this event")
	ErrCannotReduceCapacity = errors.New("cannot reduce capacity below current attendance")
	ErrNotOrganizer         = errors.New("only the organizer can perform this action")
	ErrNoWaitlistedAttendee = errors.New("no attendee on the waitlist")
	ErrNotWaitlisted        = errors.New("attendee is not on the waitlist")
)
