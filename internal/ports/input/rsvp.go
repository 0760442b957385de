package input

import (
	"context"

	"rsvphub/internal/domain/capacity"
	"rsvphub/internal/domain/entities"
	"rsvphub/internal/domain/waitlist"
)

// RSVPResult reports the outcome of a transition attempt. AppliedStatus may
// differ from the requested status when the engine diverted the attendee to
// the waitlist.
type RSVPResult struct {
	Attendee         *entities.Attendee
	AppliedStatus    string
	WaitlistPosition int // 0 unless AppliedStatus is waitlisted
	CascadedCount    int // family members downgraded by a primary cancel
	Message          string
	State            capacity.State
}

// BulkAttendee is one entry of a bulk-add request.
type BulkAttendee struct {
	UserID      string
	DisplayName string
	Type        string
}

// BulkItemResult is the per-item outcome of a bulk add. Capacity is checked
// per item, so one batch can mix admitted, waitlisted and rejected entries
// but can never overshoot capacity.
type BulkItemResult struct {
	DisplayName   string
	AppliedStatus string
	Err           error
}

type RSVPUseCase interface {
	// SetStatus applies a user's intent to move their own (or a managed)
	// attendee record to target status, consulting the capacity engine.
	SetStatus(ctx context.Context, locale, eventID, userID, attendeeID, target string) (*RSVPResult, error)
	BulkAdd(ctx context.Context, locale, eventID string, reqs []BulkAttendee) ([]BulkItemResult, error)
	// PromoteNext confirms the longest-waiting attendee; organizer only.
	PromoteNext(ctx context.Context, locale, eventID, organizerID string) (*RSVPResult, error)
	WaitlistRanking(ctx context.Context, eventID string) (waitlist.Ranking, error)
	WaitlistPositionForUser(ctx context.Context, eventID, userID string) (int, bool, error)
}
