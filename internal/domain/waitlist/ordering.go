// Package waitlist assigns stable FIFO positions to waitlisted attendees.
// A Ranking is always rebuilt from scratch from the current record set, so it
// stays correct under concurrent inserts and removals; waitlists are bounded
// by the event's waitlist limit, so the per-call sort is cheap.
package waitlist

import (
	"sort"
	"time"

	"rsvphub/internal/domain"
	"rsvphub/internal/domain/entities"
)

// Entry is one ranked waitlist slot. Positions are 1-based.
type Entry struct {
	AttendeeID string
	UserID     string
	Position   int
	JoinedAt   time.Time
}

// Ranking is an immutable snapshot of waitlist positions for one event.
type Ranking struct {
	entries    []Entry
	byAttendee map[string]int
}

// Rank orders the waitlisted subset of records by join time (record id breaks
// ties, so concurrent joins at the same instant still rank deterministically)
// and assigns 1-based positions. Records that are deleted or not waitlisted
// are ignored. Every record ranks independently: family members under the
// same user each hold their own position.
func Rank(records []entities.Attendee) Ranking {
	waitlisted := make([]entities.Attendee, 0, len(records))
	for _, rec := range records {
		if rec.Status == domain.StatusWaitlisted && !rec.IsDeleted {
			waitlisted = append(waitlisted, rec)
		}
	}
	sort.SliceStable(waitlisted, func(i, j int) bool {
		if !waitlisted[i].CreatedAt.Equal(waitlisted[j].CreatedAt) {
			return waitlisted[i].CreatedAt.Before(waitlisted[j].CreatedAt)
		}
		return waitlisted[i].ID < waitlisted[j].ID
	})

	r := Ranking{
		entries:    make([]Entry, len(waitlisted)),
		byAttendee: make(map[string]int, len(waitlisted)),
	}
	for i, rec := range waitlisted {
		r.entries[i] = Entry{
			AttendeeID: rec.ID,
			UserID:     rec.UserID,
			Position:   i + 1,
			JoinedAt:   rec.CreatedAt,
		}
		r.byAttendee[rec.ID] = i + 1
	}
	return r
}

// Entries returns the ranked waitlist in position order.
func (r Ranking) Entries() []Entry {
	return r.entries
}

func (r Ranking) Len() int {
	return len(r.entries)
}

// Position returns the 1-based position of an attendee record, if waitlisted.
func (r Ranking) Position(attendeeID string) (int, bool) {
	pos, ok := r.byAttendee[attendeeID]
	return pos, ok
}

// PositionForUser returns the best (lowest) position among the user's
// waitlisted records, which is what a "my position" lookup shows.
func (r Ranking) PositionForUser(userID string) (int, bool) {
	if userID == "" {
		return 0, false
	}
	for _, e := range r.entries {
		if e.UserID == userID {
			return e.Position, true
		}
	}
	return 0, false
}
