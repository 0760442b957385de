// Package capacity derives the capacity state of an event from its attendee
// counts and capacity policy. The evaluation is pure: no I/O, no retained
// state, safe to run on every request or observed update.
package capacity

import "math"

// Capacity states, from most to least room.
const (
	StateOK       = "ok"
	StateNear     = "near"
	StateFull     = "full"
	StateWaitlist = "waitlist"
)

// nearlyFullRatio is the occupancy ratio (inclusive) at which an event is
// reported as nearly full.
const nearlyFullRatio = 0.9

// Policy is the per-event capacity configuration, owned by the organizer.
// MaxAttendees nil means unlimited; WaitlistLimit nil means unbounded waitlist.
type Policy struct {
	MaxAttendees    *int
	WaitlistEnabled bool
	WaitlistLimit   *int
}

// Counts is a snapshot of attendee counts per RSVP status for one event.
// TotalGoing is the authoritative occupancy figure; it may come from a
// denormalized counter and is reconciled against Going by the caller.
type Counts struct {
	Going      int
	NotGoing   int
	Pending    int
	Waitlisted int
	TotalGoing int
}

// State is the derived capacity state. It is never persisted; it is
// recomputed from a fresh Counts on every read.
type State struct {
	State              string
	Remaining          int
	Unlimited          bool
	IsAtCapacity       bool
	IsNearlyFull       bool
	CanAddMore         bool
	CanWaitlist        bool
	WarningMessage     string
	SlotsRemainingText string
}

// Translator renders user-facing text for a locale. Satisfied by the i18n
// infrastructure's Translator.
type Translator interface {
	T(locale, key string, data map[string]any) string
}

// Engine evaluates Counts against a Policy. The translator is only used for
// the presentation fields; the decision itself is independent of locale.
type Engine struct {
	tr Translator
}

func NewEngine(tr Translator) *Engine {
	return &Engine{tr: tr}
}

// Evaluate derives the capacity state for one event.
//
// State selection, first match wins:
//  1. at capacity with an open waitlist  -> waitlist
//  2. at capacity                        -> full
//  3. nearly full (>= 90%, inclusive)    -> near
//  4. otherwise                          -> ok
//
// The waitlist is judged only against its own limit, never against
// MaxAttendees. A zero MaxAttendees is a legitimate always-full event.
func (e *Engine) Evaluate(locale string, counts Counts, policy Policy) State {
	if policy.MaxAttendees == nil {
		return State{
			State:      StateOK,
			Remaining:  math.MaxInt,
			Unlimited:  true,
			CanAddMore: true,
		}
	}

	max := *policy.MaxAttendees
	st := State{
		Remaining:    max - counts.TotalGoing,
		IsAtCapacity: counts.TotalGoing >= max,
		IsNearlyFull: float64(counts.TotalGoing) >= float64(max)*nearlyFullRatio,
	}

	canWaitlist := policy.WaitlistEnabled &&
		(policy.WaitlistLimit == nil || counts.Waitlisted < *policy.WaitlistLimit)

	switch {
	case st.IsAtCapacity && canWaitlist:
		st.State = StateWaitlist
		st.CanWaitlist = true
		st.WarningMessage = e.tr.T(locale, "capacity.warning.waitlist", nil)
		st.SlotsRemainingText = e.tr.T(locale, "capacity.slots.none", nil)
	case st.IsAtCapacity:
		st.State = StateFull
		st.WarningMessage = e.tr.T(locale, "capacity.warning.full", nil)
		st.SlotsRemainingText = e.tr.T(locale, "capacity.slots.none", nil)
	case st.IsNearlyFull:
		st.State = StateNear
		st.CanAddMore = true
		st.WarningMessage = e.tr.T(locale, "capacity.warning.near",
			map[string]any{"Remaining": st.Remaining})
		st.SlotsRemainingText = e.tr.T(locale, "capacity.slots.remaining",
			map[string]any{"Count": st.Remaining})
	default:
		st.State = StateOK
		st.CanAddMore = true
	}
	return st
}
