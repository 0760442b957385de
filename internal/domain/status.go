package domain

// RSVP statuses an attendee record can be in.
const (
	StatusGoing      = "going"
	StatusNotGoing   = "not-going"
	StatusWaitlisted = "waitlisted"
	StatusPending    = "pending"
)

// Attendee types. Only family_member records follow their primary's cancellation.
const (
	TypePrimary      = "primary"
	TypeFamilyMember = "family_member"
	TypeGuest        = "guest"
	TypeGhost        = "ghost"
	TypeOfflinePaid  = "offline_paid"
	TypeVIP          = "vip"
	TypeSponsor      = "sponsor"
	TypeVolunteer    = "volunteer"
	TypeEarlyBird    = "early_bird"
	TypeGroupBooking = "group_booking"
)

// ValidStatus reports whether s is a known RSVP status.
func ValidStatus(s string) bool {
	switch s {
	case StatusGoing, StatusNotGoing, StatusWaitlisted, StatusPending:
		return true
	}
	return false
}

// ValidAttendeeType reports whether t is a known attendee type.
func ValidAttendeeType(t string) bool {
	switch t {
	case TypePrimary, TypeFamilyMember, TypeGuest, TypeGhost, TypeOfflinePaid,
		TypeVIP, TypeSponsor, TypeVolunteer, TypeEarlyBird, TypeGroupBooking:
		return true
	}
	return false
}

// CascadesFromPrimary reports whether an attendee of type t is downgraded
// automatically when its primary cancels. Volunteer/ghost/offline records have
// no primary-dependency relationship.
func CascadesFromPrimary(t string) bool {
	return t == TypeFamilyMember
}
