package waitlist

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"rsvphub/internal/domain"
	"rsvphub/internal/domain/entities"
)

func waitlistedAt(id, userID string, at time.Time) entities.Attendee {
	return entities.Attendee{
		ID:        id,
		EventID:   "evt1",
		UserID:    userID,
		Type:      domain.TypePrimary,
		Status:    domain.StatusWaitlisted,
		CreatedAt: at,
	}
}

func TestRankFIFO(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []entities.Attendee{
		waitlistedAt("a3", "u3", base.Add(3*time.Minute)),
		waitlistedAt("a1", "u1", base.Add(1*time.Minute)),
		waitlistedAt("a2", "u2", base.Add(2*time.Minute)),
	}
	r := Rank(records)
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	for i, wantID := range []string{"a1", "a2", "a3"} {
		e := r.Entries()[i]
		if e.AttendeeID != wantID || e.Position != i+1 {
			t.Errorf("entry %d = %s/%d, want %s/%d", i, e.AttendeeID, e.Position, wantID, i+1)
		}
	}
}

func TestRankIsPermutation(t *testing.T) {
	base := time.Now()
	var records []entities.Attendee
	for i := 0; i < 50; i++ {
		records = append(records, waitlistedAt(
			fmt.Sprintf("a%02d", i), fmt.Sprintf("u%02d", i), base.Add(time.Duration(i)*time.Second)))
	}
	rand.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })

	r := Rank(records)
	seen := make(map[int]bool)
	for _, e := range r.Entries() {
		if e.Position < 1 || e.Position > r.Len() {
			t.Fatalf("position %d out of range 1..%d", e.Position, r.Len())
		}
		if seen[e.Position] {
			t.Fatalf("duplicate position %d", e.Position)
		}
		seen[e.Position] = true
	}
	if first := r.Entries()[0]; first.AttendeeID != "a00" {
		t.Errorf("rank 1 = %s, want earliest record a00", first.AttendeeID)
	}
}

func TestRankTieBrokenByID(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []entities.Attendee{
		waitlistedAt("b", "u2", at),
		waitlistedAt("a", "u1", at),
		waitlistedAt("c", "u3", at),
	}
	r := Rank(records)
	for i, wantID := range []string{"a", "b", "c"} {
		if got := r.Entries()[i].AttendeeID; got != wantID {
			t.Errorf("entry %d = %s, want %s", i, got, wantID)
		}
	}
}

func TestRankIdempotent(t *testing.T) {
	base := time.Now()
	records := []entities.Attendee{
		waitlistedAt("x", "u1", base.Add(time.Second)),
		waitlistedAt("y", "u2", base),
	}
	first := Rank(records)
	for i := 0; i < 10; i++ {
		again := Rank(records)
		if again.Len() != first.Len() {
			t.Fatal("ranking length changed on identical input")
		}
		for j := range first.Entries() {
			if again.Entries()[j] != first.Entries()[j] {
				t.Fatalf("entry %d changed between calls", j)
			}
		}
	}
}

func TestRankFiltersNonWaitlisted(t *testing.T) {
	base := time.Now()
	deleted := waitlistedAt("d", "u9", base)
	deleted.IsDeleted = true
	records := []entities.Attendee{
		waitlistedAt("w", "u1", base),
		{ID: "g", UserID: "u2", Status: domain.StatusGoing, CreatedAt: base},
		{ID: "p", UserID: "u3", Status: domain.StatusPending, CreatedAt: base},
		deleted,
	}
	r := Rank(records)
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	if _, ok := r.Position("g"); ok {
		t.Error("going record must not be ranked")
	}
	if _, ok := r.Position("d"); ok {
		t.Error("deleted record must not be ranked")
	}
}

func TestPositionsPerRecordNotPerUser(t *testing.T) {
	base := time.Now()
	records := []entities.Attendee{
		waitlistedAt("fam", "u1", base.Add(2*time.Second)),
		waitlistedAt("self", "u1", base),
		waitlistedAt("other", "u2", base.Add(time.Second)),
	}
	records[0].Type = domain.TypeFamilyMember

	r := Rank(records)
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3: same-user records rank independently", r.Len())
	}
	if pos, _ := r.Position("self"); pos != 1 {
		t.Errorf("self position = %d, want 1", pos)
	}
	if pos, _ := r.Position("fam"); pos != 3 {
		t.Errorf("family position = %d, want 3", pos)
	}
	// "my position" is the user's best slot
	if pos, ok := r.PositionForUser("u1"); !ok || pos != 1 {
		t.Errorf("PositionForUser(u1) = %d,%v, want 1,true", pos, ok)
	}
	if _, ok := r.PositionForUser("nobody"); ok {
		t.Error("unknown user should have no position")
	}
}
