package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rsvphub/internal/domain"
	"rsvphub/internal/domain/capacity"
	"rsvphub/internal/domain/entities"
	"rsvphub/internal/ports/input"
	"rsvphub/internal/ports/output"
)

// echoT echoes message keys, like the real translator does for missing keys.
type echoT struct{}

func (echoT) T(locale, key string, data map[string]any) string { return key }

// memStore is an in-memory AttendeeRepository + EventRepository whose claim
// operations are atomic under one mutex, mirroring the transactional
// guarantees of the real repositories.
type memStore struct {
	mu        sync.Mutex
	events    map[string]*entities.Event
	attendees map[string]*entities.Attendee
	claimHook func(ev *entities.Event) error // pre-claim fault injection
}

func newMemStore() *memStore {
	return &memStore{
		events:    make(map[string]*entities.Event),
		attendees: make(map[string]*entities.Attendee),
	}
}

func (m *memStore) putEvent(ev *entities.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ev
	m.events[ev.ID] = &cp
}

func (m *memStore) putAttendee(a *entities.Attendee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attendees[a.ID] = &cp
	if cp.Status == domain.StatusGoing {
		m.events[cp.EventID].GoingCount++
	}
}

// ── EventRepository ──────────────────────────────────────────────────────

func (m *memStore) CreateEvent(ctx context.Context, ev *entities.Event) error {
	m.putEvent(ev)
	return nil
}

func (m *memStore) FindByID(ctx context.Context, id string) (*entities.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attendees[id]
	if !ok {
		return nil, domain.ErrAttendeeNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) eventByID(id string) (*entities.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (m *memStore) List(ctx context.Context) ([]entities.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entities.Event, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, *ev)
	}
	return out, nil
}

func (m *memStore) UpdatePolicy(ctx context.Context, ev *entities.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.events[ev.ID]
	if !ok {
		return domain.ErrEventNotFound
	}
	stored.MaxAttendees = ev.MaxAttendees
	stored.WaitlistEnabled = ev.WaitlistEnabled
	stored.WaitlistLimit = ev.WaitlistLimit
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	return nil
}

// ── AttendeeRepository ───────────────────────────────────────────────────

func (m *memStore) FindByEventID(ctx context.Context, eventID string) ([]entities.Attendee, error) {
	return m.findWhere(func(a *entities.Attendee) bool {
		return a.EventID == eventID && !a.IsDeleted
	}), nil
}

func (m *memStore) FindByEventIDAndStatus(ctx context.Context, eventID, status string) ([]entities.Attendee, error) {
	return m.findWhere(func(a *entities.Attendee) bool {
		return a.EventID == eventID && a.Status == status && !a.IsDeleted
	}), nil
}

func (m *memStore) FindPrimary(ctx context.Context, eventID, userID string) (*entities.Attendee, error) {
	found := m.findWhere(func(a *entities.Attendee) bool {
		return a.EventID == eventID && a.UserID == userID &&
			a.Type == domain.TypePrimary && !a.IsDeleted
	})
	if len(found) == 0 {
		return nil, domain.ErrAttendeeNotFound
	}
	return &found[0], nil
}

func (m *memStore) FindFamilyMembers(ctx context.Context, eventID, userID string) ([]entities.Attendee, error) {
	return m.findWhere(func(a *entities.Attendee) bool {
		return a.EventID == eventID && a.UserID == userID &&
			a.Type == domain.TypeFamilyMember && !a.IsDeleted
	}), nil
}

func (m *memStore) findWhere(pred func(*entities.Attendee) bool) []entities.Attendee {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Attendee
	for _, a := range m.attendees {
		if pred(a) {
			out = append(out, *a)
		}
	}
	return out
}

func (m *memStore) CountsByEvent(ctx context.Context, eventID string) (capacity.Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return capacity.Counts{}, domain.ErrEventNotFound
	}
	c := capacity.Counts{TotalGoing: ev.GoingCount}
	for _, a := range m.attendees {
		if a.EventID != eventID || a.IsDeleted {
			continue
		}
		switch a.Status {
		case domain.StatusGoing:
			c.Going++
		case domain.StatusNotGoing:
			c.NotGoing++
		case domain.StatusPending:
			c.Pending++
		case domain.StatusWaitlisted:
			c.Waitlisted++
		}
	}
	return c, nil
}

func (m *memStore) ClaimGoing(ctx context.Context, eventID string, att *entities.Attendee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if m.claimHook != nil {
		if err := m.claimHook(ev); err != nil {
			return err
		}
	}
	if existing, ok := m.attendees[att.ID]; ok && existing.Status == domain.StatusGoing {
		// record already holds a seat, replayed claim is a no-op
		att.Status = domain.StatusGoing
		return nil
	}
	if ev.MaxAttendees != nil && ev.GoingCount >= *ev.MaxAttendees {
		return domain.ErrCapacityConflict
	}
	cp := *att
	cp.Status = domain.StatusGoing
	m.attendees[cp.ID] = &cp
	ev.GoingCount++
	return nil
}

func (m *memStore) JoinWaitlist(ctx context.Context, eventID string, att *entities.Attendee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if ev.WaitlistLimit != nil {
		waitlisted := 0
		for _, a := range m.attendees {
			if a.EventID == eventID && a.Status == domain.StatusWaitlisted && !a.IsDeleted {
				waitlisted++
			}
		}
		if waitlisted >= *ev.WaitlistLimit {
			return domain.ErrWaitlistFull
		}
	}
	cp := *att
	cp.Status = domain.StatusWaitlisted
	m.attendees[cp.ID] = &cp
	return nil
}

func (m *memStore) ReleaseGoing(ctx context.Context, attendeeID, newStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attendees[attendeeID]
	if !ok {
		return domain.ErrAttendeeNotFound
	}
	if a.Status == domain.StatusGoing {
		if ev, ok := m.events[a.EventID]; ok && ev.GoingCount > 0 {
			ev.GoingCount--
		}
	}
	a.Status = newStatus
	return nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attendees[id]
	if !ok {
		return domain.ErrAttendeeNotFound
	}
	a.Status = status
	return nil
}

func (m *memStore) SoftDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attendees[id]
	if !ok {
		return domain.ErrAttendeeNotFound
	}
	a.IsDeleted = true
	return nil
}

// Create on the attendee port.
func (m *memStore) createAttendee(att *entities.Attendee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *att
	m.attendees[cp.ID] = &cp
	return nil
}

// ── rig ──────────────────────────────────────────────────────────────────

// attendeePort wraps memStore so Create matches the attendee port while the
// same store also serves as the event port.
type attendeePort struct{ *memStore }

func (p attendeePort) Create(ctx context.Context, att *entities.Attendee) error {
	return p.createAttendee(att)
}

type eventPort struct{ *memStore }

func (p eventPort) Create(ctx context.Context, ev *entities.Event) error {
	return p.CreateEvent(ctx, ev)
}

func (p eventPort) FindByID(ctx context.Context, id string) (*entities.Event, error) {
	return p.eventByID(id)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRig() (*memStore, *RSVPService) {
	store := newMemStore()
	engine := capacity.NewEngine(echoT{})
	svc := NewRSVPService(attendeePort{store}, eventPort{store}, engine, echoT{}, nil, nil, quietLogger())
	return store, svc
}

func limitedEvent(id string, max int, waitlistEnabled bool, waitlistLimit *int) *entities.Event {
	return &entities.Event{
		ID:              id,
		Title:           "Park Cleanup",
		OrganizerID:     "org1",
		MaxAttendees:    &max,
		WaitlistEnabled: waitlistEnabled,
		WaitlistLimit:   waitlistLimit,
	}
}

func goingAttendee(id, eventID, userID, attendeeType string, at time.Time) *entities.Attendee {
	return &entities.Attendee{
		ID:        id,
		EventID:   eventID,
		UserID:    userID,
		Type:      attendeeType,
		Status:    domain.StatusGoing,
		CreatedAt: at,
	}
}

// ── tests ────────────────────────────────────────────────────────────────

func TestSetStatusGoingAdmits(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 10, false, nil))

	res, err := svc.SetStatus(context.Background(), "en", "e1", "u1", "", domain.StatusGoing)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if res.AppliedStatus != domain.StatusGoing {
		t.Errorf("AppliedStatus = %q, want going", res.AppliedStatus)
	}
	ev, _ := store.eventByID("e1")
	if ev.GoingCount != 1 {
		t.Errorf("GoingCount = %d, want 1", ev.GoingCount)
	}
}

func TestSetStatusDivertsToWaitlistWhenFull(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 1, true, nil))
	store.putAttendee(goingAttendee("a1", "e1", "u1", domain.TypePrimary, time.Now()))

	res, err := svc.SetStatus(context.Background(), "en", "e1", "u2", "", domain.StatusGoing)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if res.AppliedStatus != domain.StatusWaitlisted {
		t.Errorf("AppliedStatus = %q, want waitlisted", res.AppliedStatus)
	}
	if res.WaitlistPosition != 1 {
		t.Errorf("WaitlistPosition = %d, want 1", res.WaitlistPosition)
	}
	ev, _ := store.eventByID("e1")
	if ev.GoingCount != 1 {
		t.Errorf("GoingCount = %d, want 1 (waitlisting must not consume capacity)", ev.GoingCount)
	}
}

func TestSetStatusRejectedWithoutWaitlist(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 1, false, nil))
	store.putAttendee(goingAttendee("a1", "e1", "u1", domain.TypePrimary, time.Now()))

	_, err := svc.SetStatus(context.Background(), "en", "e1", "u2", "", domain.StatusGoing)
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
	// the rejected transition must not leave a record behind
	if _, err := store.FindPrimary(context.Background(), "e1", "u2"); !errors.Is(err, domain.ErrAttendeeNotFound) {
		t.Error("rejected RSVP created an attendee record")
	}
}

func TestSetStatusRejectedWhenWaitlistFull(t *testing.T) {
	store, svc := newRig()
	one := 1
	store.putEvent(limitedEvent("e1", 1, true, &one))
	store.putAttendee(goingAttendee("a1", "e1", "u1", domain.TypePrimary, time.Now()))
	waiting := goingAttendee("a2", "e1", "u2", domain.TypePrimary, time.Now())
	waiting.Status = domain.StatusWaitlisted
	store.putAttendee(waiting)

	_, err := svc.SetStatus(context.Background(), "en", "e1", "u3", "", domain.StatusGoing)
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestSetStatusIdempotent(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 10, false, nil))

	ctx := context.Background()
	first, err := svc.SetStatus(ctx, "en", "e1", "u1", "", domain.StatusGoing)
	if err != nil {
		t.Fatalf("first SetStatus: %v", err)
	}
	second, err := svc.SetStatus(ctx, "en", "e1", "u1", "", domain.StatusGoing)
	if err != nil {
		t.Fatalf("second SetStatus: %v", err)
	}
	if second.AppliedStatus != domain.StatusGoing {
		t.Errorf("AppliedStatus = %q, want going", second.AppliedStatus)
	}
	if second.Attendee.ID != first.Attendee.ID {
		t.Error("double-submit created a second record")
	}
	ev, _ := store.eventByID("e1")
	if ev.GoingCount != 1 {
		t.Errorf("GoingCount = %d, want 1 after double submit", ev.GoingCount)
	}
}

func TestCancelPrimaryCascadesFamily(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 10, false, nil))
	now := time.Now()
	store.putAttendee(goingAttendee("p1", "e1", "u1", domain.TypePrimary, now))
	store.putAttendee(goingAttendee("f1", "e1", "u1", domain.TypeFamilyMember, now))
	store.putAttendee(goingAttendee("f2", "e1", "u1", domain.TypeFamilyMember, now))
	waitingFam := goingAttendee("f3", "e1", "u1", domain.TypeFamilyMember, now)
	waitingFam.Status = domain.StatusWaitlisted
	store.putAttendee(waitingFam)
	store.putAttendee(goingAttendee("v1", "e1", "u1", domain.TypeVolunteer, now))

	res, err := svc.SetStatus(context.Background(), "en", "e1", "u1", "", domain.StatusNotGoing)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if res.CascadedCount != 2 {
		t.Errorf("CascadedCount = %d, want 2", res.CascadedCount)
	}

	// hard invariant: no family member of u1 may remain going
	fams, _ := store.FindFamilyMembers(context.Background(), "e1", "u1")
	for _, f := range fams {
		if f.Status == domain.StatusGoing {
			t.Errorf("family member %s still going after primary cancel", f.ID)
		}
	}
	// waitlisted family member is untouched
	if f3, _ := store.FindByID(context.Background(), "f3"); f3.Status != domain.StatusWaitlisted {
		t.Errorf("waitlisted family member status = %q, want waitlisted", f3.Status)
	}
	// volunteers have no primary dependency
	if v1, _ := store.FindByID(context.Background(), "v1"); v1.Status != domain.StatusGoing {
		t.Errorf("volunteer status = %q, want going", v1.Status)
	}
	ev, _ := store.eventByID("e1")
	if ev.GoingCount != 1 {
		t.Errorf("GoingCount = %d, want 1 (volunteer only)", ev.GoingCount)
	}
}

func TestCancelFromWaitlistLeavesCounter(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 1, true, nil))
	store.putAttendee(goingAttendee("a1", "e1", "u1", domain.TypePrimary, time.Now()))
	waiting := goingAttendee("a2", "e1", "u2", domain.TypePrimary, time.Now())
	waiting.Status = domain.StatusWaitlisted
	store.putAttendee(waiting)

	if _, err := svc.SetStatus(context.Background(), "en", "e1", "u2", "", domain.StatusNotGoing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	ev, _ := store.eventByID("e1")
	if ev.GoingCount != 1 {
		t.Errorf("GoingCount = %d, want 1", ev.GoingCount)
	}
}

func TestClaimConflictRetriesOnceThenSucceeds(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 10, false, nil))
	var calls int32
	store.claimHook = func(ev *entities.Event) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return domain.ErrCapacityConflict
		}
		return nil
	}

	res, err := svc.SetStatus(context.Background(), "en", "e1", "u1", "", domain.StatusGoing)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if res.AppliedStatus != domain.StatusGoing {
		t.Errorf("AppliedStatus = %q, want going", res.AppliedStatus)
	}
	if calls != 2 {
		t.Errorf("claim attempts = %d, want 2", calls)
	}
}

func TestClaimConflictDegradesGracefully(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 10, false, nil))
	store.claimHook = func(ev *entities.Event) error { return domain.ErrCapacityConflict }

	_, err := svc.SetStatus(context.Background(), "en", "e1", "u1", "", domain.StatusGoing)
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded after retries", err)
	}
}

func TestClaimConflictRereadsAndWaitlists(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 1, true, nil))
	filled := false
	store.claimHook = func(ev *entities.Event) error {
		// another claimer takes the last slot between snapshot and claim;
		// the hook runs under the store mutex.
		if !filled {
			filled = true
			m := goingAttendee("rival", "e1", "rival", domain.TypePrimary, time.Now())
			store.attendees[m.ID] = m
			ev.GoingCount++
			return domain.ErrCapacityConflict
		}
		return nil
	}

	res, err := svc.SetStatus(context.Background(), "en", "e1", "u1", "", domain.StatusGoing)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if res.AppliedStatus != domain.StatusWaitlisted {
		t.Errorf("AppliedStatus = %q, want waitlisted on fresh re-read", res.AppliedStatus)
	}
}

func TestBulkAddChecksCapacityPerItem(t *testing.T) {
	store, svc := newRig()
	one := 1
	store.putEvent(limitedEvent("e1", 2, true, &one))

	reqs := []input.BulkAttendee{
		{UserID: "u1", DisplayName: "A", Type: domain.TypeGuest},
		{UserID: "u2", DisplayName: "B", Type: domain.TypeGuest},
		{UserID: "u3", DisplayName: "C", Type: domain.TypeGuest},
		{UserID: "u4", DisplayName: "D", Type: domain.TypeGuest},
	}
	results, err := svc.BulkAdd(context.Background(), "en", "e1", reqs)
	if err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}
	var going, waitlisted, rejected int
	for _, r := range results {
		switch {
		case r.Err != nil:
			if !errors.Is(r.Err, domain.ErrCapacityExceeded) {
				t.Errorf("item %s: err = %v, want ErrCapacityExceeded", r.DisplayName, r.Err)
			}
			rejected++
		case r.AppliedStatus == domain.StatusGoing:
			going++
		case r.AppliedStatus == domain.StatusWaitlisted:
			waitlisted++
		}
	}
	if going != 2 || waitlisted != 1 || rejected != 1 {
		t.Errorf("going/waitlisted/rejected = %d/%d/%d, want 2/1/1", going, waitlisted, rejected)
	}
	ev, _ := store.eventByID("e1")
	if ev.GoingCount != 2 {
		t.Errorf("GoingCount = %d, want 2 (batch must not overshoot)", ev.GoingCount)
	}
}

// Two concurrent transitions targeting the last open slot must yield exactly
// one going and one waitlisted, never two going.
func TestConcurrentLastSlot(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 5, true, nil))
	now := time.Now()
	for i := 0; i < 4; i++ {
		store.putAttendee(goingAttendee(fmt.Sprintf("a%d", i), "e1", fmt.Sprintf("u%d", i), domain.TypePrimary, now))
	}

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.SetStatus(context.Background(), "en", "e1", fmt.Sprintf("racer%d", i), "", domain.StatusGoing)
			if err != nil {
				t.Errorf("racer %d: %v", i, err)
				return
			}
			results[i] = res.AppliedStatus
		}(i)
	}
	wg.Wait()

	going, waitlisted := 0, 0
	for _, st := range results {
		switch st {
		case domain.StatusGoing:
			going++
		case domain.StatusWaitlisted:
			waitlisted++
		}
	}
	if going != 1 || waitlisted != 1 {
		t.Fatalf("going/waitlisted = %d/%d, want 1/1", going, waitlisted)
	}
	ev, _ := store.eventByID("e1")
	if ev.GoingCount != 5 {
		t.Errorf("GoingCount = %d, want exactly 5", ev.GoingCount)
	}
}

// 100 goroutines fight for 5 slots; exactly 5 may win.
func TestConcurrentClaimsNeverOverbook(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 5, false, nil))

	const racers = 100
	var admitted, rejected int32
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := svc.SetStatus(context.Background(), "en", "e1", fmt.Sprintf("u%03d", i), "", domain.StatusGoing)
			switch {
			case err == nil:
				atomic.AddInt32(&admitted, 1)
			case errors.Is(err, domain.ErrCapacityExceeded):
				atomic.AddInt32(&rejected, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if admitted != 5 {
		t.Errorf("admitted = %d, want exactly 5", admitted)
	}
	if rejected != racers-5 {
		t.Errorf("rejected = %d, want %d", rejected, racers-5)
	}
	ev, _ := store.eventByID("e1")
	if ev.GoingCount != 5 {
		t.Errorf("GoingCount = %d, want 5", ev.GoingCount)
	}
}

func TestPromoteNextOrganizerOnly(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 1, true, nil))
	store.putAttendee(goingAttendee("a1", "e1", "u1", domain.TypePrimary, time.Now()))
	w := goingAttendee("w1", "e1", "u2", domain.TypePrimary, time.Now())
	w.Status = domain.StatusWaitlisted
	store.putAttendee(w)

	if _, err := svc.PromoteNext(context.Background(), "en", "e1", "intruder"); !errors.Is(err, domain.ErrNotOrganizer) {
		t.Fatalf("err = %v, want ErrNotOrganizer", err)
	}
}

func TestPromoteNextRaisesQuotaWhenFull(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 1, true, nil))
	now := time.Now()
	store.putAttendee(goingAttendee("a1", "e1", "u1", domain.TypePrimary, now))
	older := goingAttendee("w1", "e1", "u2", domain.TypePrimary, now.Add(time.Second))
	older.Status = domain.StatusWaitlisted
	store.putAttendee(older)
	newer := goingAttendee("w2", "e1", "u3", domain.TypePrimary, now.Add(2*time.Second))
	newer.Status = domain.StatusWaitlisted
	store.putAttendee(newer)

	res, err := svc.PromoteNext(context.Background(), "en", "e1", "org1")
	if err != nil {
		t.Fatalf("PromoteNext: %v", err)
	}
	if res.Attendee.ID != "w1" {
		t.Errorf("promoted %s, want the longest-waiting w1", res.Attendee.ID)
	}
	ev, _ := store.eventByID("e1")
	if ev.MaxAttendees == nil || *ev.MaxAttendees != 2 {
		t.Errorf("MaxAttendees = %v, want raised to 2", ev.MaxAttendees)
	}
	if ev.GoingCount != 2 {
		t.Errorf("GoingCount = %d, want 2", ev.GoingCount)
	}
}

func TestPromoterFillsFreedCapacity(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 1, true, nil))
	now := time.Now()
	store.putAttendee(goingAttendee("a1", "e1", "u1", domain.TypePrimary, now))
	first := goingAttendee("w1", "e1", "u2", domain.TypePrimary, now.Add(time.Second))
	first.Status = domain.StatusWaitlisted
	store.putAttendee(first)
	second := goingAttendee("w2", "e1", "u3", domain.TypePrimary, now.Add(2*time.Second))
	second.Status = domain.StatusWaitlisted
	store.putAttendee(second)

	// capacity frees up
	if err := store.ReleaseGoing(context.Background(), "a1", domain.StatusNotGoing); err != nil {
		t.Fatal(err)
	}

	promoter := NewPromoter(svc, time.Minute, quietLogger())
	promoter.tick(context.Background())

	w1, _ := store.FindByID(context.Background(), "w1")
	if w1.Status != domain.StatusGoing {
		t.Errorf("w1 status = %q, want going", w1.Status)
	}
	w2, _ := store.FindByID(context.Background(), "w2")
	if w2.Status != domain.StatusWaitlisted {
		t.Errorf("w2 status = %q, want still waitlisted", w2.Status)
	}
	ev, _ := store.eventByID("e1")
	if ev.GoingCount != 1 {
		t.Errorf("GoingCount = %d, want 1 (promotion must not exceed capacity)", ev.GoingCount)
	}
}

func TestWaitlistPositionForUser(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 1, true, nil))
	now := time.Now()
	store.putAttendee(goingAttendee("a1", "e1", "u1", domain.TypePrimary, now))
	for i, user := range []string{"u2", "u3", "u4"} {
		w := goingAttendee(fmt.Sprintf("w%d", i), "e1", user, domain.TypePrimary, now.Add(time.Duration(i)*time.Second))
		w.Status = domain.StatusWaitlisted
		store.putAttendee(w)
	}

	pos, ok, err := svc.WaitlistPositionForUser(context.Background(), "e1", "u3")
	if err != nil || !ok {
		t.Fatalf("WaitlistPositionForUser: pos=%d ok=%v err=%v", pos, ok, err)
	}
	if pos != 2 {
		t.Errorf("position = %d, want 2", pos)
	}
	if _, ok, _ := svc.WaitlistPositionForUser(context.Background(), "e1", "u1"); ok {
		t.Error("going user must not have a waitlist position")
	}
}

type recordingSink struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recordingSink) Notify(ctx context.Context, n output.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, n.Kind)
	return nil
}

func (r *recordingSink) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.kinds...)
}

func TestLastSeatAdmissionAnnouncesFull(t *testing.T) {
	store := newMemStore()
	sink := &recordingSink{}
	svc := NewRSVPService(attendeePort{store}, eventPort{store},
		capacity.NewEngine(echoT{}), echoT{}, sink, nil, quietLogger())
	store.putEvent(limitedEvent("e1", 2, true, nil))
	store.putAttendee(goingAttendee("a1", "e1", "u1", domain.TypePrimary, time.Now()))

	if _, err := svc.SetStatus(context.Background(), "en", "e1", "u2", "", domain.StatusGoing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	kinds := sink.recorded()
	if len(kinds) != 2 || kinds[0] != output.NotifyJoined || kinds[1] != output.NotifyCapacityFull {
		t.Errorf("notified kinds = %v, want [joined capacity_full]", kinds)
	}
}

func TestNonFillingAdmissionStaysQuiet(t *testing.T) {
	store := newMemStore()
	sink := &recordingSink{}
	svc := NewRSVPService(attendeePort{store}, eventPort{store},
		capacity.NewEngine(echoT{}), echoT{}, sink, nil, quietLogger())
	store.putEvent(limitedEvent("e1", 5, true, nil))

	if _, err := svc.SetStatus(context.Background(), "en", "e1", "u1", "", domain.StatusGoing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	kinds := sink.recorded()
	if len(kinds) != 1 || kinds[0] != output.NotifyJoined {
		t.Errorf("notified kinds = %v, want [joined]", kinds)
	}
}

func TestReplayedGoingClaimKeepsCounterAtOne(t *testing.T) {
	store, svc := newRig()
	store.putEvent(limitedEvent("e1", 10, false, nil))
	pending := goingAttendee("a1", "e1", "u1", domain.TypePrimary, time.Now())
	pending.Status = domain.StatusPending
	store.putAttendee(pending)

	event, _ := store.eventByID("e1")

	// two requests resolve the same record before either claims, then the
	// claims serialize; the second must be a no-op, not a second seat
	first, _, err := svc.resolveAttendee(context.Background(), event, "u1", "")
	if err != nil {
		t.Fatalf("resolve first snapshot: %v", err)
	}
	second, _, err := svc.resolveAttendee(context.Background(), event, "u1", "")
	if err != nil {
		t.Fatalf("resolve second snapshot: %v", err)
	}

	if _, err := svc.transitionToGoing(context.Background(), "en", event, first); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	res, err := svc.transitionToGoing(context.Background(), "en", event, second)
	if err != nil {
		t.Fatalf("replayed transition: %v", err)
	}
	if res.AppliedStatus != domain.StatusGoing {
		t.Errorf("replayed transition applied %q, want going", res.AppliedStatus)
	}

	ev, _ := store.eventByID("e1")
	if ev.GoingCount != 1 {
		t.Errorf("GoingCount = %d, want 1 for a single going record", ev.GoingCount)
	}
	going, _ := store.FindByEventIDAndStatus(context.Background(), "e1", domain.StatusGoing)
	if len(going) != 1 {
		t.Errorf("going records = %d, want 1", len(going))
	}
	if ev.GoingCount != len(going) {
		t.Errorf("counter %d diverged from going records %d", ev.GoingCount, len(going))
	}
}
