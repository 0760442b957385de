package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rsvphub/internal/domain"
	"rsvphub/internal/domain/capacity"
	"rsvphub/internal/domain/entities"
	"rsvphub/internal/domain/waitlist"
	"rsvphub/internal/ports/input"
	"rsvphub/internal/ports/output"
)

// claimAttempts bounds claim retries: one fresh re-read after a conflict,
// then the attempt degrades to waitlist or rejection.
const claimAttempts = 2

// RSVPService applies RSVP transitions. The capacity decision is advisory
// (computed from a snapshot); the actual admission happens inside the
// repository's atomic claim, so two users racing for the last slot can never
// both end up going.
type RSVPService struct {
	attendees  output.AttendeeRepository
	events     output.EventRepository
	engine     *capacity.Engine
	translator output.T
	notifier   output.NotificationSink  // optional
	publisher  output.CapacityPublisher // optional
	log        *slog.Logger
}

func NewRSVPService(
	attendees output.AttendeeRepository,
	events output.EventRepository,
	engine *capacity.Engine,
	translator output.T,
	notifier output.NotificationSink,
	publisher output.CapacityPublisher,
	log *slog.Logger,
) *RSVPService {
	if log == nil {
		log = slog.Default()
	}
	return &RSVPService{
		attendees:  attendees,
		events:     events,
		engine:     engine,
		translator: translator,
		notifier:   notifier,
		publisher:  publisher,
		log:        log,
	}
}

func policyOf(event *entities.Event) capacity.Policy {
	return capacity.Policy{
		MaxAttendees:    event.MaxAttendees,
		WaitlistEnabled: event.WaitlistEnabled,
		WaitlistLimit:   event.WaitlistLimit,
	}
}

func (s *RSVPService) SetStatus(ctx context.Context, locale, eventID, userID, attendeeID, target string) (*input.RSVPResult, error) {
	if target != domain.StatusGoing && target != domain.StatusNotGoing {
		return nil, domain.ErrInvalidStatus
	}
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, domain.ErrEventNotFound
	}

	attendee, isNew, err := s.resolveAttendee(ctx, event, userID, attendeeID)
	if err != nil {
		return nil, err
	}

	// Resubmitting the current status is a no-op, not a duplicate record.
	if !isNew && attendee.Status == target {
		return &input.RSVPResult{
			Attendee:      attendee,
			AppliedStatus: attendee.Status,
			Message:       s.translator.T(locale, "rsvp.unchanged", nil),
		}, nil
	}

	if target == domain.StatusGoing {
		return s.transitionToGoing(ctx, locale, event, attendee)
	}
	return s.transitionToNotGoing(ctx, locale, event, attendee, isNew)
}

// resolveAttendee loads the record being transitioned, or builds a fresh
// primary record for a first-time RSVP (not yet persisted).
func (s *RSVPService) resolveAttendee(ctx context.Context, event *entities.Event, userID, attendeeID string) (*entities.Attendee, bool, error) {
	if attendeeID != "" {
		attendee, err := s.attendees.FindByID(ctx, attendeeID)
		if err != nil {
			return nil, false, domain.ErrAttendeeNotFound
		}
		if attendee.EventID != event.ID || attendee.IsDeleted {
			return nil, false, domain.ErrAttendeeNotFound
		}
		return attendee, false, nil
	}
	if userID == "" {
		return nil, false, domain.ErrAttendeeNotFound
	}
	attendee, err := s.attendees.FindPrimary(ctx, event.ID, userID)
	if err == nil {
		return attendee, false, nil
	}
	if !errors.Is(err, domain.ErrAttendeeNotFound) {
		return nil, false, fmt.Errorf("find primary attendee: %w", err)
	}
	now := time.Now().UTC()
	return &entities.Attendee{
		ID:        uuid.NewString(),
		EventID:   event.ID,
		UserID:    userID,
		Type:      domain.TypePrimary,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, true, nil
}

// transitionToGoing consults the engine on a fresh snapshot, then lets the
// repository's claim re-check capacity under its lock. On a claim conflict
// it retries once with freshly read counts; if the event is still full it
// falls through to the waitlist, or rejects.
func (s *RSVPService) transitionToGoing(ctx context.Context, locale string, event *entities.Event, attendee *entities.Attendee) (*input.RSVPResult, error) {
	var st capacity.State
	for attempt := 1; attempt <= claimAttempts; attempt++ {
		counts, err := s.counts(ctx, event)
		if err != nil {
			return nil, err
		}
		st = s.engine.Evaluate(locale, counts, policyOf(event))
		if !st.CanAddMore {
			break
		}
		err = s.attendees.ClaimGoing(ctx, event.ID, attendee)
		if errors.Is(err, domain.ErrCapacityConflict) {
			s.log.Warn("capacity slot contended",
				"event_id", event.ID, "attendee_id", attendee.ID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("claim going slot: %w", err)
		}
		attendee.Status = domain.StatusGoing
		s.afterMutation(ctx, locale, event, output.Notification{
			EventID:    event.ID,
			EventTitle: event.Title,
			UserID:     attendee.UserID,
			AttendeeID: attendee.ID,
			Kind:       output.NotifyJoined,
		})
		return &input.RSVPResult{
			Attendee:      attendee,
			AppliedStatus: domain.StatusGoing,
			Message:       s.translator.T(locale, "rsvp.joined", nil),
			State:         st,
		}, nil
	}

	if st.CanWaitlist {
		return s.transitionToWaitlist(ctx, locale, event, attendee, st)
	}
	return nil, domain.ErrCapacityExceeded
}

func (s *RSVPService) transitionToWaitlist(ctx context.Context, locale string, event *entities.Event, attendee *entities.Attendee, st capacity.State) (*input.RSVPResult, error) {
	err := s.attendees.JoinWaitlist(ctx, event.ID, attendee)
	if errors.Is(err, domain.ErrWaitlistFull) {
		return nil, domain.ErrCapacityExceeded
	}
	if err != nil {
		return nil, fmt.Errorf("join waitlist: %w", err)
	}
	attendee.Status = domain.StatusWaitlisted

	// Position is recomputed from scratch after the insert; a transiently
	// stale snapshot self-corrects on the next observed update.
	position := 0
	records, err := s.attendees.FindByEventIDAndStatus(ctx, event.ID, domain.StatusWaitlisted)
	if err != nil {
		s.log.Warn("waitlist position lookup failed", "event_id", event.ID, "error", err)
	} else if pos, ok := waitlist.Rank(records).Position(attendee.ID); ok {
		position = pos
	}

	s.afterMutation(ctx, locale, event, output.Notification{
		EventID:    event.ID,
		EventTitle: event.Title,
		UserID:     attendee.UserID,
		AttendeeID: attendee.ID,
		Kind:       output.NotifyWaitlisted,
		Position:   position,
	})
	return &input.RSVPResult{
		Attendee:         attendee,
		AppliedStatus:    domain.StatusWaitlisted,
		WaitlistPosition: position,
		Message:          s.translator.T(locale, "rsvp.waitlisted", map[string]any{"Position": position}),
		State:            st,
	}, nil
}

func (s *RSVPService) transitionToNotGoing(ctx context.Context, locale string, event *entities.Event, attendee *entities.Attendee, isNew bool) (*input.RSVPResult, error) {
	if isNew {
		attendee.Status = domain.StatusNotGoing
		if err := s.attendees.Create(ctx, attendee); err != nil {
			return nil, fmt.Errorf("create attendee: %w", err)
		}
	} else if attendee.Status == domain.StatusGoing {
		if err := s.attendees.ReleaseGoing(ctx, attendee.ID, domain.StatusNotGoing); err != nil {
			return nil, fmt.Errorf("release going slot: %w", err)
		}
		attendee.Status = domain.StatusNotGoing
	} else {
		if err := s.attendees.UpdateStatus(ctx, attendee.ID, domain.StatusNotGoing); err != nil {
			return nil, fmt.Errorf("update attendee status: %w", err)
		}
		attendee.Status = domain.StatusNotGoing
	}

	cascaded := 0
	if attendee.Type == domain.TypePrimary && attendee.UserID != "" {
		cascaded = s.cascadeFamily(ctx, event, attendee.UserID)
	}

	s.afterMutation(ctx, locale, event, output.Notification{
		EventID:    event.ID,
		EventTitle: event.Title,
		UserID:     attendee.UserID,
		AttendeeID: attendee.ID,
		Kind:       output.NotifyCancelled,
	})
	return &input.RSVPResult{
		Attendee:      attendee,
		AppliedStatus: domain.StatusNotGoing,
		CascadedCount: cascaded,
		Message:       s.translator.T(locale, "rsvp.cancelled", nil),
	}, nil
}

// cascadeFamily downgrades the user's going family members after a primary
// cancel. The primary transition has already committed; the cascade is
// best-effort and each failure is logged with enough context to retry. A
// family downgrade only ever frees capacity, so partial completion is safe
// and re-running converges.
func (s *RSVPService) cascadeFamily(ctx context.Context, event *entities.Event, userID string) int {
	members, err := s.attendees.FindFamilyMembers(ctx, event.ID, userID)
	if err != nil {
		s.log.Error("family cascade lookup failed",
			"event_id", event.ID, "user_id", userID, "error", err)
		return 0
	}
	cascaded := 0
	for i := range members {
		m := &members[i]
		if m.Status != domain.StatusGoing || !domain.CascadesFromPrimary(m.Type) {
			continue
		}
		if err := s.attendees.ReleaseGoing(ctx, m.ID, domain.StatusNotGoing); err != nil {
			s.log.Error("family cascade downgrade failed",
				"event_id", event.ID, "user_id", userID, "attendee_id", m.ID, "error", err)
			continue
		}
		cascaded++
	}
	return cascaded
}

// BulkAdd admits each attendee through the same atomic claim as a single
// RSVP, so capacity is re-checked per item and a batch can never overshoot.
func (s *RSVPService) BulkAdd(ctx context.Context, locale, eventID string, reqs []input.BulkAttendee) ([]input.BulkItemResult, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, domain.ErrEventNotFound
	}
	results := make([]input.BulkItemResult, 0, len(reqs))
	for _, req := range reqs {
		attendeeType := req.Type
		if attendeeType == "" {
			attendeeType = domain.TypeGuest
		}
		if !domain.ValidAttendeeType(attendeeType) {
			results = append(results, input.BulkItemResult{
				DisplayName: req.DisplayName,
				Err:         domain.ErrInvalidAttendeeType,
			})
			continue
		}
		now := time.Now().UTC()
		attendee := &entities.Attendee{
			ID:          uuid.NewString(),
			EventID:     event.ID,
			UserID:      req.UserID,
			DisplayName: req.DisplayName,
			Type:        attendeeType,
			Status:      domain.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		res, err := s.transitionToGoing(ctx, locale, event, attendee)
		item := input.BulkItemResult{DisplayName: req.DisplayName, Err: err}
		if err == nil {
			item.AppliedStatus = res.AppliedStatus
		}
		results = append(results, item)
	}
	return results, nil
}

// PromoteNext confirms the longest-waiting attendee on behalf of the
// organizer. When the event is full the cap is raised by one to make room,
// matching the organizer's explicit intent.
func (s *RSVPService) PromoteNext(ctx context.Context, locale, eventID, organizerID string) (*input.RSVPResult, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, domain.ErrEventNotFound
	}
	if event.OrganizerID != organizerID {
		return nil, domain.ErrNotOrganizer
	}
	return s.promoteOldest(ctx, locale, event, true)
}

// promoteOldest moves the head of the waitlist to going through the atomic
// claim. With bumpQuota, a full event gets its cap raised by one first.
func (s *RSVPService) promoteOldest(ctx context.Context, locale string, event *entities.Event, bumpQuota bool) (*input.RSVPResult, error) {
	records, err := s.attendees.FindByEventIDAndStatus(ctx, event.ID, domain.StatusWaitlisted)
	if err != nil {
		return nil, fmt.Errorf("find waitlist: %w", err)
	}
	ranking := waitlist.Rank(records)
	if ranking.Len() == 0 {
		return nil, domain.ErrNoWaitlistedAttendee
	}
	head := ranking.Entries()[0]
	attendee, err := s.attendees.FindByID(ctx, head.AttendeeID)
	if err != nil {
		return nil, domain.ErrAttendeeNotFound
	}
	if attendee.Status != domain.StatusWaitlisted {
		return nil, domain.ErrNotWaitlisted
	}

	err = s.attendees.ClaimGoing(ctx, event.ID, attendee)
	if errors.Is(err, domain.ErrCapacityConflict) {
		if !bumpQuota {
			return nil, domain.ErrCapacityConflict
		}
		counts, cerr := s.counts(ctx, event)
		if cerr != nil {
			return nil, cerr
		}
		newMax := counts.TotalGoing + 1
		event.MaxAttendees = &newMax
		if uerr := s.events.UpdatePolicy(ctx, event); uerr != nil {
			return nil, fmt.Errorf("raise capacity for promotion: %w", uerr)
		}
		s.log.Info("capacity raised for promotion", "event_id", event.ID, "max_attendees", newMax)
		err = s.attendees.ClaimGoing(ctx, event.ID, attendee)
	}
	if err != nil {
		return nil, fmt.Errorf("claim promoted slot: %w", err)
	}
	attendee.Status = domain.StatusGoing

	s.afterMutation(ctx, locale, event, output.Notification{
		EventID:    event.ID,
		EventTitle: event.Title,
		UserID:     attendee.UserID,
		AttendeeID: attendee.ID,
		Kind:       output.NotifyPromoted,
	})
	return &input.RSVPResult{
		Attendee:      attendee,
		AppliedStatus: domain.StatusGoing,
		Message:       s.translator.T(locale, "rsvp.promoted", nil),
	}, nil
}

func (s *RSVPService) WaitlistRanking(ctx context.Context, eventID string) (waitlist.Ranking, error) {
	if _, err := s.events.FindByID(ctx, eventID); err != nil {
		return waitlist.Ranking{}, domain.ErrEventNotFound
	}
	records, err := s.attendees.FindByEventIDAndStatus(ctx, eventID, domain.StatusWaitlisted)
	if err != nil {
		return waitlist.Ranking{}, fmt.Errorf("find waitlist: %w", err)
	}
	return waitlist.Rank(records), nil
}

func (s *RSVPService) WaitlistPositionForUser(ctx context.Context, eventID, userID string) (int, bool, error) {
	ranking, err := s.WaitlistRanking(ctx, eventID)
	if err != nil {
		return 0, false, err
	}
	pos, ok := ranking.PositionForUser(userID)
	return pos, ok, nil
}

func (s *RSVPService) counts(ctx context.Context, event *entities.Event) (capacity.Counts, error) {
	return reconciledCounts(ctx, s.attendees, s.log, event)
}

// reconciledCounts returns a snapshot with the denormalized counter
// cross-checked against the live count: the counter is the guarded value,
// but if it ever diverges the live count wins and the divergence is logged.
// Both services share this one policy.
func reconciledCounts(ctx context.Context, attendees output.AttendeeRepository, log *slog.Logger, event *entities.Event) (capacity.Counts, error) {
	c, err := attendees.CountsByEvent(ctx, event.ID)
	if err != nil {
		return capacity.Counts{}, fmt.Errorf("count attendees: %w", err)
	}
	if c.TotalGoing != c.Going {
		log.Warn("going counter diverged from live count",
			"event_id", event.ID, "counter", c.TotalGoing, "live", c.Going)
		c.TotalGoing = c.Going
	}
	return c, nil
}

// afterMutation pushes a fresh capacity snapshot to live subscribers and
// informs the notification sink. Both are best-effort: failures are logged
// and never roll anything back.
func (s *RSVPService) afterMutation(ctx context.Context, locale string, event *entities.Event, n output.Notification) {
	if s.publisher == nil && s.notifier == nil {
		return
	}
	counts, err := s.counts(ctx, event)
	if err != nil {
		s.log.Warn("post-mutation snapshot skipped", "event_id", event.ID, "error", err)
		s.notify(ctx, n)
		return
	}
	st := s.engine.Evaluate(locale, counts, policyOf(event))
	if s.publisher != nil {
		s.publisher.PublishCapacity(event.ID, st, counts)
	}
	s.notify(ctx, n)

	// an admission that took the last seat also announces the event as full
	admitted := n.Kind == output.NotifyJoined || n.Kind == output.NotifyPromoted
	if admitted && st.IsAtCapacity {
		s.notify(ctx, output.Notification{
			EventID:    event.ID,
			EventTitle: event.Title,
			Kind:       output.NotifyCapacityFull,
		})
	}
}

func (s *RSVPService) notify(ctx context.Context, n output.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn("notification sink failed",
			"event_id", n.EventID, "kind", n.Kind, "error", err)
	}
}
