package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rsvphub/internal/domain"
	"rsvphub/internal/domain/capacity"
	"rsvphub/internal/domain/entities"
	"rsvphub/internal/ports/output"
)

type EventService struct {
	events    output.EventRepository
	attendees output.AttendeeRepository
	engine    *capacity.Engine
	log       *slog.Logger
}

func NewEventService(
	events output.EventRepository,
	attendees output.AttendeeRepository,
	engine *capacity.Engine,
	log *slog.Logger,
) *EventService {
	if log == nil {
		log = slog.Default()
	}
	return &EventService{
		events:    events,
		attendees: attendees,
		engine:    engine,
		log:       log,
	}
}

func (s *EventService) CreateEvent(ctx context.Context, event *entities.Event, organizerName string) error {
	event.Title = strings.TrimSpace(event.Title)
	if event.Title == "" {
		return fmt.Errorf("event title is required")
	}
	if event.OrganizerID == "" {
		return fmt.Errorf("organizer id is required")
	}
	if err := validatePolicy(policyOf(event)); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := s.events.Create(ctx, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	// The organizer attends their own event. On a zero-capacity event the
	// claim conflicts; the record is kept as pending instead.
	username := strings.TrimSpace(organizerName)
	if username == "" {
		username = event.OrganizerID
	}
	now := time.Now().UTC()
	organizer := &entities.Attendee{
		ID:          uuid.NewString(),
		EventID:     event.ID,
		UserID:      event.OrganizerID,
		DisplayName: username,
		Type:        domain.TypePrimary,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.attendees.ClaimGoing(ctx, event.ID, organizer)
	if errors.Is(err, domain.ErrCapacityConflict) {
		s.log.Info("no seat for organizer, keeping pending", "event_id", event.ID)
		return s.attendees.Create(ctx, organizer)
	}
	if err != nil {
		return fmt.Errorf("seat organizer: %w", err)
	}
	return nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*entities.Event, error) {
	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrEventNotFound
	}
	return event, nil
}

func (s *EventService) ListEvents(ctx context.Context) ([]entities.Event, error) {
	return s.events.List(ctx)
}

// UpdatePolicy replaces the event's capacity policy. Reducing MaxAttendees
// below the current going count is rejected; already-admitted attendees are
// never bumped by a policy change.
func (s *EventService) UpdatePolicy(ctx context.Context, eventID, organizerID string, policy capacity.Policy) (*entities.Event, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, domain.ErrEventNotFound
	}
	if event.OrganizerID != organizerID {
		return nil, domain.ErrNotOrganizer
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}
	if policy.MaxAttendees != nil {
		counts, err := reconciledCounts(ctx, s.attendees, s.log, event)
		if err != nil {
			return nil, err
		}
		if counts.TotalGoing > *policy.MaxAttendees {
			return nil, domain.ErrCannotReduceCapacity
		}
	}
	event.MaxAttendees = policy.MaxAttendees
	event.WaitlistEnabled = policy.WaitlistEnabled
	event.WaitlistLimit = policy.WaitlistLimit
	if err := s.events.UpdatePolicy(ctx, event); err != nil {
		return nil, fmt.Errorf("update policy: %w", err)
	}
	return event, nil
}

func (s *EventService) CapacityState(ctx context.Context, locale, eventID string) (capacity.State, capacity.Counts, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return capacity.State{}, capacity.Counts{}, domain.ErrEventNotFound
	}
	counts, err := reconciledCounts(ctx, s.attendees, s.log, event)
	if err != nil {
		return capacity.State{}, capacity.Counts{}, err
	}
	return s.engine.Evaluate(locale, counts, policyOf(event)), counts, nil
}

func (s *EventService) ListAttendees(ctx context.Context, eventID, status string) ([]entities.Attendee, error) {
	if _, err := s.events.FindByID(ctx, eventID); err != nil {
		return nil, domain.ErrEventNotFound
	}
	if status == "" {
		return s.attendees.FindByEventID(ctx, eventID)
	}
	if !domain.ValidStatus(status) {
		return nil, domain.ErrInvalidStatus
	}
	return s.attendees.FindByEventIDAndStatus(ctx, eventID, status)
}

// DeleteEvent removes the event; attendee records go with it (the schema
// cascades the delete).
func (s *EventService) DeleteEvent(ctx context.Context, eventID, organizerID string) error {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return domain.ErrEventNotFound
	}
	if event.OrganizerID != organizerID {
		return domain.ErrNotOrganizer
	}
	if err := s.events.Delete(ctx, eventID); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	s.log.Info("event deleted", "event_id", eventID)
	return nil
}

// RemoveAttendee soft-deletes an attendee record on behalf of the organizer.
// A going attendee is released first so the freed slot is reflected in the
// counter; the record itself stays for audit, excluded from counts.
func (s *EventService) RemoveAttendee(ctx context.Context, eventID, organizerID, attendeeID string) error {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return domain.ErrEventNotFound
	}
	if event.OrganizerID != organizerID {
		return domain.ErrNotOrganizer
	}
	attendee, err := s.attendees.FindByID(ctx, attendeeID)
	if err != nil {
		return domain.ErrAttendeeNotFound
	}
	if attendee.EventID != eventID || attendee.IsDeleted {
		return domain.ErrAttendeeNotFound
	}
	if attendee.Status == domain.StatusGoing {
		if err := s.attendees.ReleaseGoing(ctx, attendeeID, domain.StatusNotGoing); err != nil {
			return fmt.Errorf("release going slot: %w", err)
		}
	}
	if err := s.attendees.SoftDelete(ctx, attendeeID); err != nil {
		return fmt.Errorf("soft delete attendee: %w", err)
	}
	return nil
}

func validatePolicy(policy capacity.Policy) error {
	if policy.MaxAttendees != nil && *policy.MaxAttendees < 0 {
		return fmt.Errorf("max attendees cannot be negative")
	}
	if policy.MaxAttendees != nil && *policy.MaxAttendees > 100_000 {
		return fmt.Errorf("max attendees cannot exceed 100,000")
	}
	if policy.WaitlistLimit != nil && *policy.WaitlistLimit < 0 {
		return fmt.Errorf("waitlist limit cannot be negative")
	}
	if policy.WaitlistLimit != nil && !policy.WaitlistEnabled {
		return fmt.Errorf("waitlist limit requires the waitlist to be enabled")
	}
	return nil
}
