package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"rsvphub/internal/domain"
	"rsvphub/internal/domain/entities"
	"rsvphub/internal/ports/output"
)

var _ output.EventRepository = (*EventRepository)(nil)

type EventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, title, description, organizer_id, max_attendees,
	waitlist_enabled, waitlist_limit, going_count, starts_at, created_at, updated_at`

func scanEvent(row pgx.Row) (*entities.Event, error) {
	var e entities.Event
	var maxAttendees, waitlistLimit pgtype.Int4
	var startsAt, createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.OrganizerID, &maxAttendees,
		&e.WaitlistEnabled, &waitlistLimit, &e.GoingCount, &startsAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.MaxAttendees = pgtypeInt4ToIntPtr(maxAttendees)
	e.WaitlistLimit = pgtypeInt4ToIntPtr(waitlistLimit)
	e.StartsAt = pgtypeTimestamptzToTime(startsAt)
	e.CreatedAt = pgtypeTimestamptzToTime(createdAt)
	e.UpdatedAt = pgtypeTimestamptzToTime(updatedAt)
	return &e, nil
}

func (r *EventRepository) Create(ctx context.Context, event *entities.Event) error {
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, title, description, organizer_id, max_attendees,
		                     waitlist_enabled, waitlist_limit, going_count, starts_at,
		                     created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $9)`,
		event.ID, event.Title, event.Description, event.OrganizerID,
		intPtrToPgtype(event.MaxAttendees), event.WaitlistEnabled,
		intPtrToPgtype(event.WaitlistLimit), timeToPgtype(event.StartsAt), now,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventRepository) FindByID(ctx context.Context, id string) (*entities.Event, error) {
	event, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) List(ctx context.Context) ([]entities.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []entities.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (r *EventRepository) UpdatePolicy(ctx context.Context, event *entities.Event) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events
		 SET max_attendees = $2, waitlist_enabled = $3, waitlist_limit = $4, updated_at = now()
		 WHERE id = $1`,
		event.ID, intPtrToPgtype(event.MaxAttendees), event.WaitlistEnabled,
		intPtrToPgtype(event.WaitlistLimit),
	)
	if err != nil {
		return fmt.Errorf("update event policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *EventRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}
