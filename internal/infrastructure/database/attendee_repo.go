package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"rsvphub/internal/domain"
	"rsvphub/internal/domain/capacity"
	"rsvphub/internal/domain/entities"
	"rsvphub/internal/ports/output"
)

var _ output.AttendeeRepository = (*AttendeeRepository)(nil)

// AttendeeRepository persists attendee records with pgx. Occupancy-changing
// writes run inside a transaction that locks the event row, so the capacity
// check and the counter move are atomic with the attendee write: two clients
// racing for the last slot serialize on the row lock and the loser gets
// domain.ErrCapacityConflict instead of an overbooked event.
type AttendeeRepository struct {
	db *pgxpool.Pool
}

func NewAttendeeRepository(db *pgxpool.Pool) *AttendeeRepository {
	return &AttendeeRepository{db: db}
}

const attendeeColumns = `id, event_id, user_id, display_name, attendee_type,
	rsvp_status, is_deleted, created_at, updated_at`

func scanAttendee(row pgx.Row) (*entities.Attendee, error) {
	var a entities.Attendee
	var userID pgtype.Text
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&a.ID, &a.EventID, &userID, &a.DisplayName, &a.Type,
		&a.Status, &a.IsDeleted, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		a.UserID = userID.String
	}
	a.CreatedAt = pgtypeTimestamptzToTime(createdAt)
	a.UpdatedAt = pgtypeTimestamptzToTime(updatedAt)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *AttendeeRepository) Create(ctx context.Context, attendee *entities.Attendee) error {
	err := upsertAttendee(ctx, r.db, attendee, attendee.Status)
	if isUniqueViolation(err) {
		return domain.ErrDuplicatePrimary
	}
	if err != nil {
		return fmt.Errorf("insert attendee: %w", err)
	}
	return nil
}

// upsertAttendee inserts the record or, when the id already exists, applies
// the status transition. exec is either the pool or an open transaction.
func upsertAttendee(ctx context.Context, exec interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}, attendee *entities.Attendee, status string) error {
	now := time.Now().UTC()
	if attendee.CreatedAt.IsZero() {
		attendee.CreatedAt = now
	}
	attendee.UpdatedAt = now
	var userID pgtype.Text
	if attendee.UserID != "" {
		userID = pgtype.Text{String: attendee.UserID, Valid: true}
	}
	_, err := exec.Exec(ctx,
		`INSERT INTO attendees (id, event_id, user_id, display_name, attendee_type,
		                        rsvp_status, is_deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET rsvp_status = EXCLUDED.rsvp_status,
		                                updated_at  = EXCLUDED.updated_at`,
		attendee.ID, attendee.EventID, userID, attendee.DisplayName, attendee.Type,
		status, attendee.CreatedAt, now,
	)
	return err
}

func (r *AttendeeRepository) FindByID(ctx context.Context, id string) (*entities.Attendee, error) {
	attendee, err := scanAttendee(r.db.QueryRow(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAttendeeNotFound
		}
		return nil, fmt.Errorf("get attendee: %w", err)
	}
	return attendee, nil
}

func (r *AttendeeRepository) FindByEventID(ctx context.Context, eventID string) ([]entities.Attendee, error) {
	return r.queryAttendees(ctx,
		`SELECT `+attendeeColumns+` FROM attendees
		 WHERE event_id = $1 AND NOT is_deleted
		 ORDER BY created_at ASC, id ASC`, eventID)
}

func (r *AttendeeRepository) FindByEventIDAndStatus(ctx context.Context, eventID, status string) ([]entities.Attendee, error) {
	return r.queryAttendees(ctx,
		`SELECT `+attendeeColumns+` FROM attendees
		 WHERE event_id = $1 AND rsvp_status = $2 AND NOT is_deleted
		 ORDER BY created_at ASC, id ASC`, eventID, status)
}

func (r *AttendeeRepository) FindPrimary(ctx context.Context, eventID, userID string) (*entities.Attendee, error) {
	attendee, err := scanAttendee(r.db.QueryRow(ctx,
		`SELECT `+attendeeColumns+` FROM attendees
		 WHERE event_id = $1 AND user_id = $2 AND attendee_type = $3 AND NOT is_deleted`,
		eventID, userID, domain.TypePrimary))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAttendeeNotFound
		}
		return nil, fmt.Errorf("get primary attendee: %w", err)
	}
	return attendee, nil
}

func (r *AttendeeRepository) FindFamilyMembers(ctx context.Context, eventID, userID string) ([]entities.Attendee, error) {
	return r.queryAttendees(ctx,
		`SELECT `+attendeeColumns+` FROM attendees
		 WHERE event_id = $1 AND user_id = $2 AND attendee_type = $3 AND NOT is_deleted
		 ORDER BY created_at ASC, id ASC`, eventID, userID, domain.TypeFamilyMember)
}

func (r *AttendeeRepository) queryAttendees(ctx context.Context, sql string, args ...any) ([]entities.Attendee, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendees: %w", err)
	}
	defer rows.Close()

	var attendees []entities.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		attendees = append(attendees, *a)
	}
	return attendees, rows.Err()
}

// CountsByEvent aggregates live per-status counts in one query. TotalGoing
// carries the event row's denormalized counter; the caller reconciles it
// against the live going count.
func (r *AttendeeRepository) CountsByEvent(ctx context.Context, eventID string) (capacity.Counts, error) {
	var c capacity.Counts
	err := r.db.QueryRow(ctx,
		`SELECT e.going_count,
		        COUNT(*) FILTER (WHERE a.rsvp_status = 'going'),
		        COUNT(*) FILTER (WHERE a.rsvp_status = 'not-going'),
		        COUNT(*) FILTER (WHERE a.rsvp_status = 'pending'),
		        COUNT(*) FILTER (WHERE a.rsvp_status = 'waitlisted')
		 FROM events e
		 LEFT JOIN attendees a ON a.event_id = e.id AND NOT a.is_deleted
		 WHERE e.id = $1
		 GROUP BY e.going_count`,
		eventID,
	).Scan(&c.TotalGoing, &c.Going, &c.NotGoing, &c.Pending, &c.Waitlisted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return capacity.Counts{}, domain.ErrEventNotFound
		}
		return capacity.Counts{}, fmt.Errorf("count attendees: %w", err)
	}
	return c, nil
}

// ClaimGoing admits an attendee inside a single transaction:
//
//  1. lock the event row (SELECT ... FOR UPDATE) so concurrent claims
//     serialize,
//  2. if the record already holds a seat the claim is a no-op: success,
//     counter untouched, so replayed claims for one record never leak seats,
//  3. re-check capacity against the locked counter, since the caller's
//     snapshot may be stale,
//  4. upsert the attendee as going,
//  5. move the counter with a conditional update that refuses to pass the
//     cap even if the locked read and the counter ever disagreed.
func (r *AttendeeRepository) ClaimGoing(ctx context.Context, eventID string, attendee *entities.Attendee) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var maxAttendees pgtype.Int4
	var goingCount int
	err = tx.QueryRow(ctx,
		`SELECT max_attendees, going_count FROM events WHERE id = $1 FOR UPDATE`,
		eventID,
	).Scan(&maxAttendees, &goingCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("lock event row: %w", err)
	}

	// the event row lock serializes claims, so this read cannot interleave
	// with a competing claim for the same record
	var currentStatus string
	err = tx.QueryRow(ctx,
		`SELECT rsvp_status FROM attendees WHERE id = $1`, attendee.ID,
	).Scan(&currentStatus)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = nil
	case err != nil:
		return fmt.Errorf("read attendee status: %w", err)
	case currentStatus == domain.StatusGoing:
		if err = tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		attendee.Status = domain.StatusGoing
		return nil
	}

	if maxAttendees.Valid && goingCount >= int(maxAttendees.Int32) {
		err = domain.ErrCapacityConflict
		return err
	}

	if err = upsertAttendee(ctx, tx, attendee, domain.StatusGoing); err != nil {
		if isUniqueViolation(err) {
			err = domain.ErrDuplicatePrimary
			return err
		}
		return fmt.Errorf("upsert attendee: %w", err)
	}

	tag, uerr := tx.Exec(ctx,
		`UPDATE events SET going_count = going_count + 1, updated_at = now()
		 WHERE id = $1 AND (max_attendees IS NULL OR going_count < max_attendees)`,
		eventID,
	)
	if uerr != nil {
		err = fmt.Errorf("increment going count: %w", uerr)
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrCapacityConflict
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	attendee.Status = domain.StatusGoing
	return nil
}

// JoinWaitlist parks an attendee on the waitlist. The event row lock
// serializes the limit check against concurrent joins; the waitlist is
// judged only against its own limit, never against max_attendees.
func (r *AttendeeRepository) JoinWaitlist(ctx context.Context, eventID string, attendee *entities.Attendee) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var waitlistLimit pgtype.Int4
	err = tx.QueryRow(ctx,
		`SELECT waitlist_limit FROM events WHERE id = $1 FOR UPDATE`,
		eventID,
	).Scan(&waitlistLimit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("lock event row: %w", err)
	}

	if waitlistLimit.Valid {
		var waitlisted int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM attendees
			 WHERE event_id = $1 AND rsvp_status = $2 AND NOT is_deleted`,
			eventID, domain.StatusWaitlisted,
		).Scan(&waitlisted)
		if err != nil {
			return fmt.Errorf("count waitlisted: %w", err)
		}
		if waitlisted >= int(waitlistLimit.Int32) {
			err = domain.ErrWaitlistFull
			return err
		}
	}

	if err = upsertAttendee(ctx, tx, attendee, domain.StatusWaitlisted); err != nil {
		if isUniqueViolation(err) {
			err = domain.ErrDuplicatePrimary
			return err
		}
		return fmt.Errorf("upsert attendee: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	attendee.Status = domain.StatusWaitlisted
	return nil
}

// ReleaseGoing moves an attendee out of going and decrements the counter in
// the same transaction. When the attendee was not going the status still
// changes but the counter is left alone.
func (r *AttendeeRepository) ReleaseGoing(ctx context.Context, attendeeID, newStatus string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var eventID string
	err = tx.QueryRow(ctx,
		`SELECT event_id FROM attendees WHERE id = $1`, attendeeID,
	).Scan(&eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAttendeeNotFound
		}
		return fmt.Errorf("get attendee event: %w", err)
	}

	// lock before reading the status so a concurrent claim cannot interleave
	if _, err = tx.Exec(ctx,
		`SELECT 1 FROM events WHERE id = $1 FOR UPDATE`, eventID); err != nil {
		return fmt.Errorf("lock event row: %w", err)
	}

	tag, uerr := tx.Exec(ctx,
		`UPDATE attendees SET rsvp_status = $2, updated_at = now()
		 WHERE id = $1 AND rsvp_status = $3`,
		attendeeID, newStatus, domain.StatusGoing,
	)
	if uerr != nil {
		err = fmt.Errorf("update attendee status: %w", uerr)
		return err
	}
	if tag.RowsAffected() > 0 {
		if _, uerr = tx.Exec(ctx,
			`UPDATE events SET going_count = GREATEST(going_count - 1, 0), updated_at = now()
			 WHERE id = $1`, eventID); uerr != nil {
			err = fmt.Errorf("decrement going count: %w", uerr)
			return err
		}
	} else {
		// not going: plain status change, no counter involvement
		if _, uerr = tx.Exec(ctx,
			`UPDATE attendees SET rsvp_status = $2, updated_at = now() WHERE id = $1`,
			attendeeID, newStatus); uerr != nil {
			err = fmt.Errorf("update attendee status: %w", uerr)
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *AttendeeRepository) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE attendees SET rsvp_status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update attendee status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttendeeNotFound
	}
	return nil
}

func (r *AttendeeRepository) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE attendees SET is_deleted = TRUE, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("soft delete attendee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttendeeNotFound
	}
	return nil
}
