package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rsvphub/internal/domain"
)

// Promoter is the background worker that fills freed capacity from the
// waitlist, oldest first. Promotions go through the same atomic claim as
// RSVPs, so the worker can race with users without overshooting; a claim
// conflict just means someone else took the seat first.
type Promoter struct {
	rsvp     *RSVPService
	interval time.Duration
	log      *slog.Logger
}

func NewPromoter(rsvp *RSVPService, interval time.Duration, log *slog.Logger) *Promoter {
	if log == nil {
		log = slog.Default()
	}
	return &Promoter{rsvp: rsvp, interval: interval, log: log}
}

// Run promotes on every tick until ctx is cancelled.
func (p *Promoter) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("waitlist promoter stopping")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Promoter) tick(ctx context.Context) {
	events, err := p.rsvp.events.List(ctx)
	if err != nil {
		p.log.Error("promoter list events failed", "error", err)
		return
	}
	for i := range events {
		event := &events[i]
		counts, err := p.rsvp.counts(ctx, event)
		if err != nil {
			p.log.Error("promoter count failed", "event_id", event.ID, "error", err)
			continue
		}
		// at most one pass over the current waitlist per tick
		for n := counts.Waitlisted; n > 0; n-- {
			st := p.rsvp.engine.Evaluate("", counts, policyOf(event))
			if !st.CanAddMore {
				break
			}
			res, err := p.rsvp.promoteOldest(ctx, "", event, false)
			if errors.Is(err, domain.ErrNoWaitlistedAttendee) ||
				errors.Is(err, domain.ErrCapacityConflict) {
				break
			}
			if err != nil {
				p.log.Error("waitlist promotion failed", "event_id", event.ID, "error", err)
				break
			}
			p.log.Info("promoted from waitlist",
				"event_id", event.ID, "attendee_id", res.Attendee.ID)
			counts, err = p.rsvp.counts(ctx, event)
			if err != nil {
				break
			}
		}
	}
}
