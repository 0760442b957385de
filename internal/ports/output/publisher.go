package output

import "rsvphub/internal/domain/capacity"

// CapacityPublisher pushes a fresh capacity snapshot to live subscribers of
// an event after every attendee mutation. Best-effort, like the sink.
type CapacityPublisher interface {
	PublishCapacity(eventID string, state capacity.State, counts capacity.Counts)
}
