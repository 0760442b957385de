package output

import (
	"context"

	"rsvphub/internal/domain/entities"
)

type EventRepository interface {
	Create(ctx context.Context, event *entities.Event) error
	FindByID(ctx context.Context, id string) (*entities.Event, error)
	List(ctx context.Context) ([]entities.Event, error)
	// UpdatePolicy persists the capacity policy fields of the event.
	UpdatePolicy(ctx context.Context, event *entities.Event) error
	Delete(ctx context.Context, id string) error
}
