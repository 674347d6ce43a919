package ports

import (
	"context"

	"github.com/venikman/ui-morn/pkg/domain"
)

// EventSink receives a copy of every event appended to an owner's log.
// Publish is called outside the owner's critical section and must not block
// for long; slow backends should buffer internally.
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// EventReader reads mirrored events back in append order.
type EventReader interface {
	Events(ctx context.Context, ownerID string) ([]domain.Event, error)
}

// MirrorStore is a sink whose contents can be read back.
type MirrorStore interface {
	EventSink
	EventReader
}
