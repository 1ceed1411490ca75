package notification

import (
	"context"

	"github.com/lostfound-sync/internal/domain"
)

// Store is the backend-facing fetch and mutate capability for notifications.
type Store interface {
	// ListByUser returns up to limit notifications for userID, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	// MarkRead sets read=true on every id. The change feed, not the return value, is the
	// authoritative confirmation.
	MarkRead(ctx context.Context, userID string, ids []string) error
}

// keepRead merges an incoming row onto the held one without ever clearing read.
func keepRead(old, incoming domain.Notification) domain.Notification {
	incoming.Read = incoming.Read || old.Read
	return incoming
}
