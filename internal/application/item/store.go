package item

import (
	"context"

	"github.com/lostfound-sync/internal/domain"
)

// Store fetches the two item sources.
type Store interface {
	// ListFound returns up to limit found items, newest first.
	ListFound(ctx context.Context, limit int) ([]domain.FoundItem, error)
	// ListLost returns up to limit lost requests, newest first.
	ListLost(ctx context.Context, limit int) ([]domain.LostRequest, error)
}
