package postgres

import (
	"context"
	"fmt"

	"github.com/lostfound-sync/internal/domain"
	"gorm.io/gorm"
)

// Store serves the screens' fetches and the mark-read mutation from Postgres.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	var rows []notificationRow
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]domain.Notification, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// MarkRead sets read=true on the ids owned by userID. Matching fewer rows than ids is reported
// as not found.
func (s *Store) MarkRead(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&notificationRow{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Update("read", true)
	if res.Error != nil {
		return fmt.Errorf("mark notifications read: %w", res.Error)
	}
	if res.RowsAffected < int64(len(ids)) {
		return fmt.Errorf("marked %d of %d notifications: %w", res.RowsAffected, len(ids), domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListFound(ctx context.Context, limit int) ([]domain.FoundItem, error) {
	var rows []foundItemRow
	if err := s.newest(ctx, limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list found items: %w", err)
	}
	out := make([]domain.FoundItem, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) ListLost(ctx context.Context, limit int) ([]domain.LostRequest, error) {
	var rows []lostRequestRow
	if err := s.newest(ctx, limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list lost requests: %w", err)
	}
	out := make([]domain.LostRequest, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) newest(ctx context.Context, limit int) *gorm.DB {
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

// Check pings the database.
func (s *Store) Check(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
