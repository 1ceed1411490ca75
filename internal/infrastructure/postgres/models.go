package postgres

import (
	"time"

	"github.com/lostfound-sync/internal/domain"
	"gorm.io/gorm"
)

type notificationRow struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	UserID        string         `gorm:"type:uuid;not null;index:idx_notifications_user_created,priority:1"`
	Type          string         `gorm:"size:20;not null"`
	Title         string         `gorm:"size:255"`
	Body          string         `gorm:"type:text"`
	CreatedAt     time.Time      `gorm:"not null;index:idx_notifications_user_created,priority:2,sort:desc"`
	ExpiresAt     *time.Time
	Read          bool           `gorm:"not null;default:false"`
	RelatedItemID *string        `gorm:"type:uuid"`
	RelatedUserID *string        `gorm:"type:uuid"`
	Payload       map[string]any `gorm:"type:jsonb;serializer:json"`
}

func (notificationRow) TableName() string { return domain.ResourceNotifications }

func (r notificationRow) toDomain() domain.Notification {
	return domain.Notification{
		NotificationID: r.ID,
		UserID:         r.UserID,
		Type:           domain.NotificationType(r.Type),
		Title:          r.Title,
		Body:           r.Body,
		CreatedAt:      r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
		Read:           r.Read,
		RelatedItemID:  r.RelatedItemID,
		RelatedUserID:  r.RelatedUserID,
		Payload:        r.Payload,
	}
}

type foundItemRow struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"type:uuid"`
	Title       string    `gorm:"size:255;not null"`
	Description string    `gorm:"type:text"`
	Category    string    `gorm:"size:50"`
	Status      string    `gorm:"size:20;index"`
	Latitude    *float64
	Longitude   *float64
	Price       float64   `gorm:"not null;default:0;check:price >= 0"`
	RarityTag   *string   `gorm:"size:50"`
	IsRare      bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"not null;index:,sort:desc"`
}

func (foundItemRow) TableName() string { return domain.ResourceFoundItems }

func (r foundItemRow) toDomain() domain.FoundItem {
	return domain.FoundItem{
		ItemID:      r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Status:      r.Status,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Price:       r.Price,
		RarityTag:   r.RarityTag,
		IsRare:      r.IsRare,
		CreatedAt:   r.CreatedAt,
	}
}

type lostRequestRow struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"type:uuid"`
	Title       string    `gorm:"size:255;not null"`
	Description string    `gorm:"type:text"`
	Category    string    `gorm:"size:50"`
	Status      string    `gorm:"size:20;index"`
	Latitude    *float64
	Longitude   *float64
	Reward      float64   `gorm:"not null;default:0;check:reward >= 0"`
	RarityTag   *string   `gorm:"size:50"`
	IsRare      bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"not null;index:,sort:desc"`
}

func (lostRequestRow) TableName() string { return domain.ResourceLostRequests }

func (r lostRequestRow) toDomain() domain.LostRequest {
	return domain.LostRequest{
		RequestID:   r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Status:      r.Status,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Reward:      r.Reward,
		RarityTag:   r.RarityTag,
		IsRare:      r.IsRare,
		CreatedAt:   r.CreatedAt,
	}
}

// Migrate creates or updates the three tables. Intended for local stacks; the managed project
// owns its schema in production.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&notificationRow{}, &foundItemRow{}, &lostRequestRow{})
}
