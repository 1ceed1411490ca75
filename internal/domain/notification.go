package domain

import "time"

// NotificationType is one of the fixed notification categories.
type NotificationType string

const (
	NotificationMatch    NotificationType = "match"
	NotificationMessage  NotificationType = "message"
	NotificationStatus   NotificationType = "status"
	NotificationReminder NotificationType = "reminder"
)

// Notification is a user-facing notification row. Read only ever moves false to true.
type Notification struct {
	NotificationID string           `json:"id" dynamodbav:"notification_id" validate:"required"`
	UserID         string           `json:"user_id" dynamodbav:"user_id"`
	Type           NotificationType `json:"type" dynamodbav:"type" validate:"oneof=match message status reminder"`
	Title          string           `json:"title" dynamodbav:"title"`
	Body           string           `json:"body" dynamodbav:"body"`
	CreatedAt      time.Time        `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty" dynamodbav:"expires_at,omitempty"`
	Read           bool             `json:"read" dynamodbav:"read"`
	RelatedItemID  *string          `json:"related_item_id,omitempty" dynamodbav:"related_item_id,omitempty"`
	RelatedUserID  *string          `json:"related_user_id,omitempty" dynamodbav:"related_user_id,omitempty"`
	Payload        map[string]any   `json:"payload,omitempty" dynamodbav:"payload,omitempty"`
}

func (n Notification) EntityID() string { return n.NotificationID }

func (n Notification) ExpiryTime() *time.Time { return n.ExpiresAt }

// Expired reports whether the notification's expiry is at or before now.
func (n Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

// ImageRef returns the object-storage reference carried in the payload, if any.
func (n Notification) ImageRef() string {
	for _, k := range []string{"image", "image_path", "image_url"} {
		if s, ok := n.Payload[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
