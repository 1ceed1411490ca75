package domain

// Backend resource names shared by the store and the change feed.
const (
	ResourceNotifications = "notifications"
	ResourceFoundItems    = "found_items"
	ResourceLostRequests  = "lost_requests"
)
