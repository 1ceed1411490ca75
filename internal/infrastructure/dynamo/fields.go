package dynamo

// Attribute and index names shared by the repos and Bootstrap.
const (
	fieldNotificationID = "notification_id"
	fieldItemID         = "item_id"
	fieldRequestID      = "request_id"
	fieldUserID         = "user_id"
	fieldCreatedAt      = "created_at"
	fieldRead           = "read"

	indexUserCreatedAt = "user_id-created_at-index"
)
