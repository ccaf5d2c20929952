// internal/workers/notification/mark-notification-read/models.go
package marknotificationread

type Input struct {
	// NotificationID empty means mark everything the recipient has unread.
	NotificationID string `json:"notificationId,omitempty"`
	UserType       string `json:"userType"`
	UserID         string `json:"userId"`
}

type Output struct {
	MarkedCount int    `json:"markedCount"`
	MarkedAt    string `json:"markedAt"`
}
