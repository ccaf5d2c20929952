// internal/workers/notification/dispatch-notification/models.go
package dispatchnotification

type Input struct {
	UserType         string `json:"userType"` // "volunteer" or "ngo"
	UserID           string `json:"userId"`
	NotificationType string `json:"notificationType"`
	// Message empty with a known type renders the type's template instead.
	Message   string                 `json:"message,omitempty"`
	Variables map[string]interface{} `json:"variables,omitempty"`
	RelatedID string                 `json:"relatedId,omitempty"`
	Subject   string                 `json:"subject,omitempty"`
	// Persist also appends an in-app notification row. Lifecycle workers
	// leave it off because their row was already written in-transaction.
	Persist bool `json:"persist,omitempty"`
}

type Output struct {
	NotificationID string   `json:"notificationId,omitempty"`
	Status         string   `json:"status"` // "sent", "failed", "skipped"
	Channels       []string `json:"channels,omitempty"`
	SentAt         string   `json:"sentAt"`
}

// Statuses
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)
