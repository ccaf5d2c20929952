// internal/models/notification.go
package models

// Notification type tags written by the lifecycle components.
const (
	NotificationTaskDeleted       = "task_deleted"
	NotificationTaskUpdated       = "task_updated"
	NotificationCertificatePushed = "certificate_pushed"
)

// Recipient types.
const (
	UserTypeVolunteer = "volunteer"
	UserTypeNGO       = "ngo"
)

// Notification is an append-only row; after creation only IsRead may change.
type Notification struct {
	ID        string `json:"id"`
	UserType  string `json:"userType"` // "volunteer" or "ngo"
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Type      string `json:"type"` // "task_deleted", "task_updated", "certificate_pushed"
	RelatedID string `json:"relatedId,omitempty"`
	IsRead    bool   `json:"isRead"`
	CreatedAt string `json:"createdAt"`
}
