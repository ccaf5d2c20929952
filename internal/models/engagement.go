// internal/models/engagement.go
package models

// Approval status: the NGO's decision on an application.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Completion status: the outcome of approved work. A freshly created
// engagement sits at "accepted" until the NGO reviews the outcome.
const (
	CompletionAccepted     = "accepted"
	CompletionCompleted    = "completed"
	CompletionNotCompleted = "not_completed"
)

// Engagement is one volunteer's relationship to one task. At most one row
// exists per (task, volunteer) pair; the storage layer enforces this with a
// unique constraint.
type Engagement struct {
	ID                string  `json:"id"`
	TaskID            string  `json:"taskId"`
	VolunteerID       string  `json:"volunteerId"`
	AvailabilityDate  string  `json:"availabilityDate,omitempty"`
	AvailabilityTime  string  `json:"availabilityTime,omitempty"`
	HoursCommitted    float64 `json:"hoursCommitted"`
	ContactEmail      string  `json:"contactEmail"`
	ContactPhone      string  `json:"contactPhone"`
	AdditionalNotes   string  `json:"additionalNotes,omitempty"`
	ApprovalStatus    string  `json:"approvalStatus"`   // "pending", "approved", "rejected"
	CompletionStatus  string  `json:"completionStatus"` // "accepted", "completed", "not_completed"
	CompletionNote    string  `json:"completionNote,omitempty"`
	MonetisationValue float64 `json:"monetisationValue"`
	CertificateSent   bool    `json:"certificateSent"`
	CreatedAt         string  `json:"createdAt"`
}
