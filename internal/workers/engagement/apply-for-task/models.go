// internal/workers/engagement/apply-for-task/models.go
package applyfortask

type Input struct {
	TaskID           string `json:"taskId"`
	VolunteerID      string `json:"volunteerId"`
	ContactEmail     string `json:"contactEmail"`
	ContactPhone     string `json:"contactPhone"`
	AdditionalNotes  string `json:"additionalNotes,omitempty"`
	AvailabilityTime string `json:"availabilityTime,omitempty"`
}

type Output struct {
	EngagementID     string  `json:"engagementId"`
	TaskID           string  `json:"taskId"`
	ApprovalStatus   string  `json:"approvalStatus"`
	CompletionStatus string  `json:"completionStatus"`
	AvailabilityDate string  `json:"availabilityDate"`
	HoursCommitted   float64 `json:"hoursCommitted"`
	AppliedAt        string  `json:"appliedAt"`
}
