// internal/workers/engagement/reject-engagement/models.go
package rejectengagement

type Input struct {
	EngagementID string `json:"engagementId"`
	NGOID        string `json:"ngoId"`
}

type Output struct {
	EngagementID   string `json:"engagementId"`
	ApprovalStatus string `json:"approvalStatus"`
	ReviewedAt     string `json:"reviewedAt"`
}
