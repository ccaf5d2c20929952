// internal/workers/engagement/approve-engagement/models.go
package approveengagement

type Input struct {
	EngagementID string `json:"engagementId"`
	NGOID        string `json:"ngoId"`
}

type Output struct {
	EngagementID   string `json:"engagementId"`
	ApprovalStatus string `json:"approvalStatus"`
	ReviewedAt     string `json:"reviewedAt"`
}
