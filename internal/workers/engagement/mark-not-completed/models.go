// internal/workers/engagement/mark-not-completed/models.go
package marknotcompleted

type Input struct {
	EngagementID   string `json:"engagementId"`
	NGOID          string `json:"ngoId"`
	CompletionNote string `json:"completionNote"`
}

type Output struct {
	EngagementID     string `json:"engagementId"`
	CompletionStatus string `json:"completionStatus"`
	ReviewedAt       string `json:"reviewedAt"`
}
