// internal/workers/engagement/complete-engagement/models.go
package completeengagement

type Input struct {
	EngagementID string `json:"engagementId"`
	NGOID        string `json:"ngoId"`
}

type Output struct {
	EngagementID     string  `json:"engagementId"`
	CompletionStatus string  `json:"completionStatus"`
	CreditedValue    float64 `json:"creditedValue"`
	CompletedAt      string  `json:"completedAt"`
}
