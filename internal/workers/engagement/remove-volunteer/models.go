// internal/workers/engagement/remove-volunteer/models.go
package removevolunteer

type Input struct {
	EngagementID string `json:"engagementId"`
	NGOID        string `json:"ngoId"`
}

type Output struct {
	EngagementID string `json:"engagementId"`
	Removed      bool   `json:"removed"`
	RemovedAt    string `json:"removedAt"`
}
