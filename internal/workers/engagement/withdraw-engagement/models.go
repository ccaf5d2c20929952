// internal/workers/engagement/withdraw-engagement/models.go
package withdrawengagement

type Input struct {
	EngagementID string `json:"engagementId"`
	VolunteerID  string `json:"volunteerId"`
}

type Output struct {
	EngagementID string `json:"engagementId"`
	Withdrawn    bool   `json:"withdrawn"`
	WithdrawnAt  string `json:"withdrawnAt"`
}
