// internal/workers/engagement/send-certificate/models.go
package sendcertificate

type Input struct {
	EngagementID string `json:"engagementId"`
	NGOID        string `json:"ngoId"`
}

type Output struct {
	EngagementID    string `json:"engagementId"`
	CertificateSent bool   `json:"certificateSent"`
	SentAt          string `json:"sentAt"`
}
