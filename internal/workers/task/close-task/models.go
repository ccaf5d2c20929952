// internal/workers/task/close-task/models.go
package closetask

type Input struct {
	TaskID string `json:"taskId"`
	NGOID  string `json:"ngoId"`
	Action string `json:"action"` // "close" or "reopen", defaults to "close"
}

type Output struct {
	TaskID    string `json:"taskId"`
	Action    string `json:"action"`
	ChangedAt string `json:"changedAt"`
}

const (
	ActionClose  = "close"
	ActionReopen = "reopen"
)
