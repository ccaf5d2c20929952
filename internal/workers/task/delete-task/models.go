// internal/workers/task/delete-task/models.go
package deletetask

type Input struct {
	TaskID string `json:"taskId"`
	NGOID  string `json:"ngoId"`
	Reason string `json:"reason,omitempty"`
}

type Output struct {
	TaskID    string `json:"taskId"`
	Deleted   bool   `json:"deleted"`
	DeletedAt string `json:"deletedAt"`
}
