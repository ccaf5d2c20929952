// internal/workers/task/edit-task/models.go
package edittask

import "engagement-workers/internal/task"

// Input is the full replacement draft carried in the job variables, same
// shape the lifecycle service validates.
type Input = task.EditInput

type Output struct {
	TaskID        string   `json:"taskId"`
	ChangedFields []string `json:"changedFields"`
	UpdatedAt     string   `json:"updatedAt"`
}
