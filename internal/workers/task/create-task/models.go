// internal/workers/task/create-task/models.go
package createtask

import "engagement-workers/internal/task"

// Input is the task draft carried in the job variables. It is the same shape
// the lifecycle service validates, so the alias keeps the two from drifting.
type Input = task.CreateInput

type Output struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}
