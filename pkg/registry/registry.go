// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"engagement-workers/internal/common/validation"
)

func Load(path string) (*WorkerRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg WorkerRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	return &reg, nil
}

// FindByTaskType returns the entry registered for a Zeebe task type.
func (r *WorkerRegistry) FindByTaskType(taskType string) (*Worker, bool) {
	for i := range r.Workers {
		if r.Workers[i].TaskType == taskType {
			return &r.Workers[i], true
		}
	}
	return nil, false
}

// Validate checks the registry for structural problems: duplicate ids,
// duplicate task types, and entries missing required fields.
func (r *WorkerRegistry) Validate() error {
	if len(r.Workers) == 0 {
		return fmt.Errorf("registry contains no workers")
	}

	ids := make(map[string]bool)
	taskTypes := make(map[string]bool)
	for _, w := range r.Workers {
		if w.ID == "" {
			return fmt.Errorf("worker missing required field: id")
		}
		if ids[w.ID] {
			return fmt.Errorf("duplicate worker id: %s", w.ID)
		}
		ids[w.ID] = true

		if w.DisplayName == "" {
			return fmt.Errorf("worker %s missing required field: displayName", w.ID)
		}
		if w.Category == "" {
			return fmt.Errorf("worker %s missing required field: category", w.ID)
		}
		if w.TaskType == "" {
			return fmt.Errorf("worker %s missing required field: taskType", w.ID)
		}
		if taskTypes[w.TaskType] {
			return fmt.Errorf("duplicate task type: %s", w.TaskType)
		}
		taskTypes[w.TaskType] = true
	}
	return nil
}

// ValidatePayload checks a job payload against the input schema registered
// for the task type. Entries without an input schema accept anything.
func (r *WorkerRegistry) ValidatePayload(taskType string, payload map[string]interface{}) (*validation.Result, error) {
	w, ok := r.FindByTaskType(taskType)
	if !ok {
		return nil, fmt.Errorf("no registry entry for task type %s", taskType)
	}
	return validation.AgainstSchema(w.InputSchema, payload)
}

// ValidateOutput checks a worker result against the registered output schema.
func (r *WorkerRegistry) ValidateOutput(taskType string, payload map[string]interface{}) (*validation.Result, error) {
	w, ok := r.FindByTaskType(taskType)
	if !ok {
		return nil, fmt.Errorf("no registry entry for task type %s", taskType)
	}
	return validation.AgainstSchema(w.OutputSchema, payload)
}
