// internal/workers/data-access/query-elasticsearch/models.go
package queryelasticsearch

import (
	"engagement-workers/internal/models"
	"engagement-workers/internal/search"
)

type Input struct {
	QueryType string                   `json:"queryType"`
	Filters   models.TaskSearchFilters `json:"filters"`
	TaskID    string                   `json:"taskId,omitempty"`
}

type Output struct {
	Tasks     []search.TaskDocument `json:"tasks"`
	TotalHits int64                 `json:"totalHits"`
	Took      int64                 `json:"took"` // milliseconds
}
