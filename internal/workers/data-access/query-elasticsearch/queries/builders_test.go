// internal/workers/data-access/query-elasticsearch/queries/builders_test.go
package queries

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-workers/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

// buildBody returns the marshalled query body for clause assertions. Map keys
// are marshalled in sorted order, so substring checks are stable.
func buildBody(t *testing.T, sq SearchQuery) string {
	t.Helper()
	req, err := BuildQuery(sq)
	require.NoError(t, err)

	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	return string(raw)
}

// ==========================
// Request Shape Tests
// ==========================

func TestBuildQueryRequiresIndex(t *testing.T) {
	_, err := BuildQuery(SearchQuery{QueryType: QueryTypeTaskSearch})
	assert.ErrorIs(t, err, ErrMissingIndex)
}

func TestBuildQueryUnknownType(t *testing.T) {
	_, err := BuildQuery(SearchQuery{Index: "tasks", QueryType: "task_feed"})
	assert.ErrorIs(t, err, ErrUnknownQueryType)
}

func TestBuildQueryPagination(t *testing.T) {
	req, err := BuildQuery(SearchQuery{Index: "tasks", QueryType: QueryTypeTaskSearch})
	require.NoError(t, err)
	assert.Equal(t, 0, *req.From)
	assert.Equal(t, 20, *req.Size)

	req, err = BuildQuery(SearchQuery{
		Index:     "tasks",
		QueryType: QueryTypeTaskSearch,
		Filters:   models.TaskSearchFilters{Offset: -5, Limit: 500},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, *req.From)
	assert.Equal(t, 100, *req.Size)
}

// ==========================
// Task Search Query Tests
// ==========================

func TestBuildTaskSearchDefaults(t *testing.T) {
	body := buildBody(t, SearchQuery{Index: "tasks", QueryType: QueryTypeTaskSearch})

	assert.Contains(t, body, `"match_all":{}`)
	assert.NotContains(t, body, `"filter"`)
	assert.Contains(t, body, `{"createdAt":"desc"}`)
}

func TestBuildTaskSearchFilters(t *testing.T) {
	body := buildBody(t, SearchQuery{
		Index:     "tasks",
		QueryType: QueryTypeTaskSearch,
		Filters: models.TaskSearchFilters{
			City:      "Chennai",
			Status:    models.TaskStatusOpen,
			Category:  "environment",
			MaxHours:  6,
			DateFrom:  "2025-03-01",
			DateTo:    "2025-03-31",
			Skills:    []string{"first aid", "driving"},
			MaxAge:    17,
			DayOfWeek: "weekend",
		},
	})

	assert.Contains(t, body, `{"match":{"location":"Chennai"}}`)
	assert.Contains(t, body, `{"match":{"requiredSkills":"first aid driving"}}`)
	assert.Contains(t, body, `{"term":{"status":"open"}}`)
	assert.Contains(t, body, `{"term":{"hasRoom":true}}`)
	assert.Contains(t, body, `{"term":{"category":"environment"}}`)
	assert.Contains(t, body, `{"range":{"hours":{"lte":6}}}`)
	assert.Contains(t, body, `{"range":{"startDate":{"gte":"2025-03-01"}}}`)
	assert.Contains(t, body, `{"range":{"endDate":{"lte":"2025-03-31"}}}`)
	assert.Contains(t, body, `{"range":{"minAge":{"lte":17}}}`)
	assert.Contains(t, body, `{"term":{"dayClass":"weekend"}}`)
	assert.NotContains(t, body, `"match_all"`)
}

func TestBuildTaskSearchClosedStatus(t *testing.T) {
	body := buildBody(t, SearchQuery{
		Index:     "tasks",
		QueryType: QueryTypeTaskSearch,
		Filters:   models.TaskSearchFilters{Status: models.TaskStatusClosed},
	})

	// Room only matters for listings still taking applications.
	assert.Contains(t, body, `{"term":{"status":"closed"}}`)
	assert.NotContains(t, body, `"hasRoom"`)
}

// ==========================
// Related Tasks Query Tests
// ==========================

func TestBuildRelatedTasks(t *testing.T) {
	body := buildBody(t, SearchQuery{
		Index:     "tasks",
		QueryType: QueryTypeRelatedTasks,
		TaskID:    "task-1",
	})

	assert.Contains(t, body, `"more_like_this"`)
	assert.Contains(t, body, `{"_id":"task-1","_index":"tasks"}`)
	assert.Contains(t, body, `{"term":{"status":"open"}}`)
	assert.Contains(t, body, `{"term":{"hasRoom":true}}`)
}

func TestBuildRelatedTasksWithoutSeed(t *testing.T) {
	body := buildBody(t, SearchQuery{Index: "tasks", QueryType: QueryTypeRelatedTasks})
	assert.Contains(t, body, `"match_none"`)
}
