// internal/workers/data-access/query-elasticsearch/queries/builders.go
package queries

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"engagement-workers/internal/models"
)

const (
	QueryTypeTaskSearch   = "task_search"
	QueryTypeRelatedTasks = "related_tasks"
)

var (
	ErrUnknownQueryType = errors.New("unknown query type")
	ErrMissingIndex     = errors.New("index name is required")
)

// SearchQuery describes one request against the task index.
type SearchQuery struct {
	Index     string
	QueryType string
	Filters   models.TaskSearchFilters
	TaskID    string
}

// BuildQuery assembles the Elasticsearch search request for a query type.
func BuildQuery(sq SearchQuery) (*esapi.SearchRequest, error) {
	if sq.Index == "" {
		return nil, ErrMissingIndex
	}

	var queryBody map[string]interface{}

	switch sq.QueryType {
	case QueryTypeTaskSearch:
		queryBody = buildTaskSearchQuery(sq)
	case QueryTypeRelatedTasks:
		queryBody = buildRelatedTasksQuery(sq)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueryType, sq.QueryType)
	}

	body, _ := json.Marshal(queryBody)

	from := sq.Filters.Offset
	if from < 0 {
		from = 0
	}
	size := sq.Filters.Limit
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	req := esapi.SearchRequest{
		Index: []string{sq.Index},
		Body:  strings.NewReader(string(body)),
		From:  &from,
		Size:  &size,
	}

	return &req, nil
}

// buildTaskSearchQuery turns the volunteer-facing filters into a bool query.
// Free-text criteria (city, skills) go into must so relevance ranks them,
// exact constraints go into filter.
func buildTaskSearchQuery(sq SearchQuery) map[string]interface{} {
	f := sq.Filters
	mustClauses := []interface{}{}
	filterClauses := []interface{}{}

	if f.City != "" {
		mustClauses = append(mustClauses, map[string]interface{}{
			"match": map[string]interface{}{"location": f.City},
		})
	}
	if len(f.Skills) > 0 {
		mustClauses = append(mustClauses, map[string]interface{}{
			"match": map[string]interface{}{"requiredSkills": strings.Join(f.Skills, " ")},
		})
	}

	if f.Status != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"status": f.Status},
		})
		// An open listing with no seats left is closed in every way that
		// matters to an applicant.
		if f.Status == models.TaskStatusOpen {
			filterClauses = append(filterClauses, map[string]interface{}{
				"term": map[string]interface{}{"hasRoom": true},
			})
		}
	}
	if f.Category != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"category": f.Category},
		})
	}
	if f.MaxHours > 0 {
		filterClauses = append(filterClauses, map[string]interface{}{
			"range": map[string]interface{}{
				"hours": map[string]interface{}{"lte": f.MaxHours},
			},
		})
	}
	if f.DateFrom != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"range": map[string]interface{}{
				"startDate": map[string]interface{}{"gte": f.DateFrom},
			},
		})
	}
	if f.DateTo != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"range": map[string]interface{}{
				"endDate": map[string]interface{}{"lte": f.DateTo},
			},
		})
	}
	if f.MaxAge > 0 {
		filterClauses = append(filterClauses, map[string]interface{}{
			"range": map[string]interface{}{
				"minAge": map[string]interface{}{"lte": f.MaxAge},
			},
		})
	}
	if f.DayOfWeek != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"dayClass": f.DayOfWeek},
		})
	}

	if len(mustClauses) == 0 {
		mustClauses = append(mustClauses, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	boolQuery := map[string]interface{}{"must": mustClauses}
	if len(filterClauses) > 0 {
		boolQuery["filter"] = filterClauses
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": boolQuery,
		},
		"sort": []map[string]interface{}{
			{"_score": "desc"},
			{"createdAt": "desc"},
		},
	}
}

// buildRelatedTasksQuery finds listings similar to the given task that a
// volunteer could still join. Closed or full tasks are excluded up front.
func buildRelatedTasksQuery(sq SearchQuery) map[string]interface{} {
	if sq.TaskID == "" {
		return map[string]interface{}{
			"query": map[string]interface{}{
				"match_none": map[string]interface{}{},
			},
		}
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"more_like_this": map[string]interface{}{
							"fields": []string{"title", "description", "category", "requiredSkills"},
							"like": []map[string]interface{}{
								{"_index": sq.Index, "_id": sq.TaskID},
							},
							"min_term_freq":   1,
							"max_query_terms": 12,
							"min_doc_freq":    1,
						},
					},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"status": models.TaskStatusOpen}},
					map[string]interface{}{"term": map[string]interface{}{"hasRoom": true}},
				},
			},
		},
	}
}
