// internal/workers/data-access/query-elasticsearch/queries/registry.go
package queries

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"engagement-workers/internal/search"
)

// Result carries the decoded hits of one search request.
type Result struct {
	Tasks     []search.TaskDocument
	TotalHits int64
	Took      int64 // milliseconds
}

// searchResponse mirrors the part of the Elasticsearch response body the
// worker reads.
type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source search.TaskDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Execute builds and runs the search request, returning typed task documents.
func Execute(ctx context.Context, esClient *elasticsearch.Client, sq SearchQuery) (*Result, error) {
	req, err := BuildQuery(sq)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := req.Do(ctx, esClient)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search query failed: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, err
	}

	tasks := make([]search.TaskDocument, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		tasks = append(tasks, hit.Source)
	}

	return &Result{
		Tasks:     tasks,
		TotalHits: r.Hits.Total.Value,
		Took:      time.Since(start).Milliseconds(),
	}, nil
}
