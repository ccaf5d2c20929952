// internal/search/indexer.go
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"engagement-workers/internal/common/config"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/common/logger"
	"engagement-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// TaskDocument is the denormalized task projection kept in the search index.
// Occupancy travels with the document so availability filters run entirely
// inside the index.
type TaskDocument struct {
	ID             string   `json:"id"`
	NGOID          string   `json:"ngoId"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Location       string   `json:"location"`
	Category       string   `json:"category,omitempty"`
	RequiredSkills string   `json:"requiredSkills,omitempty"`
	Urgency        string   `json:"urgency,omitempty"`
	StartDate      string   `json:"startDate"`
	EndDate        string   `json:"endDate"`
	Hours          float64  `json:"hours"`
	WageRate       *float64 `json:"wageRate,omitempty"`
	Status         string   `json:"status"`
	MaxVolunteers  *int     `json:"maxVolunteers,omitempty"`
	ApprovedCount  int      `json:"approvedCount"`
	HasRoom        bool     `json:"hasRoom"`
	MinAge         int      `json:"minAge"`
	DayClass       string   `json:"dayClass,omitempty"` // "weekday" or "weekend", from the start date
	CreatedAt      string   `json:"createdAt"`
}

// DocumentFromTask builds the index projection for a task at the given
// approved occupancy.
func DocumentFromTask(task *models.Task, approvedCount int) *TaskDocument {
	return &TaskDocument{
		ID:             task.ID,
		NGOID:          task.NGOID,
		Title:          task.Title,
		Description:    task.Description,
		Location:       task.Location,
		Category:       task.Category,
		RequiredSkills: task.RequiredSkills,
		Urgency:        task.Urgency,
		StartDate:      task.StartDate,
		EndDate:        task.EndDate,
		Hours:          task.Hours,
		WageRate:       task.WageRate,
		Status:         task.Status,
		MaxVolunteers:  task.MaxVolunteers,
		ApprovedCount:  approvedCount,
		HasRoom:        task.MaxVolunteers == nil || approvedCount < *task.MaxVolunteers,
		MinAge:         parseMinAge(task.AgeRequirement),
		DayClass:       dayClassOf(task.StartDate),
		CreatedAt:      task.CreatedAt,
	}
}

// parseMinAge reads the leading digits of a free-text age requirement such
// as "18+". Anything without a numeric prefix means no age floor.
func parseMinAge(requirement string) int {
	age := 0
	for _, r := range requirement {
		if r < '0' || r > '9' {
			break
		}
		age = age*10 + int(r-'0')
	}
	return age
}

func dayClassOf(startDate string) string {
	t, err := time.Parse(models.DateLayout, startDate)
	if err != nil {
		return ""
	}
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return "weekend"
	}
	return "weekday"
}

// Indexer keeps the task search index in step with storage. Writes call it
// after commit; a sync failure is retryable and never rolls back the write
// that caused it.
type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(client *elasticsearch.Client, cfg config.SearchConfig, log logger.Logger) *Indexer {
	return &Indexer{
		client: client,
		index:  cfg.TaskIndex,
		logger: log.Named("search"),
	}
}

// Index returns the index name documents are written to.
func (ix *Indexer) Index() string {
	return ix.index
}

// IndexTask upserts the task document keyed by task ID.
func (ix *Indexer) IndexTask(ctx context.Context, doc *TaskDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.NewSearchSyncFailedError(doc.ID, err)
	}

	req := esapi.IndexRequest{
		Index:      ix.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, ix.client)
	if err != nil {
		return errors.NewSearchSyncFailedError(doc.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewSearchSyncFailedError(doc.ID, fmt.Errorf("index response: %s", res.String()))
	}

	ix.logger.Debug("task indexed", map[string]interface{}{
		"taskId": doc.ID,
		"index":  ix.index,
	})
	return nil
}

// DeleteTask removes the task document. A document that is already gone is
// not an error; delete runs after soft deletes and must be idempotent.
func (ix *Indexer) DeleteTask(ctx context.Context, taskID string) error {
	req := esapi.DeleteRequest{
		Index:      ix.index,
		DocumentID: taskID,
	}
	res, err := req.Do(ctx, ix.client)
	if err != nil {
		return errors.NewSearchSyncFailedError(taskID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return errors.NewSearchSyncFailedError(taskID, fmt.Errorf("delete response: %s", res.String()))
	}

	ix.logger.Debug("task removed from index", map[string]interface{}{
		"taskId": taskID,
		"index":  ix.index,
	})
	return nil
}
