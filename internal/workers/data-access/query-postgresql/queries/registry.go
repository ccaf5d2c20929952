// internal/workers/data-access/query-postgresql/queries/registry.go
package queries

import (
	"context"
	"database/sql"
	"time"

	"engagement-workers/internal/cache"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/engagement"
	"engagement-workers/internal/models"
	"engagement-workers/internal/notification"
	"engagement-workers/internal/task"
)

// Deps is everything a named query may touch. The dashboard views are served
// by the lifecycle services so they share one cache entry with the write
// path; the aggregate views run their own SQL.
type Deps struct {
	DB          *sql.DB
	Tasks       *task.Service
	Engagements *engagement.Service
	Notifier    *notification.Dispatcher
	Cache       *cache.Cache
}

type Params struct {
	NGOID       string
	TaskID      string
	VolunteerID string
	UserType    string
	UserID      string
	Limit       int
}

// QueryFunc resolves one named read model. It returns the payload and how
// many rows it carries.
type QueryFunc func(ctx context.Context, deps Deps, params Params) (interface{}, int, error)

var Registry = map[models.QueryType]QueryFunc{
	models.QueryTypeNGOTasksWithCounts:  NGOTasksWithCounts,
	models.QueryTypeTaskVolunteers:      TaskVolunteers,
	models.QueryTypeNGOVolunteerRoster:  NGOVolunteerRoster,
	models.QueryTypeNGOAnalytics:        NGOAnalytics,
	models.QueryTypeVolunteerStats:      VolunteerStats,
	models.QueryTypeVolunteerEngagement: VolunteerEngagements,
	models.QueryTypeUnreadNotifications: UnreadNotifications,
}

// Execute dispatches a named query and times it.
func Execute(ctx context.Context, deps Deps, queryType models.QueryType, params Params) (interface{}, int, int64, error) {
	fn, ok := Registry[queryType]
	if !ok {
		return nil, 0, 0, errors.NewInvalidQueryTypeError(string(queryType))
	}

	start := time.Now()
	data, rowCount, err := fn(ctx, deps, params)
	execTime := time.Since(start).Milliseconds()
	if err != nil {
		return nil, 0, execTime, err
	}
	return data, rowCount, execTime, nil
}
