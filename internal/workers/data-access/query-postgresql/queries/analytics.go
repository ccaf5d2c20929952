// internal/workers/data-access/query-postgresql/queries/analytics.go
package queries

import (
	"context"
	"database/sql"

	"engagement-workers/internal/cache"
	"engagement-workers/internal/common/errors"
)

type NGOAnalyticsView struct {
	NGOID               string  `json:"ngoId"`
	TotalTasks          int     `json:"totalTasks"`
	OpenTasks           int     `json:"openTasks"`
	ClosedTasks         int     `json:"closedTasks"`
	TotalEngagements    int     `json:"totalEngagements"`
	ActiveVolunteers    int     `json:"activeVolunteers"`
	CompletedCount      int     `json:"completedCount"`
	NotCompletedCount   int     `json:"notCompletedCount"`
	DistinctVolunteers  int     `json:"distinctVolunteers"`
	TotalValueGenerated float64 `json:"totalValueGenerated"`
}

type CategoryValue struct {
	Category string  `json:"category"`
	Value    float64 `json:"value"`
}

type MonthValue struct {
	Month string  `json:"month"` // "2025-03"
	Value float64 `json:"value"`
}

type VolunteerStatsView struct {
	VolunteerID         string          `json:"volunteerId"`
	Name                string          `json:"name"`
	City                string          `json:"city"`
	TotalValueGenerated float64         `json:"totalValueGenerated"`
	CompletedCount      int             `json:"completedCount"`
	ActiveCount         int             `json:"activeCount"`
	PendingCount        int             `json:"pendingCount"`
	NotCompletedCount   int             `json:"notCompletedCount"`
	ByCategory          []CategoryValue `json:"byCategory"`
	ByMonth             []MonthValue    `json:"byMonth"`
}

func NGOAnalytics(ctx context.Context, deps Deps, params Params) (interface{}, int, error) {
	if params.NGOID == "" {
		return nil, 0, errors.NewValidationError("ngoId is required")
	}

	var view NGOAnalyticsView
	err := deps.Cache.Fetch(ctx, cache.AnalyticsKey(params.NGOID), cache.TTLAnalytics, &view,
		func(ctx context.Context) error {
			return loadNGOAnalytics(ctx, deps.DB, params.NGOID, &view)
		})
	if err != nil {
		return nil, 0, err
	}
	return &view, 1, nil
}

func loadNGOAnalytics(ctx context.Context, db *sql.DB, ngoID string, view *NGOAnalyticsView) error {
	view.NGOID = ngoID

	err := db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'open' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'closed' THEN 1 ELSE 0 END), 0)
		FROM tasks
		WHERE ngo_id = $1 AND is_deleted = FALSE`,
		ngoID,
	).Scan(&view.TotalTasks, &view.OpenTasks, &view.ClosedTasks)
	if err != nil {
		return errors.MapStorageError("ngo analytics tasks", err)
	}

	err = db.QueryRowContext(ctx, `
		SELECT
			COUNT(e.id),
			COALESCE(SUM(CASE WHEN e.approval_status = 'approved' AND e.completion_status = 'accepted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN e.approval_status = 'approved' AND e.completion_status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN e.approval_status = 'approved' AND e.completion_status = 'not_completed' THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT e.volunteer_id),
			COALESCE(SUM(CASE WHEN e.approval_status = 'approved' AND e.completion_status = 'completed' THEN e.monetisation_value ELSE 0 END), 0)
		FROM engagements e
		JOIN tasks t ON t.id = e.task_id
		WHERE t.ngo_id = $1 AND t.is_deleted = FALSE`,
		ngoID,
	).Scan(&view.TotalEngagements, &view.ActiveVolunteers, &view.CompletedCount,
		&view.NotCompletedCount, &view.DistinctVolunteers, &view.TotalValueGenerated)
	if err != nil {
		return errors.MapStorageError("ngo analytics engagements", err)
	}
	return nil
}

func VolunteerStats(ctx context.Context, deps Deps, params Params) (interface{}, int, error) {
	if params.VolunteerID == "" {
		return nil, 0, errors.NewValidationError("volunteerId is required")
	}

	var view VolunteerStatsView
	err := deps.Cache.Fetch(ctx, cache.ProfileKey("volunteer", params.VolunteerID), cache.TTLProfiles, &view,
		func(ctx context.Context) error {
			return loadVolunteerStats(ctx, deps.DB, params.VolunteerID, &view)
		})
	if err != nil {
		return nil, 0, err
	}
	return &view, 1, nil
}

func loadVolunteerStats(ctx context.Context, db *sql.DB, volunteerID string, view *VolunteerStatsView) error {
	view.VolunteerID = volunteerID

	err := db.QueryRowContext(ctx, `
		SELECT name, COALESCE(city, ''), total_value_generated
		FROM volunteers WHERE id = $1`,
		volunteerID,
	).Scan(&view.Name, &view.City, &view.TotalValueGenerated)
	if err == sql.ErrNoRows {
		return errors.NewNotFoundError("volunteer", volunteerID)
	}
	if err != nil {
		return errors.MapStorageError("volunteer stats profile", err)
	}

	err = db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN approval_status = 'approved' AND completion_status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN approval_status = 'approved' AND completion_status = 'accepted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN approval_status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN approval_status = 'approved' AND completion_status = 'not_completed' THEN 1 ELSE 0 END), 0)
		FROM engagements
		WHERE volunteer_id = $1`,
		volunteerID,
	).Scan(&view.CompletedCount, &view.ActiveCount, &view.PendingCount, &view.NotCompletedCount)
	if err != nil {
		return errors.MapStorageError("volunteer stats counts", err)
	}

	view.ByCategory, err = loadCategoryValues(ctx, db, volunteerID)
	if err != nil {
		return err
	}
	view.ByMonth, err = loadMonthValues(ctx, db, volunteerID)
	return err
}

func loadCategoryValues(ctx context.Context, db *sql.DB, volunteerID string) ([]CategoryValue, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(t.category, ''), 'other'), SUM(e.monetisation_value)
		FROM engagements e
		JOIN tasks t ON t.id = e.task_id
		WHERE e.volunteer_id = $1
			AND e.approval_status = 'approved'
			AND e.completion_status = 'completed'
		GROUP BY 1
		ORDER BY 2 DESC`,
		volunteerID,
	)
	if err != nil {
		return nil, errors.MapStorageError("volunteer stats by category", err)
	}
	defer rows.Close()

	var result []CategoryValue
	for rows.Next() {
		var cv CategoryValue
		if err := rows.Scan(&cv.Category, &cv.Value); err != nil {
			return nil, errors.MapStorageError("scan category value", err)
		}
		result = append(result, cv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MapStorageError("volunteer stats by category", err)
	}
	return result, nil
}

// Months come from the engagement's creation date: completion has no
// timestamp of its own in the schema.
func loadMonthValues(ctx context.Context, db *sql.DB, volunteerID string) ([]MonthValue, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT substr(created_at, 1, 7), SUM(monetisation_value)
		FROM engagements
		WHERE volunteer_id = $1
			AND approval_status = 'approved'
			AND completion_status = 'completed'
		GROUP BY 1
		ORDER BY 1`,
		volunteerID,
	)
	if err != nil {
		return nil, errors.MapStorageError("volunteer stats by month", err)
	}
	defer rows.Close()

	var result []MonthValue
	for rows.Next() {
		var mv MonthValue
		if err := rows.Scan(&mv.Month, &mv.Value); err != nil {
			return nil, errors.MapStorageError("scan month value", err)
		}
		result = append(result, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MapStorageError("volunteer stats by month", err)
	}
	return result, nil
}
