// internal/workers/data-access/query-postgresql/queries/views.go
package queries

import (
	"context"

	"engagement-workers/internal/common/errors"
)

// The four dashboard views below delegate to the lifecycle services. Those
// already cache under the keys the transition code invalidates, so a second
// SQL path here would serve stale rows the services just refreshed.

func NGOTasksWithCounts(ctx context.Context, deps Deps, params Params) (interface{}, int, error) {
	if params.NGOID == "" {
		return nil, 0, errors.NewValidationError("ngoId is required")
	}
	views, err := deps.Tasks.ListByNGO(ctx, params.NGOID)
	if err != nil {
		return nil, 0, err
	}
	return views, len(views), nil
}

func TaskVolunteers(ctx context.Context, deps Deps, params Params) (interface{}, int, error) {
	if params.TaskID == "" {
		return nil, 0, errors.NewValidationError("taskId is required")
	}
	roster, err := deps.Engagements.Roster(ctx, params.TaskID)
	if err != nil {
		return nil, 0, err
	}
	return roster, len(roster.Approved) + len(roster.Pending), nil
}

func NGOVolunteerRoster(ctx context.Context, deps Deps, params Params) (interface{}, int, error) {
	if params.NGOID == "" {
		return nil, 0, errors.NewValidationError("ngoId is required")
	}
	entries, err := deps.Engagements.ListForNGO(ctx, params.NGOID)
	if err != nil {
		return nil, 0, err
	}
	return entries, len(entries), nil
}

func VolunteerEngagements(ctx context.Context, deps Deps, params Params) (interface{}, int, error) {
	if params.VolunteerID == "" {
		return nil, 0, errors.NewValidationError("volunteerId is required")
	}
	views, err := deps.Engagements.ListForVolunteer(ctx, params.VolunteerID)
	if err != nil {
		return nil, 0, err
	}
	return views, len(views), nil
}
