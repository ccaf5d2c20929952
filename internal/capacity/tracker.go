// internal/capacity/tracker.go
package capacity

import (
	"context"
	"database/sql"

	"engagement-workers/internal/common/database"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/models"

	"github.com/lib/pq"
)

// DisplayFull is the derived status dashboards render for an open task whose
// approved occupancy has reached its limit. It is never written to storage.
const DisplayFull = "full"

// Occupancy is a point-in-time capacity reading for one task. Approved
// occupancy counts engagements that hold a seat: approved by the NGO and not
// marked not_completed.
type Occupancy struct {
	TaskID        string
	ApprovedCount int
	PendingCount  int
	MaxVolunteers *int // nil = unlimited
}

// IsFull reports whether approved occupancy has reached the volunteer limit.
func (o Occupancy) IsFull() bool {
	return !roomFor(o.ApprovedCount, o.MaxVolunteers)
}

// HasRoom reports whether one more volunteer could be approved.
func (o Occupancy) HasRoom() bool {
	return roomFor(o.ApprovedCount, o.MaxVolunteers)
}

// DisplayStatus maps a stored task status to what a dashboard should render.
// Closed tasks stay closed; open tasks show "full" once at capacity.
func (o Occupancy) DisplayStatus(storedStatus string) string {
	if storedStatus == models.TaskStatusClosed {
		return models.TaskStatusClosed
	}
	if o.IsFull() {
		return DisplayFull
	}
	return models.TaskStatusOpen
}

func roomFor(approved int, max *int) bool {
	if max == nil {
		return true
	}
	return approved < *max
}

// ApprovedCount returns the number of seat-holding engagements for a task:
// approval_status approved with completion_status accepted or completed.
// Rejected applications and not_completed outcomes never count.
func ApprovedCount(ctx context.Context, q database.Querier, taskID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM engagements
		WHERE task_id = $1
		  AND approval_status = 'approved'
		  AND completion_status IN ('accepted', 'completed')`,
		taskID,
	).Scan(&count)
	if err != nil {
		return 0, errors.MapStorageError("count approved engagements", err)
	}
	return count, nil
}

// PendingCount returns the number of applications awaiting NGO review.
func PendingCount(ctx context.Context, q database.Querier, taskID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM engagements
		WHERE task_id = $1
		  AND approval_status = 'pending'`,
		taskID,
	).Scan(&count)
	if err != nil {
		return 0, errors.MapStorageError("count pending engagements", err)
	}
	return count, nil
}

// Snapshot reads the task's volunteer limit and both occupancy counts.
// Returns a not-found error when the task row does not exist.
func Snapshot(ctx context.Context, q database.Querier, taskID string) (*Occupancy, error) {
	var max sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT max_volunteers FROM tasks WHERE id = $1`,
		taskID,
	).Scan(&max)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("task", taskID)
	}
	if err != nil {
		return nil, errors.MapStorageError("read task capacity", err)
	}

	occ := &Occupancy{TaskID: taskID}
	if max.Valid {
		limit := int(max.Int64)
		occ.MaxVolunteers = &limit
	}

	err = q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN approval_status = 'approved'
			                   AND completion_status IN ('accepted', 'completed')
			              THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN approval_status = 'pending'
			              THEN 1 ELSE 0 END), 0)
		FROM engagements
		WHERE task_id = $1`,
		taskID,
	).Scan(&occ.ApprovedCount, &occ.PendingCount)
	if err != nil {
		return nil, errors.MapStorageError("count engagements", err)
	}

	return occ, nil
}

// HasRoom is the guard the apply and approve transitions run inside their
// transaction: true when one more volunteer could hold a seat.
func HasRoom(ctx context.Context, q database.Querier, taskID string) (bool, error) {
	occ, err := Snapshot(ctx, q, taskID)
	if err != nil {
		return false, err
	}
	return occ.HasRoom(), nil
}

// IsFull reports whether the task has reached its approved-volunteer limit.
func IsFull(ctx context.Context, q database.Querier, taskID string) (bool, error) {
	occ, err := Snapshot(ctx, q, taskID)
	if err != nil {
		return false, err
	}
	return occ.IsFull(), nil
}

// SnapshotMany returns occupancy for a batch of tasks in two queries. Tasks
// with no engagements still appear in the result with zero counts.
func SnapshotMany(ctx context.Context, q database.Querier, taskIDs []string) (map[string]*Occupancy, error) {
	result := make(map[string]*Occupancy, len(taskIDs))
	if len(taskIDs) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, max_volunteers FROM tasks WHERE id = ANY($1)`,
		pq.Array(taskIDs),
	)
	if err != nil {
		return nil, errors.MapStorageError("read task capacities", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			max sql.NullInt64
		)
		if err := rows.Scan(&id, &max); err != nil {
			return nil, errors.MapStorageError("scan task capacity", err)
		}
		occ := &Occupancy{TaskID: id}
		if max.Valid {
			limit := int(max.Int64)
			occ.MaxVolunteers = &limit
		}
		result[id] = occ
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MapStorageError("read task capacities", err)
	}

	counts, err := q.QueryContext(ctx, `
		SELECT task_id,
			SUM(CASE WHEN approval_status = 'approved'
			          AND completion_status IN ('accepted', 'completed')
			     THEN 1 ELSE 0 END),
			SUM(CASE WHEN approval_status = 'pending' THEN 1 ELSE 0 END)
		FROM engagements
		WHERE task_id = ANY($1)
		GROUP BY task_id`,
		pq.Array(taskIDs),
	)
	if err != nil {
		return nil, errors.MapStorageError("count engagements", err)
	}
	defer counts.Close()

	for counts.Next() {
		var (
			id                string
			approved, pending int
		)
		if err := counts.Scan(&id, &approved, &pending); err != nil {
			return nil, errors.MapStorageError("scan engagement counts", err)
		}
		if occ, ok := result[id]; ok {
			occ.ApprovedCount = approved
			occ.PendingCount = pending
		}
	}
	if err := counts.Err(); err != nil {
		return nil, errors.MapStorageError("count engagements", err)
	}

	return result, nil
}
