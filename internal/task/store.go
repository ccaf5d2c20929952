// internal/task/store.go
package task

import (
	"context"
	"database/sql"

	"engagement-workers/internal/common/database"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/models"
)

// Optional text columns come back as '' so the model stays pointer-free;
// only the volunteer limit and wage keep NULL semantics.
const taskColumns = `id, ngo_id, title, description, location, COALESCE(address, ''),
	start_date, end_date, hours, status, COALESCE(close_reason, ''),
	COALESCE(category, ''), COALESCE(required_skills, ''), max_volunteers,
	COALESCE(contact_email, ''), COALESCE(contact_phone, ''), COALESCE(deadline, ''),
	COALESCE(urgency, ''), COALESCE(age_requirement, ''), COALESCE(physical_requirements, ''),
	COALESCE(equipment_needed, ''), wage_rate, COALESCE(work_start_time, ''),
	COALESCE(work_end_time, ''), is_deleted, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t    models.Task
		max  sql.NullInt64
		wage sql.NullFloat64
	)
	err := row.Scan(
		&t.ID, &t.NGOID, &t.Title, &t.Description, &t.Location, &t.Address,
		&t.StartDate, &t.EndDate, &t.Hours, &t.Status, &t.CloseReason,
		&t.Category, &t.RequiredSkills, &max,
		&t.ContactEmail, &t.ContactPhone, &t.Deadline,
		&t.Urgency, &t.AgeRequirement, &t.PhysicalRequirements,
		&t.EquipmentNeeded, &wage, &t.WorkStartTime,
		&t.WorkEndTime, &t.IsDeleted, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if max.Valid {
		limit := int(max.Int64)
		t.MaxVolunteers = &limit
	}
	if wage.Valid {
		rate := wage.Float64
		t.WageRate = &rate
	}
	return &t, nil
}

// getTask loads one live task. Deleted and missing rows both come back as
// not-found so stale references read the same either way.
func getTask(ctx context.Context, q database.Querier, taskID string) (*models.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("task", taskID)
	}
	if err != nil {
		return nil, errors.MapStorageError("read task", err)
	}
	if t.IsDeleted {
		return nil, errors.NewNotFoundError("task", taskID)
	}
	return t, nil
}

// getTaskForUpdate locks the task row for the rest of the transaction. Every
// capacity-sensitive transition serializes on this lock.
func getTaskForUpdate(ctx context.Context, q database.Querier, taskID string) (*models.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("task", taskID)
	}
	if err != nil {
		return nil, errors.MapStorageError("lock task", err)
	}
	if t.IsDeleted {
		return nil, errors.NewNotFoundError("task", taskID)
	}
	return t, nil
}

func insertTask(ctx context.Context, ex database.Execer, t *models.Task) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO tasks (
			id, ngo_id, title, description, location, address,
			start_date, end_date, hours, status, close_reason,
			category, required_skills, max_volunteers,
			contact_email, contact_phone, deadline,
			urgency, age_requirement, physical_requirements,
			equipment_needed, wage_rate, work_start_time, work_end_time,
			is_deleted, created_at
		) VALUES (
			$1, $2, $3, $4, $5, NULLIF($6, ''),
			$7, $8, $9, $10, NULL,
			NULLIF($11, ''), NULLIF($12, ''), $13,
			NULLIF($14, ''), NULLIF($15, ''), NULLIF($16, ''),
			NULLIF($17, ''), NULLIF($18, ''), NULLIF($19, ''),
			NULLIF($20, ''), $21, NULLIF($22, ''), NULLIF($23, ''),
			FALSE, $24
		)`,
		t.ID, t.NGOID, t.Title, t.Description, t.Location, t.Address,
		t.StartDate, t.EndDate, t.Hours, t.Status,
		t.Category, t.RequiredSkills, t.MaxVolunteers,
		t.ContactEmail, t.ContactPhone, t.Deadline,
		t.Urgency, t.AgeRequirement, t.PhysicalRequirements,
		t.EquipmentNeeded, t.WageRate, t.WorkStartTime, t.WorkEndTime,
		t.CreatedAt,
	)
	if err != nil {
		return errors.MapStorageError("insert task", err)
	}
	return nil
}

// updateTask rewrites the editable columns. Status, close reason and the
// deleted flag have their own dedicated writes.
func updateTask(ctx context.Context, ex database.Execer, t *models.Task) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE tasks SET
			title = $2, description = $3, location = $4, address = NULLIF($5, ''),
			start_date = $6, end_date = $7, hours = $8,
			category = NULLIF($9, ''), required_skills = NULLIF($10, ''),
			max_volunteers = $11,
			contact_email = NULLIF($12, ''), contact_phone = NULLIF($13, ''),
			deadline = NULLIF($14, ''), urgency = NULLIF($15, ''),
			age_requirement = NULLIF($16, ''), physical_requirements = NULLIF($17, ''),
			equipment_needed = NULLIF($18, ''), wage_rate = $19,
			work_start_time = NULLIF($20, ''), work_end_time = NULLIF($21, '')
		WHERE id = $1`,
		t.ID, t.Title, t.Description, t.Location, t.Address,
		t.StartDate, t.EndDate, t.Hours,
		t.Category, t.RequiredSkills, t.MaxVolunteers,
		t.ContactEmail, t.ContactPhone, t.Deadline, t.Urgency,
		t.AgeRequirement, t.PhysicalRequirements, t.EquipmentNeeded,
		t.WageRate, t.WorkStartTime, t.WorkEndTime,
	)
	if err != nil {
		return errors.MapStorageError("update task", err)
	}
	return nil
}

func setTaskStatus(ctx context.Context, ex database.Execer, taskID, status, closeReason string) error {
	_, err := ex.ExecContext(ctx,
		`UPDATE tasks SET status = $2, close_reason = NULLIF($3, '') WHERE id = $1`,
		taskID, status, closeReason,
	)
	if err != nil {
		return errors.MapStorageError("set task status", err)
	}
	return nil
}

func markTaskDeleted(ctx context.Context, ex database.Execer, taskID string) error {
	_, err := ex.ExecContext(ctx,
		`UPDATE tasks SET is_deleted = TRUE WHERE id = $1`,
		taskID,
	)
	if err != nil {
		return errors.MapStorageError("delete task", err)
	}
	return nil
}

// engagedVolunteerIDs returns every volunteer with a row on the task, any
// approval or completion state.
func engagedVolunteerIDs(ctx context.Context, q database.Querier, taskID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT volunteer_id FROM engagements WHERE task_id = $1`,
		taskID,
	)
	if err != nil {
		return nil, errors.MapStorageError("list engaged volunteers", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.MapStorageError("scan volunteer id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MapStorageError("list engaged volunteers", err)
	}
	return ids, nil
}

// approvedVolunteerIDs returns volunteers the NGO has approved, whatever
// their completion state. Edit notifications go only to these.
func approvedVolunteerIDs(ctx context.Context, q database.Querier, taskID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT volunteer_id FROM engagements WHERE task_id = $1 AND approval_status = 'approved'`,
		taskID,
	)
	if err != nil {
		return nil, errors.MapStorageError("list approved volunteers", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.MapStorageError("scan volunteer id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MapStorageError("list approved volunteers", err)
	}
	return ids, nil
}

func listNGOTasks(ctx context.Context, q database.Querier, ngoID string) ([]*models.Task, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE ngo_id = $1 AND is_deleted = FALSE ORDER BY created_at DESC`,
		ngoID,
	)
	if err != nil {
		return nil, errors.MapStorageError("list ngo tasks", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errors.MapStorageError("scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MapStorageError("list ngo tasks", err)
	}
	return tasks, nil
}

// listOpenTasksNotAppliedBy returns open, live, not-yet-ended tasks the
// volunteer has no row on. Dates are ISO strings, so the end-date cutoff is
// a plain string compare.
func listOpenTasksNotAppliedBy(ctx context.Context, q database.Querier, volunteerID, today string) ([]*models.Task, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		WHERE t.is_deleted = FALSE
		  AND t.status = 'open'
		  AND t.end_date >= $2
		  AND NOT EXISTS (
			SELECT 1 FROM engagements e
			WHERE e.task_id = t.id AND e.volunteer_id = $1
		  )
		ORDER BY t.created_at DESC`,
		volunteerID, today,
	)
	if err != nil {
		return nil, errors.MapStorageError("list available tasks", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errors.MapStorageError("scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MapStorageError("list available tasks", err)
	}
	return tasks, nil
}
