// internal/engagement/store.go
package engagement

import (
	"context"
	"database/sql"

	"engagement-workers/internal/common/database"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/models"
)

const engagementColumns = `id, task_id, volunteer_id,
	COALESCE(availability_date, ''), COALESCE(availability_time, ''),
	COALESCE(hours_committed, 0), COALESCE(contact_email, ''),
	COALESCE(contact_phone, ''), COALESCE(additional_notes, ''),
	approval_status, completion_status, COALESCE(completion_note, ''),
	COALESCE(monetisation_value, 0), certificate_sent, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEngagement(row rowScanner) (*models.Engagement, error) {
	var e models.Engagement
	err := row.Scan(
		&e.ID, &e.TaskID, &e.VolunteerID,
		&e.AvailabilityDate, &e.AvailabilityTime,
		&e.HoursCommitted, &e.ContactEmail,
		&e.ContactPhone, &e.AdditionalNotes,
		&e.ApprovalStatus, &e.CompletionStatus, &e.CompletionNote,
		&e.MonetisationValue, &e.CertificateSent, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// getEngagementForUpdate locks the engagement row. Lock order is always
// engagement first, then task, so concurrent transitions cannot deadlock.
func getEngagementForUpdate(ctx context.Context, q database.Querier, engagementID string) (*models.Engagement, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+engagementColumns+` FROM engagements WHERE id = $1 FOR UPDATE`,
		engagementID,
	)
	e, err := scanEngagement(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("engagement", engagementID)
	}
	if err != nil {
		return nil, errors.MapStorageError("lock engagement", err)
	}
	return e, nil
}

// taskRow is the slice of the task the state machine needs: ownership,
// capacity, status and the value inputs.
type taskRow struct {
	ID            string
	NGOID         string
	Title         string
	StartDate     string
	EndDate       string
	Hours         float64
	Status        string
	WageRate      *float64
	MaxVolunteers *int
	IsDeleted     bool
}

// lockTask takes the task row lock that serializes every transition touching
// the same task, capacity counts included.
func lockTask(ctx context.Context, q database.Querier, taskID string) (*taskRow, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, ngo_id, title, start_date, end_date, hours, status,
		       wage_rate, max_volunteers, is_deleted
		FROM tasks WHERE id = $1 FOR UPDATE`,
		taskID,
	)
	var (
		t    taskRow
		wage sql.NullFloat64
		max  sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.NGOID, &t.Title, &t.StartDate, &t.EndDate,
		&t.Hours, &t.Status, &wage, &max, &t.IsDeleted)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("task", taskID)
	}
	if err != nil {
		return nil, errors.MapStorageError("lock task", err)
	}
	if wage.Valid {
		w := wage.Float64
		t.WageRate = &w
	}
	if max.Valid {
		m := int(max.Int64)
		t.MaxVolunteers = &m
	}
	return &t, nil
}

func (t *taskRow) valueTask() *models.Task {
	return &models.Task{
		StartDate: t.StartDate,
		EndDate:   t.EndDate,
		Hours:     t.Hours,
		WageRate:  t.WageRate,
	}
}

func hasApplied(ctx context.Context, q database.Querier, taskID, volunteerID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM engagements WHERE task_id = $1 AND volunteer_id = $2`,
		taskID, volunteerID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.MapStorageError("check existing application", err)
	}
	return true, nil
}

func insertEngagement(ctx context.Context, ex database.Execer, e *models.Engagement) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO engagements (
			id, task_id, volunteer_id, availability_date, availability_time,
			hours_committed, contact_email, contact_phone, additional_notes,
			approval_status, completion_status, completion_note,
			monetisation_value, certificate_sent, created_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9,
			$10, $11, NULL, 0, FALSE, $12)`,
		e.ID, e.TaskID, e.VolunteerID, e.AvailabilityDate, e.AvailabilityTime,
		e.HoursCommitted, e.ContactEmail, e.ContactPhone, e.AdditionalNotes,
		e.ApprovalStatus, e.CompletionStatus, e.CreatedAt,
	)
	if err != nil {
		return errors.MapStorageError("insert engagement", err)
	}
	return nil
}

func setApprovalStatus(ctx context.Context, ex database.Execer, engagementID, status string) error {
	_, err := ex.ExecContext(ctx,
		`UPDATE engagements SET approval_status = $2 WHERE id = $1`,
		engagementID, status,
	)
	if err != nil {
		return errors.MapStorageError("update approval status", err)
	}
	return nil
}

func setCompletion(ctx context.Context, ex database.Execer, engagementID, status, note string, value float64) error {
	_, err := ex.ExecContext(ctx,
		`UPDATE engagements SET completion_status = $2, completion_note = NULLIF($3, ''), monetisation_value = $4 WHERE id = $1`,
		engagementID, status, note, value,
	)
	if err != nil {
		return errors.MapStorageError("update completion status", err)
	}
	return nil
}

func setCertificateSent(ctx context.Context, ex database.Execer, engagementID string) error {
	_, err := ex.ExecContext(ctx,
		`UPDATE engagements SET certificate_sent = TRUE WHERE id = $1`,
		engagementID,
	)
	if err != nil {
		return errors.MapStorageError("mark certificate sent", err)
	}
	return nil
}

func deleteEngagement(ctx context.Context, ex database.Execer, engagementID string) error {
	_, err := ex.ExecContext(ctx,
		`DELETE FROM engagements WHERE id = $1`,
		engagementID,
	)
	if err != nil {
		return errors.MapStorageError("delete engagement", err)
	}
	return nil
}

// recomputeVolunteerValue rewrites the volunteer's lifetime aggregate from
// completed, approved engagements. Runs in the same transaction as the
// completion write so the aggregate never drifts from the rows.
func recomputeVolunteerValue(ctx context.Context, ex database.Execer, volunteerID string) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE volunteers SET total_value_generated = (
			SELECT COALESCE(SUM(monetisation_value), 0)
			FROM engagements
			WHERE volunteer_id = $1
			  AND approval_status = 'approved'
			  AND completion_status = 'completed'
		) WHERE id = $1`,
		volunteerID,
	)
	if err != nil {
		return errors.MapStorageError("recompute volunteer value", err)
	}
	return nil
}

func listForTask(ctx context.Context, q database.Querier, taskID string) ([]models.RosterEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.id, e.task_id, e.volunteer_id,
		       COALESCE(e.availability_date, ''), COALESCE(e.availability_time, ''),
		       COALESCE(e.hours_committed, 0), COALESCE(e.contact_email, ''),
		       COALESCE(e.contact_phone, ''), COALESCE(e.additional_notes, ''),
		       e.approval_status, e.completion_status, COALESCE(e.completion_note, ''),
		       COALESCE(e.monetisation_value, 0), e.certificate_sent, e.created_at,
		       v.name, v.email, COALESCE(v.city, ''), COALESCE(v.skills, '')
		FROM engagements e
		JOIN volunteers v ON v.id = e.volunteer_id
		WHERE e.task_id = $1
		ORDER BY e.created_at DESC`,
		taskID,
	)
	if err != nil {
		return nil, errors.MapStorageError("list task roster", err)
	}
	defer rows.Close()

	var entries []models.RosterEntry
	for rows.Next() {
		var r models.RosterEntry
		err := rows.Scan(
			&r.ID, &r.TaskID, &r.VolunteerID,
			&r.AvailabilityDate, &r.AvailabilityTime,
			&r.HoursCommitted, &r.ContactEmail,
			&r.ContactPhone, &r.AdditionalNotes,
			&r.ApprovalStatus, &r.CompletionStatus, &r.CompletionNote,
			&r.MonetisationValue, &r.CertificateSent, &r.CreatedAt,
			&r.VolunteerName, &r.VolunteerEmail, &r.VolunteerCity, &r.VolunteerSkills,
		)
		if err != nil {
			return nil, errors.MapStorageError("scan roster entry", err)
		}
		entries = append(entries, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MapStorageError("list task roster", err)
	}
	return entries, nil
}

func listForNGO(ctx context.Context, q database.Querier, ngoID string) ([]models.RosterEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.id, e.task_id, e.volunteer_id,
		       COALESCE(e.availability_date, ''), COALESCE(e.availability_time, ''),
		       COALESCE(e.hours_committed, 0), COALESCE(e.contact_email, ''),
		       COALESCE(e.contact_phone, ''), COALESCE(e.additional_notes, ''),
		       e.approval_status, e.completion_status, COALESCE(e.completion_note, ''),
		       COALESCE(e.monetisation_value, 0), e.certificate_sent, e.created_at,
		       v.name, v.email, COALESCE(v.city, ''), COALESCE(v.skills, ''),
		       t.title, COALESCE(t.category, '')
		FROM engagements e
		JOIN tasks t ON t.id = e.task_id
		JOIN volunteers v ON v.id = e.volunteer_id
		WHERE t.ngo_id = $1
		ORDER BY e.created_at DESC`,
		ngoID,
	)
	if err != nil {
		return nil, errors.MapStorageError("list ngo volunteers", err)
	}
	defer rows.Close()

	var entries []models.RosterEntry
	for rows.Next() {
		var r models.RosterEntry
		err := rows.Scan(
			&r.ID, &r.TaskID, &r.VolunteerID,
			&r.AvailabilityDate, &r.AvailabilityTime,
			&r.HoursCommitted, &r.ContactEmail,
			&r.ContactPhone, &r.AdditionalNotes,
			&r.ApprovalStatus, &r.CompletionStatus, &r.CompletionNote,
			&r.MonetisationValue, &r.CertificateSent, &r.CreatedAt,
			&r.VolunteerName, &r.VolunteerEmail, &r.VolunteerCity, &r.VolunteerSkills,
			&r.TaskTitle, &r.TaskCategory,
		)
		if err != nil {
			return nil, errors.MapStorageError("scan roster entry", err)
		}
		entries = append(entries, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MapStorageError("list ngo volunteers", err)
	}
	return entries, nil
}

func listForVolunteer(ctx context.Context, q database.Querier, volunteerID string) ([]models.EngagementView, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.id, e.task_id, e.volunteer_id,
		       COALESCE(e.availability_date, ''), COALESCE(e.availability_time, ''),
		       COALESCE(e.hours_committed, 0), COALESCE(e.contact_email, ''),
		       COALESCE(e.contact_phone, ''), COALESCE(e.additional_notes, ''),
		       e.approval_status, e.completion_status, COALESCE(e.completion_note, ''),
		       COALESCE(e.monetisation_value, 0), e.certificate_sent, e.created_at,
		       t.title, t.description, t.location, COALESCE(t.address, ''),
		       t.start_date, t.end_date, t.hours,
		       COALESCE(t.category, ''), COALESCE(t.urgency, ''),
		       COALESCE(t.age_requirement, ''), COALESCE(t.physical_requirements, ''),
		       COALESCE(t.equipment_needed, ''), t.wage_rate, t.status, t.is_deleted,
		       n.name, n.email, COALESCE(n.phone, '')
		FROM engagements e
		JOIN tasks t ON t.id = e.task_id
		JOIN ngos n ON n.id = t.ngo_id
		WHERE e.volunteer_id = $1
		ORDER BY e.created_at DESC`,
		volunteerID,
	)
	if err != nil {
		return nil, errors.MapStorageError("list volunteer engagements", err)
	}
	defer rows.Close()

	var views []models.EngagementView
	for rows.Next() {
		var (
			v    models.EngagementView
			wage sql.NullFloat64
		)
		err := rows.Scan(
			&v.ID, &v.TaskID, &v.VolunteerID,
			&v.AvailabilityDate, &v.AvailabilityTime,
			&v.HoursCommitted, &v.ContactEmail,
			&v.ContactPhone, &v.AdditionalNotes,
			&v.ApprovalStatus, &v.CompletionStatus, &v.CompletionNote,
			&v.MonetisationValue, &v.CertificateSent, &v.CreatedAt,
			&v.TaskTitle, &v.TaskDescription, &v.TaskLocation, &v.TaskAddress,
			&v.TaskStartDate, &v.TaskEndDate, &v.TaskHours,
			&v.TaskCategory, &v.TaskUrgency,
			&v.TaskAgeRequirement, &v.TaskPhysicalRequirements,
			&v.TaskEquipmentNeeded, &wage, &v.TaskStatus, &v.TaskIsDeleted,
			&v.NGOName, &v.NGOEmail, &v.NGOPhone,
		)
		if err != nil {
			return nil, errors.MapStorageError("scan engagement view", err)
		}
		if wage.Valid {
			w := wage.Float64
			v.TaskWageRate = &w
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MapStorageError("list volunteer engagements", err)
	}
	return views, nil
}
