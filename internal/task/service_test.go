// internal/task/service_test.go
package task

import (
	"context"
	"testing"
	"time"

	"engagement-workers/internal/cache"
	"engagement-workers/internal/common/config"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/common/logger"
	"engagement-workers/internal/models"
	"engagement-workers/internal/notification"
	"engagement-workers/internal/ratelimit"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const (
	statusReadPattern    = `SELECT status, COALESCE\(close_reason, ''\), is_deleted FROM tasks WHERE id = \$1`
	taskLimitPattern     = `SELECT max_volunteers FROM tasks WHERE id = \$1`
	countsPattern        = `(?s)SELECT\s+COALESCE\(SUM`
	setStatusPattern     = `UPDATE tasks SET status = \$2, close_reason = NULLIF\(\$3, ''\) WHERE id = \$1`
	taskForUpdatePattern = `(?s)SELECT id, ngo_id,.*FROM tasks WHERE id = \$1 FOR UPDATE`
	taskGetPattern       = `(?s)SELECT id, ngo_id,.*FROM tasks WHERE id = \$1$`
	markDeletedPattern   = `UPDATE tasks SET is_deleted = TRUE WHERE id = \$1`
	updateTaskPattern    = `(?s)UPDATE tasks SET\s+title`
	insertTaskPattern    = `(?s)INSERT INTO tasks`
	insertNotifPattern   = `INSERT INTO notifications`
	engagedVolsPattern   = `SELECT volunteer_id FROM engagements WHERE task_id = \$1$`
	approvedVolsPattern  = `SELECT volunteer_id FROM engagements WHERE task_id = \$1 AND approval_status = 'approved'`
)

func defaultRules() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled: true,
		Rules: map[string]config.RateLimitRule{
			ratelimit.ActionCreateTask: {Limit: 100, WindowSeconds: 300},
			ratelimit.ActionEditTask:   {Limit: 100, WindowSeconds: 300},
			ratelimit.ActionDeleteTask: {Limit: 100, WindowSeconds: 300},
		},
	}
}

func setupServiceWithRules(t *testing.T, rules config.RateLimitConfig) (*Service, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.NewTestLogger(t)
	svc := NewService(Options{
		DB:       db,
		Notifier: notification.NewDispatcher(db, log),
		Cache:    cache.New(rdb, log),
		Limiter:  ratelimit.New(rdb, rules, log),
		Logger:   log,
	})
	return svc, mock
}

func setupService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	return setupServiceWithRules(t, defaultRules())
}

var taskColumnNames = []string{
	"id", "ngo_id", "title", "description", "location", "address",
	"start_date", "end_date", "hours", "status", "close_reason",
	"category", "required_skills", "max_volunteers",
	"contact_email", "contact_phone", "deadline",
	"urgency", "age_requirement", "physical_requirements",
	"equipment_needed", "wage_rate", "work_start_time", "work_end_time",
	"is_deleted", "created_at",
}

type taskRowOpts struct {
	id          string
	ngoID       string
	title       string
	status      string
	closeReason string
	max         interface{}
	startDate   string
	endDate     string
	hours       float64
	deleted     bool
}

func taskRows(o taskRowOpts) *sqlmock.Rows {
	if o.title == "" {
		o.title = "Beach cleanup"
	}
	if o.status == "" {
		o.status = models.TaskStatusOpen
	}
	if o.startDate == "" {
		o.startDate = "2025-03-10"
	}
	if o.endDate == "" {
		o.endDate = "2025-03-12"
	}
	if o.hours == 0 {
		o.hours = 4
	}
	return sqlmock.NewRows(taskColumnNames).AddRow(
		o.id, o.ngoID, o.title, "Pick up litter", "Chennai", "12 Marina Rd",
		o.startDate, o.endDate, o.hours, o.status, o.closeReason,
		"environment", "none", o.max,
		"ngo@example.org", "+911234567890", "",
		"medium", "18+", "light lifting",
		"gloves", 300.0, "09:00", "13:00",
		o.deleted, "2025-03-01T10:00:00Z",
	)
}

func expectSnapshot(mock sqlmock.Sqlmock, taskID string, max interface{}, approved, pending int) {
	mock.ExpectQuery(taskLimitPattern).
		WithArgs(taskID).
		WillReturnRows(sqlmock.NewRows([]string{"max_volunteers"}).AddRow(max))
	mock.ExpectQuery(countsPattern).
		WithArgs(taskID).
		WillReturnRows(sqlmock.NewRows([]string{"approved", "pending"}).AddRow(approved, pending))
}

func validEdit(taskID, ngoID string) *EditInput {
	max := 5
	wage := 300.0
	return &EditInput{
		TaskID:        taskID,
		NGOID:         ngoID,
		Title:         "Beach cleanup",
		Description:   "Pick up litter",
		Location:      "Chennai",
		Address:       "12 Marina Rd",
		StartDate:     "2025-03-10",
		EndDate:       "2025-03-12",
		Hours:         4,
		Category:      "environment",
		RequiredSkills: "none",
		MaxVolunteers: &max,
		ContactEmail:  "ngo@example.org",
		ContactPhone:  "+911234567890",
		Urgency:       "medium",
		AgeRequirement: "18+",
		PhysicalRequirements: "light lifting",
		EquipmentNeeded: "gloves",
		WageRate:      &wage,
		WorkStartTime: "09:00",
		WorkEndTime:   "13:00",
	}
}

// ==========================
// Capacity Re-Evaluation Tests
// ==========================

func TestOnEngagementChange_AutoClose(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectQuery(statusReadPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "close_reason", "is_deleted"}).
			AddRow(models.TaskStatusOpen, "", false))
	expectSnapshot(mock, "task-1", 2, 2, 0)
	mock.ExpectExec(setStatusPattern).
		WithArgs("task-1", models.TaskStatusClosed, models.CloseReasonCapacity).
		WillReturnResult(sqlmock.NewResult(0, 1))

	eval, err := svc.OnEngagementChange(context.Background(), svc.db, "task-1")
	require.NoError(t, err)
	assert.True(t, eval.AutoClosed)
	assert.False(t, eval.AutoReopened)
	assert.Equal(t, models.TaskStatusClosed, eval.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOnEngagementChange_AutoReopen(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectQuery(statusReadPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "close_reason", "is_deleted"}).
			AddRow(models.TaskStatusClosed, models.CloseReasonCapacity, false))
	expectSnapshot(mock, "task-1", 2, 1, 0)
	mock.ExpectExec(setStatusPattern).
		WithArgs("task-1", models.TaskStatusOpen, "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	eval, err := svc.OnEngagementChange(context.Background(), svc.db, "task-1")
	require.NoError(t, err)
	assert.True(t, eval.AutoReopened)
	assert.Equal(t, models.TaskStatusOpen, eval.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOnEngagementChange_ManualCloseStaysClosed(t *testing.T) {
	svc, mock := setupService(t)

	// Room has freed up, but the NGO closed this task on purpose.
	mock.ExpectQuery(statusReadPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "close_reason", "is_deleted"}).
			AddRow(models.TaskStatusClosed, models.CloseReasonManual, false))
	expectSnapshot(mock, "task-1", 5, 1, 0)

	eval, err := svc.OnEngagementChange(context.Background(), svc.db, "task-1")
	require.NoError(t, err)
	assert.False(t, eval.AutoClosed)
	assert.False(t, eval.AutoReopened)
	assert.Equal(t, models.TaskStatusClosed, eval.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOnEngagementChange_OpenWithRoomUnchanged(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectQuery(statusReadPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "close_reason", "is_deleted"}).
			AddRow(models.TaskStatusOpen, "", false))
	expectSnapshot(mock, "task-1", 5, 2, 1)

	eval, err := svc.OnEngagementChange(context.Background(), svc.db, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusOpen, eval.Status)
	assert.False(t, eval.AutoClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOnEngagementChange_DeletedTaskUntouched(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectQuery(statusReadPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "close_reason", "is_deleted"}).
			AddRow(models.TaskStatusOpen, "", true))

	eval, err := svc.OnEngagementChange(context.Background(), svc.db, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusOpen, eval.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOnEngagementChange_UnknownTask(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectQuery(statusReadPattern).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"status", "close_reason", "is_deleted"}))

	_, err := svc.OnEngagementChange(context.Background(), svc.db, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

// ==========================
// Create Tests
// ==========================

func TestCreate(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectBegin()
	mock.ExpectExec(insertTaskPattern).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	max := 5
	in := &CreateInput{
		NGOID:       "ngo-1",
		Title:       "Beach cleanup",
		Description: "Pick up litter along the marina",
		Location:    "Chennai",
		StartDate:   "2025-03-10",
		EndDate:     "2025-03-12",
		Hours:       4,
		MaxVolunteers: &max,
		ContactEmail: "ngo@example.org",
	}
	created, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.TaskStatusOpen, created.Status)
	assert.Empty(t, created.CloseReason)
	assert.False(t, created.IsDeleted)
	assert.NotEmpty(t, created.CreatedAt)
	assert.Nil(t, created.WageRate) // no estimator wired, wage stays unset
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_ValidationFailures(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(in *CreateInput)
	}{
		{
			name:   "missing title",
			mutate: func(in *CreateInput) { in.Title = "" },
		},
		{
			name:   "title too short",
			mutate: func(in *CreateInput) { in.Title = "ab" },
		},
		{
			name:   "bad date format",
			mutate: func(in *CreateInput) { in.StartDate = "10/03/2025" },
		},
		{
			name:   "zero hours",
			mutate: func(in *CreateInput) { in.Hours = 0 },
		},
		{
			name:   "hours beyond a day",
			mutate: func(in *CreateInput) { in.Hours = 25 },
		},
		{
			name: "zero volunteer limit",
			mutate: func(in *CreateInput) {
				zero := 0
				in.MaxVolunteers = &zero
			},
		},
		{
			name:   "malformed contact email",
			mutate: func(in *CreateInput) { in.ContactEmail = "not-an-email" },
		},
		{
			name: "negative wage",
			mutate: func(in *CreateInput) {
				neg := -10.0
				in.WageRate = &neg
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &CreateInput{
				NGOID:       "ngo-1",
				Title:       "Beach cleanup",
				Description: "Pick up litter",
				Location:    "Chennai",
				StartDate:   "2025-03-10",
				EndDate:     "2025-03-12",
				Hours:       4,
			}
			tt.mutate(in)

			_, err := svc.Create(ctx, in)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
		})
	}
}

func TestCreate_EndBeforeStart(t *testing.T) {
	svc, _ := setupService(t)

	in := &CreateInput{
		NGOID:       "ngo-1",
		Title:       "Beach cleanup",
		Description: "Pick up litter",
		Location:    "Chennai",
		StartDate:   "2025-03-12",
		EndDate:     "2025-03-10",
		Hours:       4,
	}
	_, err := svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
}

func TestCreate_RateLimited(t *testing.T) {
	rules := config.RateLimitConfig{
		Enabled: true,
		Rules: map[string]config.RateLimitRule{
			ratelimit.ActionCreateTask: {Limit: 1, WindowSeconds: 300},
		},
	}
	svc, mock := setupServiceWithRules(t, rules)

	mock.ExpectBegin()
	mock.ExpectExec(insertTaskPattern).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	in := &CreateInput{
		NGOID:       "ngo-1",
		Title:       "Beach cleanup",
		Description: "Pick up litter",
		Location:    "Chennai",
		StartDate:   "2025-03-10",
		EndDate:     "2025-03-12",
		Hours:       4,
	}
	_, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRateLimited))
}

// ==========================
// Edit Tests
// ==========================

func TestEdit_CriticalChangeNotifiesApprovedVolunteers(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(taskForUpdatePattern).
		WithArgs("task-1").
		WillReturnRows(taskRows(taskRowOpts{id: "task-1", ngoID: "ngo-1", max: 5}))
	mock.ExpectExec(updateTaskPattern).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(approvedVolsPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"volunteer_id"}).AddRow("vol-1").AddRow("vol-2"))
	mock.ExpectExec(insertNotifPattern).
		WithArgs(sqlmock.AnyArg(), "volunteer", "vol-1",
			"Update for 'Beach cleanup': Start date have been changed. Please check the latest details.",
			models.NotificationTaskUpdated, "task-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertNotifPattern).
		WithArgs(sqlmock.AnyArg(), "volunteer", "vol-2",
			"Update for 'Beach cleanup': Start date have been changed. Please check the latest details.",
			models.NotificationTaskUpdated, "task-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectSnapshot(mock, "task-1", 5, 2, 0)
	mock.ExpectCommit()

	in := validEdit("task-1", "ngo-1")
	in.StartDate = "2025-03-11" // critical field

	updated, changed, err := svc.Edit(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"Start date"}, changed)
	assert.Equal(t, "2025-03-11", updated.StartDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEdit_NonCriticalChangeStaysSilent(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(taskForUpdatePattern).
		WithArgs("task-1").
		WillReturnRows(taskRows(taskRowOpts{id: "task-1", ngoID: "ngo-1", max: 5}))
	mock.ExpectExec(updateTaskPattern).WillReturnResult(sqlmock.NewResult(0, 1))
	expectSnapshot(mock, "task-1", 5, 2, 0)
	mock.ExpectCommit()

	in := validEdit("task-1", "ngo-1")
	in.Title = "Marina beach cleanup" // wage and title changes notify nobody
	wage := 500.0
	in.WageRate = &wage

	_, changed, err := svc.Edit(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEdit_LoweredLimitClosesTask(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(taskForUpdatePattern).
		WithArgs("task-1").
		WillReturnRows(taskRows(taskRowOpts{id: "task-1", ngoID: "ngo-1", max: 5}))
	mock.ExpectExec(updateTaskPattern).WillReturnResult(sqlmock.NewResult(0, 1))
	// Limit change triggers the capacity re-check, which closes the task.
	mock.ExpectQuery(statusReadPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "close_reason", "is_deleted"}).
			AddRow(models.TaskStatusOpen, "", false))
	expectSnapshot(mock, "task-1", 2, 2, 0)
	mock.ExpectExec(setStatusPattern).
		WithArgs("task-1", models.TaskStatusClosed, models.CloseReasonCapacity).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectSnapshot(mock, "task-1", 2, 2, 0)
	mock.ExpectCommit()

	in := validEdit("task-1", "ngo-1")
	two := 2
	in.MaxVolunteers = &two

	updated, changed, err := svc.Edit(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, changed) // volunteer limit is not a critical field
	assert.Equal(t, models.TaskStatusClosed, updated.Status)
	assert.Equal(t, models.CloseReasonCapacity, updated.CloseReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEdit_WrongOwnerReadsAsMissing(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(taskForUpdatePattern).
		WithArgs("task-1").
		WillReturnRows(taskRows(taskRowOpts{id: "task-1", ngoID: "ngo-1", max: 5}))
	mock.ExpectRollback()

	_, _, err := svc.Edit(context.Background(), validEdit("task-1", "ngo-2"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

// ==========================
// Soft Delete Tests
// ==========================

func TestSoftDelete(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(taskForUpdatePattern).
		WithArgs("task-1").
		WillReturnRows(taskRows(taskRowOpts{id: "task-1", ngoID: "ngo-1", max: 5}))
	mock.ExpectQuery(engagedVolsPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"volunteer_id"}).
			AddRow("vol-1").AddRow("vol-2").AddRow("vol-3"))
	mock.ExpectExec(markDeletedPattern).
		WithArgs("task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, vol := range []string{"vol-1", "vol-2", "vol-3"} {
		mock.ExpectExec(insertNotifPattern).
			WithArgs(sqlmock.AnyArg(), "volunteer", vol,
				"Task 'Beach cleanup' has been deleted. Reason: Venue unavailable",
				models.NotificationTaskDeleted, "task-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	err := svc.SoftDelete(context.Background(), "task-1", "ngo-1", "Venue unavailable")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDelete_ReasonRequired(t *testing.T) {
	svc, _ := setupService(t)

	err := svc.SoftDelete(context.Background(), "task-1", "ngo-1", "   ")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
}

func TestSoftDelete_AlreadyDeleted(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(taskForUpdatePattern).
		WithArgs("task-1").
		WillReturnRows(taskRows(taskRowOpts{id: "task-1", ngoID: "ngo-1", max: 5, deleted: true}))
	mock.ExpectRollback()

	err := svc.SoftDelete(context.Background(), "task-1", "ngo-1", "cleanup")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

// ==========================
// Manual Close / Reopen Tests
// ==========================

func TestManualClose(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(taskForUpdatePattern).
		WithArgs("task-1").
		WillReturnRows(taskRows(taskRowOpts{id: "task-1", ngoID: "ngo-1", max: 5}))
	mock.ExpectExec(setStatusPattern).
		WithArgs("task-1", models.TaskStatusClosed, models.CloseReasonManual).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectSnapshot(mock, "task-1", 5, 2, 0)
	mock.ExpectCommit()

	require.NoError(t, svc.ManualClose(context.Background(), "task-1", "ngo-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManualClose_AlreadyClosed(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(taskForUpdatePattern).
		WithArgs("task-1").
		WillReturnRows(taskRows(taskRowOpts{
			id: "task-1", ngoID: "ngo-1", max: 5,
			status: models.TaskStatusClosed, closeReason: models.CloseReasonManual,
		}))
	mock.ExpectRollback()

	err := svc.ManualClose(context.Background(), "task-1", "ngo-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
}

func TestManualReopen(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(taskForUpdatePattern).
		WithArgs("task-1").
		WillReturnRows(taskRows(taskRowOpts{
			id: "task-1", ngoID: "ngo-1", max: 5,
			status: models.TaskStatusClosed, closeReason: models.CloseReasonManual,
		}))
	mock.ExpectExec(setStatusPattern).
		WithArgs("task-1", models.TaskStatusOpen, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Re-check after reopening: still has room, stays open.
	mock.ExpectQuery(statusReadPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "close_reason", "is_deleted"}).
			AddRow(models.TaskStatusOpen, "", false))
	expectSnapshot(mock, "task-1", 5, 2, 0)
	expectSnapshot(mock, "task-1", 5, 2, 0)
	mock.ExpectCommit()

	require.NoError(t, svc.ManualReopen(context.Background(), "task-1", "ngo-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManualReopen_FullTaskClosesAgain(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(taskForUpdatePattern).
		WithArgs("task-1").
		WillReturnRows(taskRows(taskRowOpts{
			id: "task-1", ngoID: "ngo-1", max: 2,
			status: models.TaskStatusClosed, closeReason: models.CloseReasonManual,
		}))
	mock.ExpectExec(setStatusPattern).
		WithArgs("task-1", models.TaskStatusOpen, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Still full, so the re-check closes it straight back, now as capacity.
	mock.ExpectQuery(statusReadPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "close_reason", "is_deleted"}).
			AddRow(models.TaskStatusOpen, "", false))
	expectSnapshot(mock, "task-1", 2, 2, 0)
	mock.ExpectExec(setStatusPattern).
		WithArgs("task-1", models.TaskStatusClosed, models.CloseReasonCapacity).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectSnapshot(mock, "task-1", 2, 2, 0)
	mock.ExpectCommit()

	require.NoError(t, svc.ManualReopen(context.Background(), "task-1", "ngo-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Read View Tests
// ==========================

func TestGet_DisplayStatusFull(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectQuery(taskGetPattern).
		WithArgs("task-1").
		WillReturnRows(taskRows(taskRowOpts{id: "task-1", ngoID: "ngo-1", max: 2}))
	expectSnapshot(mock, "task-1", 2, 2, 1)

	view, err := svc.Get(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "full", view.DisplayStatus)
	assert.Equal(t, 2, view.ApprovedCount)
	assert.Equal(t, 1, view.PendingCount)
}

func TestGet_DeletedTaskNotFound(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectQuery(taskGetPattern).
		WithArgs("task-1").
		WillReturnRows(taskRows(taskRowOpts{id: "task-1", ngoID: "ngo-1", max: 2, deleted: true}))

	_, err := svc.Get(context.Background(), "task-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestListByNGO_SecondCallServedFromCache(t *testing.T) {
	svc, mock := setupService(t)
	ctx := context.Background()

	mock.ExpectQuery(`(?s)SELECT id, ngo_id,.*FROM tasks WHERE ngo_id = \$1 AND is_deleted = FALSE`).
		WithArgs("ngo-1").
		WillReturnRows(taskRows(taskRowOpts{id: "task-1", ngoID: "ngo-1", max: 2}))
	mock.ExpectQuery(`SELECT id, max_volunteers FROM tasks WHERE id = ANY\(\$1\)`).
		WithArgs(pq.Array([]string{"task-1"})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "max_volunteers"}).AddRow("task-1", 2))
	mock.ExpectQuery(`(?s)SELECT task_id,\s+SUM`).
		WithArgs(pq.Array([]string{"task-1"})).
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "approved", "pending"}).AddRow("task-1", 2, 0))

	first, err := svc.ListByNGO(ctx, "ngo-1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "full", first[0].DisplayStatus)
	assert.NoError(t, mock.ExpectationsWereMet())

	// No further DB expectations: this must come from the cache.
	second, err := svc.ListByNGO(ctx, "ngo-1")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestListAvailable_FiltersFullTasks(t *testing.T) {
	svc, mock := setupService(t)
	svc.now = func() time.Time { return time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC) }

	rows := taskRows(taskRowOpts{id: "task-1", ngoID: "ngo-1", max: 2}).
		AddRow(
			"task-2", "ngo-1", "Tree planting", "Plant saplings", "Chennai", "Park Ave",
			"2025-03-15", "2025-03-16", 3.0, models.TaskStatusOpen, "",
			"environment", "none", 1,
			"ngo@example.org", "+911234567890", "",
			"low", "", "",
			"", nil, "", "",
			false, "2025-03-02T10:00:00Z",
		)
	mock.ExpectQuery(`(?s)SELECT id, ngo_id,.*FROM tasks t\s+WHERE t.is_deleted = FALSE`).
		WithArgs("vol-1", "2025-03-05").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT id, max_volunteers FROM tasks WHERE id = ANY\(\$1\)`).
		WithArgs(pq.Array([]string{"task-1", "task-2"})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "max_volunteers"}).
			AddRow("task-1", 2).AddRow("task-2", 1))
	mock.ExpectQuery(`(?s)SELECT task_id,\s+SUM`).
		WithArgs(pq.Array([]string{"task-1", "task-2"})).
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "approved", "pending"}).
			AddRow("task-2", 1, 0))

	available, err := svc.ListAvailable(context.Background(), "vol-1")
	require.NoError(t, err)

	// task-2 is at its limit, so only task-1 is offered.
	require.Len(t, available, 1)
	assert.Equal(t, "task-1", available[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

