// internal/workers/engagement/remove-volunteer/handler_test.go
package removevolunteer

import (
	"context"
	"testing"
	"time"

	"engagement-workers/internal/cache"
	"engagement-workers/internal/common/config"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/common/logger"
	"engagement-workers/internal/engagement"
	"engagement-workers/internal/models"
	"engagement-workers/internal/notification"
	"engagement-workers/internal/ratelimit"
	"engagement-workers/internal/task"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const (
	engForUpdatePattern = `(?s)SELECT id, task_id, volunteer_id,.*FROM engagements WHERE id = \$1 FOR UPDATE`
	lockTaskPattern     = `(?s)SELECT id, ngo_id, title, start_date, end_date, hours, status,\s+wage_rate, max_volunteers, is_deleted\s+FROM tasks WHERE id = \$1 FOR UPDATE`
	deleteEngPattern    = `DELETE FROM engagements WHERE id = \$1`
	recomputePattern    = `(?s)UPDATE volunteers SET total_value_generated = \(`
	statusReadPattern   = `SELECT status, COALESCE\(close_reason, ''\), is_deleted FROM tasks WHERE id = \$1`
	taskLimitPattern    = `SELECT max_volunteers FROM tasks WHERE id = \$1`
	countsPattern       = `(?s)SELECT\s+COALESCE\(SUM`
	setStatusPattern    = `UPDATE tasks SET status = \$2, close_reason = NULLIF\(\$3, ''\) WHERE id = \$1`
)

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func createTestInput() *Input {
	return &Input{EngagementID: "eng-1", NGOID: "ngo-1"}
}

func createTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.NewTestLogger(t)
	notifier := notification.NewDispatcher(db, log)
	store := cache.New(rdb, log)
	limiter := ratelimit.New(rdb, config.RateLimitConfig{Enabled: true}, log)

	tasks := task.NewService(task.Options{
		DB:       db,
		Notifier: notifier,
		Cache:    store,
		Limiter:  limiter,
		Logger:   log,
	})
	svc := engagement.NewService(engagement.Options{
		DB:       db,
		Tasks:    tasks,
		Notifier: notifier,
		Cache:    store,
		Limiter:  limiter,
		Logger:   log,
	})

	return NewHandler(createTestConfig(), svc, log), mock
}

func engRow(approval string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "task_id", "volunteer_id",
		"availability_date", "availability_time",
		"hours_committed", "contact_email",
		"contact_phone", "additional_notes",
		"approval_status", "completion_status", "completion_note",
		"monetisation_value", "certificate_sent", "created_at",
	}).AddRow(
		"eng-1", "task-1", "vol-1",
		"2025-03-10", "",
		4.0, "vol@example.org",
		"+911234567890", "I have relevant experience",
		approval, models.CompletionAccepted, "",
		0.0, false, "2025-03-02T09:00:00Z",
	)
}

func taskRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "ngo_id", "title", "start_date", "end_date", "hours", "status",
		"wage_rate", "max_volunteers", "is_deleted",
	}).AddRow("task-1", "ngo-1", "Beach cleanup", "2025-03-10", "2025-03-12", 4.0,
		status, nil, 1, false)
}

// ==========================
// Core Functionality Tests
// ==========================

func TestExecute(t *testing.T) {
	h, mock := createTestHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(engForUpdatePattern).
		WithArgs("eng-1").
		WillReturnRows(engRow(models.ApprovalApproved))
	mock.ExpectQuery(lockTaskPattern).
		WithArgs("task-1").
		WillReturnRows(taskRow(models.TaskStatusOpen))
	mock.ExpectExec(deleteEngPattern).
		WithArgs("eng-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(recomputePattern).
		WithArgs("vol-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(statusReadPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "close_reason", "is_deleted"}).
			AddRow(models.TaskStatusOpen, "", false))
	mock.ExpectQuery(taskLimitPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_volunteers"}).AddRow(1))
	mock.ExpectQuery(countsPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"approved", "pending"}).AddRow(0, 0))
	mock.ExpectCommit()

	output, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)

	assert.Equal(t, "eng-1", output.EngagementID)
	assert.True(t, output.Removed)
	assert.NotEmpty(t, output.RemovedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteFreesSeatAndReopens(t *testing.T) {
	h, mock := createTestHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(engForUpdatePattern).
		WithArgs("eng-1").
		WillReturnRows(engRow(models.ApprovalApproved))
	mock.ExpectQuery(lockTaskPattern).
		WithArgs("task-1").
		WillReturnRows(taskRow(models.TaskStatusClosed))
	mock.ExpectExec(deleteEngPattern).
		WithArgs("eng-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(recomputePattern).
		WithArgs("vol-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(statusReadPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "close_reason", "is_deleted"}).
			AddRow(models.TaskStatusClosed, models.CloseReasonCapacity, false))
	mock.ExpectQuery(taskLimitPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_volunteers"}).AddRow(1))
	mock.ExpectQuery(countsPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"approved", "pending"}).AddRow(0, 0))
	mock.ExpectExec(setStatusPattern).
		WithArgs("task-1", models.TaskStatusOpen, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	output, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.True(t, output.Removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Edge Cases
// ==========================

func TestExecutePendingApplication(t *testing.T) {
	h, mock := createTestHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(engForUpdatePattern).
		WithArgs("eng-1").
		WillReturnRows(engRow(models.ApprovalPending))
	mock.ExpectQuery(lockTaskPattern).
		WithArgs("task-1").
		WillReturnRows(taskRow(models.TaskStatusOpen))
	mock.ExpectRollback()

	_, err := h.Execute(context.Background(), createTestInput())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}
