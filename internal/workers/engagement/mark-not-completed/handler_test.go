// internal/workers/engagement/mark-not-completed/handler_test.go
package marknotcompleted

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
	engForUpdatePattern  = `(?s)SELECT id, task_id, volunteer_id,.*FROM engagements WHERE id = \$1 FOR UPDATE`
	lockTaskPattern      = `(?s)SELECT id, ngo_id, title, start_date, end_date, hours, status,\s+wage_rate, max_volunteers, is_deleted\s+FROM tasks WHERE id = \$1 FOR UPDATE`
	setCompletionPattern = `UPDATE engagements SET completion_status = \$2, completion_note = NULLIF\(\$3, ''\), monetisation_value = \$4 WHERE id = \$1`
	recomputePattern     = `(?s)UPDATE volunteers SET total_value_generated = \(`
	statusReadPattern    = `SELECT status, COALESCE\(close_reason, ''\), is_deleted FROM tasks WHERE id = \$1`
	taskLimitPattern     = `SELECT max_volunteers FROM tasks WHERE id = \$1`
	countsPattern        = `(?s)SELECT\s+COALESCE\(SUM`
)

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func createTestInput() *Input {
	return &Input{
		EngagementID:   "eng-1",
		NGOID:          "ngo-1",
		CompletionNote: "Volunteer never arrived on site",
	}
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

func engRow(approval, completion string) *sqlmock.Rows {
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
		approval, completion, "",
		0.0, false, "2025-03-02T09:00:00Z",
	)
}

func taskRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "ngo_id", "title", "start_date", "end_date", "hours", "status",
		"wage_rate", "max_volunteers", "is_deleted",
	}).AddRow("task-1", "ngo-1", "Beach cleanup", "2025-03-10", "2025-03-12", 4.0,
		models.TaskStatusOpen, nil, 3, false)
}

// ==========================
// Core Functionality Tests
// ==========================

func TestExecute(t *testing.T) {
	h, mock := createTestHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(engForUpdatePattern).
		WithArgs("eng-1").
		WillReturnRows(engRow(models.ApprovalApproved, models.CompletionAccepted))
	mock.ExpectQuery(lockTaskPattern).
		WithArgs("task-1").
		WillReturnRows(taskRow())
	mock.ExpectExec(setCompletionPattern).
		WithArgs("eng-1", models.CompletionNotCompleted, "Volunteer never arrived on site", 0.0).
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
		WillReturnRows(sqlmock.NewRows([]string{"max_volunteers"}).AddRow(3))
	mock.ExpectQuery(countsPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"approved", "pending"}).AddRow(0, 0))
	mock.ExpectCommit()

	output, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)

	assert.Equal(t, "eng-1", output.EngagementID)
	assert.Equal(t, models.CompletionNotCompleted, output.CompletionStatus)
	assert.NotEmpty(t, output.ReviewedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Edge Cases
// ==========================

func TestExecuteMissingNote(t *testing.T) {
	h, mock := createTestHandler(t)

	input := createTestInput()
	input.CompletionNote = "   "

	// The note check happens before any storage work.
	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteAlreadyReviewed(t *testing.T) {
	h, mock := createTestHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(engForUpdatePattern).
		WithArgs("eng-1").
		WillReturnRows(engRow(models.ApprovalApproved, models.CompletionCompleted))
	mock.ExpectQuery(lockTaskPattern).
		WithArgs("task-1").
		WillReturnRows(taskRow())
	mock.ExpectRollback()

	_, err := h.Execute(context.Background(), createTestInput())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutePendingApplication(t *testing.T) {
	h, mock := createTestHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(engForUpdatePattern).
		WithArgs("eng-1").
		WillReturnRows(engRow(models.ApprovalPending, models.CompletionAccepted))
	mock.ExpectQuery(lockTaskPattern).
		WithArgs("task-1").
		WillReturnRows(taskRow())
	mock.ExpectRollback()

	_, err := h.Execute(context.Background(), createTestInput())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}
