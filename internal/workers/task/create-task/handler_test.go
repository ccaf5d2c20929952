// internal/workers/task/create-task/handler_test.go
package createtask

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

const insertTaskPattern = `(?s)INSERT INTO tasks \(`

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func createTestInput() *Input {
	wage := 250.0
	max := 5
	return &Input{
		NGOID:         "ngo-1",
		Title:         "Weekend tree planting",
		Description:   "Plant saplings along the riverside walkway.",
		Location:      "Pune",
		StartDate:     "2026-09-01",
		EndDate:       "2026-09-03",
		Hours:         4,
		Category:      "environment",
		WageRate:      &wage,
		MaxVolunteers: &max,
	}
}

func createTestHandler(t *testing.T, limit int) (*Handler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.NewTestLogger(t)
	limiter := ratelimit.New(rdb, config.RateLimitConfig{
		Enabled: true,
		Rules: map[string]config.RateLimitRule{
			ratelimit.ActionCreateTask: {Limit: limit, WindowSeconds: 300},
		},
	}, log)

	svc := task.NewService(task.Options{
		DB:       db,
		Notifier: notification.NewDispatcher(db, log),
		Cache:    cache.New(rdb, log),
		Limiter:  limiter,
		Logger:   log,
	})

	return NewHandler(createTestConfig(), svc, log), mock
}

// ==========================
// Core Functionality Tests
// ==========================

func TestExecute(t *testing.T) {
	h, mock := createTestHandler(t, 10)

	mock.ExpectBegin()
	mock.ExpectExec(insertTaskPattern).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	output, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)

	assert.NotEmpty(t, output.TaskID)
	assert.Equal(t, models.TaskStatusOpen, output.Status)
	assert.NotEmpty(t, output.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteWithoutWage(t *testing.T) {
	h, mock := createTestHandler(t, 10)

	mock.ExpectBegin()
	mock.ExpectExec(insertTaskPattern).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// No estimator is wired, so the task is simply stored without a wage.
	input := createTestInput()
	input.WageRate = nil

	output, err := h.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusOpen, output.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Edge Cases
// ==========================

func TestExecuteInvalidInput(t *testing.T) {
	h, mock := createTestHandler(t, 10)

	input := createTestInput()
	input.Title = ""

	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteEndBeforeStart(t *testing.T) {
	h, mock := createTestHandler(t, 10)

	input := createTestInput()
	input.StartDate = "2026-09-03"
	input.EndDate = "2026-09-01"

	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRateLimited(t *testing.T) {
	h, mock := createTestHandler(t, 1)

	mock.ExpectBegin()
	mock.ExpectExec(insertTaskPattern).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)

	// The second create inside the window never reaches storage.
	_, err = h.Execute(context.Background(), createTestInput())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRateLimited))
	assert.NoError(t, mock.ExpectationsWereMet())
}
