// internal/capacity/tracker_test.go
package capacity

import (
	"context"
	stderrors "errors"
	"testing"

	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func intPtr(v int) *int {
	return &v
}

const (
	approvedCountPattern = `SELECT COUNT\(\*\)\s+FROM engagements\s+WHERE task_id = \$1\s+AND approval_status = 'approved'`
	pendingCountPattern  = `SELECT COUNT\(\*\)\s+FROM engagements\s+WHERE task_id = \$1\s+AND approval_status = 'pending'`
	taskLimitPattern     = `SELECT max_volunteers FROM tasks WHERE id = \$1`
	countsPattern        = `SELECT\s+COALESCE\(SUM`
)

// ==========================
// Derivation Tests
// ==========================

func TestOccupancy_Room(t *testing.T) {
	tests := []struct {
		name     string
		approved int
		max      *int
		isFull   bool
	}{
		{
			name:     "unlimited task never fills",
			approved: 500,
			max:      nil,
			isFull:   false,
		},
		{
			name:     "below the limit",
			approved: 2,
			max:      intPtr(3),
			isFull:   false,
		},
		{
			name:     "at the limit",
			approved: 3,
			max:      intPtr(3),
			isFull:   true,
		},
		{
			name:     "over the limit after an edit lowered it",
			approved: 5,
			max:      intPtr(3),
			isFull:   true,
		},
		{
			name:     "empty task with room",
			approved: 0,
			max:      intPtr(1),
			isFull:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ := Occupancy{ApprovedCount: tt.approved, MaxVolunteers: tt.max}
			assert.Equal(t, tt.isFull, occ.IsFull())
			assert.Equal(t, !tt.isFull, occ.HasRoom())
		})
	}
}

func TestOccupancy_DisplayStatus(t *testing.T) {
	tests := []struct {
		name         string
		stored       string
		approved     int
		max          *int
		wantedStatus string
	}{
		{
			name:         "open task with room shows open",
			stored:       models.TaskStatusOpen,
			approved:     1,
			max:          intPtr(3),
			wantedStatus: models.TaskStatusOpen,
		},
		{
			name:         "open task at capacity shows full",
			stored:       models.TaskStatusOpen,
			approved:     3,
			max:          intPtr(3),
			wantedStatus: DisplayFull,
		},
		{
			name:         "closed task stays closed even at capacity",
			stored:       models.TaskStatusClosed,
			approved:     3,
			max:          intPtr(3),
			wantedStatus: models.TaskStatusClosed,
		},
		{
			name:         "unlimited open task shows open",
			stored:       models.TaskStatusOpen,
			approved:     100,
			max:          nil,
			wantedStatus: models.TaskStatusOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ := Occupancy{ApprovedCount: tt.approved, MaxVolunteers: tt.max}
			assert.Equal(t, tt.wantedStatus, occ.DisplayStatus(tt.stored))
		})
	}
}

// ==========================
// Query Tests
// ==========================

func TestApprovedCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(approvedCountPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := ApprovedCount(context.Background(), db, "task-1")
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovedCount_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(approvedCountPattern).
		WithArgs("task-1").
		WillReturnError(stderrors.New("connection reset"))

	_, err = ApprovedCount(context.Background(), db, "task-1")
	assert.Error(t, err)
}

func TestPendingCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(pendingCountPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := PendingCount(context.Background(), db, "task-1")
	assert.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(taskLimitPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_volunteers"}).AddRow(5))
	mock.ExpectQuery(countsPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"approved", "pending"}).AddRow(3, 2))

	occ, err := Snapshot(context.Background(), db, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "task-1", occ.TaskID)
	assert.Equal(t, 3, occ.ApprovedCount)
	assert.Equal(t, 2, occ.PendingCount)
	require.NotNil(t, occ.MaxVolunteers)
	assert.Equal(t, 5, *occ.MaxVolunteers)
	assert.False(t, occ.IsFull())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshot_UnlimitedTask(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(taskLimitPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_volunteers"}).AddRow(nil))
	mock.ExpectQuery(countsPattern).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"approved", "pending"}).AddRow(42, 0))

	occ, err := Snapshot(context.Background(), db, "task-1")
	require.NoError(t, err)
	assert.Nil(t, occ.MaxVolunteers)
	assert.True(t, occ.HasRoom())
}

func TestSnapshot_TaskNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(taskLimitPattern).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"max_volunteers"}))

	_, err = Snapshot(context.Background(), db, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestHasRoom(t *testing.T) {
	tests := []struct {
		name     string
		max      interface{}
		approved int
		hasRoom  bool
	}{
		{
			name:     "room left",
			max:      3,
			approved: 2,
			hasRoom:  true,
		},
		{
			name:     "at capacity",
			max:      3,
			approved: 3,
			hasRoom:  false,
		},
		{
			name:     "no limit",
			max:      nil,
			approved: 10,
			hasRoom:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectQuery(taskLimitPattern).
				WithArgs("task-1").
				WillReturnRows(sqlmock.NewRows([]string{"max_volunteers"}).AddRow(tt.max))
			mock.ExpectQuery(countsPattern).
				WithArgs("task-1").
				WillReturnRows(sqlmock.NewRows([]string{"approved", "pending"}).AddRow(tt.approved, 0))

			hasRoom, err := HasRoom(context.Background(), db, "task-1")
			require.NoError(t, err)
			assert.Equal(t, tt.hasRoom, hasRoom)

			isFullDB, mockFull, err := sqlmock.New()
			require.NoError(t, err)
			defer isFullDB.Close()

			mockFull.ExpectQuery(taskLimitPattern).
				WithArgs("task-1").
				WillReturnRows(sqlmock.NewRows([]string{"max_volunteers"}).AddRow(tt.max))
			mockFull.ExpectQuery(countsPattern).
				WithArgs("task-1").
				WillReturnRows(sqlmock.NewRows([]string{"approved", "pending"}).AddRow(tt.approved, 0))

			isFull, err := IsFull(context.Background(), isFullDB, "task-1")
			require.NoError(t, err)
			assert.Equal(t, !tt.hasRoom, isFull)
		})
	}
}

func TestSnapshotMany(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ids := []string{"task-1", "task-2"}

	mock.ExpectQuery(`SELECT id, max_volunteers FROM tasks WHERE id = ANY\(\$1\)`).
		WithArgs(pq.Array(ids)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "max_volunteers"}).
			AddRow("task-1", 3).
			AddRow("task-2", nil))
	mock.ExpectQuery(`SELECT task_id,\s+SUM`).
		WithArgs(pq.Array(ids)).
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "approved", "pending"}).
			AddRow("task-1", 3, 1))

	result, err := SnapshotMany(context.Background(), db, ids)
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, 3, result["task-1"].ApprovedCount)
	assert.Equal(t, 1, result["task-1"].PendingCount)
	assert.True(t, result["task-1"].IsFull())

	// task-2 had no engagement rows at all
	assert.Equal(t, 0, result["task-2"].ApprovedCount)
	assert.True(t, result["task-2"].HasRoom())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotMany_Empty(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	result, err := SnapshotMany(context.Background(), db, nil)
	require.NoError(t, err)
	assert.Empty(t, result)
}
