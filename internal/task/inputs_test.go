// internal/task/inputs_test.go
package task

import (
	"testing"

	"engagement-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCreate() *CreateInput {
	return &CreateInput{
		NGOID:       "ngo-1",
		Title:       "Beach cleanup",
		Description: "Pick up litter along the marina",
		Location:    "Chennai",
		StartDate:   "2025-03-10",
		EndDate:     "2025-03-12",
		Hours:       4,
	}
}

func TestCreateInputValidate(t *testing.T) {
	require.NoError(t, validCreate().Validate())
}

func TestCreateInputValidate_OptionalFields(t *testing.T) {
	in := validCreate()
	max := 5
	wage := 0.0
	in.MaxVolunteers = &max
	in.WageRate = &wage // zero wage is allowed, negative is not
	in.ContactEmail = "contact@example.org"
	in.ContactPhone = "+911234567890"
	require.NoError(t, in.Validate())
}

func TestCreateInputValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CreateInput)
	}{
		{"missing ngo", func(in *CreateInput) { in.NGOID = "" }},
		{"missing title", func(in *CreateInput) { in.Title = "" }},
		{"short title", func(in *CreateInput) { in.Title = "ab" }},
		{"missing description", func(in *CreateInput) { in.Description = "" }},
		{"missing location", func(in *CreateInput) { in.Location = "" }},
		{"missing start date", func(in *CreateInput) { in.StartDate = "" }},
		{"wrong date layout", func(in *CreateInput) { in.StartDate = "10-03-2025" }},
		{"date with time", func(in *CreateInput) { in.EndDate = "2025-03-12T10:00:00Z" }},
		{"zero hours", func(in *CreateInput) { in.Hours = 0 }},
		{"fractional below minimum", func(in *CreateInput) { in.Hours = 0.25 }},
		{"hours beyond a day", func(in *CreateInput) { in.Hours = 24.5 }},
		{"zero volunteer limit", func(in *CreateInput) { zero := 0; in.MaxVolunteers = &zero }},
		{"negative wage", func(in *CreateInput) { neg := -1.0; in.WageRate = &neg }},
		{"bad email", func(in *CreateInput) { in.ContactEmail = "not-an-email" }},
		{"phone too long", func(in *CreateInput) { in.ContactPhone = "123456789012345678901" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validCreate()
			tt.mutate(in)
			assert.Error(t, in.Validate())
		})
	}
}

func TestEditInputValidate(t *testing.T) {
	in := validEdit("task-1", "ngo-1")
	require.NoError(t, in.Validate())

	in.TaskID = ""
	assert.Error(t, in.Validate())

	in = validEdit("task-1", "")
	assert.Error(t, in.Validate())
}

func TestHumanizeField(t *testing.T) {
	assert.Equal(t, "Start date", HumanizeField("start_date"))
	assert.Equal(t, "End date", HumanizeField("end_date"))
	assert.Equal(t, "Physical requirements", HumanizeField("physical_requirements"))
	assert.Equal(t, "Hours", HumanizeField("hours"))
	assert.Equal(t, "", HumanizeField(""))
}

func TestCriticalFieldChanges(t *testing.T) {
	old := &models.Task{
		StartDate: "2025-03-10", EndDate: "2025-03-12", Hours: 4,
		Location: "Chennai", Urgency: "medium", Title: "Beach cleanup",
	}
	next := *old
	next.StartDate = "2025-03-11"
	next.Location = "Madurai"
	next.Title = "Renamed"

	// Title is not on the critical list, names come back in list order.
	changed := criticalFieldChanges(old, &next)
	assert.Equal(t, []string{"Start date", "Location"}, changed)
}

func TestCriticalFieldChanges_WageTitleLimitIgnored(t *testing.T) {
	wage := 300.0
	max := 5
	old := &models.Task{Title: "Beach cleanup", WageRate: &wage, MaxVolunteers: &max}
	next := *old
	next.Title = "Marina beach cleanup"
	newWage := 500.0
	newMax := 10
	next.WageRate = &newWage
	next.MaxVolunteers = &newMax

	assert.Empty(t, criticalFieldChanges(old, &next))
}

func TestCriticalFieldChanges_HoursFormatting(t *testing.T) {
	old := &models.Task{Hours: 4}
	next := &models.Task{Hours: 4.5}
	assert.Equal(t, []string{"Hours"}, criticalFieldChanges(old, next))

	same := &models.Task{Hours: 4.0}
	assert.Empty(t, criticalFieldChanges(old, same))
}

func TestApplyEdit(t *testing.T) {
	max := 5
	wage := 300.0
	current := &models.Task{
		ID:          "task-1",
		NGOID:       "ngo-1",
		Title:       "Beach cleanup",
		Status:      models.TaskStatusClosed,
		CloseReason: models.CloseReasonManual,
		IsDeleted:   false,
		CreatedAt:   "2025-03-01T10:00:00Z",
	}
	in := validEdit("task-1", "ngo-1")
	in.Title = "Marina beach cleanup"
	in.MaxVolunteers = &max
	in.WageRate = &wage

	next := applyEdit(current, in)

	assert.Equal(t, "Marina beach cleanup", next.Title)
	assert.Equal(t, &max, next.MaxVolunteers)
	assert.Equal(t, &wage, next.WageRate)

	// Identity and lifecycle state survive the edit untouched.
	assert.Equal(t, "task-1", next.ID)
	assert.Equal(t, "ngo-1", next.NGOID)
	assert.Equal(t, models.TaskStatusClosed, next.Status)
	assert.Equal(t, models.CloseReasonManual, next.CloseReason)
	assert.Equal(t, "2025-03-01T10:00:00Z", next.CreatedAt)

	// The stored row itself is untouched.
	assert.Equal(t, "Beach cleanup", current.Title)
}
