// internal/models/task.go
package models

// DateLayout is the calendar-date format used across task and engagement rows.
const DateLayout = "2006-01-02"

// Task status values. "full" is never stored; it is derived from capacity.
const (
	TaskStatusOpen   = "open"
	TaskStatusClosed = "closed"
)

// Reasons a task can be closed. Capacity closures are reversible, manual ones are not.
const (
	CloseReasonCapacity = "capacity"
	CloseReasonManual   = "manual"
)

type Task struct {
	ID                   string   `json:"id"`
	NGOID                string   `json:"ngoId"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Location             string   `json:"location"`
	Address              string   `json:"address,omitempty"`
	StartDate            string   `json:"startDate"` // DateLayout
	EndDate              string   `json:"endDate"`   // DateLayout
	Hours                float64  `json:"hours"`     // hours per day
	Status               string   `json:"status"`    // "open" or "closed"
	CloseReason          string   `json:"closeReason,omitempty"`
	Category             string   `json:"category,omitempty"`
	RequiredSkills       string   `json:"requiredSkills,omitempty"`
	MaxVolunteers        *int     `json:"maxVolunteers,omitempty"` // nil = unlimited
	ContactEmail         string   `json:"contactEmail,omitempty"`
	ContactPhone         string   `json:"contactPhone,omitempty"`
	Deadline             string   `json:"deadline,omitempty"`
	Urgency              string   `json:"urgency,omitempty"`
	AgeRequirement       string   `json:"ageRequirement,omitempty"`
	PhysicalRequirements string   `json:"physicalRequirements,omitempty"`
	EquipmentNeeded      string   `json:"equipmentNeeded,omitempty"`
	WageRate             *float64 `json:"wageRate,omitempty"` // currency per hour, nil = not set
	WorkStartTime        string   `json:"workStartTime,omitempty"`
	WorkEndTime          string   `json:"workEndTime,omitempty"`
	IsDeleted            bool     `json:"isDeleted"`
	CreatedAt            string   `json:"createdAt"`
}

// TaskView is a Task plus the derived display fields the dashboards render.
type TaskView struct {
	Task
	ApprovedCount int    `json:"approvedCount"`
	PendingCount  int    `json:"pendingCount"`
	DisplayStatus string `json:"displayStatus"` // "open", "full", or "closed"
}
