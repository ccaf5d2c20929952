// internal/models/roster.go
package models

// RosterEntry is one engagement joined with the volunteer's profile, the
// shape the NGO dashboard lists applicants in. TaskTitle and TaskCategory
// are filled only by the NGO-wide listing.
type RosterEntry struct {
	Engagement
	VolunteerName   string `json:"volunteerName"`
	VolunteerEmail  string `json:"volunteerEmail"`
	VolunteerCity   string `json:"volunteerCity,omitempty"`
	VolunteerSkills string `json:"volunteerSkills,omitempty"`
	TaskTitle       string `json:"taskTitle,omitempty"`
	TaskCategory    string `json:"taskCategory,omitempty"`
}

// Roster splits a task's applicants by the NGO's decision. Rejected
// applications are kept out of both lists.
type Roster struct {
	Approved []RosterEntry `json:"approved"`
	Pending  []RosterEntry `json:"pending"`
}

// EngagementView is one engagement joined with its task and NGO, the shape
// the volunteer's own dashboard renders.
type EngagementView struct {
	Engagement
	TaskTitle                string   `json:"taskTitle"`
	TaskDescription          string   `json:"taskDescription"`
	TaskLocation             string   `json:"taskLocation"`
	TaskAddress              string   `json:"taskAddress,omitempty"`
	TaskStartDate            string   `json:"taskStartDate"`
	TaskEndDate              string   `json:"taskEndDate"`
	TaskHours                float64  `json:"taskHours"`
	TaskCategory             string   `json:"taskCategory,omitempty"`
	TaskUrgency              string   `json:"taskUrgency,omitempty"`
	TaskAgeRequirement       string   `json:"taskAgeRequirement,omitempty"`
	TaskPhysicalRequirements string   `json:"taskPhysicalRequirements,omitempty"`
	TaskEquipmentNeeded      string   `json:"taskEquipmentNeeded,omitempty"`
	TaskWageRate             *float64 `json:"taskWageRate,omitempty"`
	TaskStatus               string   `json:"taskStatus"`
	TaskIsDeleted            bool     `json:"taskIsDeleted"`
	NGOName                  string   `json:"ngoName"`
	NGOEmail                 string   `json:"ngoEmail"`
	NGOPhone                 string   `json:"ngoPhone,omitempty"`
}
