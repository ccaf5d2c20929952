// internal/task/inputs.go
package task

import (
	stderrors "errors"
	"strconv"
	"strings"

	"engagement-workers/internal/models"

	"github.com/asaskevich/govalidator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CreateInput is a task draft from the NGO dashboard.
type CreateInput struct {
	NGOID                string   `json:"ngoId"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Location             string   `json:"location"`
	Address              string   `json:"address"`
	StartDate            string   `json:"startDate"`
	EndDate              string   `json:"endDate"`
	Hours                float64  `json:"hours"`
	Category             string   `json:"category"`
	RequiredSkills       string   `json:"requiredSkills"`
	MaxVolunteers        *int     `json:"maxVolunteers"`
	ContactEmail         string   `json:"contactEmail"`
	ContactPhone         string   `json:"contactPhone"`
	Deadline             string   `json:"deadline"`
	Urgency              string   `json:"urgency"`
	AgeRequirement       string   `json:"ageRequirement"`
	PhysicalRequirements string   `json:"physicalRequirements"`
	EquipmentNeeded      string   `json:"equipmentNeeded"`
	WageRate             *float64 `json:"wageRate"`
	WorkStartTime        string   `json:"workStartTime"`
	WorkEndTime          string   `json:"workEndTime"`
}

func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.NGOID, validation.Required),
		validation.Field(&in.Title, validation.Required, validation.Length(3, 200)),
		validation.Field(&in.Description, validation.Required),
		validation.Field(&in.Location, validation.Required),
		validation.Field(&in.StartDate, validation.Required, validation.Date(models.DateLayout)),
		validation.Field(&in.EndDate, validation.Required, validation.Date(models.DateLayout)),
		validation.Field(&in.Hours, validation.Required, validation.Min(0.5), validation.Max(24.0)),
		validation.Field(&in.MaxVolunteers, validation.Min(1)),
		validation.Field(&in.WageRate, validation.Min(0.0)),
		validation.Field(&in.ContactEmail, validation.By(optionalEmail)),
		validation.Field(&in.ContactPhone, validation.Length(0, 20)),
	)
}

// EditInput replaces a task's editable fields wholesale, the way the edit
// form posts them. Status, close reason and the deleted flag are never
// editable here.
type EditInput struct {
	TaskID               string   `json:"taskId"`
	NGOID                string   `json:"ngoId"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Location             string   `json:"location"`
	Address              string   `json:"address"`
	StartDate            string   `json:"startDate"`
	EndDate              string   `json:"endDate"`
	Hours                float64  `json:"hours"`
	Category             string   `json:"category"`
	RequiredSkills       string   `json:"requiredSkills"`
	MaxVolunteers        *int     `json:"maxVolunteers"`
	ContactEmail         string   `json:"contactEmail"`
	ContactPhone         string   `json:"contactPhone"`
	Deadline             string   `json:"deadline"`
	Urgency              string   `json:"urgency"`
	AgeRequirement       string   `json:"ageRequirement"`
	PhysicalRequirements string   `json:"physicalRequirements"`
	EquipmentNeeded      string   `json:"equipmentNeeded"`
	WageRate             *float64 `json:"wageRate"`
	WorkStartTime        string   `json:"workStartTime"`
	WorkEndTime          string   `json:"workEndTime"`
}

func (in EditInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.TaskID, validation.Required),
		validation.Field(&in.NGOID, validation.Required),
		validation.Field(&in.Title, validation.Required, validation.Length(3, 200)),
		validation.Field(&in.Description, validation.Required),
		validation.Field(&in.Location, validation.Required),
		validation.Field(&in.StartDate, validation.Required, validation.Date(models.DateLayout)),
		validation.Field(&in.EndDate, validation.Required, validation.Date(models.DateLayout)),
		validation.Field(&in.Hours, validation.Required, validation.Min(0.5), validation.Max(24.0)),
		validation.Field(&in.MaxVolunteers, validation.Min(1)),
		validation.Field(&in.WageRate, validation.Min(0.0)),
		validation.Field(&in.ContactEmail, validation.By(optionalEmail)),
		validation.Field(&in.ContactPhone, validation.Length(0, 20)),
	)
}

func optionalEmail(v interface{}) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if !govalidator.IsEmail(s) {
		return stderrors.New("must be a valid email address")
	}
	return nil
}

// Fields whose change volunteers must hear about, in notification order.
// Wage, title and the volunteer limit are deliberately absent.
var criticalFields = []struct {
	name string
	get  func(*models.Task) string
}{
	{"start_date", func(t *models.Task) string { return t.StartDate }},
	{"end_date", func(t *models.Task) string { return t.EndDate }},
	{"hours", func(t *models.Task) string { return strconv.FormatFloat(t.Hours, 'f', -1, 64) }},
	{"location", func(t *models.Task) string { return t.Location }},
	{"address", func(t *models.Task) string { return t.Address }},
	{"contact_email", func(t *models.Task) string { return t.ContactEmail }},
	{"contact_phone", func(t *models.Task) string { return t.ContactPhone }},
	{"urgency", func(t *models.Task) string { return t.Urgency }},
	{"physical_requirements", func(t *models.Task) string { return t.PhysicalRequirements }},
	{"age_requirement", func(t *models.Task) string { return t.AgeRequirement }},
	{"equipment_needed", func(t *models.Task) string { return t.EquipmentNeeded }},
}

// criticalFieldChanges returns the humanized names of critical fields that
// differ between the stored row and the edited one.
func criticalFieldChanges(old, next *models.Task) []string {
	var changed []string
	for _, f := range criticalFields {
		if f.get(old) != f.get(next) {
			changed = append(changed, HumanizeField(f.name))
		}
	}
	return changed
}

// HumanizeField turns a column name into the label volunteers read:
// "start_date" becomes "Start date".
func HumanizeField(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// applyEdit builds the updated row from the stored one and the form input.
func applyEdit(current *models.Task, in *EditInput) *models.Task {
	next := *current
	next.Title = in.Title
	next.Description = in.Description
	next.Location = in.Location
	next.Address = in.Address
	next.StartDate = in.StartDate
	next.EndDate = in.EndDate
	next.Hours = in.Hours
	next.Category = in.Category
	next.RequiredSkills = in.RequiredSkills
	next.MaxVolunteers = in.MaxVolunteers
	next.ContactEmail = in.ContactEmail
	next.ContactPhone = in.ContactPhone
	next.Deadline = in.Deadline
	next.Urgency = in.Urgency
	next.AgeRequirement = in.AgeRequirement
	next.PhysicalRequirements = in.PhysicalRequirements
	next.EquipmentNeeded = in.EquipmentNeeded
	next.WageRate = in.WageRate
	next.WorkStartTime = in.WorkStartTime
	next.WorkEndTime = in.WorkEndTime
	return &next
}
