// internal/engagement/inputs.go
package engagement

import (
	stderrors "errors"

	"github.com/asaskevich/govalidator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ApplyInput is the volunteer's application form. Availability date and
// committed hours are not part of it: both are copied from the task.
type ApplyInput struct {
	TaskID           string `json:"taskId"`
	VolunteerID      string `json:"volunteerId"`
	ContactEmail     string `json:"contactEmail"`
	ContactPhone     string `json:"contactPhone"`
	AdditionalNotes  string `json:"additionalNotes"`
	AvailabilityTime string `json:"availabilityTime"`
}

func (in ApplyInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.TaskID, validation.Required),
		validation.Field(&in.VolunteerID, validation.Required),
		validation.Field(&in.ContactEmail,
			validation.Required.Error("Email is required."),
			validation.By(emailFormat)),
		validation.Field(&in.ContactPhone,
			validation.Required.Error("Phone number is required."),
			validation.Length(0, 20)),
		validation.Field(&in.AdditionalNotes,
			validation.Required.Error("Please explain why you should be accepted for this task. This field is required.")),
	)
}

func emailFormat(v interface{}) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if !govalidator.IsEmail(s) {
		return stderrors.New("must be a valid email address")
	}
	return nil
}
