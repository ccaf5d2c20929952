// internal/workers/notification/dispatch-notification/handler.go
package dispatchnotification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/common/logger"
	"engagement-workers/internal/common/metrics"
	"engagement-workers/internal/models"
	"engagement-workers/internal/notification"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "dispatch-notification"
)

// Channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Outbound templates per notification type. Processes can send variables
// instead of a pre-rendered message; bodies match the in-app row wording.
var templates = map[string]map[string]string{
	models.NotificationTaskDeleted: {
		"subject": "A task you joined was removed",
		"body":    "Task '{{title}}' has been deleted. Reason: {{reason}}",
	},
	models.NotificationTaskUpdated: {
		"subject": "A task you joined was updated",
		"body":    "Update for '{{title}}': {{changes}} have been changed. Please check the latest details.",
	},
	models.NotificationCertificatePushed: {
		"subject": "Your volunteering certificate",
		"body":    "Certificate has been sent to your Email/Phone Number : {{title}}",
	},
}

// Interfaces for mocking the outbound providers.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

type Handler struct {
	config     *Config
	db         *sql.DB
	dispatcher *notification.Dispatcher
	email      EmailSender
	sms        SMSSender
	logger     logger.Logger
}

func NewHandler(config *Config, db *sql.DB, dispatcher *notification.Dispatcher, email EmailSender, sms SMSSender, log logger.Logger) *Handler {
	return &Handler{
		config:     config,
		db:         db,
		dispatcher: dispatcher,
		email:      email,
		sms:        sms,
		logger:     log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer func() {
		metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, &errors.BPMNError{
			Code:    "PARSE_ERROR",
			Message: fmt.Sprintf("parse input: %v", err),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, errors.AsBPMN(err))
		return
	}

	h.completeJob(client, job, output)
}

// Execute runs the worker body directly, bypassing the job plumbing.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserType != models.UserTypeVolunteer && input.UserType != models.UserTypeNGO {
		return nil, errors.NewValidationError("recipient type must be volunteer or ngo")
	}
	if input.UserID == "" {
		return nil, errors.NewValidationError("recipient id is required")
	}

	message := input.Message
	if message == "" {
		tmpl, ok := templates[input.NotificationType]
		if !ok {
			return nil, errors.NewValidationError("notification message is required")
		}
		message = renderTemplate(tmpl["body"], input.Variables)
	}

	sentAt := time.Now().UTC().Format(time.RFC3339)

	email, phone, err := h.recipientContact(ctx, input.UserType, input.UserID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			h.logger.Warn("recipient not found", map[string]interface{}{
				"userType": input.UserType,
				"userId":   input.UserID,
			})
			return &Output{Status: StatusSkipped, SentAt: sentAt}, nil
		}
		return nil, err
	}

	var notificationID string
	if input.Persist {
		n := &models.Notification{
			UserType:  input.UserType,
			UserID:    input.UserID,
			Message:   message,
			Type:      input.NotificationType,
			RelatedID: input.RelatedID,
		}
		if err := h.dispatcher.Notify(ctx, h.db, n); err != nil {
			return nil, err
		}
		notificationID = n.ID
	}

	subject := input.Subject
	if subject == "" {
		subject = subjectFor(input.NotificationType)
	}

	var channels []string
	attempted := 0

	if h.config.EmailEnabled && email != "" {
		attempted++
		if err := h.email.SendEmail(ctx, email, subject, message); err != nil {
			metrics.NotificationsDelivered.WithLabelValues(ChannelEmail, StatusFailed).Inc()
			h.logger.Error("email delivery failed", map[string]interface{}{
				"error":  err,
				"userId": input.UserID,
			})
		} else {
			metrics.NotificationsDelivered.WithLabelValues(ChannelEmail, StatusSent).Inc()
			channels = append(channels, ChannelEmail)
		}
	}

	if h.config.SMSEnabled && phone != "" {
		attempted++
		if err := h.sms.SendSMS(ctx, phone, message); err != nil {
			metrics.NotificationsDelivered.WithLabelValues(ChannelSMS, StatusFailed).Inc()
			h.logger.Error("sms delivery failed", map[string]interface{}{
				"error":  err,
				"userId": input.UserID,
			})
		} else {
			metrics.NotificationsDelivered.WithLabelValues(ChannelSMS, StatusSent).Inc()
			channels = append(channels, ChannelSMS)
		}
	}

	status := StatusSkipped
	switch {
	case len(channels) > 0:
		status = StatusSent
	case attempted > 0:
		status = StatusFailed
	}

	// A stored row survives delivery failures, so the job still completes.
	// With nothing stored and nothing delivered there is nothing to show the
	// recipient, and the engine should retry.
	if status == StatusFailed && !input.Persist {
		return nil, errors.NewNotificationFailedError(input.NotificationType,
			fmt.Errorf("no channel accepted the message"))
	}

	return &Output{
		NotificationID: notificationID,
		Status:         status,
		Channels:       channels,
		SentAt:         sentAt,
	}, nil
}

func (h *Handler) recipientContact(ctx context.Context, userType, userID string) (string, string, error) {
	var query string
	switch userType {
	case models.UserTypeVolunteer:
		query = `SELECT email, COALESCE(phone, '') FROM volunteers WHERE id = $1`
	case models.UserTypeNGO:
		query = `SELECT email, COALESCE(phone, '') FROM ngos WHERE id = $1`
	}

	var email, phone string
	err := h.db.QueryRowContext(ctx, query, userID).Scan(&email, &phone)
	if err == sql.ErrNoRows {
		return "", "", errors.NewNotFoundError(userType, userID)
	}
	if err != nil {
		return "", "", errors.MapStorageError("load recipient contact", err)
	}
	return email, phone, nil
}

func subjectFor(notificationType string) string {
	if tmpl, ok := templates[notificationType]; ok {
		return tmpl["subject"]
	}
	return "You have a new notification"
}

// renderTemplate substitutes {{name}} placeholders, then strips any left
// without a value so braces never reach a recipient.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}
	return result
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err = cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, bpmnErr *errors.BPMNError) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    bpmnErr.Code,
		"errorMessage": bpmnErr.Message,
		"retries":      bpmnErr.Retries,
	})
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()

	if bpmnErr.Retryable && bpmnErr.Retries > 0 {
		if _, err := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(int32(bpmnErr.Retries)).
			ErrorMessage(bpmnErr.Message).
			Send(context.Background()); err != nil {
			h.logger.Error("failed to send fail job command", map[string]interface{}{
				"error": err,
			})
		}
		return
	}

	if _, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message).
		Send(context.Background()); err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}
