// internal/engagement/service.go
package engagement

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"

	"engagement-workers/internal/cache"
	"engagement-workers/internal/capacity"
	"engagement-workers/internal/common/database"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/common/logger"
	"engagement-workers/internal/common/metrics"
	"engagement-workers/internal/models"
	"engagement-workers/internal/notification"
	"engagement-workers/internal/ratelimit"
	"engagement-workers/internal/task"
	"engagement-workers/internal/value"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Service is the engagement state machine. Every transition runs guard and
// write in one transaction under the task row lock, re-derives the task's
// open/closed status before committing, and invalidates the affected cache
// scopes after commit.
type Service struct {
	db       *sql.DB
	tasks    *task.Service
	notifier *notification.Dispatcher
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	logger   logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

type Options struct {
	DB       *sql.DB
	Tasks    *task.Service
	Notifier *notification.Dispatcher
	Cache    *cache.Cache
	Limiter  *ratelimit.Limiter
	Logger   logger.Logger
}

func NewService(opts Options) *Service {
	return &Service{
		db:       opts.DB,
		tasks:    opts.Tasks,
		notifier: opts.Notifier,
		cache:    opts.Cache,
		limiter:  opts.Limiter,
		logger:   opts.Logger.Named("engagement"),
		tracer:   otel.Tracer("engagement-workers/engagement"),
		now:      time.Now,
	}
}

// Apply files a volunteer's application: pending approval, with availability
// and committed hours copied from the task. The task must be open with room
// left, and one application per (task, volunteer) pair is the hard limit.
func (s *Service) Apply(ctx context.Context, in *ApplyInput) (*models.Engagement, error) {
	ctx, span := s.tracer.Start(ctx, "engagement.apply", trace.WithAttributes(
		attribute.String("task.id", in.TaskID),
		attribute.String("volunteer.id", in.VolunteerID),
	))
	defer span.End()

	if err := s.checkRate(ctx, in.VolunteerID, ratelimit.ActionApplyTask); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	var (
		created *models.Engagement
		ngoID   string
	)
	err := database.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := lockTask(ctx, tx, in.TaskID)
		if err != nil {
			return err
		}
		if t.IsDeleted {
			return errors.NewNotFoundError("task", in.TaskID)
		}
		if t.Status != models.TaskStatusOpen {
			return errors.NewValidationError("This task is not open for applications.")
		}

		applied, err := hasApplied(ctx, tx, in.TaskID, in.VolunteerID)
		if err != nil {
			return err
		}
		if applied {
			return errors.NewDuplicateEngagementError(in.TaskID, in.VolunteerID)
		}

		approved, err := capacity.ApprovedCount(ctx, tx, in.TaskID)
		if err != nil {
			return err
		}
		occ := capacity.Occupancy{TaskID: t.ID, ApprovedCount: approved, MaxVolunteers: t.MaxVolunteers}
		if !occ.HasRoom() {
			return errors.NewCapacityExceededError(in.TaskID)
		}

		e := &models.Engagement{
			ID:               uuid.NewString(),
			TaskID:           in.TaskID,
			VolunteerID:      in.VolunteerID,
			AvailabilityDate: t.StartDate,
			AvailabilityTime: in.AvailabilityTime,
			HoursCommitted:   t.Hours,
			ContactEmail:     in.ContactEmail,
			ContactPhone:     in.ContactPhone,
			AdditionalNotes:  in.AdditionalNotes,
			ApprovalStatus:   models.ApprovalPending,
			CompletionStatus: models.CompletionAccepted,
			CreatedAt:        s.now().UTC().Format(time.RFC3339),
		}
		if err := insertEngagement(ctx, tx, e); err != nil {
			return err
		}
		if _, err := s.tasks.OnEngagementChange(ctx, tx, in.TaskID); err != nil {
			return err
		}
		created = e
		ngoID = t.NGOID
		return nil
	})
	if err != nil {
		span.RecordError(err)
		metrics.EngagementTransitions.WithLabelValues("apply", "failure").Inc()
		return nil, err
	}
	metrics.EngagementTransitions.WithLabelValues("apply", "success").Inc()

	s.cache.InvalidateTask(ctx, in.TaskID, ngoID)
	s.cache.InvalidateVolunteer(ctx, in.VolunteerID)

	s.logger.Info("application submitted", map[string]interface{}{
		"engagementId": created.ID,
		"taskId":       in.TaskID,
		"volunteerId":  in.VolunteerID,
	})
	return created, nil
}

// Approve turns a pending application into an approved engagement. Capacity
// is re-checked under the task lock: approving into a full task fails even
// when the application predates the last seat being taken.
func (s *Service) Approve(ctx context.Context, engagementID, ngoID string) error {
	if err := s.checkRate(ctx, ngoID, ratelimit.ActionApproveVolunteer); err != nil {
		return err
	}

	var taskID, taskNGO, volunteerID string
	err := s.transition(ctx, "approve", engagementID, func(tx *sql.Tx) error {
		e, t, err := loadForReview(ctx, tx, engagementID, ngoID)
		if err != nil {
			return err
		}
		if e.ApprovalStatus != models.ApprovalPending {
			return errors.NewValidationError("Application has already been reviewed.")
		}

		approved, err := capacity.ApprovedCount(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		occ := capacity.Occupancy{TaskID: t.ID, ApprovedCount: approved, MaxVolunteers: t.MaxVolunteers}
		if !occ.HasRoom() {
			return errors.NewCapacityExceededError(t.ID)
		}

		if err := setApprovalStatus(ctx, tx, engagementID, models.ApprovalApproved); err != nil {
			return err
		}
		if _, err := s.tasks.OnEngagementChange(ctx, tx, t.ID); err != nil {
			return err
		}
		taskID, taskNGO, volunteerID = t.ID, t.NGOID, e.VolunteerID
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateTask(ctx, taskID, taskNGO)
	s.cache.InvalidateVolunteer(ctx, volunteerID)

	s.logger.Info("application approved", map[string]interface{}{
		"engagementId": engagementID,
		"taskId":       taskID,
	})
	return nil
}

// Reject declines a pending application. The row stays for the duplicate
// guard: a rejected volunteer cannot apply again.
func (s *Service) Reject(ctx context.Context, engagementID, ngoID string) error {
	var taskID, taskNGO, volunteerID string
	err := s.transition(ctx, "reject", engagementID, func(tx *sql.Tx) error {
		e, t, err := loadForReview(ctx, tx, engagementID, ngoID)
		if err != nil {
			return err
		}
		if e.ApprovalStatus != models.ApprovalPending {
			return errors.NewValidationError("Application has already been reviewed.")
		}

		if err := setApprovalStatus(ctx, tx, engagementID, models.ApprovalRejected); err != nil {
			return err
		}
		if _, err := s.tasks.OnEngagementChange(ctx, tx, t.ID); err != nil {
			return err
		}
		taskID, taskNGO, volunteerID = t.ID, t.NGOID, e.VolunteerID
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateTask(ctx, taskID, taskNGO)
	s.cache.InvalidateVolunteer(ctx, volunteerID)

	s.logger.Info("application rejected", map[string]interface{}{
		"engagementId": engagementID,
		"taskId":       taskID,
	})
	return nil
}

// Withdraw deletes the volunteer's own engagement, in any approval state,
// but only while the NGO has not reviewed the outcome. Freed capacity can
// reopen the task.
func (s *Service) Withdraw(ctx context.Context, engagementID, volunteerID string) error {
	var taskID, taskNGO string
	err := s.transition(ctx, "withdraw", engagementID, func(tx *sql.Tx) error {
		e, err := getEngagementForUpdate(ctx, tx, engagementID)
		if err != nil {
			return err
		}
		if e.VolunteerID != volunteerID {
			return errors.NewNotFoundError("engagement", engagementID)
		}
		t, err := lockTask(ctx, tx, e.TaskID)
		if err != nil {
			return err
		}
		if e.CompletionStatus != models.CompletionAccepted {
			return errors.NewValidationError("Withdrawal disabled after NGO review.")
		}

		if err := deleteEngagement(ctx, tx, engagementID); err != nil {
			return err
		}
		if _, err := s.tasks.OnEngagementChange(ctx, tx, t.ID); err != nil {
			return err
		}
		taskID, taskNGO = t.ID, t.NGOID
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateTask(ctx, taskID, taskNGO)
	s.cache.InvalidateVolunteer(ctx, volunteerID)

	s.logger.Info("volunteer withdrew", map[string]interface{}{
		"engagementId": engagementID,
		"taskId":       taskID,
	})
	return nil
}

// Complete marks approved work as done and credits the volunteer with the
// task's monetised value. Zero when the task carries no wage. The volunteer's
// lifetime aggregate is recomputed in the same transaction. Returns the value
// credited.
func (s *Service) Complete(ctx context.Context, engagementID, ngoID string) (float64, error) {
	var (
		taskID, taskNGO, volunteerID string
		credited                     float64
	)
	err := s.transition(ctx, "complete", engagementID, func(tx *sql.Tx) error {
		e, t, err := loadForReview(ctx, tx, engagementID, ngoID)
		if err != nil {
			return err
		}
		if e.ApprovalStatus != models.ApprovalApproved {
			return errors.NewValidationError("Only approved volunteers can be reviewed.")
		}
		if e.CompletionStatus != models.CompletionAccepted {
			return errors.NewValidationError("Work has already been reviewed.")
		}

		val, err := value.TaskValue(t.valueTask())
		if err != nil {
			return errors.NewInternalError(err)
		}
		if err := setCompletion(ctx, tx, engagementID, models.CompletionCompleted, "", val); err != nil {
			return err
		}
		if err := recomputeVolunteerValue(ctx, tx, e.VolunteerID); err != nil {
			return err
		}
		if _, err := s.tasks.OnEngagementChange(ctx, tx, t.ID); err != nil {
			return err
		}
		taskID, taskNGO, volunteerID = t.ID, t.NGOID, e.VolunteerID
		credited = val
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.cache.InvalidateTask(ctx, taskID, taskNGO)
	s.cache.InvalidateVolunteer(ctx, volunteerID)

	s.logger.Info("work completed", map[string]interface{}{
		"engagementId": engagementID,
		"taskId":       taskID,
		"value":        credited,
	})
	return credited, nil
}

// MarkNotCompleted records that approved work was not done, with the NGO's
// note on what went wrong. The engagement earns nothing and stops counting
// toward capacity, which can reopen the task.
func (s *Service) MarkNotCompleted(ctx context.Context, engagementID, ngoID, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return errors.NewValidationError("Please provide a brief description of the issue.")
	}

	var taskID, taskNGO, volunteerID string
	err := s.transition(ctx, "mark_not_completed", engagementID, func(tx *sql.Tx) error {
		e, t, err := loadForReview(ctx, tx, engagementID, ngoID)
		if err != nil {
			return err
		}
		if e.ApprovalStatus != models.ApprovalApproved {
			return errors.NewValidationError("Only approved volunteers can be reviewed.")
		}
		if e.CompletionStatus != models.CompletionAccepted {
			return errors.NewValidationError("Work has already been reviewed.")
		}

		if err := setCompletion(ctx, tx, engagementID, models.CompletionNotCompleted, note, 0); err != nil {
			return err
		}
		if err := recomputeVolunteerValue(ctx, tx, e.VolunteerID); err != nil {
			return err
		}
		if _, err := s.tasks.OnEngagementChange(ctx, tx, t.ID); err != nil {
			return err
		}
		taskID, taskNGO, volunteerID = t.ID, t.NGOID, e.VolunteerID
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateTask(ctx, taskID, taskNGO)
	s.cache.InvalidateVolunteer(ctx, volunteerID)

	s.logger.Info("work marked not completed", map[string]interface{}{
		"engagementId": engagementID,
		"taskId":       taskID,
	})
	return nil
}

// Remove takes an approved volunteer off the task on the NGO's side. The row
// is deleted without notifying the volunteer; the aggregate is recomputed in
// case the engagement already carried value.
func (s *Service) Remove(ctx context.Context, engagementID, ngoID string) error {
	var taskID, taskNGO, volunteerID string
	err := s.transition(ctx, "remove", engagementID, func(tx *sql.Tx) error {
		e, t, err := loadForReview(ctx, tx, engagementID, ngoID)
		if err != nil {
			return err
		}
		if e.ApprovalStatus != models.ApprovalApproved {
			return errors.NewValidationError("Only approved volunteers can be removed.")
		}

		if err := deleteEngagement(ctx, tx, engagementID); err != nil {
			return err
		}
		if err := recomputeVolunteerValue(ctx, tx, e.VolunteerID); err != nil {
			return err
		}
		if _, err := s.tasks.OnEngagementChange(ctx, tx, t.ID); err != nil {
			return err
		}
		taskID, taskNGO, volunteerID = t.ID, t.NGOID, e.VolunteerID
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateTask(ctx, taskID, taskNGO)
	s.cache.InvalidateVolunteer(ctx, volunteerID)

	s.logger.Info("volunteer removed", map[string]interface{}{
		"engagementId": engagementID,
		"taskId":       taskID,
	})
	return nil
}

// SendCertificate flags completed work as certified, once, and tells the
// volunteer. The notification's related id is the engagement, not the task.
func (s *Service) SendCertificate(ctx context.Context, engagementID, ngoID string) error {
	var taskID, taskNGO, volunteerID string
	err := s.transition(ctx, "send_certificate", engagementID, func(tx *sql.Tx) error {
		e, t, err := loadForReview(ctx, tx, engagementID, ngoID)
		if err != nil {
			return err
		}
		if e.CompletionStatus != models.CompletionCompleted {
			return errors.NewValidationError("Certificate can be sent only after the work is marked completed.")
		}
		if e.CertificateSent {
			return errors.NewValidationError("Certificate has already been sent.")
		}

		if err := setCertificateSent(ctx, tx, engagementID); err != nil {
			return err
		}
		n := &models.Notification{
			UserType:  models.UserTypeVolunteer,
			UserID:    e.VolunteerID,
			Message:   notification.CertificateMessage(t.Title),
			Type:      models.NotificationCertificatePushed,
			RelatedID: e.ID,
		}
		if err := s.notifier.Notify(ctx, tx, n); err != nil {
			return err
		}
		if _, err := s.tasks.OnEngagementChange(ctx, tx, t.ID); err != nil {
			return err
		}
		taskID, taskNGO, volunteerID = t.ID, t.NGOID, e.VolunteerID
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateTask(ctx, taskID, taskNGO)
	s.cache.InvalidateVolunteer(ctx, volunteerID)

	s.logger.Info("certificate sent", map[string]interface{}{
		"engagementId": engagementID,
		"taskId":       taskID,
	})
	return nil
}

// Roster returns a task's applicants split into approved and pending, with
// volunteer profiles joined in. Rejected applications are omitted.
func (s *Service) Roster(ctx context.Context, taskID string) (*models.Roster, error) {
	var roster models.Roster
	err := s.cache.Fetch(ctx, cache.TaskVolunteersKey(taskID), cache.TTLTaskViews, &roster, func(ctx context.Context) error {
		entries, err := listForTask(ctx, s.db, taskID)
		if err != nil {
			return err
		}
		roster = models.Roster{}
		for _, r := range entries {
			switch r.ApprovalStatus {
			case models.ApprovalApproved:
				roster.Approved = append(roster.Approved, r)
			case models.ApprovalPending:
				roster.Pending = append(roster.Pending, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &roster, nil
}

// ListForNGO returns every engagement across the NGO's tasks, newest first.
func (s *Service) ListForNGO(ctx context.Context, ngoID string) ([]models.RosterEntry, error) {
	var entries []models.RosterEntry
	err := s.cache.Fetch(ctx, cache.NGOVolunteersKey(ngoID), cache.TTLRosters, &entries, func(ctx context.Context) error {
		loaded, err := listForNGO(ctx, s.db, ngoID)
		if err != nil {
			return err
		}
		entries = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListForVolunteer returns the volunteer's engagements joined with task and
// NGO details, newest first.
func (s *Service) ListForVolunteer(ctx context.Context, volunteerID string) ([]models.EngagementView, error) {
	var views []models.EngagementView
	err := s.cache.Fetch(ctx, cache.VolunteerTasksKey(volunteerID), cache.TTLTaskViews, &views, func(ctx context.Context) error {
		loaded, err := listForVolunteer(ctx, s.db, volunteerID)
		if err != nil {
			return err
		}
		views = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// transition wraps a state change with its span, transaction and metrics.
func (s *Service) transition(ctx context.Context, op, engagementID string, fn func(tx *sql.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "engagement."+op,
		trace.WithAttributes(attribute.String("engagement.id", engagementID)))
	defer span.End()

	err := database.WithinTx(ctx, s.db, fn)
	if err != nil {
		span.RecordError(err)
		metrics.EngagementTransitions.WithLabelValues(op, "failure").Inc()
		return err
	}
	metrics.EngagementTransitions.WithLabelValues(op, "success").Inc()
	return nil
}

// loadForReview locks the engagement and its task for an NGO-side decision.
// A task owned by someone else reads as missing rather than forbidden.
func loadForReview(ctx context.Context, tx *sql.Tx, engagementID, ngoID string) (*models.Engagement, *taskRow, error) {
	e, err := getEngagementForUpdate(ctx, tx, engagementID)
	if err != nil {
		return nil, nil, err
	}
	t, err := lockTask(ctx, tx, e.TaskID)
	if err != nil {
		return nil, nil, err
	}
	if t.IsDeleted || t.NGOID != ngoID {
		return nil, nil, errors.NewNotFoundError("engagement", engagementID)
	}
	return e, t, nil
}

func (s *Service) checkRate(ctx context.Context, userID, action string) error {
	dec := s.limiter.Allow(ctx, userID, action)
	if dec.Allowed {
		return nil
	}
	return errors.NewRateLimitedError(action, int(math.Ceil(dec.RetryAfter.Seconds())))
}
