// internal/task/service.go
package task

import (
	"context"
	"database/sql"
	stderrors "errors"
	"math"
	"strings"
	"time"

	"engagement-workers/internal/cache"
	"engagement-workers/internal/capacity"
	"engagement-workers/internal/common/database"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/common/logger"
	"engagement-workers/internal/common/metrics"
	"engagement-workers/internal/estimator"
	"engagement-workers/internal/models"
	"engagement-workers/internal/notification"
	"engagement-workers/internal/ratelimit"
	"engagement-workers/internal/search"
	"engagement-workers/internal/value"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Service owns every write to the tasks table. Task status is derived state:
// it closes when approved occupancy fills the last seat and reopens when a
// capacity closure frees one, re-evaluated eagerly after every engagement
// event rather than at render time.
type Service struct {
	db        *sql.DB
	notifier  *notification.Dispatcher
	indexer   *search.Indexer
	cache     *cache.Cache
	limiter   *ratelimit.Limiter
	estimator *estimator.Client
	logger    logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Options wires the service. Indexer and Estimator may be nil when search or
// wage suggestions are disabled; everything else is required.
type Options struct {
	DB        *sql.DB
	Notifier  *notification.Dispatcher
	Indexer   *search.Indexer
	Cache     *cache.Cache
	Limiter   *ratelimit.Limiter
	Estimator *estimator.Client
	Logger    logger.Logger
}

func NewService(opts Options) *Service {
	return &Service{
		db:        opts.DB,
		notifier:  opts.Notifier,
		indexer:   opts.Indexer,
		cache:     opts.Cache,
		limiter:   opts.Limiter,
		estimator: opts.Estimator,
		logger:    opts.Logger.Named("task"),
		tracer:    otel.Tracer("engagement-workers/task"),
		now:       time.Now,
	}
}

// Evaluation reports what a capacity re-check did to the task.
type Evaluation struct {
	Status       string
	AutoClosed   bool
	AutoReopened bool
}

// OnEngagementChange re-derives the task's status from live occupancy inside
// the caller's transaction. An open task that is now full closes with reason
// capacity; a capacity-closed task with room reopens. Manual closures stay
// closed no matter what occupancy does.
func (s *Service) OnEngagementChange(ctx context.Context, ex database.Execer, taskID string) (*Evaluation, error) {
	var (
		status      string
		closeReason string
		isDeleted   bool
	)
	err := ex.QueryRowContext(ctx,
		`SELECT status, COALESCE(close_reason, ''), is_deleted FROM tasks WHERE id = $1`,
		taskID,
	).Scan(&status, &closeReason, &isDeleted)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("task", taskID)
	}
	if err != nil {
		return nil, errors.MapStorageError("read task status", err)
	}

	eval := &Evaluation{Status: status}
	if isDeleted {
		return eval, nil
	}

	occ, err := capacity.Snapshot(ctx, ex, taskID)
	if err != nil {
		return nil, err
	}

	switch {
	case occ.IsFull() && status == models.TaskStatusOpen:
		if err := setTaskStatus(ctx, ex, taskID, models.TaskStatusClosed, models.CloseReasonCapacity); err != nil {
			return nil, err
		}
		eval.Status = models.TaskStatusClosed
		eval.AutoClosed = true
		metrics.TasksAutoClosed.Inc()
		s.logger.Info("task closed at capacity", map[string]interface{}{
			"taskId":   taskID,
			"approved": occ.ApprovedCount,
		})

	case !occ.IsFull() && status == models.TaskStatusClosed && closeReason == models.CloseReasonCapacity:
		if err := setTaskStatus(ctx, ex, taskID, models.TaskStatusOpen, ""); err != nil {
			return nil, err
		}
		eval.Status = models.TaskStatusOpen
		eval.AutoReopened = true
		metrics.TasksAutoReopened.Inc()
		s.logger.Info("task reopened, capacity freed", map[string]interface{}{
			"taskId":   taskID,
			"approved": occ.ApprovedCount,
		})
	}

	return eval, nil
}

// Create validates a task draft, consults the wage estimator when the NGO
// left the wage unset, and stores the task open. Estimator failures are
// soft: the task is created without a wage.
func (s *Service) Create(ctx context.Context, in *CreateInput) (*models.Task, error) {
	ctx, span := s.tracer.Start(ctx, "task.create")
	defer span.End()

	if err := s.checkRate(ctx, in.NGOID, ratelimit.ActionCreateTask); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if err := validateDateRange(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	wage := in.WageRate
	if wage == nil && s.estimator != nil && s.estimator.Enabled() {
		est, err := s.estimator.SuggestWage(ctx, in.Title, in.Description, in.Location)
		if err != nil {
			s.logger.Warn("wage suggestion unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		} else if est != nil {
			wage = &est.HourlyWage
		}
	}

	t := &models.Task{
		ID:                   uuid.NewString(),
		NGOID:                in.NGOID,
		Title:                in.Title,
		Description:          in.Description,
		Location:             in.Location,
		Address:              in.Address,
		StartDate:            in.StartDate,
		EndDate:              in.EndDate,
		Hours:                in.Hours,
		Status:               models.TaskStatusOpen,
		Category:             in.Category,
		RequiredSkills:       in.RequiredSkills,
		MaxVolunteers:        in.MaxVolunteers,
		ContactEmail:         in.ContactEmail,
		ContactPhone:         in.ContactPhone,
		Deadline:             in.Deadline,
		Urgency:              in.Urgency,
		AgeRequirement:       in.AgeRequirement,
		PhysicalRequirements: in.PhysicalRequirements,
		EquipmentNeeded:      in.EquipmentNeeded,
		WageRate:             wage,
		WorkStartTime:        in.WorkStartTime,
		WorkEndTime:          in.WorkEndTime,
		CreatedAt:            s.now().UTC().Format(time.RFC3339),
	}
	span.SetAttributes(attribute.String("task.id", t.ID))

	err := database.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		return insertTask(ctx, tx, t)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.syncIndex(ctx, search.DocumentFromTask(t, 0))
	s.cache.InvalidateTask(ctx, t.ID, t.NGOID)

	s.logger.Info("task created", map[string]interface{}{
		"taskId": t.ID,
		"ngoId":  t.NGOID,
		"title":  t.Title,
	})
	return t, nil
}

// Edit replaces the task's editable fields. When a critical field changes,
// every approved volunteer gets a task_updated notification naming the
// changed fields; a changed volunteer limit triggers a capacity re-check in
// the same transaction. Returns the updated task and the humanized names of
// the critical fields that changed.
func (s *Service) Edit(ctx context.Context, in *EditInput) (*models.Task, []string, error) {
	ctx, span := s.tracer.Start(ctx, "task.edit",
		trace.WithAttributes(attribute.String("task.id", in.TaskID)))
	defer span.End()

	if err := s.checkRate(ctx, in.NGOID, ratelimit.ActionEditTask); err != nil {
		return nil, nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, nil, errors.NewValidationError(err.Error())
	}
	if err := validateDateRange(in.StartDate, in.EndDate); err != nil {
		return nil, nil, err
	}

	var (
		updated  *models.Task
		changed  []string
		notified []string
		doc      *search.TaskDocument
	)
	err := database.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := getTaskForUpdate(ctx, tx, in.TaskID)
		if err != nil {
			return err
		}
		if current.NGOID != in.NGOID {
			return errors.NewNotFoundError("task", in.TaskID)
		}

		next := applyEdit(current, in)
		changed = criticalFieldChanges(current, next)

		if err := updateTask(ctx, tx, next); err != nil {
			return err
		}

		notified = notified[:0]
		if len(changed) > 0 {
			vols, err := approvedVolunteerIDs(ctx, tx, current.ID)
			if err != nil {
				return err
			}
			msg := notification.TaskUpdatedMessage(next.Title, changed)
			for _, vol := range vols {
				n := &models.Notification{
					UserType:  models.UserTypeVolunteer,
					UserID:    vol,
					Message:   msg,
					Type:      models.NotificationTaskUpdated,
					RelatedID: current.ID,
				}
				if err := s.notifier.Notify(ctx, tx, n); err != nil {
					return err
				}
			}
			notified = vols
		}

		limitChanged := (current.MaxVolunteers == nil) != (next.MaxVolunteers == nil) ||
			(current.MaxVolunteers != nil && next.MaxVolunteers != nil && *current.MaxVolunteers != *next.MaxVolunteers)
		if limitChanged {
			eval, err := s.OnEngagementChange(ctx, tx, current.ID)
			if err != nil {
				return err
			}
			next.Status = eval.Status
			if eval.AutoClosed {
				next.CloseReason = models.CloseReasonCapacity
			} else if eval.AutoReopened {
				next.CloseReason = ""
			}
		}

		occ, err := capacity.Snapshot(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		updated = next
		doc = search.DocumentFromTask(next, occ.ApprovedCount)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	s.syncIndex(ctx, doc)
	s.cache.InvalidateTask(ctx, in.TaskID, in.NGOID)
	for _, vol := range notified {
		s.cache.InvalidateVolunteer(ctx, vol)
	}

	s.logger.Info("task updated", map[string]interface{}{
		"taskId":        in.TaskID,
		"changedFields": changed,
		"notified":      len(notified),
	})
	return updated, changed, nil
}

// SoftDelete hides the task and tells every engaged volunteer why. The
// engagement rows stay for history and value aggregates.
func (s *Service) SoftDelete(ctx context.Context, taskID, ngoID, reason string) error {
	ctx, span := s.tracer.Start(ctx, "task.soft_delete",
		trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	if err := s.checkRate(ctx, ngoID, ratelimit.ActionDeleteTask); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return errors.NewValidationError("Please provide a reason for deleting this task.")
	}

	var volunteers []string
	err := database.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := getTaskForUpdate(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if t.NGOID != ngoID {
			return errors.NewNotFoundError("task", taskID)
		}

		vols, err := engagedVolunteerIDs(ctx, tx, taskID)
		if err != nil {
			return err
		}
		volunteers = vols

		if err := markTaskDeleted(ctx, tx, taskID); err != nil {
			return err
		}

		msg := notification.TaskDeletedMessage(t.Title, reason)
		for _, vol := range vols {
			n := &models.Notification{
				UserType:  models.UserTypeVolunteer,
				UserID:    vol,
				Message:   msg,
				Type:      models.NotificationTaskDeleted,
				RelatedID: taskID,
			}
			if err := s.notifier.Notify(ctx, tx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.dropFromIndex(ctx, taskID)
	s.cache.InvalidateTask(ctx, taskID, ngoID)
	for _, vol := range volunteers {
		s.cache.InvalidateVolunteer(ctx, vol)
	}

	s.logger.Info("task deleted", map[string]interface{}{
		"taskId":             taskID,
		"volunteersNotified": len(volunteers),
	})
	return nil
}

// ManualClose closes an open task for good. Freed capacity never reopens a
// manual closure.
func (s *Service) ManualClose(ctx context.Context, taskID, ngoID string) error {
	ctx, span := s.tracer.Start(ctx, "task.close",
		trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	var doc *search.TaskDocument
	err := database.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := getTaskForUpdate(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if t.NGOID != ngoID {
			return errors.NewNotFoundError("task", taskID)
		}
		if t.Status == models.TaskStatusClosed {
			return errors.NewValidationError("Task is already closed.")
		}

		if err := setTaskStatus(ctx, tx, taskID, models.TaskStatusClosed, models.CloseReasonManual); err != nil {
			return err
		}

		occ, err := capacity.Snapshot(ctx, tx, taskID)
		if err != nil {
			return err
		}
		t.Status = models.TaskStatusClosed
		t.CloseReason = models.CloseReasonManual
		doc = search.DocumentFromTask(t, occ.ApprovedCount)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.syncIndex(ctx, doc)
	s.cache.InvalidateTask(ctx, taskID, ngoID)

	s.logger.Info("task closed manually", map[string]interface{}{"taskId": taskID})
	return nil
}

// ManualReopen reverses a closure. The capacity re-check runs straight after:
// reopening a task that is still full flips it right back to a capacity
// closure.
func (s *Service) ManualReopen(ctx context.Context, taskID, ngoID string) error {
	ctx, span := s.tracer.Start(ctx, "task.reopen",
		trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	var doc *search.TaskDocument
	err := database.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := getTaskForUpdate(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if t.NGOID != ngoID {
			return errors.NewNotFoundError("task", taskID)
		}
		if t.Status == models.TaskStatusOpen {
			return errors.NewValidationError("Task is already open.")
		}

		if err := setTaskStatus(ctx, tx, taskID, models.TaskStatusOpen, ""); err != nil {
			return err
		}
		eval, err := s.OnEngagementChange(ctx, tx, taskID)
		if err != nil {
			return err
		}

		occ, err := capacity.Snapshot(ctx, tx, taskID)
		if err != nil {
			return err
		}
		t.Status = eval.Status
		t.CloseReason = ""
		if eval.Status == models.TaskStatusClosed {
			t.CloseReason = models.CloseReasonCapacity
		}
		doc = search.DocumentFromTask(t, occ.ApprovedCount)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.syncIndex(ctx, doc)
	s.cache.InvalidateTask(ctx, taskID, ngoID)

	s.logger.Info("task reopened manually", map[string]interface{}{"taskId": taskID})
	return nil
}

// Get returns one live task with its occupancy-derived display status.
func (s *Service) Get(ctx context.Context, taskID string) (*models.TaskView, error) {
	t, err := getTask(ctx, s.db, taskID)
	if err != nil {
		return nil, err
	}
	occ, err := capacity.Snapshot(ctx, s.db, taskID)
	if err != nil {
		return nil, err
	}
	return &models.TaskView{
		Task:          *t,
		ApprovedCount: occ.ApprovedCount,
		PendingCount:  occ.PendingCount,
		DisplayStatus: occ.DisplayStatus(t.Status),
	}, nil
}

// ListByNGO returns the NGO's dashboard task list, cached briefly.
func (s *Service) ListByNGO(ctx context.Context, ngoID string) ([]models.TaskView, error) {
	var views []models.TaskView
	err := s.cache.Fetch(ctx, cache.NGOTasksKey(ngoID), cache.TTLTaskViews, &views, func(ctx context.Context) error {
		tasks, err := listNGOTasks(ctx, s.db, ngoID)
		if err != nil {
			return err
		}
		loaded, err := s.buildViews(ctx, tasks)
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

// ListAvailable returns open tasks with room that the volunteer has not
// applied to and that have not ended yet.
func (s *Service) ListAvailable(ctx context.Context, volunteerID string) ([]models.TaskView, error) {
	var views []models.TaskView
	err := s.cache.Fetch(ctx, cache.AvailableTasksKey(volunteerID), cache.TTLTaskViews, &views, func(ctx context.Context) error {
		today := s.now().UTC().Format(models.DateLayout)
		tasks, err := listOpenTasksNotAppliedBy(ctx, s.db, volunteerID, today)
		if err != nil {
			return err
		}
		all, err := s.buildViews(ctx, tasks)
		if err != nil {
			return err
		}
		views = views[:0]
		for _, v := range all {
			if v.DisplayStatus == models.TaskStatusOpen {
				views = append(views, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Service) buildViews(ctx context.Context, tasks []*models.Task) ([]models.TaskView, error) {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	occs, err := capacity.SnapshotMany(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	views := make([]models.TaskView, 0, len(tasks))
	for _, t := range tasks {
		occ := occs[t.ID]
		if occ == nil {
			occ = &capacity.Occupancy{TaskID: t.ID, MaxVolunteers: t.MaxVolunteers}
		}
		views = append(views, models.TaskView{
			Task:          *t,
			ApprovedCount: occ.ApprovedCount,
			PendingCount:  occ.PendingCount,
			DisplayStatus: occ.DisplayStatus(t.Status),
		})
	}
	return views, nil
}

func (s *Service) checkRate(ctx context.Context, userID, action string) error {
	dec := s.limiter.Allow(ctx, userID, action)
	if dec.Allowed {
		return nil
	}
	return errors.NewRateLimitedError(action, int(math.Ceil(dec.RetryAfter.Seconds())))
}

func (s *Service) syncIndex(ctx context.Context, doc *search.TaskDocument) {
	if s.indexer == nil || doc == nil {
		return
	}
	if err := s.indexer.IndexTask(ctx, doc); err != nil {
		s.logger.Warn("task index sync failed", map[string]interface{}{
			"taskId": doc.ID,
			"error":  err.Error(),
		})
	}
}

func (s *Service) dropFromIndex(ctx context.Context, taskID string) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.DeleteTask(ctx, taskID); err != nil {
		s.logger.Warn("task index removal failed", map[string]interface{}{
			"taskId": taskID,
			"error":  err.Error(),
		})
	}
}

func validateDateRange(startDate, endDate string) error {
	if _, err := value.DurationDaysBetween(startDate, endDate); err != nil {
		var rangeErr *value.InvalidRangeError
		if stderrors.As(err, &rangeErr) {
			return errors.NewValidationError("end date cannot be before start date")
		}
		return errors.NewValidationError("dates must use the YYYY-MM-DD format")
	}
	return nil
}
