// internal/notification/dispatcher.go
package notification

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"engagement-workers/internal/common/database"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/common/logger"
	"engagement-workers/internal/common/metrics"
	"engagement-workers/internal/models"

	"github.com/google/uuid"
)

// TaskDeletedMessage is what every engaged volunteer reads after an NGO
// deletes a task.
func TaskDeletedMessage(title, reason string) string {
	return fmt.Sprintf("Task '%s' has been deleted. Reason: %s", title, reason)
}

// TaskUpdatedMessage lists the changed fields for approved volunteers.
func TaskUpdatedMessage(title string, changedFields []string) string {
	return fmt.Sprintf("Update for '%s': %s have been changed. Please check the latest details.",
		title, strings.Join(changedFields, ", "))
}

// CertificateMessage confirms a completion certificate went out.
func CertificateMessage(title string) string {
	return fmt.Sprintf("Certificate has been sent to your Email/Phone Number : %s", title)
}

// Dispatcher owns the notifications table. Rows are append-only: after
// insert, the read flag is the only column that ever changes.
type Dispatcher struct {
	db     *sql.DB
	logger logger.Logger
}

func NewDispatcher(db *sql.DB, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		db:     db,
		logger: log.Named("notification"),
	}
}

// Notify appends one notification through the caller's transaction, so the
// row lands atomically with the lifecycle write that caused it. The ID and
// creation time are filled in on the passed record.
func (d *Dispatcher) Notify(ctx context.Context, ex database.Execer, n *models.Notification) error {
	if n.UserType != models.UserTypeVolunteer && n.UserType != models.UserTypeNGO {
		return errors.NewValidationError("recipient type must be volunteer or ngo")
	}
	if n.UserID == "" {
		return errors.NewValidationError("recipient id is required")
	}
	if n.Message == "" {
		return errors.NewValidationError("notification message is required")
	}

	n.ID = uuid.NewString()
	n.IsRead = false
	n.CreatedAt = time.Now().UTC().Format(time.RFC3339)

	_, err := ex.ExecContext(ctx, `
		INSERT INTO notifications (id, user_type, user_id, message, type, related_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), FALSE, $7)`,
		n.ID, n.UserType, n.UserID, n.Message, n.Type, n.RelatedID, n.CreatedAt,
	)
	if err != nil {
		return errors.MapStorageError("insert notification", err)
	}

	metrics.NotificationsCreated.WithLabelValues(n.Type).Inc()
	d.logger.Debug("notification created", map[string]interface{}{
		"notificationId": n.ID,
		"userType":       n.UserType,
		"type":           n.Type,
	})
	return nil
}

// ListForUser returns the newest notifications for one recipient.
func (d *Dispatcher) ListForUser(ctx context.Context, userType, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user_type, user_id, message, type, COALESCE(related_id, ''), is_read, created_at
		FROM notifications
		WHERE user_type = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT $3`,
		userType, userID, limit,
	)
	if err != nil {
		return nil, errors.MapStorageError("list notifications", err)
	}
	defer rows.Close()

	var result []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserType, &n.UserID, &n.Message, &n.Type, &n.RelatedID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, errors.MapStorageError("scan notification", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MapStorageError("list notifications", err)
	}
	return result, nil
}

// CountUnread returns how many notifications the recipient has not read.
func (d *Dispatcher) CountUnread(ctx context.Context, userType, userID string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_type = $1 AND user_id = $2 AND is_read = FALSE`,
		userType, userID,
	).Scan(&count)
	if err != nil {
		return 0, errors.MapStorageError("count unread notifications", err)
	}
	return count, nil
}

// MarkRead flips the read flag on one notification. The recipient scoping
// stops one user from marking another user's rows.
func (d *Dispatcher) MarkRead(ctx context.Context, notificationID, userType, userID string) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1 AND user_type = $2 AND user_id = $3`,
		notificationID, userType, userID,
	)
	if err != nil {
		return errors.MapStorageError("mark notification read", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.MapStorageError("mark notification read", err)
	}
	if affected == 0 {
		return errors.NewNotFoundError("notification", notificationID)
	}
	return nil
}

// MarkAllRead flips every unread notification for the recipient and returns
// how many rows changed.
func (d *Dispatcher) MarkAllRead(ctx context.Context, userType, userID string) (int, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE
		WHERE user_type = $1 AND user_id = $2 AND is_read = FALSE`,
		userType, userID,
	)
	if err != nil {
		return 0, errors.MapStorageError("mark all notifications read", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.MapStorageError("mark all notifications read", err)
	}
	return int(affected), nil
}
