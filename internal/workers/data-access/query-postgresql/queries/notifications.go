// internal/workers/data-access/query-postgresql/queries/notifications.go
package queries

import (
	"context"

	"engagement-workers/internal/cache"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/models"
)

type UnreadNotificationsView struct {
	UnreadCount   int                   `json:"unreadCount"`
	Notifications []models.Notification `json:"notifications"`
}

func UnreadNotifications(ctx context.Context, deps Deps, params Params) (interface{}, int, error) {
	if params.UserType != models.UserTypeVolunteer && params.UserType != models.UserTypeNGO {
		return nil, 0, errors.NewValidationError("userType must be volunteer or ngo")
	}
	if params.UserID == "" {
		return nil, 0, errors.NewValidationError("userId is required")
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	var view UnreadNotificationsView
	err := deps.Cache.Fetch(ctx, cache.NotificationsKey(params.UserType, params.UserID), cache.TTLNotifications, &view,
		func(ctx context.Context) error {
			count, err := deps.Notifier.CountUnread(ctx, params.UserType, params.UserID)
			if err != nil {
				return err
			}
			view.UnreadCount = count

			rows, err := deps.DB.QueryContext(ctx, `
				SELECT id, user_type, user_id, message, type, COALESCE(related_id, ''), is_read, created_at
				FROM notifications
				WHERE user_type = $1 AND user_id = $2 AND is_read = FALSE
				ORDER BY created_at DESC
				LIMIT $3`,
				params.UserType, params.UserID, limit,
			)
			if err != nil {
				return errors.MapStorageError("list unread notifications", err)
			}
			defer rows.Close()

			for rows.Next() {
				var n models.Notification
				if err := rows.Scan(&n.ID, &n.UserType, &n.UserID, &n.Message, &n.Type,
					&n.RelatedID, &n.IsRead, &n.CreatedAt); err != nil {
					return errors.MapStorageError("scan unread notification", err)
				}
				view.Notifications = append(view.Notifications, n)
			}
			if err := rows.Err(); err != nil {
				return errors.MapStorageError("list unread notifications", err)
			}
			return nil
		})
	if err != nil {
		return nil, 0, err
	}
	return &view, len(view.Notifications), nil
}
