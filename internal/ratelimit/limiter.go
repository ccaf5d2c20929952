// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"engagement-workers/internal/common/config"
	"engagement-workers/internal/common/logger"
	"engagement-workers/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

// Budgeted dashboard actions. Actions without a configured rule pass through
// unlimited.
const (
	ActionCreateTask       = "create_task"
	ActionEditTask         = "edit_task"
	ActionDeleteTask       = "delete_task"
	ActionApplyTask        = "apply_task"
	ActionUpdateProfile    = "update_profile"
	ActionSendNotification = "send_notification"
	ActionApproveVolunteer = "approve_volunteer"
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter enforces per-user, per-action budgets over a sliding window. Each
// (user, action) pair keeps a Redis sorted set of recent attempt timestamps;
// a check prunes entries older than the window, counts the rest, and records
// the attempt only when it is allowed. Rejected attempts never extend the
// window.
//
// The limiter fails open: if Redis is unreachable the action is allowed and
// the failure is logged. Losing a throttle beats losing a dashboard.
type Limiter struct {
	client *redis.Client
	cfg    config.RateLimitConfig
	logger logger.Logger
	now    func() time.Time
}

func New(client *redis.Client, cfg config.RateLimitConfig, log logger.Logger) *Limiter {
	return &Limiter{
		client: client,
		cfg:    cfg,
		logger: log.Named("ratelimit"),
		now:    time.Now,
	}
}

func key(userID, action string) string {
	return "ratelimit:" + userID + ":" + action
}

// Allow checks and, when permitted, records one attempt of action by userID.
func (l *Limiter) Allow(ctx context.Context, userID, action string) *Decision {
	if !l.cfg.Enabled {
		return &Decision{Allowed: true, Remaining: -1}
	}
	rule, ok := l.cfg.Rules[action]
	if !ok {
		return &Decision{Allowed: true, Remaining: -1}
	}

	now := l.now()
	window := time.Duration(rule.WindowSeconds) * time.Second
	cutoff := now.Add(-window)
	k := key(userID, action)

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(cutoff.UnixMilli(), 10))
	card := pipe.ZCard(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limit check failed, allowing", map[string]interface{}{
			"action": action,
			"error":  err.Error(),
		})
		return &Decision{Allowed: true, Remaining: -1}
	}

	count := int(card.Val())
	if count >= rule.Limit {
		metrics.RateLimitRejections.WithLabelValues(action).Inc()
		return &Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: l.retryAfter(ctx, k, now, window),
		}
	}

	record := l.client.Pipeline()
	record.ZAdd(ctx, k, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	record.Expire(ctx, k, window)
	if _, err := record.Exec(ctx); err != nil {
		l.logger.Warn("rate limit record failed", map[string]interface{}{
			"action": action,
			"error":  err.Error(),
		})
	}

	return &Decision{Allowed: true, Remaining: rule.Limit - count - 1}
}

// retryAfter reads the oldest attempt still inside the window; a slot frees
// when it ages out.
func (l *Limiter) retryAfter(ctx context.Context, k string, now time.Time, window time.Duration) time.Duration {
	oldest, err := l.client.ZRangeWithScores(ctx, k, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return window
	}
	oldestAt := time.UnixMilli(int64(oldest[0].Score))
	wait := oldestAt.Add(window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait
}
