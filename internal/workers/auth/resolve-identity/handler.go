// internal/workers/auth/resolve-identity/handler.go
package resolveidentity

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"engagement-workers/internal/cache"
	"engagement-workers/internal/common/errors"
	"engagement-workers/internal/common/logger"
	"engagement-workers/internal/common/metrics"
	"engagement-workers/internal/identity"
	"engagement-workers/internal/models"
)

const (
	TaskType = "resolve-identity"
)

type Handler struct {
	config   *Config
	db       *sql.DB
	identity *identity.Client
	cache    *cache.Cache
	logger   logger.Logger
}

func NewHandler(config *Config, db *sql.DB, idc *identity.Client, c *cache.Cache, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		db:       db,
		identity: idc,
		cache:    c,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
		h.failJob(client, job, &errors.BPMNError{Code: "PARSE_ERROR", Message: fmt.Sprintf("parse input: %v", err)})
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Token == "" {
		return nil, errors.NewValidationError("token is required")
	}

	digest := sha256.Sum256([]byte(input.Token))
	cacheKey := cache.IdentityKey(hex.EncodeToString(digest[:]))

	var ident models.Identity
	if hit, _ := h.cache.GetJSON(ctx, cacheKey, &ident); hit {
		h.logger.Debug("identity resolved", map[string]interface{}{
			"role":   ident.Role,
			"cached": true,
		})
		return outputFrom(&ident), nil
	}

	tokenInfo, err := h.identity.IntrospectToken(ctx, input.Token)
	if err != nil {
		return nil, err
	}
	if tokenInfo.Sub == "" {
		return nil, &errors.StandardError{
			Code:      "TOKEN_INVALID",
			Message:   "Your session is no longer valid. Please sign in again.",
			Details:   "Introspection returned an active token without a subject.",
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}

	role, name, err := h.lookupRole(ctx, tokenInfo.Sub)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = h.resolveName(ctx, tokenInfo)
	}

	ident = models.Identity{ID: tokenInfo.Sub, Role: role, Name: name}

	// A cached resolution must not outlive the token it came from.
	ttl := h.config.CacheTTL
	if tokenInfo.Exp > 0 {
		if remaining := time.Until(time.Unix(tokenInfo.Exp, 0)); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		if err := h.cache.SetJSON(ctx, cacheKey, ident, ttl); err != nil {
			h.logger.Warn("identity cache write failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	h.logger.Debug("identity resolved", map[string]interface{}{
		"role":   ident.Role,
		"cached": false,
	})

	return outputFrom(&ident), nil
}

// lookupRole classifies the token subject by which account table holds it.
func (h *Handler) lookupRole(ctx context.Context, subject string) (string, string, error) {
	var name string

	err := h.db.QueryRowContext(ctx, `SELECT name FROM volunteers WHERE id = $1`, subject).Scan(&name)
	if err == nil {
		return models.RoleVolunteer, name, nil
	}
	if err != sql.ErrNoRows {
		return "", "", errors.MapStorageError("resolve volunteer role", err)
	}

	err = h.db.QueryRowContext(ctx, `SELECT name FROM ngos WHERE id = $1`, subject).Scan(&name)
	if err == nil {
		return models.RoleNGO, name, nil
	}
	if err != sql.ErrNoRows {
		return "", "", errors.MapStorageError("resolve ngo role", err)
	}

	return "", "", errors.NewNotFoundError("account", subject)
}

// resolveName asks the identity provider for a display name when the local
// row has none. The provider being unreachable here is not fatal, the
// introspection username still identifies the caller.
func (h *Handler) resolveName(ctx context.Context, tokenInfo *identity.TokenInfo) string {
	account, err := h.identity.GetAccount(ctx, tokenInfo.Sub)
	if err != nil {
		h.logger.Warn("account profile lookup failed", map[string]interface{}{
			"subject": tokenInfo.Sub,
			"error":   err.Error(),
		})
		return tokenInfo.Username
	}

	name := strings.TrimSpace(account.FirstName + " " + account.LastName)
	if name == "" {
		name = account.Username
	}
	return name
}

func outputFrom(ident *models.Identity) *Output {
	return &Output{
		IdentityID:   ident.ID,
		Role:         ident.Role,
		ResolvedName: ident.Name,
	}
}

// Execute runs the worker body directly, bypassing the job plumbing.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
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
	_, err = cmd.Send(context.Background())
	if err != nil {
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
		_, err := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(int32(bpmnErr.Retries)).
			ErrorMessage(bpmnErr.Message).
			Send(context.Background())
		if err != nil {
			h.logger.Error("failed to send fail job command", map[string]interface{}{
				"error": err,
			})
		}
		return
	}

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}
