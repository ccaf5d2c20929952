// internal/common/camunda/worker.go
package camunda

import (
	"sync"
	"time"

	"engagement-workers/internal/common/config"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"
)

// Manager opens job workers against a shared Zeebe client and tracks them so
// shutdown can close the pollers before the gRPC connection goes away.
type Manager struct {
	client zbc.Client
	logger *zap.Logger

	mu      sync.Mutex
	workers []worker.JobWorker
}

func NewManager(client zbc.Client, log *zap.Logger) *Manager {
	return &Manager{client: client, logger: log}
}

// Start opens a job worker for the given task type. Disabled workers are
// skipped with a log line so operators can see what is not polling.
func (m *Manager) Start(taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job)) {
	if !wcfg.Enabled {
		m.logger.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	jobWorker := m.client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	m.mu.Lock()
	m.workers = append(m.workers, jobWorker)
	m.mu.Unlock()

	m.logger.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}

// Count returns the number of workers currently polling.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// CloseAll stops every open worker. Close drains in-flight jobs before
// returning, so this must run before the Zeebe client is closed.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	workers := m.workers
	m.workers = nil
	m.mu.Unlock()

	for _, w := range workers {
		w.Close()
	}

	m.logger.Info("all workers stopped", zap.Int("count", len(workers)))
}
