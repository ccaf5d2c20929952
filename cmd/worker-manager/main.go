// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"engagement-workers/internal/cache"
	"engagement-workers/internal/common/aws"
	"engagement-workers/internal/common/camunda"
	"engagement-workers/internal/common/config"
	"engagement-workers/internal/common/database"
	"engagement-workers/internal/common/logger"
	"engagement-workers/internal/common/observability"
	"engagement-workers/internal/engagement"
	"engagement-workers/internal/estimator"
	"engagement-workers/internal/identity"
	"engagement-workers/internal/notification"
	"engagement-workers/internal/ratelimit"
	"engagement-workers/internal/search"
	"engagement-workers/internal/task"

	// Task Listing Workers (4)
	clt "engagement-workers/internal/workers/task/close-task"
	crt "engagement-workers/internal/workers/task/create-task"
	dlt "engagement-workers/internal/workers/task/delete-task"
	edt "engagement-workers/internal/workers/task/edit-task"

	// Engagement Lifecycle Workers (8)
	aft "engagement-workers/internal/workers/engagement/apply-for-task"
	apv "engagement-workers/internal/workers/engagement/approve-engagement"
	cmpl "engagement-workers/internal/workers/engagement/complete-engagement"
	mnc "engagement-workers/internal/workers/engagement/mark-not-completed"
	rej "engagement-workers/internal/workers/engagement/reject-engagement"
	rmv "engagement-workers/internal/workers/engagement/remove-volunteer"
	cert "engagement-workers/internal/workers/engagement/send-certificate"
	wdr "engagement-workers/internal/workers/engagement/withdraw-engagement"

	// Notification Workers (2)
	dn "engagement-workers/internal/workers/notification/dispatch-notification"
	mnr "engagement-workers/internal/workers/notification/mark-notification-read"

	// Data Access Workers (2)
	qe "engagement-workers/internal/workers/data-access/query-elasticsearch"
	qp "engagement-workers/internal/workers/data-access/query-postgresql"
	qpq "engagement-workers/internal/workers/data-access/query-postgresql/queries"

	// Identity Workers (1)
	ri "engagement-workers/internal/workers/auth/resolve-identity"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	// Rebuild the logger now that the configured level and format are known.
	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	if cfg.Tracing.Enabled {
		tracing, err := observability.NewTracing(cfg.App.Name, cfg.App.Version, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			zapLog.Fatal("tracing init failed", zap.Error(err))
		}
		defer tracing.Shutdown(ctx)
	}

	// --- Init Zeebe Client with retry ---
	var zeebeClient zbc.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		// Test the connection
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init External Service Clients ---
	idc := identity.NewClient(cfg.Identity)
	est := estimator.NewClient(cfg.Estimator)

	var emailSender dn.EmailSender
	if cfg.Notifications.Email.Enabled {
		ses, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.Email.FromEmail)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		emailSender = ses
	}

	var smsSender dn.SMSSender
	if cfg.Notifications.SMS.Enabled {
		sns, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.SMS.SenderID)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		smsSender = sns
	}

	zapLog.Info("All external service clients initialized")

	// --- Shared Domain Services ---
	dispatcher := notification.NewDispatcher(pg.DB, log)
	store := cache.New(redis.Client, log)
	limiter := ratelimit.New(redis.Client, cfg.RateLimit, log)
	indexer := search.NewIndexer(esClient.Client, cfg.Search, log)

	tasks := task.NewService(task.Options{
		DB:        pg.DB,
		Notifier:  dispatcher,
		Indexer:   indexer,
		Cache:     store,
		Limiter:   limiter,
		Estimator: est,
		Logger:    log,
	})

	engagements := engagement.NewService(engagement.Options{
		DB:       pg.DB,
		Tasks:    tasks,
		Notifier: dispatcher,
		Cache:    store,
		Limiter:  limiter,
		Logger:   log,
	})

	manager := camunda.NewManager(zeebeClient, zapLog)

	// --- START: Register ALL 17 Workers ---

	// --- 1. Task Listing Workers (4) ---
	if wcfg := config.GetWorkerConfig(cfg, crt.TaskType); wcfg.Enabled {
		handler := crt.NewHandler(
			&crt.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			tasks, log,
		)
		manager.Start(crt.TaskType, wcfg, handler.Handle)
	}

	if wcfg := config.GetWorkerConfig(cfg, edt.TaskType); wcfg.Enabled {
		handler := edt.NewHandler(
			&edt.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			tasks, log,
		)
		manager.Start(edt.TaskType, wcfg, handler.Handle)
	}

	if wcfg := config.GetWorkerConfig(cfg, dlt.TaskType); wcfg.Enabled {
		handler := dlt.NewHandler(
			&dlt.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			tasks, log,
		)
		manager.Start(dlt.TaskType, wcfg, handler.Handle)
	}

	if wcfg := config.GetWorkerConfig(cfg, clt.TaskType); wcfg.Enabled {
		handler := clt.NewHandler(
			&clt.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			tasks, log,
		)
		manager.Start(clt.TaskType, wcfg, handler.Handle)
	}

	// --- 2. Engagement Lifecycle Workers (8) ---
	if wcfg := config.GetWorkerConfig(cfg, aft.TaskType); wcfg.Enabled {
		handler := aft.NewHandler(
			&aft.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			engagements, log,
		)
		manager.Start(aft.TaskType, wcfg, handler.Handle)
	}

	if wcfg := config.GetWorkerConfig(cfg, apv.TaskType); wcfg.Enabled {
		handler := apv.NewHandler(
			&apv.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			engagements, log,
		)
		manager.Start(apv.TaskType, wcfg, handler.Handle)
	}

	if wcfg := config.GetWorkerConfig(cfg, rej.TaskType); wcfg.Enabled {
		handler := rej.NewHandler(
			&rej.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			engagements, log,
		)
		manager.Start(rej.TaskType, wcfg, handler.Handle)
	}

	if wcfg := config.GetWorkerConfig(cfg, wdr.TaskType); wcfg.Enabled {
		handler := wdr.NewHandler(
			&wdr.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			engagements, log,
		)
		manager.Start(wdr.TaskType, wcfg, handler.Handle)
	}

	if wcfg := config.GetWorkerConfig(cfg, rmv.TaskType); wcfg.Enabled {
		handler := rmv.NewHandler(
			&rmv.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			engagements, log,
		)
		manager.Start(rmv.TaskType, wcfg, handler.Handle)
	}

	if wcfg := config.GetWorkerConfig(cfg, cmpl.TaskType); wcfg.Enabled {
		handler := cmpl.NewHandler(
			&cmpl.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			engagements, log,
		)
		manager.Start(cmpl.TaskType, wcfg, handler.Handle)
	}

	if wcfg := config.GetWorkerConfig(cfg, mnc.TaskType); wcfg.Enabled {
		handler := mnc.NewHandler(
			&mnc.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			engagements, log,
		)
		manager.Start(mnc.TaskType, wcfg, handler.Handle)
	}

	if wcfg := config.GetWorkerConfig(cfg, cert.TaskType); wcfg.Enabled {
		handler := cert.NewHandler(
			&cert.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			engagements, log,
		)
		manager.Start(cert.TaskType, wcfg, handler.Handle)
	}

	// --- 3. Notification Workers (2) ---
	if wcfg := config.GetWorkerConfig(cfg, dn.TaskType); wcfg.Enabled {
		handler := dn.NewHandler(
			&dn.Config{
				EmailEnabled: cfg.Notifications.Email.Enabled,
				SMSEnabled:   cfg.Notifications.SMS.Enabled,
				FromEmail:    cfg.Notifications.Email.FromEmail,
				SenderID:     cfg.Notifications.SMS.SenderID,
				AWSRegion:    cfg.Notifications.AWS.Region,
				Timeout:      config.GetDuration(wcfg.Timeout),
			},
			pg.DB, dispatcher, emailSender, smsSender, log,
		)
		manager.Start(dn.TaskType, wcfg, handler.Handle)
	}

	if wcfg := config.GetWorkerConfig(cfg, mnr.TaskType); wcfg.Enabled {
		handler := mnr.NewHandler(
			&mnr.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			dispatcher, store, log,
		)
		manager.Start(mnr.TaskType, wcfg, handler.Handle)
	}

	// --- 4. Data Access Workers (2) ---
	if wcfg := config.GetWorkerConfig(cfg, qp.TaskType); wcfg.Enabled {
		handler := qp.NewHandler(
			&qp.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			qpq.Deps{
				DB:          pg.DB,
				Tasks:       tasks,
				Engagements: engagements,
				Notifier:    dispatcher,
				Cache:       store,
			},
			log,
		)
		manager.Start(qp.TaskType, wcfg, handler.Handle)
	}

	if wcfg := config.GetWorkerConfig(cfg, qe.TaskType); wcfg.Enabled {
		handler := qe.NewHandler(
			&qe.Config{
				Index:   cfg.Search.TaskIndex,
				Timeout: config.GetDuration(wcfg.Timeout),
			},
			esClient.Client, log,
		)
		manager.Start(qe.TaskType, wcfg, handler.Handle)
	}

	// --- 5. Identity Workers (1) ---
	if wcfg := config.GetWorkerConfig(cfg, ri.TaskType); wcfg.Enabled {
		handler := ri.NewHandler(
			&ri.Config{
				CacheTTL: time.Duration(cfg.Identity.CacheTTLSeconds) * time.Second,
				Timeout:  config.GetDuration(wcfg.Timeout),
			},
			pg.DB, idc, store, log,
		)
		manager.Start(ri.TaskType, wcfg, handler.Handle)
	}

	zapLog.Info(fmt.Sprintf("All %d workers registered successfully", manager.Count()))

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			readyCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := pg.Ping(readyCtx); err != nil {
				http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
				return
			}
			if err := redis.Ping(readyCtx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	manager.CloseAll()

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
