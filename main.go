package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrpos-order-services/internal/config"
	"qrpos-order-services/internal/db"
	httpapi "qrpos-order-services/internal/http"
	"qrpos-order-services/internal/http/handlers"
	"qrpos-order-services/internal/logger"
	"qrpos-order-services/internal/queue"
	"qrpos-order-services/internal/realtime"
	"qrpos-order-services/internal/scheduler"
	"qrpos-order-services/internal/services"
	"qrpos-order-services/internal/storage"
	"qrpos-order-services/internal/store"
	"qrpos-order-services/internal/ws"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.Env, cfg.InstanceID)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	clock := func() time.Time { return time.Now().UTC() }

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("database connection failed", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatal("database migration failed", zap.Error(err))
		}
		repo = store.NewPostgres(pool, clock)
	} else {
		if cfg.Env == "production" {
			log.Fatal("DATABASE_URL is required in production")
		}
		log.Warn("DATABASE_URL is empty; using seeded in-memory store")
		mem := store.NewSeededMemory()
		mem.SetClock(clock)
		repo = mem
	}

	if cfg.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("redis connection failed; outlet settings are read uncached", zap.Error(err))
		} else {
			defer rdb.Close()
			repo = store.NewCachedRepository(repo, rdb, cfg.OutletSettingsCacheTTL, log)
			log.Info("outlet settings cache enabled", zap.Duration("ttl", cfg.OutletSettingsCacheTTL))
		}
	}

	notifier := realtime.NewNotifier(cfg.InstanceID, log)
	orders := services.NewOrderService(repo, notifier, log, services.OrderServiceOptions{
		DecrementStock: cfg.StockDecrementOnOrder,
		Now:            clock,
	})

	wsServer := ws.New(orders, log, ws.Options{
		JWTSecret:           cfg.JWTSecret,
		TrackingTokenSecret: cfg.OrderTrackingTokenSecret,
		HeartbeatInterval:   cfg.WSHeartbeatInterval,
	})
	notifier.AddSink("ws", wsServer)

	if qc := connectQueue(cfg, log); qc != nil {
		defer qc.Close()
		notifier.AddSink("rabbitmq", queue.NewEventPublisher(qc))

		relay := queue.NewRelay(cfg.InstanceID, wsServer, log)
		go func() {
			if err := relay.Run(ctx, qc); err != nil && ctx.Err() == nil {
				log.Error("event relay stopped", zap.Error(err))
			}
		}()

		if cfg.RabbitMQWorkerMode == "daemon" {
			log.Info("event translator enabled", zap.String("mode", "daemon"))
			go func() {
				err := qc.ConsumeWithRetry(ctx, queue.EventsQueue, func(ctx context.Context, body []byte) error {
					return queue.ProcessEventToJobs(ctx, qc, log, body)
				}, 5, 5*time.Second)
				if err != nil && ctx.Err() == nil {
					log.Error("consumer stopped", zap.Error(err))
				}
			}()
		} else {
			log.Info("event translator disabled", zap.String("mode", cfg.RabbitMQWorkerMode))
		}
	} else {
		log.Info("broker disabled; events stay on this instance")
	}

	var proofs *storage.ProofStore
	if cfg.ObjectStoreBucket != "" {
		objects, err := storage.NewObjectStore(ctx, storage.Config{
			Endpoint:        cfg.ObjectStoreEndpoint,
			Region:          cfg.ObjectStoreRegion,
			AccessKeyID:     cfg.ObjectStoreAccessKeyID,
			SecretAccessKey: cfg.ObjectStoreSecretAccessKey,
			Bucket:          cfg.ObjectStoreBucket,
			PublicBaseURL:   cfg.ObjectStorePublicBaseURL,
			StorageClass:    cfg.ObjectStoreStorageClass,
		})
		if err != nil {
			log.Warn("object store unavailable; payment proof upload disabled", zap.Error(err))
		} else {
			proofs = storage.NewProofStore(objects, log)
		}
	}

	sched, err := scheduler.New(log)
	if err != nil {
		log.Fatal("scheduler init failed", zap.Error(err))
	}
	if err := sched.ScheduleExpirySweep(ctx, orders, cfg.PendingPaymentTTL, cfg.ExpirySweepInterval); err != nil {
		log.Fatal("expiry sweep schedule failed", zap.Error(err))
	}
	sched.Start()

	h := handlers.New(orders, repo, proofs, log, cfg)
	apiServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewRouter(log, cfg, h, wsServer),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("order api ready", zap.String("base", "/api"))
		log.Info("order ws ready", zap.String("base", "/ws"))
		log.Info("order service listening", zap.String("addr", cfg.HTTPAddr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctxShutdown); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
	if err := sched.Shutdown(); err != nil {
		log.Error("scheduler shutdown failed", zap.Error(err))
	}
	cancelRun()
}

// connectQueue dials the broker and declares the topology. Outside
// production a broken broker only disables cross-instance fan-out.
func connectQueue(cfg config.Config, log *zap.Logger) *queue.Client {
	if cfg.RabbitMQURL == "" {
		return nil
	}
	fail := func(msg string, err error) {
		if cfg.Env == "production" {
			log.Fatal(msg, zap.Error(err))
		}
		log.Warn(msg+"; continuing without broker", zap.Error(err))
	}

	qc, err := queue.New(cfg.RabbitMQURL)
	if err != nil {
		fail("rabbitmq connection failed", err)
		return nil
	}
	if err := queue.EnsureEventsTopology(qc); err != nil {
		fail("rabbitmq events topology failed", err)
		_ = qc.Close()
		return nil
	}
	if err := queue.EnsureNotificationJobsTopology(qc); err != nil {
		fail("rabbitmq notification_jobs topology failed", err)
		_ = qc.Close()
		return nil
	}
	log.Info("rabbitmq enabled", zap.String("exchange", queue.EventsExchange), zap.String("eventsQueue", queue.EventsQueue))
	return qc
}
