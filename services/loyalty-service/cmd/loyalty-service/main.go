package main

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/detailcrm/libs/auth"
	"github.com/md-rashed-zaman/detailcrm/libs/config"
	"github.com/md-rashed-zaman/detailcrm/libs/db"
	"github.com/md-rashed-zaman/detailcrm/libs/grpcx"
	"github.com/md-rashed-zaman/detailcrm/libs/httpx"
	"github.com/md-rashed-zaman/detailcrm/libs/kafkax"
	otelx "github.com/md-rashed-zaman/detailcrm/libs/otel"
	"github.com/md-rashed-zaman/detailcrm/libs/runtime"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/consumer"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/expiry"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/handlers"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/inbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/loyalty"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/outbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/storage"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const grpcServiceName = "detailcrm.loyalty"

func main() {
	service := config.String("SERVICE_NAME", "loyalty-service")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		applied, err := db.ApplyMigrations(ctx, pool, migrations.FS)
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "count", len(applied), "files", applied)
	}

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	signer := auth.NewSigner(jwtSecret, config.Duration("JWT_TTL", time.Hour))

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository()
	svc := loyalty.New(repo, outboxRepo, inbox.NewRepository(), signer, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Optional: brokers == "", Check: kafkax.ReadyCheck(brokers)},
	}

	// Authenticated calls are limited per tenant; the edge limit per client IP
	// also covers the public token and webhook endpoints.
	tenantPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	ipPerMinute := config.Int("RATE_LIMIT_IP_PER_MINUTE", 600)
	prefix := config.String("RATE_LIMIT_PREFIX", "loyalty:rl")
	var tenantLimiter, ipLimiter httpx.Limiter
	if redisURL := strings.TrimSpace(config.String("REDIS_URL", "")); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		tenantLimiter = httpx.NewRedisRateLimiter(rdb, tenantPerMinute, time.Minute, prefix+":tenant")
		ipLimiter = httpx.NewRedisRateLimiter(rdb, ipPerMinute, time.Minute, prefix+":ip")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Optional: true, Check: httpx.RedisReadyCheck(rdb)})
		logger.Info("rate limiting enabled (redis)", "tenant_per_minute", tenantPerMinute, "ip_per_minute", ipPerMinute, "redis_addr", opts.Addr)
	} else {
		tenantLimiter = httpx.NewRateLimiter(tenantPerMinute, time.Minute)
		ipLimiter = httpx.NewRateLimiter(ipPerMinute, time.Minute)
		logger.Info("rate limiting enabled (in-memory)", "tenant_per_minute", tenantPerMinute, "ip_per_minute", ipPerMinute)
	}
	failOpen := config.Bool("RATE_LIMIT_FAIL_OPEN", true)
	onLimiterError := func(err error) {
		logger.Warn("rate limiter error", "err", err)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	h := handlers.New(svc, logger, handlers.Config{
		StripeWebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance: time.Duration(config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300)) * time.Second,
	})
	h.Routes(mux, auth.Authenticated(signer, httpx.RateLimit(tenantLimiter, auth.TenantKey, onLimiterError, failOpen)))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.RateLimit(ipLimiter, httpx.ClientIP, onLimiterError, failOpen),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "loyalty")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	grpcSrv := grpcx.NewServer(logger)
	if lis, err := net.Listen("tcp", ":"+config.String("GRPC_PORT", "9095")); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	} else {
		grpcSrv.SetServing(grpcServiceName, true)
		grpcSrv.Start(ctx, lis)
	}

	if brokers != "" {
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)

		c := consumer.New(logger, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "loyalty-service"),
			Topics: config.List("KAFKA_APPOINTMENT_TOPICS", []string{
				"booking.appointment.booked.v1",
				"booking.appointment.cancelled.v1",
				"booking.appointment.completed.v1",
			}),
		}, svc.HandleAppointmentMessage)
		go c.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox publisher and appointment consumer disabled")
	}

	if config.Bool("EXPIRY_WORKER_ENABLED", true) {
		w := expiry.NewWorker(svc, expiry.NewPGLocker(pool), logger, expiry.Config{
			Interval:        config.Duration("EXPIRY_SWEEP_INTERVAL", time.Hour),
			AdvisoryLockKey: int64(config.Int("EXPIRY_ADVISORY_LOCK_KEY", 7316002)),
		})
		go w.Run(ctx)
	}

	<-ctx.Done()
	grpcSrv.SetServing(grpcServiceName, false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
