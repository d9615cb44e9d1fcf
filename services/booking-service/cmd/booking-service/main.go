package main

import (
	"context"
	"net/http"
	"time"

	_ "time/tzdata"

	"github.com/md-rashed-zaman/gobarber/libs/auth"
	"github.com/md-rashed-zaman/gobarber/libs/config"
	"github.com/md-rashed-zaman/gobarber/libs/datefmt"
	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/libs/email"
	"github.com/md-rashed-zaman/gobarber/libs/events"
	"github.com/md-rashed-zaman/gobarber/libs/httpx"
	"github.com/md-rashed-zaman/gobarber/libs/jobqueue"
	"github.com/md-rashed-zaman/gobarber/libs/kafkax"
	"github.com/md-rashed-zaman/gobarber/libs/mail"
	"github.com/md-rashed-zaman/gobarber/libs/metrics"
	otelx "github.com/md-rashed-zaman/gobarber/libs/otel"
	"github.com/md-rashed-zaman/gobarber/libs/redisx"
	"github.com/md-rashed-zaman/gobarber/libs/runtime"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/notifications"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/timerules"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service)

	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	locale, err := datefmt.ParseLocale(config.String("APP_LOCALE", "pt-BR"))
	if err != nil {
		panic(err)
	}
	loc, err := datefmt.LoadLocation(config.String("APP_TIMEZONE", "America/Sao_Paulo"))
	if err != nil {
		panic(err)
	}

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
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()
	if config.Bool("DB_AUTO_MIGRATE", true) {
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("migration failed", "err", err)
			panic(err)
		}
	}

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	var (
		queue        jobqueue.Queue
		rateLimit    httpx.Middleware
		workerDone   = make(chan struct{})
		rateWindow   = config.Duration("RATE_LIMIT_WINDOW", time.Minute)
		rateRequests = config.Int("RATE_LIMIT_REQUESTS", 120)
	)
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb, err := redisx.Open(ctx, redisx.Options{
			Addr:     redisAddr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		if err != nil {
			logger.Error("redis connection failed", "err", err)
			panic(err)
		}
		defer rdb.Close()
		queue = jobqueue.NewRedisQueue(rdb, jobqueue.RedisOptions{
			Prefix:  config.String("JOBQUEUE_PREFIX", "gobarber:q"),
			DoneTTL: config.Duration("JOBQUEUE_DONE_TTL", 7*24*time.Hour),
		})
		rateLimit = httpx.NewRedisRateLimiter(rdb, rateRequests, rateWindow, "").Middleware(logger, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
		close(workerDone)
	} else {
		// Development: keep jobs in memory and send mail from this process.
		logger.Warn("REDIS_ADDR not set; using in-memory job queue with an embedded mail worker")
		mem := jobqueue.NewMemoryQueue()
		queue = mem
		rateLimit = httpx.NewRateLimiter(rateRequests, rateWindow).Middleware()

		worker := jobqueue.NewWorker(mem, logger, jobqueue.WorkerConfigFromEnv())
		worker.Register(events.KindCancellationMail, mail.NewCancellationHandler(
			email.NewSender(email.ConfigFromEnv(), logger),
			mail.NewMemoryLog(),
			logger,
			mail.CancellationConfig{Locale: locale, Location: loc},
		))
		go func() {
			defer close(workerDone)
			worker.Run(ctx)
		}()
	}

	relay := outbox.NewRelay(outbox.NewRepository(pool), logger, outbox.RelayConfig{
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	mailSink := outbox.NewQueueSink(queue, events.KindCancellationMail)
	mailSink.MaxAttempts = config.Int("JOB_MAX_ATTEMPTS", jobqueue.DefaultRetryPolicy().MaxAttempts)
	relay.Route(events.TypeCancellationRequested, mailSink)
	if brokers := config.List("KAFKA_BROKERS", ""); len(brokers) > 0 {
		producer := kafkax.NewProducer(brokers)
		defer producer.Close()
		relay.Fallback(outbox.NewKafkaSink(producer))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(ctx)
	}()

	filesURL := config.String("FILES_BASE_URL", "http://localhost:"+port)
	users := storage.NewUserRepository(pool, filesURL)
	feed := notifications.NewFeed(notifications.NewRepository(pool))
	scheduler := scheduling.NewService(
		users,
		storage.NewAppointmentRepository(pool, filesURL),
		feed,
		timerules.SystemClock{},
		logger,
		scheduling.Config{Locale: locale, Location: loc},
	)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("GET /metrics", metrics.Handler())
	handlers.NewAPI(scheduler, feed, users, logger).Register(mux, auth.Middleware(jwtSecret, logger))

	httpHandler := httpx.Chain(metrics.WithHTTPMetrics(mux),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicyFromEnv()),
		rateLimit,
		httpx.WithBodyLimit(int64(config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("HTTP_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)

	<-relayDone
	<-workerDone
	logger.Info("background workers stopped")
}
