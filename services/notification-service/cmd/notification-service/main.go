package main

import (
	"context"
	"net"
	"net/http"
	"time"

	_ "time/tzdata"

	"github.com/md-rashed-zaman/gobarber/libs/config"
	"github.com/md-rashed-zaman/gobarber/libs/datefmt"
	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/libs/email"
	"github.com/md-rashed-zaman/gobarber/libs/events"
	"github.com/md-rashed-zaman/gobarber/libs/grpcx"
	"github.com/md-rashed-zaman/gobarber/libs/httpx"
	"github.com/md-rashed-zaman/gobarber/libs/jobqueue"
	"github.com/md-rashed-zaman/gobarber/libs/kafkax"
	"github.com/md-rashed-zaman/gobarber/libs/mail"
	"github.com/md-rashed-zaman/gobarber/libs/metrics"
	otelx "github.com/md-rashed-zaman/gobarber/libs/otel"
	"github.com/md-rashed-zaman/gobarber/libs/redisx"
	"github.com/md-rashed-zaman/gobarber/libs/runtime"
	"github.com/md-rashed-zaman/gobarber/services/notification-service/internal/handlers"
	"github.com/md-rashed-zaman/gobarber/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "notification-service")
	logger := runtime.NewLogger(service)

	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9095")
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

	redisAddr, err := config.RequiredString("REDIS_ADDR")
	if err != nil {
		panic(err)
	}
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
	queue := jobqueue.NewRedisQueue(rdb, jobqueue.RedisOptions{
		Prefix:  config.String("JOBQUEUE_PREFIX", "gobarber:q"),
		DoneTTL: config.Duration("JOBQUEUE_DONE_TTL", 7*24*time.Hour),
	})

	locale, err := datefmt.ParseLocale(config.String("APP_LOCALE", "pt-BR"))
	if err != nil {
		panic(err)
	}
	loc, err := datefmt.LoadLocation(config.String("APP_TIMEZONE", "America/Sao_Paulo"))
	if err != nil {
		panic(err)
	}

	worker := jobqueue.NewWorker(queue, logger, jobqueue.WorkerConfigFromEnv())
	worker.Register(events.KindCancellationMail, mail.NewCancellationHandler(
		email.NewSender(email.ConfigFromEnv(), logger),
		storage.NewDeliveryRepository(pool),
		logger,
		mail.CancellationConfig{Locale: locale, Location: loc},
	))

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "redis", Check: redisx.ReadyCheck(rdb)},
	}
	if brokers := config.List("KAFKA_BROKERS", ""); len(brokers) > 0 {
		producer := kafkax.NewProducer(brokers)
		defer producer.Close()
		worker.SetDeadLetterSink(jobqueue.NewKafkaSink(producer, events.TypeCancellationDead))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	grpcServer, healthServer := grpcx.NewServer(logger)
	go func() {
		if err := grpcx.Serve(ctx, logger, grpcServer, healthServer, net.JoinHostPort("", grpcPort)); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("GET /metrics", metrics.Handler())
	handlers.NewOpsHandler(queue, config.String("OPS_TOKEN", ""), []string{events.KindCancellationMail}, logger).Register(mux)

	httpHandler := httpx.Chain(metrics.WithHTTPMetrics(mux),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithTimeout(config.Duration("HTTP_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)

	<-workerDone
	logger.Info("worker stopped")
}
