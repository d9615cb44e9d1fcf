package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

type Handler interface {
	Handle(ctx context.Context, job Job) error
}

type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// DeadLetterSink is told about every job that lands in the dead set.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, job Job) error
}

type WorkerConfig struct {
	Concurrency  int
	Lease        time.Duration
	PollInterval time.Duration
	StatsEvery   time.Duration
	Retry        RetryPolicy
	// RatePerSecond throttles handler invocations across all loops. Zero
	// disables throttling.
	RatePerSecond float64
	Burst         int
	// SettleTimeout bounds Ack, Retry, Bury and the dead-letter publish
	// after a handler returned. They outlive the run context so a shutdown
	// mid-job does not leave a finished job leased.
	SettleTimeout time.Duration
}

type Worker struct {
	queue    Queue
	logger   *slog.Logger
	cfg      WorkerConfig
	handlers map[string]Handler
	sink     DeadLetterSink
	limiter  *rate.Limiter
	tracer   trace.Tracer
	now      func() time.Time
}

func NewWorker(queue Queue, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StatsEvery <= 0 {
		cfg.StatsEvery = 15 * time.Second
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 5 * time.Second
	}
	cfg.Retry = cfg.Retry.withDefaults()

	w := &Worker{
		queue:    queue,
		logger:   logger,
		cfg:      cfg,
		handlers: map[string]Handler{},
		tracer:   otel.Tracer("github.com/md-rashed-zaman/gobarber/libs/jobqueue"),
		now:      time.Now,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return w
}

func (w *Worker) Register(kind string, h Handler) {
	w.handlers[kind] = h
}

func (w *Worker) SetDeadLetterSink(s DeadLetterSink) {
	w.sink = s
}

// Run starts Concurrency loops per registered kind and blocks until ctx is
// done and every in-flight job has finished.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for kind := range w.handlers {
		for i := 0; i < w.cfg.Concurrency; i++ {
			wg.Add(1)
			go func(kind string) {
				defer wg.Done()
				w.loop(ctx, kind)
			}(kind)
		}
		wg.Add(1)
		go func(kind string) {
			defer wg.Done()
			w.statsLoop(ctx, kind)
		}(kind)
	}
	w.logger.Info("job worker started", "kinds", len(w.handlers), "concurrency", w.cfg.Concurrency)
	wg.Wait()
	w.logger.Info("job worker stopped")
}

func (w *Worker) loop(ctx context.Context, kind string) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		processed, err := w.ProcessOne(ctx, kind)
		if err != nil && ctx.Err() == nil {
			w.logger.Error("job claim failed", "kind", kind, "err", err)
		}
		if processed {
			timer.Reset(0)
		} else {
			timer.Reset(w.cfg.PollInterval)
		}
	}
}

func (w *Worker) statsLoop(ctx context.Context, kind string) {
	ticker := time.NewTicker(w.cfg.StatsEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s, err := w.queue.Stats(ctx, kind)
			if err != nil {
				w.logger.Warn("job queue stats failed", "kind", kind, "err", err)
				continue
			}
			metrics.SetQueueDepth(kind, s.Waiting, s.Delayed, s.Active, s.Dead)
		}
	}
}

// ProcessOne claims and handles at most one job of kind. It reports whether
// a job was claimed.
func (w *Worker) ProcessOne(ctx context.Context, kind string) (bool, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}
	job, err := w.queue.Claim(ctx, kind, w.cfg.Lease)
	if errors.Is(err, ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	w.handle(ctx, job)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, job Job) {
	ctx, span := w.tracer.Start(job.Trace.Attach(ctx), "jobqueue.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.kind", job.Kind),
			attribute.Int("job.attempt", job.Attempts),
		),
	)
	defer span.End()

	logger := w.logger.With("job_id", job.ID, "kind", job.Kind, "attempt", job.Attempts)
	start := w.now()

	settleCtx, settle := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.SettleTimeout)
	defer settle()

	h, ok := w.handlers[job.Kind]
	var err error
	if !ok {
		err = fmt.Errorf("no handler registered for kind %q", job.Kind)
		w.bury(settleCtx, logger, job, err, start)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	hctx, cancel := context.WithTimeout(ctx, w.cfg.Lease)
	err = invoke(hctx, logger, h, job)
	cancel()

	if err == nil {
		if ackErr := w.queue.Ack(settleCtx, job); ackErr != nil {
			logger.Error("job ack failed", "err", ackErr)
		}
		metrics.RecordJob(job.Kind, "succeeded", w.now().Sub(start))
		logger.Info("job succeeded")
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if IsPermanent(err) {
		w.bury(settleCtx, logger, job, err, start)
		return
	}
	if w.cfg.Retry.Exhausted(job) {
		w.bury(settleCtx, logger, job, fmt.Errorf("%w: %w", ErrExhausted, err), start)
		return
	}

	delay := w.cfg.Retry.Delay(job.Attempts, err)
	if retryErr := w.queue.Retry(settleCtx, job, w.now().Add(delay), err.Error()); retryErr != nil {
		logger.Error("job retry failed", "err", retryErr)
	}
	metrics.RecordJob(job.Kind, "retried", w.now().Sub(start))
	logger.Warn("job failed, will retry", "err", err, "retry_in", delay.String())
}

func (w *Worker) bury(ctx context.Context, logger *slog.Logger, job Job, cause error, start time.Time) {
	reason := cause.Error()
	if err := w.queue.Bury(ctx, job, reason); err != nil {
		logger.Error("job bury failed", "err", err)
		return
	}
	metrics.RecordJob(job.Kind, "dead", w.now().Sub(start))
	logger.Error("job moved to dead set", "err", cause)

	if w.sink == nil {
		return
	}
	job.LastError = reason
	failedAt := w.now().UTC()
	job.FailedAt = &failedAt
	if err := w.sink.DeadLetter(ctx, job); err != nil {
		logger.Error("dead letter sink failed", "err", err)
	}
}

func invoke(ctx context.Context, logger *slog.Logger, h Handler, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("job handler panic", "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h.Handle(ctx, job)
}
