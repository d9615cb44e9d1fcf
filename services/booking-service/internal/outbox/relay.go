package outbox

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/jobqueue"
	"github.com/md-rashed-zaman/gobarber/libs/kafkax"
	"github.com/md-rashed-zaman/gobarber/libs/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Store is the slice of Repository the relay needs.
type Store interface {
	Drain(ctx context.Context, lane Lane, limit int, fn func(context.Context, []Record) []int64) (int, error)
}

// Sink receives relayed records. A record is marked published only after
// its sink returned nil.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, rec Record) error
}

type RelayConfig struct {
	PollEvery time.Duration
	BatchSize int
}

type Relay struct {
	store    Store
	logger   *slog.Logger
	routes   map[string]Sink
	fallback Sink
	cfg      RelayConfig
	tracer   trace.Tracer
}

func NewRelay(store Store, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Relay{
		store:  store,
		logger: logger,
		routes: map[string]Sink{},
		cfg:    cfg,
		tracer: otel.Tracer("github.com/md-rashed-zaman/gobarber/services/booking-service/internal/outbox"),
	}
}

// Route sends events of eventType to sink.
func (r *Relay) Route(eventType string, sink Sink) {
	r.routes[eventType] = sink
}

// Fallback receives every event without a route. With no fallback such
// events are marked published without delivery.
func (r *Relay) Fallback(sink Sink) {
	r.fallback = sink
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, lane := range r.lanes() {
				r.drainLane(ctx, lane)
			}
		}
	}
}

// drainLane keeps moving batches of one lane while they come back full.
func (r *Relay) drainLane(ctx context.Context, lane Lane) {
	for ctx.Err() == nil {
		n, err := r.store.Drain(ctx, lane, r.cfg.BatchSize, r.deliver)
		if err != nil {
			metrics.OutboxRelayErrors.Inc()
			r.logger.Error("outbox relay failed", "lane", lane.Types, "err", err)
			return
		}
		if n < r.cfg.BatchSize {
			return
		}
	}
}

// RelayBatch moves one batch per lane and returns how many records were
// published in total. A failing lane does not stop the others.
func (r *Relay) RelayBatch(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for _, lane := range r.lanes() {
		n, err := r.store.Drain(ctx, lane, r.cfg.BatchSize, r.deliver)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// lanes returns one lane per routed event type plus one for everything else.
func (r *Relay) lanes() []Lane {
	routed := make([]string, 0, len(r.routes))
	for eventType := range r.routes {
		routed = append(routed, eventType)
	}
	slices.Sort(routed)

	lanes := make([]Lane, 0, len(routed)+1)
	for _, eventType := range routed {
		lanes = append(lanes, Lane{Types: []string{eventType}})
	}
	return append(lanes, Lane{Except: routed})
}

func (r *Relay) deliver(ctx context.Context, records []Record) []int64 {
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		sink := r.routes[rec.EventType]
		if sink == nil {
			sink = r.fallback
		}
		if sink == nil {
			r.logger.Debug("outbox event has no sink", "event_type", rec.EventType, "event_id", rec.EventID)
			ids = append(ids, rec.ID)
			continue
		}

		recCtx, span := r.tracer.Start(rec.Trace.Attach(ctx), "outbox.relay",
			trace.WithSpanKind(trace.SpanKindProducer),
			trace.WithAttributes(
				attribute.String("event.id", rec.EventID),
				attribute.String("event.type", rec.EventType),
				attribute.String("outbox.sink", sink.Name()),
			),
		)
		err := sink.Deliver(recCtx, rec)
		span.End()
		if err != nil {
			r.logger.Warn("outbox delivery failed", "event_type", rec.EventType, "event_id", rec.EventID, "sink", sink.Name(), "err", err)
			continue
		}
		metrics.OutboxRelayed.WithLabelValues(rec.EventType, sink.Name()).Inc()
		ids = append(ids, rec.ID)
	}
	return ids
}

// QueueSink turns records into jobs of one kind. The job id is the event id,
// so relaying the same record twice enqueues it once.
type QueueSink struct {
	queue jobqueue.Queue
	kind  string
	// MaxAttempts overrides the worker's retry budget when positive.
	MaxAttempts int
}

func NewQueueSink(queue jobqueue.Queue, kind string) *QueueSink {
	return &QueueSink{queue: queue, kind: kind}
}

func (s *QueueSink) Name() string { return "jobqueue" }

func (s *QueueSink) Deliver(ctx context.Context, rec Record) error {
	_, err := s.queue.Add(ctx, jobqueue.Job{
		ID:          rec.EventID,
		Kind:        s.kind,
		Payload:     rec.Payload,
		MaxAttempts: s.MaxAttempts,
		EnqueuedAt:  rec.CreatedAt.UTC(),
		Trace:       rec.Trace,
	})
	return err
}

// KafkaSink publishes records to the topic named after their event type.
type KafkaSink struct {
	pub jobqueue.Publisher
}

func NewKafkaSink(pub jobqueue.Publisher) *KafkaSink {
	return &KafkaSink{pub: pub}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, rec Record) error {
	return s.pub.Publish(ctx, kafkax.Message{
		Key:   rec.AggregateID,
		Value: rec.Payload,
		Meta:  kafkax.EventMeta{EventID: rec.EventID, EventType: rec.EventType},
	})
}
