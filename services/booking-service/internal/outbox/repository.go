package outbox

import (
	"context"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/gobarber/libs/db"
	otelx "github.com/md-rashed-zaman/gobarber/libs/otel"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes evt inside the caller's transaction, stamping the current
// trace so the relay can continue it.
func Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	tc := otelx.CaptureTraceContext(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, evt.EventID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, tc.Traceparent, tc.Tracestate)
	return err
}

type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Trace         otelx.TraceContext
	CreatedAt     time.Time
}

// Lane selects the records one sink is responsible for. Types restricts the
// lane to those event types; Except removes event types owned by other lanes.
// Lanes are drained independently, so a failing sink only stalls its own
// records.
type Lane struct {
	Types  []string
	Except []string
}

func (l Lane) Matches(eventType string) bool {
	if len(l.Types) > 0 && !slices.Contains(l.Types, eventType) {
		return false
	}
	return !slices.Contains(l.Except, eventType)
}

// Drain locks up to limit unpublished records of lane, hands them to fn and
// marks the ids fn returns as published, all in one transaction. Concurrent
// relays skip each other's rows.
func (r *Repository) Drain(ctx context.Context, lane Lane, limit int, fn func(context.Context, []Record) []int64) (int, error) {
	published := 0
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		records, err := fetchUnpublished(ctx, tx, lane, limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		ids := fn(ctx, records)
		published = len(ids)
		return markPublished(ctx, tx, ids)
	})
	return published, err
}

func fetchUnpublished(ctx context.Context, tx pgx.Tx, lane Lane, limit int) ([]Record, error) {
	types, except := lane.Types, lane.Except
	if types == nil {
		types = []string{}
	}
	if except == nil {
		except = []string{}
	}
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload,
			COALESCE(traceparent, ''), COALESCE(tracestate, ''), created_at
		FROM outbox_events
		WHERE published_at IS NULL
			AND (cardinality($1::text[]) = 0 OR event_type = ANY($1::text[]))
			AND NOT (event_type = ANY($2::text[]))
		ORDER BY id
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, types, except, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID, &rcd.EventType, &rcd.Payload, &rcd.Trace.Traceparent, &rcd.Trace.Tracestate, &rcd.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func markPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
