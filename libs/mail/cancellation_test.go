package mail

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/md-rashed-zaman/gobarber/libs/datefmt"
	"github.com/md-rashed-zaman/gobarber/libs/email"
	"github.com/md-rashed-zaman/gobarber/libs/events"
	"github.com/md-rashed-zaman/gobarber/libs/jobqueue"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []email.Message
	errs []error
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cancellationJob(t *testing.T, id string) jobqueue.Job {
	t.Helper()
	payload, err := json.Marshal(events.CancellationRequested{
		AppointmentID: 11,
		Date:          time.Date(2026, 3, 5, 13, 0, 0, 0, time.UTC),
		CanceledAt:    time.Date(2026, 3, 5, 10, 59, 0, 0, time.UTC),
		Requester:     events.Party{ID: 1, Name: "Ana", Email: "ana@example.com"},
		Provider:      events.Party{ID: 2, Name: "Bruno Barber", Email: "bruno@example.com"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return jobqueue.Job{ID: id, Kind: events.KindCancellationMail, Payload: payload}
}

func TestCancellationHandler_RendersPtBR(t *testing.T) {
	sender := &recordingSender{}
	log := NewMemoryLog()
	saoPaulo := time.FixedZone("BRT", -3*3600)
	h := NewCancellationHandler(sender, log, discardLogger(), CancellationConfig{Locale: datefmt.PtBR, Location: saoPaulo})

	if err := h.Handle(context.Background(), cancellationJob(t, "job-1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("expected one mail, got %d", sender.count())
	}
	msg := sender.sent[0]
	if msg.To != "bruno@example.com" || msg.ToName != "Bruno Barber" {
		t.Fatalf("mail must go to the provider, got %+v", msg)
	}
	if msg.Subject != "Agendamento cancelado" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	for _, want := range []string{"Olá, Bruno Barber", "Cliente: Ana", "Data/hora: dia 05 de março, às 10:00h"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.Body)
		}
	}
	if log.Len() != 1 {
		t.Fatal("delivery must be recorded")
	}
}

func TestCancellationHandler_RendersEnUS(t *testing.T) {
	sender := &recordingSender{}
	h := NewCancellationHandler(sender, NewMemoryLog(), discardLogger(), CancellationConfig{Locale: datefmt.EnUS})
	if err := h.Handle(context.Background(), cancellationJob(t, "job-1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	msg := sender.sent[0]
	if msg.Subject != "Appointment canceled" || !strings.Contains(msg.Body, "March 05, at 13:00") {
		t.Fatalf("unexpected mail %+v", msg)
	}
}

func TestCancellationHandler_SkipsDelivered(t *testing.T) {
	sender := &recordingSender{}
	h := NewCancellationHandler(sender, NewMemoryLog(), discardLogger(), CancellationConfig{})
	job := cancellationJob(t, "job-1")
	for i := 0; i < 3; i++ {
		if err := h.Handle(context.Background(), job); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}
	if sender.count() != 1 {
		t.Fatalf("redelivered job must not resend, sent %d", sender.count())
	}
}

func TestCancellationHandler_Errors(t *testing.T) {
	h := NewCancellationHandler(&recordingSender{}, NewMemoryLog(), discardLogger(), CancellationConfig{})

	bad := jobqueue.Job{ID: "bad", Kind: events.KindCancellationMail, Payload: []byte(`{"appointment_id":"x"}`)}
	if err := h.Handle(context.Background(), bad); !jobqueue.IsPermanent(err) {
		t.Fatalf("undecodable payload must be permanent, got %v", err)
	}

	noEmail := jobqueue.Job{ID: "no-email", Kind: events.KindCancellationMail, Payload: []byte(`{"appointment_id":1}`)}
	if err := h.Handle(context.Background(), noEmail); !jobqueue.IsPermanent(err) {
		t.Fatalf("missing address must be permanent, got %v", err)
	}

	transient := &recordingSender{errs: []error{email.ErrDeliveryFailed}}
	log := NewMemoryLog()
	h = NewCancellationHandler(transient, log, discardLogger(), CancellationConfig{})
	err := h.Handle(context.Background(), cancellationJob(t, "job-2"))
	if !errors.Is(err, email.ErrDeliveryFailed) || jobqueue.IsPermanent(err) {
		t.Fatalf("expected transient failure, got %v", err)
	}
	if log.Len() != 0 {
		t.Fatal("failed send must not be recorded")
	}
}

func TestCancellationHandler_ThroughWorker(t *testing.T) {
	ctx := context.Background()
	queue := jobqueue.NewMemoryQueue()
	sender := &recordingSender{errs: []error{email.ErrDeliveryFailed}}
	worker := jobqueue.NewWorker(queue, discardLogger(), jobqueue.WorkerConfig{
		Retry: jobqueue.RetryPolicy{MaxAttempts: 3, Initial: time.Nanosecond, Max: time.Nanosecond},
	})
	worker.Register(events.KindCancellationMail, NewCancellationHandler(sender, NewMemoryLog(), discardLogger(), CancellationConfig{}))

	if _, err := queue.Add(ctx, cancellationJob(t, "evt-1")); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Re-adding the same event id is a no-op.
	if _, err := queue.Add(ctx, cancellationJob(t, "evt-1")); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	if _, err := worker.ProcessOne(ctx, events.KindCancellationMail); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if sender.count() != 0 {
		t.Fatal("first attempt was set up to fail")
	}

	time.Sleep(time.Millisecond)
	claimed, err := worker.ProcessOne(ctx, events.KindCancellationMail)
	if err != nil || !claimed {
		t.Fatalf("retry was not claimed: %v %v", claimed, err)
	}
	if sender.count() != 1 {
		t.Fatalf("expected one mail after retry, got %d", sender.count())
	}
	stats, _ := queue.Stats(ctx, events.KindCancellationMail)
	if stats != (jobqueue.Stats{}) {
		t.Fatalf("queue should be drained, got %+v", stats)
	}
}

func TestCancellationHandler_PermanentSendBuries(t *testing.T) {
	ctx := context.Background()
	queue := jobqueue.NewMemoryQueue()
	sender := &recordingSender{errs: []error{backoff.Permanent(email.ErrDeliveryFailed)}}
	worker := jobqueue.NewWorker(queue, discardLogger(), jobqueue.WorkerConfig{})
	worker.Register(events.KindCancellationMail, NewCancellationHandler(sender, NewMemoryLog(), discardLogger(), CancellationConfig{}))

	if _, err := queue.Add(ctx, cancellationJob(t, "evt-9")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := worker.ProcessOne(ctx, events.KindCancellationMail); err != nil {
		t.Fatalf("process: %v", err)
	}
	dead, err := queue.Dead(ctx, events.KindCancellationMail, 10)
	if err != nil || len(dead) != 1 || dead[0].ID != "evt-9" {
		t.Fatalf("expected evt-9 in dead set, got %+v %v", dead, err)
	}
}
