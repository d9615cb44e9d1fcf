package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
)

type memStore struct {
	mu   sync.Mutex
	tick time.Time
	rows map[string]model.Notification
}

func newMemStore() *memStore {
	return &memStore{
		tick: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		rows: map[string]model.Notification{},
	}
}

func (m *memStore) Insert(_ context.Context, n model.Notification) (model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tick = m.tick.Add(time.Minute)
	n.CreatedAt, n.UpdatedAt = m.tick, m.tick
	m.rows[n.ID] = n
	return n, nil
}

func (m *memStore) ListRecent(_ context.Context, recipientID int64, limit int) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Notification{}
	for _, n := range m.rows {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) MarkRead(_ context.Context, recipientID int64, id string) (model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.RecipientID != recipientID {
		return model.Notification{}, ErrNotFound
	}
	if !n.Read {
		m.tick = m.tick.Add(time.Minute)
		n.Read, n.UpdatedAt = true, m.tick
		m.rows[id] = n
	}
	return n, nil
}

func TestFeed_ListNewestFirstCapped(t *testing.T) {
	feed := NewFeed(newMemStore())
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		if _, err := feed.Notify(ctx, 2, "entry"); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	if _, err := feed.Notify(ctx, 4, "other provider"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	got, err := feed.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != PageSize {
		t.Fatalf("expected %d entries, got %d", PageSize, len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.After(got[i-1].CreatedAt) {
			t.Fatal("entries must be newest first")
		}
	}
	for _, n := range got {
		if n.RecipientID != 2 || n.Read {
			t.Fatalf("unexpected entry %+v", n)
		}
	}
}

func TestFeed_MarkReadIdempotent(t *testing.T) {
	feed := NewFeed(newMemStore())
	ctx := context.Background()
	n, err := feed.Notify(ctx, 2, "Agendamento marcado")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	first, err := feed.MarkRead(ctx, 2, n.ID)
	if err != nil || !first.Read {
		t.Fatalf("first mark: %+v %v", first, err)
	}
	second, err := feed.MarkRead(ctx, 2, n.ID)
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if second != first {
		t.Fatalf("state changed on second call: %+v vs %+v", second, first)
	}
}

func TestFeed_MarkReadNotFound(t *testing.T) {
	feed := NewFeed(newMemStore())
	ctx := context.Background()
	n, _ := feed.Notify(ctx, 2, "mine")

	for name, tc := range map[string]struct {
		recipient int64
		id        string
	}{
		"malformed":      {2, "not-a-uuid"},
		"unknown":        {2, "7f1c1b8e-1d2a-4c55-9a55-0c1f4b2a9e10"},
		"someone else's": {4, n.ID},
	} {
		if _, err := feed.MarkRead(ctx, tc.recipient, tc.id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}
