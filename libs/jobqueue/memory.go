package jobqueue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue is the in-process Queue used for local development and tests.
// It has the same lease and retry semantics as RedisQueue but nothing
// survives a restart.
type MemoryQueue struct {
	mu    sync.Mutex
	now   func() time.Time
	kinds map[string]*memKind
	done  map[string]struct{}
}

type memKind struct {
	jobs    map[string]Job
	waiting []string
	delayed map[string]time.Time
	active  map[string]time.Time
	dead    map[string]time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		now:   time.Now,
		kinds: map[string]*memKind{},
		done:  map[string]struct{}{},
	}
}

// SetClock replaces the queue's time source.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *MemoryQueue) kind(name string) *memKind {
	k := q.kinds[name]
	if k == nil {
		k = &memKind{
			jobs:    map[string]Job{},
			delayed: map[string]time.Time{},
			active:  map[string]time.Time{},
			dead:    map[string]time.Time{},
		}
		q.kinds[name] = k
	}
	return k
}

func doneKey(kind, id string) string { return kind + "/" + id }

func (q *MemoryQueue) Add(_ context.Context, job Job) (Job, error) {
	if err := validate(job); err != nil {
		return Job{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now().UTC()
	}
	job.Attempts = 0
	if _, ok := q.done[doneKey(job.Kind, job.ID)]; ok {
		return job, nil
	}
	k := q.kind(job.Kind)
	if _, ok := k.jobs[job.ID]; ok {
		return job, nil
	}
	k.jobs[job.ID] = job
	k.waiting = append(k.waiting, job.ID)
	return job, nil
}

func (q *MemoryQueue) Claim(_ context.Context, kind string, lease time.Duration) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	k := q.kind(kind)
	for _, id := range dueIDs(k.delayed, now) {
		delete(k.delayed, id)
		k.waiting = append(k.waiting, id)
	}
	// Expired leases go to the head of the line.
	if expired := dueIDs(k.active, now); len(expired) > 0 {
		for _, id := range expired {
			delete(k.active, id)
		}
		k.waiting = append(expired, k.waiting...)
	}

	for len(k.waiting) > 0 {
		id := k.waiting[0]
		k.waiting = k.waiting[1:]
		job, ok := k.jobs[id]
		if !ok {
			continue
		}
		job.Attempts++
		k.jobs[id] = job
		k.active[id] = now.Add(lease)
		return job, nil
	}
	return Job{}, ErrEmpty
}

func dueIDs(set map[string]time.Time, now time.Time) []string {
	var ids []string
	for id, at := range set {
		if !at.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if set[ids[i]].Equal(set[ids[j]]) {
			return ids[i] < ids[j]
		}
		return set[ids[i]].Before(set[ids[j]])
	})
	return ids
}

func (q *MemoryQueue) Ack(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := q.kind(job.Kind)
	delete(k.active, job.ID)
	delete(k.jobs, job.ID)
	q.done[doneKey(job.Kind, job.ID)] = struct{}{}
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, job Job, runAt time.Time, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := q.kind(job.Kind)
	stored, ok := k.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	stored.LastError = reason
	k.jobs[job.ID] = stored
	delete(k.active, job.ID)
	k.delayed[job.ID] = runAt
	return nil
}

func (q *MemoryQueue) Bury(_ context.Context, job Job, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := q.kind(job.Kind)
	stored, ok := k.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	now := q.now().UTC()
	stored.LastError = reason
	stored.FailedAt = &now
	k.jobs[job.ID] = stored
	delete(k.active, job.ID)
	k.dead[job.ID] = now
	return nil
}

func (q *MemoryQueue) Dead(_ context.Context, kind string, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	k := q.kind(kind)
	ids := dueIDs(k.dead, time.Unix(1<<62, 0))
	// newest failure first
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, k.jobs[id])
	}
	return out, nil
}

func (q *MemoryQueue) Redrive(_ context.Context, kind, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := q.kind(kind)
	if _, ok := k.dead[id]; !ok {
		return ErrNotFound
	}
	job := k.jobs[id]
	job.Attempts = 0
	job.FailedAt = nil
	k.jobs[id] = job
	delete(k.dead, id)
	k.waiting = append(k.waiting, id)
	return nil
}

func (q *MemoryQueue) Stats(_ context.Context, kind string) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := q.kind(kind)
	return Stats{
		Waiting: int64(len(k.waiting)),
		Delayed: int64(len(k.delayed)),
		Active:  int64(len(k.active)),
		Dead:    int64(len(k.dead)),
	}, nil
}

func (q *MemoryQueue) Ping(context.Context) error { return nil }

var _ Queue = (*MemoryQueue)(nil)
