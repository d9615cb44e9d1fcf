package mail

import (
	"context"
	"sync"
)

// MemoryLog is a process-local DeliveryLog for development.
type MemoryLog struct {
	mu   sync.Mutex
	sent map[string]Delivery
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{sent: map[string]Delivery{}}
}

func (l *MemoryLog) Delivered(_ context.Context, jobID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.sent[jobID]
	return ok, nil
}

func (l *MemoryLog) Record(_ context.Context, d Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sent[d.JobID]; !ok {
		l.sent[d.JobID] = d
	}
	return nil
}

func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}
