// Package eventbus is the in-process fanout between the console service and
// its listeners (notifier, cache refresh logging).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	ScheduleCreated   = "schedule.created"
	ScheduleUpdated   = "schedule.updated"
	ScheduleDeleted   = "schedule.deleted"
	ClusterCreated    = "cluster.created"
	ClusterUpdated    = "cluster.updated"
	ClusterDeleted    = "cluster.deleted"
	BackupRequested   = "backup.requested"
	RestoreRequested  = "restore.requested"
	ClustersRefreshed = "clusters.refreshed"
)

// Event is a lightweight in-memory signal.
//
// Publish never blocks. Subscribers get buffered channels and a slow
// subscriber drops events.
type Event struct {
	Type      string    `json:"type"`
	Time      time.Time `json:"time"`
	Namespace string    `json:"namespace,omitempty"`
	Cluster   string    `json:"cluster,omitempty"`
	Target    string    `json:"target,omitempty"`
	Data      any       `json:"data,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock so unsubscribe cannot close a channel
	// mid-send; every send is non-blocking.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
