// Package events carries job status transitions from workers to connected
// clients. Events are transient; the job row stays the source of truth.
package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/internal/models"
)

const subscriberBuffer = 16

// Broadcaster fans a job's status events out to its subscribers. Publishing
// never blocks: a subscriber that falls more than subscriberBuffer events
// behind loses the oldest ones and reconciles via the job row.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[int]chan models.StatusEvent
	nextID int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uuid.UUID]map[int]chan models.StatusEvent)}
}

// Publish delivers ev to every current subscriber of ev.JobID.
func (b *Broadcaster) Publish(ev models.StatusEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; it catches up from the row.
		}
	}
}

// Subscribe registers a channel for jobID's events. The returned cancel
// func must be called exactly once; it removes the registration and closes
// the channel.
func (b *Broadcaster) Subscribe(jobID uuid.UUID) (<-chan models.StatusEvent, func()) {
	ch := make(chan models.StatusEvent, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[int]chan models.StatusEvent)
	}
	b.subs[jobID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[jobID], id)
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// SubscriberCount reports the live subscriptions for jobID.
func (b *Broadcaster) SubscriberCount(jobID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}
