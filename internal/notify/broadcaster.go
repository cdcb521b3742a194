// ABOUTME: Post-insert delegate and in-memory fan-out of push-added events
// ABOUTME: Observers subscribe for newly stored pushes without polling the store

package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/debugkit/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Delegate is told about every push that was newly stored.
type Delegate interface {
	PushAdded(rec store.PushRecord)
}

// DelegateFunc adapts a function to Delegate.
type DelegateFunc func(rec store.PushRecord)

// PushAdded calls f(rec).
func (f DelegateFunc) PushAdded(rec store.PushRecord) { f(rec) }

// Broadcaster is a Delegate that fans push-added events out to subscribers.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan store.PushRecord // subID -> ch
	done        chan struct{}
	closed      bool
	logger      *slog.Logger
}

var _ Delegate = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan store.PushRecord),
		done:        make(chan struct{}),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber and returns its channel and subscription ID.
// The subscription is removed when ctx is cancelled or the broadcaster closes.
// Subscribing to a closed broadcaster returns an already closed channel.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan store.PushRecord, string) {
	subID := uuid.New().String()
	ch := make(chan store.PushRecord, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(subID)
		case <-b.done:
		}
	}()

	return ch, subID
}

// PushAdded publishes rec to every subscriber.
func (b *Broadcaster) PushAdded(rec store.PushRecord) {
	// Sends are non-blocking, so holding the read lock keeps Unsubscribe
	// from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.subscribers {
		select {
		case ch <- rec:
		default:
			b.logger.Debug("dropped push for slow subscriber",
				"sub_id", subID,
				"push_id", rec.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. It is safe to call multiple times.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}

	b.logger.Debug("broadcaster closed")
}

// Fanout calls each delegate in order. Nil entries are skipped.
type Fanout []Delegate

// PushAdded forwards rec to every delegate.
func (f Fanout) PushAdded(rec store.PushRecord) {
	for _, d := range f {
		if d != nil {
			d.PushAdded(rec)
		}
	}
}
