// Package chatroom implements the broadcast topic (Room) and the named
// directory of rooms (Room Registry) that sit between the coordinator and
// every subscribed session.
package chatroom

import (
	"errors"
	"sync"
	"time"

	"github.com/chatcore/chatserver/internal/metrics"
	"github.com/chatcore/chatserver/internal/wire"
)

// ErrNoSubscribers is returned by Publish when the room currently has no
// subscribers; it is not an error condition for the caller, only a signal.
var ErrNoSubscribers = errors.New("chatroom: no subscribers")

// Room is a single broadcast topic. It does not know the identity of its
// subscribers beyond the opaque key used to subscribe/unsubscribe them;
// tracking who is a member of which room is the coordinator's job.
type Room struct {
	name      string
	createdAt time.Time
	backlog   int

	mu   sync.RWMutex
	subs map[uint64]chan wire.Message
}

// New creates a Room with the given broadcast backlog capacity per subscriber.
func New(name string, backlog int) *Room {
	return &Room{
		name:      name,
		createdAt: time.Now(),
		backlog:   backlog,
		subs:      make(map[uint64]chan wire.Message),
	}
}

// Name returns the room's key.
func (r *Room) Name() string { return r.name }

// CreatedAt returns the room's creation timestamp (server-side bookkeeping
// only; never surfaced over the wire protocol).
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// Subscribe registers a new subscriber under key and returns the channel it
// should drain. The caller must eventually call the returned cancel func
// exactly once, typically from the fan-in task's cleanup path.
func (r *Room) Subscribe(key uint64) (<-chan wire.Message, func()) {
	ch := make(chan wire.Message, r.backlog)

	r.mu.Lock()
	r.subs[key] = ch
	count := len(r.subs)
	r.mu.Unlock()

	metrics.RoomSubscribers.WithLabelValues(r.name).Set(float64(count))

	cancel := func() { r.Unsubscribe(key) }
	return ch, cancel
}

// Unsubscribe removes key's subscription, if present. Safe to call more than
// once.
func (r *Room) Unsubscribe(key uint64) {
	r.mu.Lock()
	ch, ok := r.subs[key]
	if ok {
		delete(r.subs, key)
	}
	count := len(r.subs)
	r.mu.Unlock()

	if ok {
		close(ch)
		metrics.RoomSubscribers.WithLabelValues(r.name).Set(float64(count))
	}
}

// Count reports the current number of subscribers.
func (r *Room) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Publish delivers msg to every current subscriber exactly once. A subscriber
// that has fallen more than backlog messages behind loses its oldest queued
// message to make room (lossy broadcast); the publisher is never blocked.
// Returns ErrNoSubscribers if the room was empty at publish time.
func (r *Room) Publish(msg wire.Message) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.subs) == 0 {
		return ErrNoSubscribers
	}

	for _, ch := range r.subs {
		deliver(ch, msg, r.name)
	}
	return nil
}

// deliver attempts a non-blocking send; on a full channel it drops the
// subscriber's oldest queued message and retries once, emitting a metric for
// the drop instead of ever blocking the publisher.
func deliver(ch chan wire.Message, msg wire.Message, room string) {
	select {
	case ch <- msg:
		return
	default:
	}

	select {
	case <-ch:
		metrics.RoomBroadcastDropped.WithLabelValues(room).Inc()
	default:
	}

	select {
	case ch <- msg:
	default:
		// Lost a race with another publisher; drop this message rather than block.
		metrics.RoomBroadcastDropped.WithLabelValues(room).Inc()
	}
}
