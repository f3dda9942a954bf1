package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
)

const subscriberBuffer = 16

// Broadcaster tracks the raw state of an engine and fans changes out to
// subscribers. Engines embed it to satisfy State, ConnectedDate and Subscribe.
type Broadcaster struct {
	stateMu       sync.Mutex
	state         State
	connectedDate time.Time
	subscribers   cmap.ConcurrentMap[string, chan State]
}

// NewBroadcaster creates a broadcaster in StateDisconnected.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		state:       StateDisconnected,
		subscribers: cmap.New[chan State](),
	}
}

// SetState records the new state and notifies subscribers without blocking
// the engine. A subscriber whose buffer is full misses the update, except for
// StateDisconnected, which replaces the oldest queued state.
func (b *Broadcaster) SetState(state State) {
	b.stateMu.Lock()
	b.state = state
	switch state {
	case StateConnected:
		b.connectedDate = time.Now()
	case StateDisconnected, StateInvalid:
		b.connectedDate = time.Time{}
	}
	// Publishing under the lock keeps per-subscriber order equal to SetState order.
	for item := range b.subscribers.IterBuffered() {
		select {
		case item.Val <- state:
			continue
		default:
		}
		if state != StateDisconnected {
			continue
		}
		// Only this goroutine sends, so one slot is free after the receive.
		select {
		case <-item.Val:
		default:
		}
		item.Val <- state
	}
	b.stateMu.Unlock()
}

// State returns the current state.
func (b *Broadcaster) State() State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

// ConnectedDate returns when the state last became connected.
func (b *Broadcaster) ConnectedDate() time.Time {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.connectedDate
}

// Subscribe registers a new listener. The returned cancel func closes the
// channel and is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan State, func()) {
	id := uuid.NewString()
	ch := make(chan State, subscriberBuffer)

	b.stateMu.Lock()
	b.subscribers.Set(id, ch)
	b.stateMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.stateMu.Lock()
			b.subscribers.Remove(id)
			close(ch)
			b.stateMu.Unlock()
		})
	}
	return ch, cancel
}
