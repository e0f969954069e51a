// Package events is the process-wide signal bus between the scheduling core
// and whatever presents its results. Create one Bus at process start and pass
// it to every component; it needs no teardown.
package events

import (
	"sync"
	"time"
)

type Topic string

const (
	// TopicRefresh asks views of reminder state to reload.
	TopicRefresh Topic = "refresh"
	// TopicWarning carries a one-time user-visible warning.
	TopicWarning Topic = "warning"
	// TopicSummary carries a reconciliation summary meant for the user.
	TopicSummary Topic = "summary"
)

type Event struct {
	Topic   Topic
	Message string
	Payload any
	At      time.Time
}

const defaultBuffer = 16

type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic]map[int]chan Event
	next   int
	buffer int
}

func NewBus() *Bus {
	return &Bus{
		subs:   make(map[Topic]map[int]chan Event),
		buffer: defaultBuffer,
	}
}

// Subscribe returns a buffered channel of events on topic and a function that
// ends the subscription and closes the channel.
func (b *Bus) Subscribe(topic Topic) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	id := b.next
	b.next++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Event)
	}
	b.subs[topic][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
			close(ch)
		})
	}
}

// Publish never blocks. A subscriber whose buffer is full misses the event.
// It returns how many subscribers received it.
func (b *Bus) Publish(e Event) int {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subs[e.Topic] {
		select {
		case ch <- e:
			delivered++
		default:
		}
	}
	return delivered
}

// Emit publishes an event with only a topic and message.
func (b *Bus) Emit(topic Topic, message string) int {
	return b.Publish(Event{Topic: topic, Message: message})
}
