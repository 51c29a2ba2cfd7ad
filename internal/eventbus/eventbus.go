package eventbus

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"gitlab.com/freelanced/escrowd/internal/interfaces"
	"gitlab.com/freelanced/escrowd/internal/lib"
)

// Event is implemented by every notification payload published on the bus
type Event interface {
	EventName() string
}

// EventBus fans lifecycle notifications out to subscribers. Publish never
// blocks the publisher: each subscription buffers pending events in its own
// queue and a pump goroutine drains it into the subscriber channel in order.
type EventBus struct {
	subs *lib.Collection[string, *Subscription]
	log  interfaces.ILogger
}

func NewEventBus(log interfaces.ILogger) *EventBus {
	return &EventBus{
		subs: lib.NewCollection[string, *Subscription](),
		log:  log,
	}
}

// Subscribe registers interest in the given event names. An empty topics
// list subscribes to every event.
func (b *EventBus) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		topics: lib.NewSetFromSlice(topics),
		out:    make(chan Event),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go sub.pump()

	b.subs.Store(sub)
	b.log.Debugf("subscription %s added, topics %v", sub.id, topics)
	return sub
}

func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.subs.Delete(sub.id)
	sub.close()
	b.log.Debugf("subscription %s removed", sub.id)
}

func (b *EventBus) Publish(event Event) {
	b.subs.Range(func(sub *Subscription) bool {
		if sub.topics.Len() == 0 || sub.topics.Contains(event.EventName()) {
			sub.enqueue(event)
		}
		return true
	})
}

// Close terminates all subscriptions
func (b *EventBus) Close() {
	b.subs.Range(func(sub *Subscription) bool {
		b.Unsubscribe(sub)
		return true
	})
}

type Subscription struct {
	id     string
	topics lib.Set

	mu      sync.Mutex
	pending deque.Deque[Event]
	closed  bool

	out    chan Event
	notify chan struct{}
	done   chan struct{}
}

func (s *Subscription) ID() string {
	return s.id
}

// Events returns the channel the subscriber reads from. Events arrive in
// publish order.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

func (s *Subscription) enqueue(event Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending.PushBack(event)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	for {
		select {
		case <-s.done:
			close(s.out)
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if s.pending.Len() == 0 {
				s.mu.Unlock()
				break
			}
			event := s.pending.PopFront()
			s.mu.Unlock()

			select {
			case s.out <- event:
			case <-s.done:
				close(s.out)
				return
			}
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}

// Next blocks until an event arrives, the subscription is closed or the
// context is cancelled. Convenience for tests and polling consumers.
func (s *Subscription) Next(ctx context.Context) (Event, bool) {
	select {
	case event, ok := <-s.out:
		return event, ok
	case <-ctx.Done():
		return nil, false
	}
}
