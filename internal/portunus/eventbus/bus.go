// Package eventbus is an in-process publish/subscribe bus with one topic per
// Go event type.  Publish never blocks: each subscriber owns a buffered
// queue and a goroutine, and an event that does not fit is dropped for that
// subscriber only.
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
)

const DefaultBuffer = 64

var (
	ErrClosed   = errors.New("event bus closed")
	ErrNilEvent = errors.New("nil event")
)

// DropCounter is told about every event dropped on a full subscriber queue.
type DropCounter interface {
	EventDropped(topic string)
}

type Bus struct {
	buffer int
	log    *slog.Logger
	drops  DropCounter

	mu     sync.RWMutex
	topics map[reflect.Type][]*Subscription
	all    []*Subscription
	closed bool

	wg sync.WaitGroup
}

type Option func(*Bus)

func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func WithLogger(l *slog.Logger) Option     { return func(b *Bus) { b.log = l } }
func WithDropCounter(d DropCounter) Option { return func(b *Bus) { b.drops = d } }

func New(opts ...Option) *Bus {
	b := &Bus{
		buffer: DefaultBuffer,
		topics: make(map[reflect.Type][]*Subscription),
	}
	for _, o := range opts {
		o(b)
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	return b
}

// Subscription is one handler attached to the bus.
type Subscription struct {
	bus     *Bus
	topic   reflect.Type // nil for SubscribeAll
	queue   chan any
	handler func(any)
	once    sync.Once
}

// Subscribe attaches handler to events of type T.
func Subscribe[T any](b *Bus, handler func(T)) (*Subscription, error) {
	return b.subscribe(reflect.TypeFor[T](), func(v any) { handler(v.(T)) })
}

// SubscribeAll attaches handler to every event published on the bus.
func SubscribeAll(b *Bus, handler func(any)) (*Subscription, error) {
	return b.subscribe(nil, handler)
}

func (b *Bus) subscribe(topic reflect.Type, handler func(any)) (*Subscription, error) {
	s := &Subscription{
		bus:     b,
		topic:   topic,
		queue:   make(chan any, b.buffer),
		handler: handler,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if topic == nil {
		b.all = append(b.all, s)
	} else {
		b.topics[topic] = append(b.topics[topic], s)
	}

	b.wg.Add(1)
	go s.run()
	return s, nil
}

// Unsubscribe detaches the handler.  Events already queued are still
// delivered.  Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.topic == nil {
		s.bus.all = without(s.bus.all, s)
	} else {
		subs := without(s.bus.topics[s.topic], s)
		if len(subs) == 0 {
			delete(s.bus.topics, s.topic)
		} else {
			s.bus.topics[s.topic] = subs
		}
	}
	s.stop()
}

// stop must be called with the bus lock held.
func (s *Subscription) stop() {
	s.once.Do(func() { close(s.queue) })
}

func (s *Subscription) run() {
	defer s.bus.wg.Done()
	for ev := range s.queue {
		s.deliver(ev)
	}
}

func (s *Subscription) deliver(ev any) {
	defer func() {
		if r := recover(); r != nil {
			s.bus.log.Error("event subscriber panicked", "topic", topicName(reflect.TypeOf(ev)), "panic", r)
		}
	}()
	s.handler(ev)
}

// Publish queues ev for every subscriber of its type and every SubscribeAll
// subscriber.
func (b *Bus) Publish(_ context.Context, ev any) error {
	if ev == nil {
		return ErrNilEvent
	}
	topic := reflect.TypeOf(ev)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, s := range b.topics[topic] {
		b.offer(s, topic, ev)
	}
	for _, s := range b.all {
		b.offer(s, topic, ev)
	}
	return nil
}

func (b *Bus) offer(s *Subscription, topic reflect.Type, ev any) {
	select {
	case s.queue <- ev:
	default:
		name := topicName(topic)
		b.log.Warn("subscriber queue full, event dropped", "topic", name)
		if b.drops != nil {
			b.drops.EventDropped(name)
		}
	}
}

// Close stops accepting events, delivers what is already queued and waits
// for every subscriber goroutine to finish.  It must not be called from a
// handler.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.topics {
		for _, s := range subs {
			s.stop()
		}
	}
	for _, s := range b.all {
		s.stop()
	}
	b.topics = make(map[reflect.Type][]*Subscription)
	b.all = nil
	b.mu.Unlock()

	b.wg.Wait()
}

func without(subs []*Subscription, s *Subscription) []*Subscription {
	out := subs[:0:0]
	for _, x := range subs {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}

func topicName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
