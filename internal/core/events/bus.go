package events

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler is invoked per delivered event. A returned error is joined into
// the result of Publish; it never stops delivery to other handlers.
type Handler func(Event) error

// Observer is told about every publish. Observers should return quickly.
type Observer interface {
	OnDelivered(eventType string, handlers int, err error, took time.Duration)
}

// Metrics are counted only while at least one observer is registered.
type Metrics struct {
	Published   uint64
	Delivered   uint64
	Errors      uint64
	Subscribers uint64
}

// Subscription is a registered handler. Cancel is safe to call repeatedly.
type Subscription struct {
	id        string
	seq       uint64
	eventType string
	handler   Handler
	bus       *Bus
}

func (s *Subscription) ID() string        { return s.id }
func (s *Subscription) EventType() string { return s.eventType }

func (s *Subscription) Cancel() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.remove(s)
}

// Bus is a synchronous, thread-safe publish/subscribe hub. Handlers of one
// event run in the order they subscribed, in the publisher's goroutine.
type Bus struct {
	mu        sync.RWMutex
	seq       uint64
	handlers  map[string]map[string]*Subscription
	observers map[Observer]struct{}
	metrics   Metrics
}

func NewBus() *Bus {
	return &Bus{
		handlers:  make(map[string]map[string]*Subscription),
		observers: make(map[Observer]struct{}),
	}
}

// Subscribe registers handler for eventType, or for every type with Any.
func (b *Bus) Subscribe(eventType string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	s := &Subscription{id: uuid.NewString(), seq: b.seq, eventType: eventType, handler: handler, bus: b}
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]*Subscription)
	}
	b.handlers[eventType][s.id] = s
	return s
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m := b.handlers[s.eventType]; m != nil {
		delete(m, s.id)
		if len(m) == 0 {
			delete(b.handlers, s.eventType)
		}
	}
}

func (b *Bus) Publish(e Event) error {
	if b == nil {
		return nil
	}
	start := time.Now()

	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.handlers[e.Type])+len(b.handlers[Any]))
	for _, s := range b.handlers[e.Type] {
		subs = append(subs, s)
	}
	if e.Type != Any {
		for _, s := range b.handlers[Any] {
			subs = append(subs, s)
		}
	}
	observers := make([]Observer, 0, len(b.observers))
	for o := range b.observers {
		observers = append(observers, o)
	}
	b.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })

	var errs []error
	for _, s := range subs {
		if err := s.handler(e); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)

	if len(observers) > 0 {
		took := time.Since(start)
		for _, o := range observers {
			o.OnDelivered(e.Type, len(subs), err, took)
		}
		b.mu.Lock()
		b.metrics.Published++
		b.metrics.Delivered += uint64(len(subs))
		if err != nil {
			b.metrics.Errors++
		}
		var n uint64
		for _, m := range b.handlers {
			n += uint64(len(m))
		}
		b.metrics.Subscribers = n
		b.mu.Unlock()
	}
	return err
}

func (b *Bus) AddObserver(o Observer) {
	b.mu.Lock()
	b.observers[o] = struct{}{}
	b.mu.Unlock()
}

func (b *Bus) RemoveObserver(o Observer) {
	b.mu.Lock()
	delete(b.observers, o)
	b.mu.Unlock()
}

func (b *Bus) Metrics() Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

// Recorder keeps every event it sees, in delivery order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Record subscribes a new recorder to the given types (all types when none
// are given).
func Record(b *Bus, types ...string) *Recorder {
	r := &Recorder{}
	if len(types) == 0 {
		types = []string{Any}
	}
	for _, t := range types {
		b.Subscribe(t, r.handle)
	}
	return r
}

func (r *Recorder) handle(e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(typ string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
