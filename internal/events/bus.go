package events

import (
	"sync"

	"go.uber.org/zap"
)

// #region bus
// Bus fans events out to subscribers. Each subscriber has its own buffered
// channel; a full buffer drops the event for that subscriber only, so a slow
// consumer never stalls the session core.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	dropped map[int]int
	closed  bool
	log     *zap.Logger
}

// NewBus creates an empty bus. log may be nil.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		subs:    make(map[int]chan Event),
		dropped: make(map[int]int),
		log:     log,
	}
}

// Subscribe registers a consumer with the given buffer size. The returned
// cancel func unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped[id]++
			b.log.Warn("event dropped: subscriber buffer full",
				zap.Int("subscriber", id),
				zap.String("kind", string(ev.Kind())),
				zap.Int("dropped_total", b.dropped[id]),
			)
		}
	}
}

// Dropped returns the total number of events dropped across subscribers.
func (b *Bus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, d := range b.dropped {
		n += d
	}
	return n
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// #endregion bus

// #region recorder
// Recorder keeps every published event in order. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish appends ev.
func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of recorded events, skipping TimersUpdated.
func (r *Recorder) Kinds() []Kind {
	var out []Kind
	for _, ev := range r.Events() {
		if ev.Kind() == KindTimersUpdated {
			continue
		}
		out = append(out, ev.Kind())
	}
	return out
}

// Decisions returns the recorded DecisionMade events.
func (r *Recorder) Decisions() []DecisionMade {
	var out []DecisionMade
	for _, ev := range r.Events() {
		if d, ok := ev.(DecisionMade); ok {
			out = append(out, d)
		}
	}
	return out
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// #endregion recorder

// #region multi
// Multi publishes to several sinks in order.
type Multi []Sink

// Publish forwards ev to each sink.
func (m Multi) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// #endregion multi
