// Package eventbus fans execution events out to per-run subscribers.
//
// The bus is strictly fire-and-forget on the publishing side: a slow or
// absent subscriber never blocks the engine. Each subscriber gets a
// buffered channel; when the buffer is full the event is dropped for that
// subscriber. Durable history belongs to the event store, not the bus.
package eventbus

import (
	"sync"

	"github.com/volvoxlabs/weft/pkg/api"
)

const subscriberBuffer = 64

// Bus is an in-process publish/subscribe hub keyed by run ID.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*subscriber
	done map[string]bool
}

var _ api.EventSink = (*Bus)(nil)

type subscriber struct {
	ch     chan api.ExecutionEvent
	closed bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[string][]*subscriber),
		done: make(map[string]bool),
	}
}

// Publish delivers ev to all subscribers of its run. It never blocks: if a
// subscriber's buffer is full the event is dropped for that subscriber.
// After an event that ends the run, all subscriber channels for the run are
// closed and later subscriptions complete immediately.
func (b *Bus) Publish(ev api.ExecutionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[ev.RunID] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}

	if ev.Kind.EndsRun() {
		b.done[ev.RunID] = true
		for _, sub := range b.subs[ev.RunID] {
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
			}
		}
		delete(b.subs, ev.RunID)
	}
}

// Subscribe returns a channel of live events for the given run and a cancel
// function. The channel is closed when the run ends or when cancel is
// called. Subscribing to a run that already ended returns a closed channel.
func (b *Bus) Subscribe(runID string) (<-chan api.ExecutionEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan api.ExecutionEvent, subscriberBuffer)}
	if b.done[runID] {
		sub.closed = true
		close(sub.ch)
		return sub.ch, func() {}
	}

	b.subs[runID] = append(b.subs[runID], sub)
	return sub.ch, b.cancelFunc(runID, sub)
}

func (b *Bus) cancelFunc(runID string, sub *subscriber) func() {
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		close(sub.ch)
		remaining := b.subs[runID][:0]
		for _, s := range b.subs[runID] {
			if s != sub {
				remaining = append(remaining, s)
			}
		}
		if len(remaining) == 0 {
			delete(b.subs, runID)
		} else {
			b.subs[runID] = remaining
		}
	}
}

// SubscribeReplay is Subscribe with the run's stored history replayed ahead
// of live events. fetch is called while the bus lock is held, so no event
// can land between the history read and the subscription; the returned
// channel carries history first, then live events, with no gaps or
// duplicates.
func (b *Bus) SubscribeReplay(runID string, fetch func() ([]api.ExecutionEvent, error)) (<-chan api.ExecutionEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	history, err := fetch()
	if err != nil {
		return nil, nil, err
	}

	sub := &subscriber{ch: make(chan api.ExecutionEvent, len(history)+subscriberBuffer)}
	for _, ev := range history {
		sub.ch <- ev
	}

	if b.done[runID] {
		sub.closed = true
		close(sub.ch)
		return sub.ch, func() {}, nil
	}

	b.subs[runID] = append(b.subs[runID], sub)
	return sub.ch, b.cancelFunc(runID, sub), nil
}

// Forget drops the run-ended marker for a run, so a purged run ID can be
// reused without returning pre-closed subscriptions.
func (b *Bus) Forget(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.done, runID)
}
