package driver

import (
	"sync"

	"github.com/seantiz/electric/internal/model"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 256

// EventBroker fans a run's exchanges out to its subscribers while the run
// is live. It remembers the latest exchange of every run it has seen, so a
// subscriber joining mid-run starts from where the run is rather than from
// an empty stream. It is safe for concurrent use.
type EventBroker struct {
	mu   sync.Mutex
	runs map[string]*runTopic
}

// runTopic follows one run from its first exchange (or first subscriber)
// until Close.
type runTopic struct {
	subs   map[int]chan model.Exchange
	nextID int
	last   *model.Exchange
	closed bool
}

// NewEventBroker creates a new event broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		runs: make(map[string]*runTopic),
	}
}

func (b *EventBroker) topic(runID string) *runTopic {
	t, ok := b.runs[runID]
	if !ok {
		t = &runTopic{subs: make(map[int]chan model.Exchange)}
		b.runs[runID] = t
	}
	return t
}

// Subscribe returns a channel of the run's exchanges and an unsubscribe
// function. The run's latest exchange, if any, is delivered first. If the
// run has already finished, the channel holds only that exchange and is
// closed.
func (b *EventBroker) Subscribe(runID string) (<-chan model.Exchange, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(runID)
	ch := make(chan model.Exchange, subscriberBufferSize)
	if t.last != nil {
		ch <- *t.last
	}
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish records x as its run's latest exchange and sends it to every
// subscriber. Exchanges for a finished run are ignored.
func (b *EventBroker) Publish(x model.Exchange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(x.RunID)
	if t.closed {
		return
	}
	t.last = &x

	for _, ch := range t.subs {
		select {
		case ch <- x:
		default:
			// Never block the session on a slow reader.
			eventsDropped.Inc()
		}
	}
}

// Last returns the latest exchange published for runID.
func (b *EventBroker) Last(runID string) (model.Exchange, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.runs[runID]
	if !ok || t.last == nil {
		return model.Exchange{}, false
	}
	return *t.last, true
}

// Live reports whether runID has been seen and not yet closed.
func (b *EventBroker) Live(runID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.runs[runID]
	return ok && !t.closed
}

// Close signals that the run is over. Subscriber channels are closed; the
// latest exchange is kept for Last and later subscribers.
func (b *EventBroker) Close(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(runID)
	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
