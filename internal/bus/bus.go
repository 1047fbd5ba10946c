package bus

import (
	"log"
	"sync"
)

const subscriberBufSize = 16

// Bus fans spoken turns out to delivery channels. One producer (the
// show loop), one subscription per enabled channel. Publish never
// blocks: a backed-up subscriber drops events instead of stalling the
// show.
type Bus struct {
	mu   sync.Mutex
	subs map[string]chan TurnEvent
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan TurnEvent)}
}

// Publish fans one turn out to every subscriber's buffer. A full
// buffer drops the event for that subscriber only.
func (b *Bus) Publish(ev TurnEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("[bus] subscriber %s backed up, dropping turn #%d", name, ev.Turn.Seq)
		}
	}
}

// Subscribe registers a named delivery stream. Subscribing twice under
// the same name replaces (and closes) the previous stream.
func (b *Bus) Subscribe(name string) <-chan TurnEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subs[name]; ok {
		close(old)
	}
	ch := make(chan TurnEvent, subscriberBufSize)
	b.subs[name] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its stream. Events
// already buffered still reach a consumer that drains to the close.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[name]; ok {
		delete(b.subs, name)
		close(ch)
	}
}
