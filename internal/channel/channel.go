// Package channel delivers spoken turns to the audience. The console
// channel prints the on-air feed; telegram mirrors the show to a chat.
// Channels are outbound only: the show is a broadcast, not a dialogue
// with its listeners.
package channel

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/duskline/crosstalk/internal/bus"
	"github.com/duskline/crosstalk/internal/config"
)

// Channel is one delivery destination for the live feed.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Deliver(event bus.TurnEvent) error
}

// Manager owns the enabled channels and pumps bus events into them.
type Manager struct {
	channels map[string]Channel
	bus      *bus.Bus
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewManager(cfg config.ChannelsConfig, b *bus.Bus) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	if cfg.Console.Enabled {
		ch := NewConsole(nil)
		m.channels[ch.Name()] = ch
	}

	if cfg.Telegram.Enabled {
		ch, err := NewTelegram(cfg.Telegram)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		m.channels[ch.Name()] = ch
	}

	return m, nil
}

// Register adds a channel directly, replacing any with the same name.
func (m *Manager) Register(ch Channel) {
	m.channels[ch.Name()] = ch
}

// StartAll starts every channel and wires each one to its own bus
// subscription. Delivery failures are logged, never fatal to the show.
func (m *Manager) StartAll(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)

	for name, ch := range m.channels {
		log.Printf("[channel-mgr] starting %s", name)
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		events := m.bus.Subscribe(name)
		m.wg.Add(1)
		go func(name string, ch Channel, events <-chan bus.TurnEvent) {
			defer m.wg.Done()
			// Drains until the bus closes the stream, so turns already
			// buffered at shutdown still go out.
			for ev := range events {
				if err := ch.Deliver(ev); err != nil {
					log.Printf("[channel-mgr] deliver to %s failed: %v", name, err)
				}
			}
		}(name, ch, events)
	}
	return nil
}

// StopAll flushes pending deliveries, then stops every channel.
func (m *Manager) StopAll() error {
	for name := range m.channels {
		m.bus.Unsubscribe(name)
	}
	m.wg.Wait()
	if m.cancel != nil {
		m.cancel()
	}
	for name, ch := range m.channels {
		log.Printf("[channel-mgr] stopping %s", name)
		if err := ch.Stop(); err != nil {
			log.Printf("[channel-mgr] error stopping %s: %v", name, err)
		}
	}
	return nil
}

func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
