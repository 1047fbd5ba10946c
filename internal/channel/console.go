package channel

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/duskline/crosstalk/internal/bus"
)

const consoleBorderWidth = 80

// Console prints the live feed to a writer, one bordered block per turn.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole builds a console channel. A nil writer means stdout.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Start(ctx context.Context) error { return nil }

func (c *Console) Stop() error { return nil }

// Header prints the show banner before the first turn.
func (c *Console) Header(subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rule := strings.Repeat("=", consoleBorderWidth)
	fmt.Fprintf(c.out, "%s\nON AIR\nTopic: %s\n%s\nPress Ctrl+C to end the show\n", rule, subject, rule)
}

func (c *Console) Deliver(event bus.TurnEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	border := strings.Repeat("─", consoleBorderWidth)
	_, err := fmt.Fprintf(c.out, "\n%s\n%s\n%s\n%s\n%s\n",
		border, event.Turn.Speaker, border, event.Turn.Text, border)
	if err != nil {
		return fmt.Errorf("write turn: %w", err)
	}
	return nil
}
