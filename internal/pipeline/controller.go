// Package pipeline hides generation latency. While one turn is being
// delivered, a single background task researches and generates the
// next turn and parks it in a bounded handoff queue. Everything here
// is best effort: a full queue drops, a failed task produces nothing,
// and the control loop never blocks beyond its probe timeout.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duskline/crosstalk/internal/director"
	"github.com/duskline/crosstalk/internal/research"
)

const DefaultCapacity = 2

// ErrBusy is returned by Start while a prior task is still in flight.
var ErrBusy = errors.New("pipeline: task already in flight")

// ResearchFunc produces the brief for the task's speaker and subject.
type ResearchFunc func(ctx context.Context, task Task) (*research.Brief, error)

// GenerateFunc produces the speaker's text from the task and brief.
type GenerateFunc func(ctx context.Context, task Task, brief *research.Brief) (string, error)

// Task describes the turn to produce ahead of time. The directive is
// frozen at schedule time so the buffered turn and a live fallback for
// the same exchange see identical guidance.
type Task struct {
	Speaker   string
	Subject   string
	PriorTurn string
	Context   string
	Directive *director.Directive
}

// BufferedTurn is a finished turn parked in the handoff queue.
// Ownership moves to whoever dequeues it.
type BufferedTurn struct {
	Speaker    string
	Text       string
	Brief      *research.Brief
	ProducedAt time.Time
	Latency    time.Duration
}

// Stats is a point-in-time view of the pipeline counters.
type Stats struct {
	Buffered int
	Hits     int
	Misses   int
	Dropped  int
	HitRate  float64
	Depth    int
}

func (s Stats) String() string {
	return fmt.Sprintf("buffered=%d hits=%d misses=%d dropped=%d hit_rate=%.0f%% depth=%d",
		s.Buffered, s.Hits, s.Misses, s.Dropped, s.HitRate*100, s.Depth)
}

// Controller runs at most one background task at a time and hands
// results over through a bounded queue.
type Controller struct {
	queue    chan BufferedTurn
	inFlight atomic.Bool
	research ResearchFunc
	generate GenerateFunc

	mu       sync.Mutex
	buffered int
	hits     int
	misses   int
	dropped  int
}

func NewController(capacity int, research ResearchFunc, generate GenerateFunc) *Controller {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Controller{
		queue:    make(chan BufferedTurn, capacity),
		research: research,
		generate: generate,
	}
}

// Start launches the background task for the next turn. It returns
// ErrBusy if the previous task has not finished; it never blocks.
func (c *Controller) Start(ctx context.Context, task Task) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	log.Printf("[pipeline] starting background generation for %s", task.Speaker)
	go c.run(ctx, task)
	return nil
}

// Busy reports whether a background task is in flight.
func (c *Controller) Busy() bool {
	return c.inFlight.Load()
}

// Drain waits up to timeout for the in-flight task to finish, so a
// shutdown can release shared resources the task may still be using.
// Returns false if the task is still running when time runs out.
func (c *Controller) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for c.inFlight.Load() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}

// TryTake waits up to timeout for a buffered turn. The second return
// is false on a miss; a miss is a normal condition, not an error.
func (c *Controller) TryTake(timeout time.Duration) (BufferedTurn, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case turn := <-c.queue:
		c.mu.Lock()
		c.hits++
		rate := c.hitRateLocked()
		c.mu.Unlock()
		log.Printf("[pipeline] buffer hit, serving pre-generated turn (hit rate %.0f%%)", rate*100)
		return turn, true
	case <-timer.C:
		c.mu.Lock()
		c.misses++
		rate := c.hitRateLocked()
		c.mu.Unlock()
		log.Printf("[pipeline] buffer miss, generating live (hit rate %.0f%%)", rate*100)
		return BufferedTurn{}, false
	}
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Buffered: c.buffered,
		Hits:     c.hits,
		Misses:   c.misses,
		Dropped:  c.dropped,
		HitRate:  c.hitRateLocked(),
		Depth:    len(c.queue),
	}
}

// run is the background task: research, generate, enqueue. Failures
// end the task quietly; the consumer simply sees a miss.
func (c *Controller) run(ctx context.Context, task Task) {
	defer c.inFlight.Store(false)

	start := time.Now()
	brief, err := c.research(ctx, task)
	if err != nil {
		log.Printf("[pipeline] research failed for %s: %v", task.Speaker, err)
		return
	}
	log.Printf("[pipeline] research complete in %.1fs", time.Since(start).Seconds())

	text, err := c.generate(ctx, task, brief)
	if err != nil {
		log.Printf("[pipeline] generation failed for %s: %v", task.Speaker, err)
		return
	}
	log.Printf("[pipeline] generation complete in %.1fs", time.Since(start).Seconds())

	turn := BufferedTurn{
		Speaker:    task.Speaker,
		Text:       text,
		Brief:      brief,
		ProducedAt: time.Now(),
		Latency:    time.Since(start),
	}

	select {
	case c.queue <- turn:
		c.mu.Lock()
		c.buffered++
		c.mu.Unlock()
		log.Printf("[pipeline] turn buffered in %.1fs", turn.Latency.Seconds())
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		log.Printf("[pipeline] buffer full, discarding turn for %s", task.Speaker)
	}
}

func (c *Controller) hitRateLocked() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}
