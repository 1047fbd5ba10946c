package pipeline

import (
	"log"
	"sync"
	"time"
)

// prebufferThreshold is the queue fill level below which a speaker
// should stage another response.
const prebufferThreshold = 0.3

// ResponseBuffer stages pre-generated responses for a single speaker.
// Unlike the Controller it knows nothing about how responses are made;
// the speaker queues finished text and takes it back later.
type ResponseBuffer struct {
	speaker string
	queue   chan string

	mu       sync.Mutex
	requests int
	misses   int
}

func NewResponseBuffer(speaker string, capacity int) *ResponseBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ResponseBuffer{
		speaker: speaker,
		queue:   make(chan string, capacity),
	}
}

// Queue stages a response without blocking. It reports false when the
// buffer is full and the response was discarded.
func (b *ResponseBuffer) Queue(response string) bool {
	select {
	case b.queue <- response:
		log.Printf("[buffer] %s staged a response (depth %d)", b.speaker, len(b.queue))
		return true
	default:
		log.Printf("[buffer] %s buffer full, discarding response", b.speaker)
		return false
	}
}

// Take waits up to timeout for a staged response. The second return is
// false when the buffer stayed empty.
func (b *ResponseBuffer) Take(timeout time.Duration) (string, bool) {
	b.mu.Lock()
	b.requests++
	b.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case response := <-b.queue:
		return response, true
	case <-timer.C:
		b.mu.Lock()
		b.misses++
		b.mu.Unlock()
		return "", false
	}
}

// ShouldPrebuffer reports whether the buffer is running low.
func (b *ResponseBuffer) ShouldPrebuffer() bool {
	level := float64(len(b.queue)) / float64(cap(b.queue))
	return level < prebufferThreshold
}

// HitRate is the percentage of Take calls served from the buffer.
// With no requests yet the buffer counts as fully healthy.
func (b *ResponseBuffer) HitRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.requests == 0 {
		return 100.0
	}
	return float64(b.requests-b.misses) / float64(b.requests) * 100.0
}

func (b *ResponseBuffer) Depth() int {
	return len(b.queue)
}
