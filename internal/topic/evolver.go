// Package topic steers the drift of the show's subject. Instead of
// researching the same subject every cycle, the evolver follows what
// the speakers actually latch onto, one concept at a time.
package topic

import (
	"log"
	"regexp"
	"strings"

	"github.com/duskline/crosstalk/internal/research"
)

const flowDepth = 10

var (
	quotedPattern        = regexp.MustCompile(`"([^"]+)"`)
	capitalizedPattern   = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3}\b`)
	parentheticalPattern = regexp.MustCompile(`\(([^)]+)\)`)
)

var genericConcepts = map[string]bool{
	"this": true, "that": true, "these": true, "those": true,
	"what": true, "which": true, "when": true, "where": true,
	"with": true, "from": true, "about": true, "also": true,
}

// Evolver tracks how far the conversation has wandered from its
// original subject and proposes the next subject to research. Owned by
// the exchange loop; not safe for concurrent use.
type Evolver struct {
	flow     []string
	explored map[string]bool
	depth    int
}

func NewEvolver() *Evolver {
	return &Evolver{explored: make(map[string]bool)}
}

// ShouldEvolve reports whether this exchange is due for a subject
// change: never in the first three exchanges, every third through
// exchange nine, every second after that.
func (e *Evolver) ShouldEvolve(exchangeCount int) bool {
	if exchangeCount < 4 {
		return false
	}
	if exchangeCount < 10 {
		return exchangeCount%3 == 0
	}
	return exchangeCount%2 == 0
}

// Evolve advances the drift state machine and returns the subject for
// the next research cycle. Early exchanges stay on the original
// subject; the middle band picks fresh concepts out of the latest two
// turns; past that it digs into the last evolved subject, resetting to
// the original once the thread has gone more than fifteen deep.
func (e *Evolver) Evolve(original string, messages []string, lastBrief *research.Brief) string {
	e.depth++

	if e.depth <= 3 {
		return original
	}

	if e.depth <= 8 {
		recent := messages
		if len(recent) > 2 {
			recent = recent[len(recent)-2:]
		}

		var candidates []string
		for _, msg := range recent {
			candidates = append(candidates, e.extractConcepts(msg, nil)...)
		}

		for _, concept := range candidates {
			if !e.explored[strings.ToLower(concept)] {
				e.adopt(concept)
				log.Printf("[topic] evolving %q -> %q", original, concept)
				return concept
			}
		}
		return original
	}

	if len(e.flow) > 0 {
		last := e.flow[len(e.flow)-1]
		for _, concept := range e.extractConcepts("Tell me more about "+last, lastBrief) {
			if !e.explored[strings.ToLower(concept)] {
				e.adopt(concept)
				log.Printf("[topic] digging %q -> %q", last, concept)
				return concept
			}
		}
	}

	if e.depth > 15 {
		log.Printf("[topic] drift exhausted, resetting to %q", original)
		e.depth = 0
	}
	return original
}

// Thread returns the chain of evolved subjects so far.
func (e *Evolver) Thread() []string {
	out := make([]string, len(e.flow))
	copy(out, e.flow)
	return out
}

func (e *Evolver) adopt(concept string) {
	e.explored[strings.ToLower(concept)] = true
	e.flow = append(e.flow, concept)
	if len(e.flow) > flowDepth {
		e.flow = e.flow[len(e.flow)-flowDepth:]
	}
}

// extractConcepts pulls candidate subjects out of one message: quoted
// terms, capitalized multi-word phrases, parenthetical asides, and the
// tail words of colon-delimited research finding titles.
func (e *Evolver) extractConcepts(message string, brief *research.Brief) []string {
	var concepts []string

	for _, m := range quotedPattern.FindAllStringSubmatch(message, -1) {
		concepts = append(concepts, m[1])
	}
	concepts = append(concepts, capitalizedPattern.FindAllString(message, -1)...)
	for _, m := range parentheticalPattern.FindAllStringSubmatch(message, -1) {
		concepts = append(concepts, m[1])
	}

	if brief != nil {
		for _, finding := range brief.Findings {
			if strings.HasPrefix(finding, "[") {
				continue
			}
			idx := strings.Index(finding, ":")
			if idx < 0 {
				continue
			}
			words := strings.Fields(finding[:idx])
			if len(words) >= 2 {
				concepts = append(concepts, strings.Join(words[len(words)-2:], " "))
			}
		}
	}

	seen := make(map[string]bool)
	var unique []string
	for _, concept := range concepts {
		lower := strings.ToLower(strings.TrimSpace(concept))
		if len(lower) < 4 || seen[lower] || e.explored[lower] || genericConcepts[lower] {
			continue
		}
		seen[lower] = true
		unique = append(unique, concept)
		if len(unique) == 5 {
			break
		}
	}
	return unique
}
