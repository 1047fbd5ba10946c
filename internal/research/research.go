// Package research turns a discussion subject into a compact brief a
// speaker can cite on air. Each intern keeps its own memory of angles
// already covered so repeated passes over the same subject fan out
// instead of repeating.
package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Angle styles shape which follow-up queries an intern reaches for
// once the base subject has been covered.
const (
	StyleForward  = "forward"
	StyleCritical = "critical"
)

// Brief is the digest an intern hands back after one research pass.
// Findings are preformatted lines ready for prompt assembly; the first
// line carries the intern's clarifying question in brackets.
type Brief struct {
	Intern     string
	Query      string
	Question   string
	Findings   []string
	RawResults int
	Stage      int
}

// Summary joins the findings for prompt or transcript use.
func (b *Brief) Summary() string {
	if b == nil {
		return ""
	}
	return strings.Join(b.Findings, "\n")
}

// Result is one raw hit from a search backend.
type Result struct {
	Title   string
	Snippet string
	URL     string
}

// Searcher is the web lookup boundary. Implementations return however
// many hits they consider relevant; the researcher digests them down.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

var angleSuffixes = map[string][]string{
	StyleForward:  {"latest news", "technology", "innovations", "future trends", "market analysis"},
	StyleCritical: {"criticism", "alternatives", "history", "controversies", "drawbacks"},
}

var genericSuffixes = []string{"overview", "analysis", "information"}

// Researcher runs the research pass for one intern. Safe for use from
// the exchange loop and a background pipeline task at the same time.
type Researcher struct {
	name     string
	style    string
	searcher Searcher

	mu         sync.Mutex
	stage      int
	researched map[string]bool
}

func NewResearcher(name, style string, searcher Searcher) *Researcher {
	return &Researcher{
		name:       name,
		style:      style,
		searcher:   searcher,
		researched: make(map[string]bool),
	}
}

func (r *Researcher) Name() string { return r.name }

// Research produces a brief for the subject. Search failures are not
// propagated; they degrade to an empty result set so the show never
// stalls on a flaky backend. The returned error is reserved for
// context cancellation.
func (r *Researcher) Research(ctx context.Context, subject string) (*Brief, error) {
	r.mu.Lock()
	r.stage++
	stage := r.stage
	query, question := r.selectAngle(subject)
	r.mu.Unlock()

	log.Printf("[research] %s stage %d: asking %q, searching %q", r.name, stage, question, query)

	results, err := r.searcher.Search(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("[research] %s search failed: %v", r.name, err)
		results = nil
	}

	r.mu.Lock()
	r.researched[strings.ToLower(query)] = true
	r.mu.Unlock()

	findings := formatFindings(digest(results, 3), query)
	findings = append([]string{fmt.Sprintf("[%s wonders: %s]", r.name, question)}, findings...)

	return &Brief{
		Intern:     r.name,
		Query:      query,
		Question:   question,
		Findings:   findings,
		RawResults: len(results),
		Stage:      stage,
	}, nil
}

// selectAngle picks the next unexplored angle on the subject. The
// caller must hold r.mu.
func (r *Researcher) selectAngle(subject string) (query, question string) {
	if !r.researched[strings.ToLower(subject)] {
		return subject, fmt.Sprintf("What is %s?", subject)
	}

	suffixes, ok := angleSuffixes[r.style]
	if !ok {
		suffixes = genericSuffixes
	}
	for _, suffix := range suffixes {
		angle := subject + " " + suffix
		if !r.researched[strings.ToLower(angle)] {
			return angle, fmt.Sprintf("Tell me about %s", angle)
		}
	}

	exhausted := subject + " recent developments"
	return exhausted, fmt.Sprintf("What are recent developments in %s?", subject)
}

// digest compresses the first max results into findings, dropping any
// that lack a title or snippet and trimming snippets to 150 characters.
func digest(results []Result, max int) []Result {
	if len(results) > max {
		results = results[:max]
	}
	var kept []Result
	for _, res := range results {
		if res.Title == "" || res.Snippet == "" {
			continue
		}
		if len(res.Snippet) > 150 {
			res.Snippet = res.Snippet[:150] + "..."
		}
		kept = append(kept, res)
	}
	return kept
}

func formatFindings(results []Result, query string) []string {
	if len(results) == 0 {
		return []string{fmt.Sprintf("No substantial information found on '%s'", query)}
	}
	lines := make([]string, 0, len(results))
	for _, res := range results {
		lines = append(lines, fmt.Sprintf("%s: %s", res.Title, res.Snippet))
	}
	return lines
}
