package analysis

import (
	"math"
	"regexp"
	"strings"

	"github.com/duskline/crosstalk/internal/bus"
)

// Report bundles the four per-window analyses the director consumes.
// Every field is a pure function of the input window; nothing is retained
// between calls.
type Report struct {
	Topic       TopicReport
	Perspective PerspectiveReport
	Claims      ClaimReport
	Pacing      PacingReport
}

// Analyze runs all four analyzers over the same window.
func Analyze(window []bus.Turn) Report {
	return Report{
		Topic:       AnalyzeTopics(window),
		Perspective: AnalyzePerspectives(window),
		Claims:      AnalyzeClaims(window),
		Pacing:      AnalyzePacing(window),
	}
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "were": true, "been": true, "be": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "should": true, "could": true, "may": true,
	"might": true, "can": true, "that": true, "this": true, "these": true,
	"those": true, "i": true, "you": true, "he": true, "she": true, "it": true,
	"we": true, "they": true, "what": true, "which": true, "who": true,
	"when": true, "where": true, "why": true, "how": true, "so": true,
	"if": true, "yeah": true, "well": true, "like": true,
}

var wordPattern = regexp.MustCompile(`[a-z0-9_]+`)

// keywords extracts lowercase tokens longer than three characters with
// stop words removed.
func keywords(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) > 3 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

func splitSentences(text string) []string {
	parts := strings.Split(text, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
