// Package arc follows one speaker's line of thought across exchanges,
// detecting when they change subject and whether they actually answer
// the questions put to them.
package arc

import (
	"regexp"
	"strings"
)

const historyDepth = 10

// Update reports what one observed message did to the speaker's arc.
type Update struct {
	Theme        string
	Energy       float64
	Drift        bool
	Alignment    float64
	HasAlignment bool
}

// Summary is the rolled-up view the director reads.
type Summary struct {
	Host         string
	Theme        string
	Energy       float64
	Exchanges    int
	AvgAlignment float64
	HasAlignment bool
}

type state struct {
	theme     string
	concepts  map[string]bool
	energy    float64
	exchanges int
}

// Tracker holds the arc for a single speaker. Owned by that speaker's
// side of the exchange loop; not safe for concurrent use.
type Tracker struct {
	host       string
	current    state
	history    []state
	alignments []float64
}

func NewTracker(host string) *Tracker {
	return &Tracker{
		host:    host,
		current: state{concepts: make(map[string]bool), energy: 1.0},
	}
}

// Observe folds the speaker's newest message into the arc. When the
// other speaker's previous message carried a question, the overlap
// between question and response concepts becomes the alignment score;
// below 0.3 counts as a dodge. Concepts only accumulate while the arc
// holds; fewer than two shared concepts starts a new arc.
func (t *Tracker) Observe(message, otherMessage string) Update {
	concepts := extractConcepts(message)

	update := Update{}
	if otherMessage != "" && containsQuestion(otherMessage) {
		questionConcepts := extractConcepts(otherMessage)
		update.Alignment = alignmentScore(questionConcepts, concepts)
		update.HasAlignment = true
		update.Drift = update.Alignment < 0.3
		t.alignments = append(t.alignments, update.Alignment)
	}

	switch {
	case t.current.theme == "":
		t.current.theme = summarizeTheme(concepts)
		t.current.concepts = toSet(concepts)
	case t.overlapWithCurrent(concepts) < 2:
		t.history = append(t.history, t.current)
		if len(t.history) > historyDepth {
			t.history = t.history[len(t.history)-historyDepth:]
		}
		t.current = state{
			theme:    summarizeTheme(concepts),
			concepts: toSet(concepts),
			energy:   1.0,
		}
	default:
		for _, c := range concepts {
			t.current.concepts[c] = true
		}
	}

	energy := float64(len(message))/500 + float64(len(concepts))/10
	if energy > 1.0 {
		energy = 1.0
	}
	t.current.energy = energy
	t.current.exchanges++

	update.Theme = t.current.theme
	update.Energy = energy
	return update
}

func (t *Tracker) Theme() string { return t.current.theme }

func (t *Tracker) Summary() Summary {
	s := Summary{
		Host:      t.host,
		Theme:     t.current.theme,
		Energy:    t.current.energy,
		Exchanges: t.current.exchanges,
	}
	if len(t.alignments) > 0 {
		total := 0.0
		for _, a := range t.alignments {
			total += a
		}
		s.AvgAlignment = total / float64(len(t.alignments))
		s.HasAlignment = true
	}
	return s
}

func (t *Tracker) overlapWithCurrent(concepts []string) int {
	overlap := 0
	for _, c := range concepts {
		if t.current.concepts[c] {
			overlap++
		}
	}
	return overlap
}

var conceptWordPattern = regexp.MustCompile(`[a-z0-9_]+`)

var conceptStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true,
	"was": true, "are": true, "were": true, "been": true, "be": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "should": true, "could": true,
	"may": true, "might": true, "must": true, "can": true, "this": true,
	"that": true, "these": true, "those": true,
}

var interrogatives = []string{"what", "why", "how", "when", "where", "who"}

// extractConcepts returns up to ten key words plus up to five adjacent
// bigrams, deduplicated in order of appearance.
func extractConcepts(text string) []string {
	raw := conceptWordPattern.FindAllString(strings.ToLower(text), -1)
	var words []string
	for _, w := range raw {
		if len(w) > 3 && !conceptStopwords[w] {
			words = append(words, w)
		}
	}

	topWords := words
	if len(topWords) > 10 {
		topWords = topWords[:10]
	}

	var bigrams []string
	for i := 0; i+1 < len(words) && len(bigrams) < 5; i++ {
		bigrams = append(bigrams, words[i]+" "+words[i+1])
	}

	seen := make(map[string]bool)
	var concepts []string
	for _, c := range append(append([]string{}, topWords...), bigrams...) {
		if !seen[c] {
			seen[c] = true
			concepts = append(concepts, c)
		}
	}
	return concepts
}

func containsQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	lower := strings.ToLower(text)
	for _, q := range interrogatives {
		if strings.HasPrefix(lower, q) {
			return true
		}
	}
	return false
}

// alignmentScore is concept overlap over the larger side, 0.5 when
// either side has nothing to compare.
func alignmentScore(question, response []string) float64 {
	if len(question) == 0 || len(response) == 0 {
		return 0.5
	}
	responseSet := toSet(response)
	overlap := 0
	for _, c := range question {
		if responseSet[c] {
			overlap++
		}
	}
	span := len(question)
	if len(response) > span {
		span = len(response)
	}
	return float64(overlap) / float64(span)
}

func summarizeTheme(concepts []string) string {
	if len(concepts) == 0 {
		return "general"
	}
	return concepts[0]
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
