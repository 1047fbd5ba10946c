// Package point tracks the gravitational center of the conversation:
// what the show is really about, how exhausted that center is, and how
// far each speaker has drifted from it.
package point

import (
	"fmt"
	"log"
	"regexp"
	"strings"
)

// Pull strengths, ordered by how far the speaker has drifted.
const (
	PullGentle = "gentle"
	PullStrong = "strong"
)

const (
	maxFacets       = 5
	maxObservations = 10
)

// State is the persistable core of the tracker. Saturation only grows
// until the show ends; strength is an exponential moving average of
// per-exchange coherence.
type State struct {
	Essence       string        `json:"essence"`
	Facets        []string      `json:"facets"`
	Strength      float64       `json:"strength"`
	Saturation    float64       `json:"saturation"`
	ExchangeCount int           `json:"exchange_count"`
	Observations  []Observation `json:"recent_observations"`
}

// Observation records what one exchange did to the point.
type Observation struct {
	Exchange   int      `json:"exchange"`
	Host       string   `json:"host"`
	Themes     []string `json:"themes_detected"`
	Preview    string   `json:"message_preview"`
	Coherence  float64  `json:"coherence"`
	NewFacet   string   `json:"new_facet,omitempty"`
	Repetitive bool     `json:"repetitive,omitempty"`
	ShiftReady bool     `json:"shift_ready,omitempty"`
}

// Pull is the corrective nudge handed to a drifting speaker.
type Pull struct {
	Strength    string
	Distance    float64
	Instruction string
	Essence     string
	Facets      []string
}

// Tracker observes exchanges and maintains the point. Owned by the
// exchange loop; not safe for concurrent use.
type Tracker struct {
	store     Store
	state     State
	distances map[string]float64
}

// NewTracker starts from the initial subject, resuming persisted state
// when the store has any. A malformed store falls back to a fresh
// point with a warning.
func NewTracker(initial string, store Store) *Tracker {
	t := &Tracker{
		store: store,
		state: State{
			Essence:  initial,
			Facets:   []string{initial},
			Strength: 1.0,
		},
		distances: make(map[string]float64),
	}

	if store != nil {
		loaded, err := store.Load()
		switch {
		case err != nil:
			log.Printf("[point] failed to load state, starting fresh: %v", err)
		case loaded != nil:
			t.state = *loaded
			log.Printf("[point] resumed %q (saturation %.0f%%, strength %.0f%%)",
				t.state.Essence, t.state.Saturation*100, t.state.Strength*100)
		}
	}
	return t
}

// Update folds one delivered exchange into the point: new facets,
// coherence, strength, saturation.
func (t *Tracker) Update(host, message string) {
	t.state.ExchangeCount++

	themes := extractThemes(message)

	obs := Observation{
		Exchange: t.state.ExchangeCount,
		Host:     host,
		Preview:  preview(message, 100),
	}
	if len(themes) > 3 {
		obs.Themes = themes[:3]
	} else {
		obs.Themes = themes
	}

	for _, theme := range themes {
		if len(theme) <= 5 || containsString(t.state.Facets, theme) {
			continue
		}
		t.state.Facets = append(t.state.Facets, theme)
		obs.NewFacet = theme
		if len(t.state.Facets) > maxFacets {
			t.state.Facets = t.state.Facets[1:]
		}
	}

	coherence := coherenceScore(themes, t.state.Facets)
	obs.Coherence = coherence
	t.state.Strength = 0.7*t.state.Strength + 0.3*coherence

	increment := 0.05
	if isRepetitive(message) {
		increment += 0.05
		obs.Repetitive = true
	}
	t.state.Saturation += increment
	if t.state.Saturation > 1.0 {
		t.state.Saturation = 1.0
	}

	if t.ShouldShift() {
		obs.ShiftReady = true
		log.Printf("[point] shift threshold reached: %s", t.ShiftReason())
	}

	t.state.Observations = append(t.state.Observations, obs)
	if len(t.state.Observations) > maxObservations {
		t.state.Observations = t.state.Observations[len(t.state.Observations)-maxObservations:]
	}

	if obs.NewFacet != "" {
		log.Printf("[point] new facet %q", obs.NewFacet)
	}

	if t.store != nil {
		if err := t.store.Save(&t.state); err != nil {
			log.Printf("[point] failed to persist state: %v", err)
		}
	}
}

// Distance measures how far a speaker's arc theme sits from the point:
// 0 is dead center, 1 is fully detached, 0.5 when there is nothing to
// compare against.
func (t *Tracker) Distance(host, arcTheme string) float64 {
	arcTerms := termSet(keyTerms(arcTheme))
	pointTerms := make(map[string]bool)
	for _, facet := range t.state.Facets {
		for _, term := range keyTerms(facet) {
			pointTerms[term] = true
		}
	}

	distance := 0.5
	if len(pointTerms) > 0 {
		overlap := 0
		for term := range arcTerms {
			if pointTerms[term] {
				overlap++
			}
		}
		span := len(arcTerms)
		if len(pointTerms) > span {
			span = len(pointTerms)
		}
		distance = 1.0 - float64(overlap)/float64(span)
	}

	t.distances[host] = distance
	return distance
}

// PullFor returns the corrective pull for a drifting speaker, or nil
// while they are still within the allowed orbit. Distances come from
// the most recent Distance call for that speaker.
func (t *Tracker) PullFor(host string) *Pull {
	distance := t.distances[host]
	if distance < 0.7 {
		return nil
	}

	pull := &Pull{
		Distance: distance,
		Essence:  t.state.Essence,
		Facets:   append([]string(nil), t.state.Facets...),
	}
	if distance < 0.85 {
		pull.Strength = PullGentle
		pull.Instruction = fmt.Sprintf("You're drifting from the core point. Return to: %s", t.state.Essence)
	} else {
		pull.Strength = PullStrong
		pull.Instruction = fmt.Sprintf("You've drifted far from the point! Core topic is: %s. Reconnect.", t.state.Essence)
	}
	return pull
}

// ShouldShift reports whether the point is exhausted or has gone
// diffuse enough that the show ought to move on.
func (t *Tracker) ShouldShift() bool {
	return t.state.Saturation > 0.8 || t.state.Strength < 0.3
}

func (t *Tracker) ShiftReason() string {
	var reasons []string
	if t.state.Saturation > 0.8 {
		reasons = append(reasons, fmt.Sprintf("saturation %.0f%%", t.state.Saturation*100))
	}
	if t.state.Strength < 0.3 {
		reasons = append(reasons, fmt.Sprintf("weak coherence %.0f%%", t.state.Strength*100))
	}
	if len(reasons) == 0 {
		return "unknown"
	}
	return strings.Join(reasons, ", ")
}

// Snapshot returns a copy of the current state for logging and status.
func (t *Tracker) Snapshot() State {
	snap := t.state
	snap.Facets = append([]string(nil), t.state.Facets...)
	snap.Observations = append([]Observation(nil), t.state.Observations...)
	return snap
}

var (
	themeWordPattern = regexp.MustCompile(`\b[a-z]+\b`)
	keyTermPattern   = regexp.MustCompile(`\b[a-z]{4,}\b`)
)

var comboStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "about": true, "that": true,
	"this": true, "these": true, "those": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "how": true, "why": true,
	"there": true, "here": true, "been": true, "being": true, "have": true,
	"has": true,
}

var keyTermStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "about": true, "that": true,
	"this": true, "have": true, "been": true, "would": true, "could": true,
	"should": true, "will": true, "can": true, "may": true, "might": true,
	"must": true, "shall": true,
}

var agreementPhrases = []string{
	"that's interesting",
	"i agree",
	"you're right",
	"that makes sense",
	"good point",
	"absolutely",
	"exactly",
}

// extractThemes pulls bigram and trigram noun phrases out of the
// message, skipping combinations that lead with stopwords.
func extractThemes(text string) []string {
	words := themeWordPattern.FindAllString(strings.ToLower(text), -1)

	var themes []string
	for i := 0; i+1 < len(words); i++ {
		if len(words[i]) > 3 && len(words[i+1]) > 3 && !stopwordCombo(words[i], words[i+1]) {
			themes = append(themes, words[i]+" "+words[i+1])
		}
	}
	for i := 0; i+2 < len(words); i++ {
		if len(words[i]) > 3 && len(words[i+1]) > 3 && len(words[i+2]) > 3 &&
			!stopwordCombo(words[i], words[i+1]) {
			themes = append(themes, words[i]+" "+words[i+1]+" "+words[i+2])
		}
	}

	seen := make(map[string]bool)
	var unique []string
	for _, theme := range themes {
		if seen[theme] {
			continue
		}
		seen[theme] = true
		unique = append(unique, theme)
		if len(unique) == 10 {
			break
		}
	}
	return unique
}

func stopwordCombo(first, second string) bool {
	return comboStopwords[first] || comboStopwords[second]
}

// coherenceScore is the Jaccard similarity between terms of the new
// themes and terms of the existing facets, 0.5 when either is empty.
func coherenceScore(themes, facets []string) float64 {
	if len(themes) == 0 || len(facets) == 0 {
		return 0.5
	}

	newTerms := make(map[string]bool)
	for _, theme := range themes {
		for _, term := range keyTerms(theme) {
			newTerms[term] = true
		}
	}
	existing := make(map[string]bool)
	for _, facet := range facets {
		for _, term := range keyTerms(facet) {
			existing[term] = true
		}
	}
	if len(existing) == 0 {
		return 0.5
	}

	overlap := 0
	union := len(existing)
	for term := range newTerms {
		if existing[term] {
			overlap++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0.5
	}
	return float64(overlap) / float64(union)
}

func keyTerms(text string) []string {
	words := keyTermPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if !keyTermStopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

func termSet(terms []string) map[string]bool {
	set := make(map[string]bool, len(terms))
	for _, term := range terms {
		set[term] = true
	}
	return set
}

func isRepetitive(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range agreementPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
