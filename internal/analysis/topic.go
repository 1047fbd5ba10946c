package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/duskline/crosstalk/internal/bus"
)

// TopicReport measures how concentrated the recent conversation is.
// Saturation is the share of all keywords claimed by the top five.
type TopicReport struct {
	Saturation     float64
	Dominant       []Keyword
	Suggestions    []string
	TotalKeywords  int
	UniqueKeywords int
}

type Keyword struct {
	Word  string
	Count int
	Share float64
}

// AnalyzeTopics tokenizes the window into keywords and computes saturation.
// Thresholds: >0.8 beating a dead horse, >0.65 getting stale, >0.4 healthy
// focus, otherwise too scattered.
func AnalyzeTopics(window []bus.Turn) TopicReport {
	if len(window) == 0 {
		return TopicReport{}
	}

	var all []string
	for _, t := range window {
		all = append(all, keywords(t.Text)...)
	}
	if len(all) == 0 {
		return TopicReport{}
	}

	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, w := range all {
		if _, ok := firstSeen[w]; !ok {
			firstSeen[w] = i
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return firstSeen[words[i]] < firstSeen[words[j]]
	})

	total := len(all)
	topN := 5
	if len(words) < topN {
		topN = len(words)
	}

	top5Count := 0
	dominant := make([]Keyword, 0, topN)
	for _, w := range words[:topN] {
		top5Count += counts[w]
		dominant = append(dominant, Keyword{
			Word:  w,
			Count: counts[w],
			Share: float64(counts[w]) / float64(total),
		})
	}

	saturation := round2(float64(top5Count) / float64(total))

	return TopicReport{
		Saturation:     saturation,
		Dominant:       dominant,
		Suggestions:    topicSuggestions(saturation, dominant),
		TotalKeywords:  total,
		UniqueKeywords: len(counts),
	}
}

func topicSuggestions(saturation float64, dominant []Keyword) []string {
	var suggestions []string

	switch {
	case saturation > 0.8:
		top := "current topic"
		if len(dominant) > 0 {
			top = dominant[0].Word
		}
		suggestions = append(suggestions,
			fmt.Sprintf("topic %q saturated at %.0f%%", top, saturation*100),
			"pivot to adjacent topics or fresh angles",
			fmt.Sprintf("avoid repeating %q in the next few exchanges", top))
	case saturation > 0.65:
		var tops []string
		for i, kw := range dominant {
			if i == 3 {
				break
			}
			tops = append(tops, kw.Word)
		}
		suggestions = append(suggestions,
			fmt.Sprintf("topics %s becoming repetitive", strings.Join(tops, ", ")),
			"consider branching to related but unexplored angles")
	case saturation > 0.4:
		suggestions = append(suggestions,
			"good topic focus with diversity",
			"continue current trajectory")
	default:
		suggestions = append(suggestions,
			"conversation lacks focus, too scattered",
			"consider deepening one thread before moving on")
	}

	return suggestions
}
