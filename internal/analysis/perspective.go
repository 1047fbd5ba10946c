package analysis

import (
	"fmt"
	"strings"

	"github.com/duskline/crosstalk/internal/bus"
)

// PerspectiveReport lists which of the six journalistic angles the
// window has not touched yet, with a ready question for each.
type PerspectiveReport struct {
	Missing    []string
	Questions  []SuggestedQuestion
	Coverage   map[string]bool
	Assertions []string
}

type SuggestedQuestion struct {
	Perspective string
	Question    string
}

var perspectiveOrder = []string{"who", "what", "when", "where", "why", "how"}

var perspectiveQuestions = map[string][]string{
	"who": {
		"Who benefits?",
		"Who is affected?",
		"Who decides?",
		"Who pays?",
	},
	"what": {
		"What are alternatives?",
		"What's the evidence?",
		"What could go wrong?",
	},
	"when": {
		"When did this start?",
		"When will we know?",
		"When is the deadline?",
	},
	"where": {
		"Where else is this happening?",
		"Where does this lead?",
	},
	"why": {
		"Why now?",
		"Why not?",
		"Why does this matter?",
		"Why assume that?",
	},
	"how": {
		"How does it work?",
		"How do we know?",
		"How could it fail?",
	},
}

var assertionMarkers = []string{
	"always", "never", "everyone", "no one",
	"all", "none", "must", "can't",
	"impossible", "certain", "obviously",
}

// AnalyzePerspectives checks the combined window text for literal
// presence of each interrogative stem, then surfaces absolute
// assertions that deserve a contrarian push.
func AnalyzePerspectives(window []bus.Turn) PerspectiveReport {
	report := PerspectiveReport{Coverage: make(map[string]bool)}

	var parts []string
	for _, t := range window {
		parts = append(parts, t.Text)
	}
	combined := strings.ToLower(strings.Join(parts, " "))

	for _, p := range perspectiveOrder {
		covered := strings.Contains(combined, p)
		report.Coverage[p] = covered
		if !covered {
			report.Missing = append(report.Missing, p)
		}
	}

	for i, p := range report.Missing {
		if i == 3 {
			break
		}
		report.Questions = append(report.Questions, SuggestedQuestion{
			Perspective: p,
			Question:    perspectiveQuestions[p][0],
		})
	}

	report.Assertions = findAssertions(window)
	if len(report.Assertions) > 0 {
		report.Questions = append(report.Questions, SuggestedQuestion{
			Perspective: "contrarian",
			Question:    fmt.Sprintf("What if the opposite is true about: %s?", truncate(report.Assertions[0], 50)),
		})
	}

	return report
}

func findAssertions(window []bus.Turn) []string {
	var assertions []string
	for _, t := range window {
		for _, sentence := range splitSentences(t.Text) {
			lower := strings.ToLower(sentence)
			for _, marker := range assertionMarkers {
				if strings.Contains(lower, marker) {
					assertions = append(assertions, sentence)
					break
				}
			}
		}
	}
	if len(assertions) > 3 {
		assertions = assertions[:3]
	}
	return assertions
}
