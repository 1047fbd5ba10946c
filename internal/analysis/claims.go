package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/duskline/crosstalk/internal/bus"
)

// ClaimReport flags statements that sound authoritative without
// hedging or attribution, plus direct contradictions between turns.
type ClaimReport struct {
	Flagged          []FlaggedClaim
	UnsupportedStats []FlaggedStat
	Contradictions   []Contradiction
	TotalFlags       int
}

type FlaggedClaim struct {
	Speaker    string
	Claim      string
	Suggestion string
}

type FlaggedStat struct {
	Speaker    string
	Statistic  string
	Context    string
	Suggestion string
}

type Contradiction struct {
	First      string
	Second     string
	Suggestion string
}

var claimMarkers = []string{
	"proven", "fact", "studies show", "research shows", "data shows",
	"statistics", "percent", "%", "always", "never", "everyone",
	"no one", "impossible", "certain", "definitely", "obviously",
}

var hedgeMarkers = []string{
	"might", "maybe", "perhaps", "possibly", "could",
	"seems", "appears", "suggests", "may", "likely", "probably",
}

var attributionMarkers = []string{
	"according to", "study", "research", "report", "source",
}

var contradictionPairs = [][2]string{
	{"will", "won't"},
	{"is", "isn't"},
	{"can", "can't"},
	{"always", "never"},
	{"everyone", "no one"},
	{"should", "shouldn't"},
}

var (
	percentPattern = regexp.MustCompile(`(?i)\b\d+%|\b\d+\s*percent`)
	scalePattern   = regexp.MustCompile(`(?i)\b\d+(?:,\d{3})*(?:\.\d+)?\s*(?:million|billion|thousand)`)
)

// AnalyzeClaims scans the window for unhedged absolute claims,
// unattributed statistics, and contradictions between speakers.
func AnalyzeClaims(window []bus.Turn) ClaimReport {
	report := ClaimReport{
		Flagged:          flagClaims(window),
		UnsupportedStats: flagStats(window),
		Contradictions:   findContradictions(window),
	}
	report.TotalFlags = len(report.Flagged) + len(report.UnsupportedStats) + len(report.Contradictions)
	return report
}

func flagClaims(window []bus.Turn) []FlaggedClaim {
	var flagged []FlaggedClaim
	seen := make(map[string]bool)

	for _, t := range window {
		for _, sentence := range splitSentences(t.Text) {
			lower := strings.ToLower(sentence)

			marked := false
			for _, marker := range claimMarkers {
				if strings.Contains(lower, marker) {
					marked = true
					break
				}
			}
			if !marked {
				continue
			}

			hedged := false
			for _, hedge := range hedgeMarkers {
				if strings.Contains(lower, hedge) {
					hedged = true
					break
				}
			}
			if hedged || seen[sentence] {
				continue
			}
			seen[sentence] = true

			flagged = append(flagged, FlaggedClaim{
				Speaker:    t.Speaker,
				Claim:      truncate(sentence, 100),
				Suggestion: "add a source or soften the claim",
			})
			if len(flagged) == 3 {
				return flagged
			}
		}
	}
	return flagged
}

func flagStats(window []bus.Turn) []FlaggedStat {
	var flagged []FlaggedStat

	for _, t := range window {
		lower := strings.ToLower(t.Text)

		attributed := false
		for _, marker := range attributionMarkers {
			if strings.Contains(lower, marker) {
				attributed = true
				break
			}
		}
		if attributed {
			continue
		}

		stats := percentPattern.FindAllString(t.Text, -1)
		stats = append(stats, scalePattern.FindAllString(t.Text, -1)...)

		for _, stat := range stats {
			flagged = append(flagged, FlaggedStat{
				Speaker:    t.Speaker,
				Statistic:  stat,
				Context:    truncate(t.Text, 80),
				Suggestion: fmt.Sprintf("cite where %s comes from", stat),
			})
			if len(flagged) == 2 {
				return flagged
			}
		}
	}
	return flagged
}

func findContradictions(window []bus.Turn) []Contradiction {
	var found []Contradiction

	for i := 0; i < len(window); i++ {
		for j := i + 1; j < len(window); j++ {
			a := strings.ToLower(window[i].Text)
			b := strings.ToLower(window[j].Text)

			for _, pair := range contradictionPairs {
				if strings.Contains(a, pair[0]) && strings.Contains(b, pair[1]) {
					found = append(found, Contradiction{
						First:      truncate(window[i].Text, 60),
						Second:     truncate(window[j].Text, 60),
						Suggestion: fmt.Sprintf("resolve %q vs %q", pair[0], pair[1]),
					})
					if len(found) == 2 {
						return found
					}
					break
				}
			}
		}
	}
	return found
}
