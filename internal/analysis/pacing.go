package analysis

import (
	"math"
	"strings"

	"github.com/duskline/crosstalk/internal/bus"
)

// Trend values reported by AnalyzePacing.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendStable  = "stable"
)

// PacingReport estimates conversational energy from message lengths.
// Energy blends average length against a 500-char ceiling with length
// variance as a proxy for dynamism.
type PacingReport struct {
	Energy        float64
	Trend         string
	AvgLength     float64
	Monotony      bool
	QuestionRatio float64
	Suggestions   []string
}

// AnalyzePacing needs at least three turns to say anything useful;
// below that it reports neutral defaults.
func AnalyzePacing(window []bus.Turn) PacingReport {
	if len(window) < 3 {
		return PacingReport{Energy: 0.5, Trend: TrendStable}
	}

	lengths := make([]float64, len(window))
	questions := 0
	for i, t := range window {
		lengths[i] = float64(len(t.Text))
		if strings.Contains(t.Text, "?") {
			questions++
		}
	}

	avg := mean(lengths)
	sd := stdev(lengths)

	lengthScore := math.Min(avg/500, 1)
	varietyScore := math.Min(sd/200, 0.3)
	energy := round2(math.Min(lengthScore+varietyScore, 1))

	report := PacingReport{
		Energy:        energy,
		Trend:         lengthTrend(lengths),
		AvgLength:     round2(avg),
		Monotony:      sd < 50 && len(window) > 3,
		QuestionRatio: round2(float64(questions) / float64(len(window))),
	}
	report.Suggestions = pacingSuggestions(report)
	return report
}

func lengthTrend(lengths []float64) string {
	recent := mean(lengths[len(lengths)-3:])
	if len(lengths) == 3 {
		// At three samples the trailing mean is the whole window;
		// compare the newest length so a swing still registers.
		recent = lengths[2]
	}

	earlier := mean(lengths)
	if len(lengths) >= 6 {
		earlier = mean(lengths[:3])
	}

	switch {
	case recent > earlier*1.2:
		return TrendRising
	case recent < earlier*0.8:
		return TrendFalling
	default:
		return TrendStable
	}
}

func pacingSuggestions(r PacingReport) []string {
	var suggestions []string

	if r.Energy < 0.3 {
		suggestions = append(suggestions,
			"energy critically low, responses too short or flat",
			"inject surprising research or a provocative question")
	} else if r.Energy < 0.5 {
		suggestions = append(suggestions,
			"energy below healthy range",
			"vary response length and bring in fresh material")
	}

	if r.Trend == TrendFalling {
		suggestions = append(suggestions, "responses shrinking, conversation may be winding down")
	}
	if r.Monotony {
		suggestions = append(suggestions, "response lengths too uniform, vary the rhythm")
	}
	if r.QuestionRatio < 0.2 {
		suggestions = append(suggestions, "few questions being asked, add curiosity")
	}

	return suggestions
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdev is the sample standard deviation (n-1 denominator).
func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
