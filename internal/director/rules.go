package director

import (
	"log"
	"sort"
	"strings"

	"github.com/duskline/crosstalk/internal/analysis"
	"github.com/duskline/crosstalk/internal/bus"
)

// Context is the read-only view a rule condition sees. Instruction
// templates may reference {intern} and {other}.
type Context struct {
	Report  analysis.Report
	Window  []bus.Turn
	Speaker string
	Other   string
	Intern  string
	Interns []string
}

// Rule is one entry in the priority ladder. Conditions must be pure;
// a panicking condition is skipped, never fatal.
type Rule struct {
	Name        string
	Pattern     string
	Priority    int
	Verb        string
	Noun        string
	Instruction string
	Condition   func(*Context) bool
}

// Engine evaluates the rule ladder top down and returns the first
// match. Same inputs always produce the same directive.
type Engine struct {
	rules []Rule
}

func NewEngine() *Engine {
	return newEngine(defaultRules())
}

func newEngine(rules []Rule) *Engine {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
	return &Engine{rules: rules}
}

// Evaluate returns the first matching rule's directive. When every
// rule fails or misfires it degrades to the fixed default.
func (e *Engine) Evaluate(ctx *Context) *Directive {
	for _, rule := range e.rules {
		if !e.eval(rule, ctx) {
			continue
		}

		log.Printf("[director] rule %s -> %s %s", rule.Name, rule.Verb, rule.Noun)
		return &Directive{
			Verb:        rule.Verb,
			Noun:        rule.Noun,
			Instruction: renderInstruction(rule.Instruction, ctx),
			Reason:      "Pattern: " + rule.Pattern,
			Rule:        rule.Name,
		}
	}

	return &Directive{
		Verb:        VerbFocus,
		Noun:        NounIntern,
		Instruction: renderInstruction("Build on what {intern} discovered", ctx),
		Reason:      "Default: ground conversation in research",
		Rule:        "default",
	}
}

func (e *Engine) eval(rule Rule, ctx *Context) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[director] rule %q failed: %v", rule.Name, r)
			matched = false
		}
	}()
	return rule.Condition(ctx)
}

func renderInstruction(template string, ctx *Context) string {
	return strings.NewReplacer(
		"{intern}", ctx.Intern,
		"{other}", ctx.Other,
	).Replace(template)
}

var deflectionMarkers = []string{
	"interesting",
	"fascinating",
	"profound",
	"reminds me",
	"speaking of",
	"actually",
	"but what about",
	"that said",
	"on the other hand",
}

var citationMarkers = []string{
	"found", "according to", "study", "research",
	"report", "data shows", "evidence", "survey",
}

func defaultRules() []Rule {
	return []Rule{
		{
			Name:        "question_dodging",
			Pattern:     "unanswered_question",
			Priority:    110,
			Verb:        VerbFocus,
			Noun:        NounQuestion,
			Instruction: "Answer {other}'s question directly - stop deflecting",
			Condition:   detectQuestionDodging,
		},
		{
			Name:        "question_exists",
			Pattern:     "question_present",
			Priority:    100,
			Verb:        VerbFocus,
			Noun:        NounQuestion,
			Instruction: "Prioritize answering {other}'s question",
			Condition:   detectQuestionPresent,
		},
		{
			Name:        "ignoring_intern",
			Pattern:     "fresh_research_ignored",
			Priority:    95,
			Verb:        VerbFocus,
			Noun:        NounIntern,
			Instruction: "Use what {intern} just found - it's the key insight here",
			Condition:   detectInternIgnored,
		},
		{
			Name:        "beating_dead_horse",
			Pattern:     "same_research_repeated",
			Priority:    85,
			Verb:        VerbAvoid,
			Noun:        NounIntern,
			Instruction: "Stop rehashing {intern}'s data - we've covered it thoroughly",
			Condition: func(ctx *Context) bool {
				return ctx.Report.Topic.Saturation > 0.8
			},
		},
		{
			Name:        "moderate_saturation",
			Pattern:     "topic_getting_stale",
			Priority:    80,
			Verb:        VerbFocus,
			Noun:        NounIntern,
			Instruction: "Find a fresh angle in {intern}'s research - topic is getting stale",
			Condition: func(ctx *Context) bool {
				s := ctx.Report.Topic.Saturation
				return s > 0.65 && s <= 0.8
			},
		},
		{
			Name:        "energy_critical",
			Pattern:     "very_low_energy",
			Priority:    75,
			Verb:        VerbFocus,
			Noun:        NounIntern,
			Instruction: "INJECT ENERGY - what did {intern} find that's surprising or controversial?",
			Condition: func(ctx *Context) bool {
				return ctx.Report.Pacing.Energy < 0.3
			},
		},
		{
			Name:        "energy_low",
			Pattern:     "low_energy",
			Priority:    70,
			Verb:        VerbFocus,
			Noun:        NounIntern,
			Instruction: "Boost energy - highlight what's interesting in {intern}'s findings",
			Condition: func(ctx *Context) bool {
				return ctx.Report.Pacing.Energy < 0.5
			},
		},
		{
			Name:        "energy_falling",
			Pattern:     "declining_energy",
			Priority:    65,
			Verb:        VerbFocus,
			Noun:        NounIntern,
			Instruction: "Energy dropping - use {intern}'s research to reignite interest",
			Condition: func(ctx *Context) bool {
				return ctx.Report.Pacing.Trend == analysis.TrendFalling
			},
		},
		{
			Name:        "monotony_detected",
			Pattern:     "monotonous_pattern",
			Priority:    55,
			Verb:        VerbFocus,
			Noun:        NounIntern,
			Instruction: "Break the monotony - vary your delivery using {intern}'s data",
			Condition: func(ctx *Context) bool {
				return ctx.Report.Pacing.Monotony
			},
		},
		{
			Name:        "fresh_intern_data",
			Pattern:     "new_research_available",
			Priority:    50,
			Verb:        VerbFocus,
			Noun:        NounIntern,
			Instruction: "Build on what {intern} discovered",
			Condition: func(*Context) bool {
				return true
			},
		},
	}
}

// detectQuestionDodging fires when the other speaker asked a question
// and the reply leans on deflection markers instead of answering: two
// or more markers in a long reply, or a marker within the first five
// words.
func detectQuestionDodging(ctx *Context) bool {
	if len(ctx.Window) < 2 {
		return false
	}
	prev := ctx.Window[len(ctx.Window)-2].Text
	last := ctx.Window[len(ctx.Window)-1].Text

	if !strings.Contains(prev, "?") {
		return false
	}

	lower := strings.ToLower(last)
	count := 0
	for _, marker := range deflectionMarkers {
		if strings.Contains(lower, marker) {
			count++
		}
	}
	if count >= 2 && len(last) > 200 {
		return true
	}

	words := strings.Fields(lower)
	if len(words) > 5 {
		words = words[:5]
	}
	opening := strings.Join(words, " ")
	for _, marker := range deflectionMarkers {
		if strings.Contains(opening, marker) {
			return true
		}
	}
	return false
}

func detectQuestionPresent(ctx *Context) bool {
	if len(ctx.Window) < 2 {
		return false
	}
	return strings.Contains(ctx.Window[len(ctx.Window)-2].Text, "?")
}

// detectInternIgnored fires when the latest turn came with research
// but the text neither names an intern nor cites any source.
func detectInternIgnored(ctx *Context) bool {
	if len(ctx.Window) == 0 {
		return false
	}
	last := ctx.Window[len(ctx.Window)-1]
	if last.Research == "" {
		return false
	}

	lower := strings.ToLower(last.Text)
	for _, name := range ctx.Interns {
		if name != "" && strings.Contains(lower, strings.ToLower(name)) {
			return false
		}
	}
	for _, marker := range citationMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}
