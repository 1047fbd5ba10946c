// Package director keeps the dialogue from degenerating. It watches
// every exchange, and on a fixed cadence runs fast deterministic
// analyzers plus a priority rule ladder to issue one directive for the
// next speaker. No generation call is ever involved in a decision.
package director

import (
	"fmt"
	"log"

	"github.com/duskline/crosstalk/internal/analysis"
	"github.com/duskline/crosstalk/internal/bus"
	"github.com/duskline/crosstalk/internal/point"
)

// Gravity modes. In steer mode a strong pull from the point preempts
// the rule ladder; in monitor mode drift is only logged.
const (
	GravitySteer   = "steer"
	GravityMonitor = "monitor"
)

const (
	DefaultCadence = 3

	pointStatusEvery = 5
)

// Options configures a Director.
type Options struct {
	Cadence     int
	GravityMode string
	Point       *point.Tracker
}

// Request carries everything the director needs to advise the speaker
// about to talk. Window is the recent turn history, newest last.
type Request struct {
	Speaker      string
	Other        string
	Intern       string
	Interns      []string
	Window       []bus.Turn
	ArcTheme     string
	ArcAlignment float64
	HasAlignment bool
}

// Health is a diagnostic snapshot of the conversation.
type Health struct {
	Status        string
	ExchangeCount int
	Saturation    float64
	Energy        float64
	Trend         string
	LastDirective *Directive
}

// Director owns intervention timing and the rule engine. Owned by the
// exchange loop; not safe for concurrent use.
type Director struct {
	engine        *Engine
	point         *point.Tracker
	cadence       int
	gravityMode   string
	exchangeCount int
	last          *Directive
}

func New(opts Options) *Director {
	cadence := opts.Cadence
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	mode := opts.GravityMode
	if mode != GravityMonitor {
		mode = GravitySteer
	}
	return &Director{
		engine:      NewEngine(),
		point:       opts.Point,
		cadence:     cadence,
		gravityMode: mode,
	}
}

// RecordExchange counts one delivered exchange toward the cadence.
func (d *Director) RecordExchange(speaker string) {
	d.exchangeCount++
	log.Printf("[director] logged %s, exchange #%d", speaker, d.exchangeCount)
}

// Consult returns the directive for the next speaker, or nil when it
// is not yet time to intervene. A strong gravitational pull preempts
// the rule ladder when steering is enabled.
func (d *Director) Consult(req Request) *Directive {
	if d.exchangeCount%d.cadence != 0 {
		return nil
	}

	log.Printf("[director] analyzing conversation for %s", req.Speaker)
	report := analysis.Analyze(req.Window)

	d.logPointStatus()

	if d.point != nil && req.ArcTheme != "" {
		distance := d.point.Distance(req.Speaker, req.ArcTheme)
		pull := d.point.PullFor(req.Speaker)

		if pull != nil && pull.Strength == point.PullStrong {
			if d.gravityMode == GravitySteer {
				log.Printf("[director] strong gravitational pull, %.0f%% from point", distance*100)
				directive := &Directive{
					Verb:        VerbFocus,
					Noun:        NounIntern,
					Instruction: pull.Instruction,
					Reason:      fmt.Sprintf("Gravitational pull: %.0f%% from Point", distance*100),
					Rule:        "point_gravity",
				}
				d.last = directive
				return directive
			}
			log.Printf("[director] drift observed for %s, %.0f%% from point (monitor mode)",
				req.Speaker, distance*100)
		}
	}

	if req.HasAlignment && req.ArcAlignment < 0.3 {
		log.Printf("[director] arc drift: %s dodging questions, alignment %.0f%%",
			req.Speaker, req.ArcAlignment*100)
	}

	directive := d.engine.Evaluate(&Context{
		Report:  report,
		Window:  req.Window,
		Speaker: req.Speaker,
		Other:   req.Other,
		Intern:  req.Intern,
		Interns: req.Interns,
	})
	d.last = directive
	log.Printf("[director] directive issued: %s", directive.Command())
	return directive
}

// Health runs a quick analysis over the window for status commands.
func (d *Director) Health(window []bus.Turn) Health {
	if len(window) == 0 {
		return Health{Status: "no_data"}
	}

	report := analysis.Analyze(window)
	status := "needs_attention"
	if report.Topic.Saturation < 0.7 && report.Pacing.Energy > 0.4 {
		status = "healthy"
	}
	return Health{
		Status:        status,
		ExchangeCount: d.exchangeCount,
		Saturation:    report.Topic.Saturation,
		Energy:        report.Pacing.Energy,
		Trend:         report.Pacing.Trend,
		LastDirective: d.last,
	}
}

func (d *Director) logPointStatus() {
	if d.point == nil {
		return
	}
	snap := d.point.Snapshot()
	if d.exchangeCount%pointStatusEvery == 0 {
		log.Printf("[director] point status: saturation %.0f%% strength %.0f%% facets %d",
			snap.Saturation*100, snap.Strength*100, len(snap.Facets))
	}
	if d.point.ShouldShift() {
		log.Printf("[director] point shift threshold: %s", d.point.ShiftReason())
	}
}
