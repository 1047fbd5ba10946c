// Package studio runs the show. It owns the exchange loop: pipeline
// probes, live fallbacks, speaker alternation, topic drift, director
// cadence, delivery, and the archive trail.
package studio

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/duskline/crosstalk/internal/arc"
	"github.com/duskline/crosstalk/internal/archive"
	"github.com/duskline/crosstalk/internal/bus"
	"github.com/duskline/crosstalk/internal/cast"
	"github.com/duskline/crosstalk/internal/channel"
	"github.com/duskline/crosstalk/internal/config"
	"github.com/duskline/crosstalk/internal/director"
	"github.com/duskline/crosstalk/internal/housekeeping"
	"github.com/duskline/crosstalk/internal/llm"
	"github.com/duskline/crosstalk/internal/pipeline"
	"github.com/duskline/crosstalk/internal/point"
	"github.com/duskline/crosstalk/internal/research"
	"github.com/duskline/crosstalk/internal/speaker"
	"github.com/duskline/crosstalk/internal/topic"
)

const windowDepth = 10

// Options assemble a show. RuntimeFactory and Signals exist for
// injection; nil means the real model runtime and no signal handling.
type Options struct {
	Config         *config.Config
	Cast           *cast.Sheet
	Subject        string
	Fresh          bool
	RuntimeFactory llm.RuntimeFactory
	Signals        <-chan os.Signal
}

// Studio wires the cast and crew for one show and runs the exchange
// loop. All mutable show state (window, trackers, director) belongs to
// Run's goroutine; background pipeline tasks only ever see the frozen
// Task snapshot they were scheduled with.
type Studio struct {
	cfg     *config.Config
	cast    *cast.Sheet
	subject string
	signals <-chan os.Signal

	pool     *llm.Pool
	sessions map[string]string
	speakers map[string]*speaker.Speaker
	interns  map[string]*research.Researcher
	arcs     map[string]*arc.Tracker
	pipe     *pipeline.Controller
	evolver  *topic.Evolver
	point    *point.Tracker
	director *director.Director
	bus      *bus.Bus
	channels *channel.Manager
	console  *channel.Console
	archive  *archive.Archive
	keeper   *housekeeping.Service

	cadence   int
	sessionID string
	window    []bus.Turn
}

func New(opts Options) (*Studio, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("studio: config is required")
	}
	subject := strings.TrimSpace(opts.Subject)
	if subject == "" {
		return nil, fmt.Errorf("studio: subject is required")
	}

	sheet := opts.Cast
	if sheet == nil {
		loaded, err := cast.Load(cfg.Show.CastPath)
		if err != nil {
			return nil, fmt.Errorf("load cast: %w", err)
		}
		sheet = loaded
	}

	personas := make([]llm.Persona, 0, len(sheet.Hosts))
	for _, host := range sheet.Hosts {
		personas = append(personas, llm.Persona{Name: host.Name, System: host.SystemPrompt()})
	}
	pool, err := llm.NewPool(cfg, opts.RuntimeFactory, personas)
	if err != nil {
		return nil, err
	}

	s := &Studio{
		cfg:      cfg,
		cast:     sheet,
		subject:  subject,
		signals:  opts.Signals,
		pool:     pool,
		sessions: make(map[string]string),
		speakers: make(map[string]*speaker.Speaker),
		interns:  make(map[string]*research.Researcher),
		arcs:     make(map[string]*arc.Tracker),
		evolver:  topic.NewEvolver(),
		bus:      bus.NewBus(),
	}

	searcher := research.NewDuckDuckGo(cfg.Research.Endpoint,
		time.Duration(cfg.Research.TimeoutMs)*time.Millisecond, cfg.Research.MaxResults)
	wait := time.Duration(cfg.Pipeline.SpeakerWaitMs) * time.Millisecond

	for _, host := range sheet.Hosts {
		other, err := sheet.Other(host.Name)
		if err != nil {
			pool.Close()
			return nil, err
		}
		intern, err := sheet.InternFor(host.Name)
		if err != nil {
			pool.Close()
			return nil, err
		}

		sessionID := strings.ToLower(host.Name)
		s.sessions[host.Name] = sessionID
		s.speakers[host.Name] = speaker.New(host, other, pool, speaker.Options{
			Buffer:    pipeline.NewResponseBuffer(host.Name, cfg.Pipeline.BufferCapacity),
			Wait:      wait,
			SessionID: sessionID,
		})
		s.interns[host.Name] = research.NewResearcher(intern.Name, intern.Style, searcher)
		s.arcs[host.Name] = arc.NewTracker(host.Name)
	}

	statePath := filepath.Join(config.ConfigDir(), "point.json")
	if opts.Fresh {
		if err := os.Remove(statePath); err != nil && !os.IsNotExist(err) {
			log.Printf("[studio] could not clear point state: %v", err)
		}
	}
	s.point = point.NewTracker(subject, point.NewFileStore(statePath))

	s.cadence = cfg.Show.DirectorCadence
	if s.cadence <= 0 {
		s.cadence = director.DefaultCadence
	}
	s.director = director.New(director.Options{
		Cadence:     s.cadence,
		GravityMode: cfg.Show.GravityMode,
		Point:       s.point,
	})

	s.pipe = pipeline.NewController(cfg.Pipeline.BufferCapacity, s.researchTask, s.generateTask)

	chCfg := cfg.Channels
	chCfg.Console.Enabled = false // constructed directly so the studio keeps the header handle
	manager, err := channel.NewManager(chCfg, s.bus)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if cfg.Channels.Console.Enabled {
		s.console = channel.NewConsole(nil)
		manager.Register(s.console)
	}
	s.channels = manager

	if cfg.Archive.Enabled {
		dbPath := cfg.Archive.DBPath
		if dbPath == "" {
			dbPath = filepath.Join(config.ConfigDir(), "archive.db")
		}
		arch, err := archive.Open(dbPath)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		s.archive = arch
		s.keeper = housekeeping.NewService(arch, cfg.Archive)
	}

	return s, nil
}

// Run plays the show until the exchange limit, a signal, or context
// cancellation. Conditions the loop can absorb are logged, never
// returned; only failures before the show starts are errors.
func (s *Studio) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	if err := s.channels.StartAll(ctx); err != nil {
		cancel()
		return fmt.Errorf("start channels: %w", err)
	}
	// Cancel runs before shutdown so in-flight background work winds
	// down instead of racing the teardown.
	defer s.shutdown()
	defer cancel()

	if s.archive != nil {
		id, err := s.archive.BeginSession(s.subject)
		if err != nil {
			log.Printf("[studio] archive unavailable this session: %v", err)
		} else {
			s.sessionID = id
		}
	}
	if s.keeper != nil {
		if _, err := s.keeper.RunPruneNow(); err != nil {
			log.Printf("[studio] startup prune failed: %v", err)
		}
		if err := s.keeper.Start(); err != nil {
			log.Printf("[studio] housekeeping disabled: %v", err)
			s.keeper = nil
		}
	}

	if s.console != nil {
		s.console.Header(s.subject)
	}
	log.Printf("[studio] on air: %q with %s and %s",
		s.subject, s.cast.Hosts[0].Name, s.cast.Hosts[1].Name)

	current := s.cast.Hosts[0].Name
	next := s.cast.Hosts[1].Name
	subject := s.subject
	prior := ""
	count := 0

	// The opening speaker is advised before anything goes on air; from
	// then on consultation follows each delivered exchange.
	directive := s.consult(current, next)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[studio] context closed, ending the show")
			return nil
		case sig := <-s.signals:
			log.Printf("[studio] received %v, ending the show", sig)
			return nil
		default:
		}

		count++
		text, brief := s.produceTurn(ctx, current, subject, prior, count, directive)

		turn := bus.Turn{
			Seq:       count,
			Speaker:   current,
			Text:      text,
			Research:  brief.Summary(),
			Timestamp: time.Now(),
		}
		s.window = append(s.window, turn)
		if len(s.window) > windowDepth {
			s.window = s.window[len(s.window)-windowDepth:]
		}

		// Bookkeeping precedes the next consultation so the directive
		// frozen into the scheduled task reflects this exchange.
		s.arcs[current].Observe(text, prior)
		s.point.Update(current, text)
		s.director.RecordExchange(current)

		nextSubject := subject
		if s.evolver.ShouldEvolve(count + 1) {
			nextSubject = s.evolver.Evolve(s.subject, s.windowTexts(2), brief)
		}

		nextDirective := s.consult(next, current)

		task := pipeline.Task{
			Speaker:   next,
			Subject:   nextSubject,
			PriorTurn: text,
			Context:   s.buildSummary(nextSubject, count),
			Directive: nextDirective,
		}
		if err := s.pipe.Start(ctx, task); err != nil {
			log.Printf("[studio] pipeline not scheduled for %s: %v", next, err)
		}

		s.deliver(turn, subject)

		if count%s.cadence == 0 {
			health := s.director.Health(s.windowTail(s.cfg.Show.AnalyzerWindow))
			log.Printf("[studio] health %s: saturation %.0f%% energy %.0f%% trend %s; pipeline %s",
				health.Status, health.Saturation*100, health.Energy*100, health.Trend, s.pipe.Stats())
		}

		if s.cfg.Show.MaxExchanges > 0 && count >= s.cfg.Show.MaxExchanges {
			log.Printf("[studio] exchange limit reached (%d), ending the show", count)
			return nil
		}

		prior = text
		current, next = next, current
		subject = nextSubject
		directive = nextDirective

		if !s.pause(ctx) {
			return nil
		}
	}
}

// produceTurn yields the current speaker's line, preferring the staged
// pipeline turn. A staged turn for the wrong speaker is discarded; a
// miss falls back to synchronous research and a live take under the
// same frozen directive.
func (s *Studio) produceTurn(ctx context.Context, current, subject, prior string, count int, directive *director.Directive) (string, *research.Brief) {
	takeTimeout := time.Duration(s.cfg.Pipeline.TakeTimeoutMs) * time.Millisecond
	if staged, ok := s.pipe.TryTake(takeTimeout); ok {
		if staged.Speaker == current {
			return staged.Text, staged.Brief
		}
		log.Printf("[studio] staged turn was for %s, not %s; regenerating", staged.Speaker, current)
	}

	var brief *research.Brief
	if b, err := s.interns[current].Research(ctx, subject); err != nil {
		log.Printf("[studio] research unavailable for %s: %v", current, err)
	} else {
		brief = b
	}

	text := s.speakers[current].Speak(ctx, speaker.Request{
		Subject:   subject,
		Brief:     brief,
		Other:     prior,
		Window:    s.window,
		Summary:   s.buildSummary(subject, count-1),
		Directive: directive,
	})
	return text, brief
}

// deliver hands the turn to the bus (fire and forget) and the archive.
func (s *Studio) deliver(turn bus.Turn, subject string) {
	s.bus.Publish(bus.TurnEvent{
		SessionID: s.sessionID,
		Subject:   subject,
		Turn:      turn,
	})

	if s.archive != nil && s.sessionID != "" {
		if err := s.archive.AppendTurn(s.sessionID, subject, turn); err != nil {
			log.Printf("[studio] archive append failed: %v", err)
		}
	}
}

// consult asks the director to advise the next speaker. Off cadence it
// returns nil, which every consumer treats as "continue as you were".
func (s *Studio) consult(speakerName, otherName string) *director.Directive {
	internName := ""
	if intern, err := s.cast.InternFor(speakerName); err == nil {
		internName = intern.Name
	}
	tracker := s.arcs[speakerName]
	summary := tracker.Summary()
	return s.director.Consult(director.Request{
		Speaker:      speakerName,
		Other:        otherName,
		Intern:       internName,
		Interns:      s.cast.InternNames(),
		Window:       s.windowTail(s.cfg.Show.AnalyzerWindow),
		ArcTheme:     tracker.Theme(),
		ArcAlignment: summary.AvgAlignment,
		HasAlignment: summary.HasAlignment,
	})
}

// researchTask runs on the pipeline goroutine. Researchers are safe
// for concurrent use; nothing else of the studio is touched.
func (s *Studio) researchTask(ctx context.Context, task pipeline.Task) (*research.Brief, error) {
	intern, ok := s.interns[task.Speaker]
	if !ok {
		return nil, fmt.Errorf("no researcher for %s", task.Speaker)
	}
	return intern.Research(ctx, task.Subject)
}

// generateTask runs on the pipeline goroutine. Unlike the live path it
// propagates failure, so the controller drops the turn and the loop
// falls back to a live take instead of airing a stumble.
func (s *Studio) generateTask(ctx context.Context, task pipeline.Task, brief *research.Brief) (string, error) {
	spk, ok := s.speakers[task.Speaker]
	if !ok {
		return "", fmt.Errorf("no speaker for %s", task.Speaker)
	}
	prompt := spk.BuildPrompt(speaker.Request{
		Subject:   task.Subject,
		Brief:     brief,
		Other:     task.PriorTurn,
		Summary:   task.Context,
		Directive: task.Directive,
	})
	text, err := s.pool.Generate(ctx, task.Speaker, prompt, s.sessions[task.Speaker])
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty completion for %s", task.Speaker)
	}
	return text, nil
}

// pause waits out the exchange delay, returning false when the show
// should end instead of continuing.
func (s *Studio) pause(ctx context.Context) bool {
	delay := time.Duration(s.cfg.Show.ExchangeDelaySec) * time.Second
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		log.Printf("[studio] context closed, ending the show")
		return false
	case sig := <-s.signals:
		log.Printf("[studio] received %v, ending the show", sig)
		return false
	}
}

// shutdown ends the session and releases everything New acquired.
func (s *Studio) shutdown() {
	if s.archive != nil && s.sessionID != "" {
		if err := s.archive.EndSession(s.sessionID); err != nil {
			log.Printf("[studio] end session: %v", err)
		}
	}

	snap := s.point.Snapshot()
	log.Printf("[studio] signing off: %d exchanges, point %q at %.0f%% saturation",
		snap.ExchangeCount, snap.Essence, snap.Saturation*100)
	log.Printf("[studio] pipeline %s", s.pipe.Stats())
	if thread := s.evolver.Thread(); len(thread) > 0 {
		log.Printf("[studio] drift thread: %s", strings.Join(thread, " -> "))
	}

	if s.keeper != nil {
		s.keeper.Stop()
	}
	if err := s.channels.StopAll(); err != nil {
		log.Printf("[studio] stopping channels: %v", err)
	}
	if !s.pipe.Drain(5 * time.Second) {
		log.Printf("[studio] pipeline task still running at shutdown")
	}
	s.pool.Close()
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			log.Printf("[studio] closing archive: %v", err)
		}
	}
}

func (s *Studio) buildSummary(subject string, count int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "We've been discussing: %s\n", subject)
	fmt.Fprintf(&sb, "Exchange count: %d\n", count)
	if len(s.window) > 0 {
		sb.WriteString("Recent points:\n")
		for _, turn := range s.windowTail(2) {
			fmt.Fprintf(&sb, "- %s: %s\n", turn.Speaker, preview(turn.Text, 100))
		}
	}
	return sb.String()
}

func (s *Studio) windowTail(n int) []bus.Turn {
	if len(s.window) <= n {
		return s.window
	}
	return s.window[len(s.window)-n:]
}

func (s *Studio) windowTexts(n int) []string {
	tail := s.windowTail(n)
	texts := make([]string, 0, len(tail))
	for _, turn := range tail {
		texts = append(texts, turn.Text)
	}
	return texts
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
