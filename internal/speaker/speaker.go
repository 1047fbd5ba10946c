// Package speaker turns one host's slot in the exchange into spoken
// text. A speaker first checks its staged-response buffer, falls back
// to a live completion, and quietly restages when the buffer runs low.
// Bookkeeping (arc, point, director logs) stays with the control loop.
package speaker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/duskline/crosstalk/internal/bus"
	"github.com/duskline/crosstalk/internal/cast"
	"github.com/duskline/crosstalk/internal/director"
	"github.com/duskline/crosstalk/internal/pipeline"
	"github.com/duskline/crosstalk/internal/research"
)

const defaultWait = 500 * time.Millisecond

// Generator runs one completion for a named cast member.
type Generator interface {
	Generate(ctx context.Context, name, prompt, sessionID string) (string, error)
}

// referencePhrases mark the co-host calling back to something this
// host said earlier.
var referencePhrases = []string{
	"you mentioned",
	"when you said",
	"you talked about",
	"your point about",
}

// Request carries everything one turn of speech depends on.
type Request struct {
	Subject   string
	Brief     *research.Brief
	Other     string // co-host's latest line, empty on the opener
	Window    []bus.Turn
	Summary   string
	Directive *director.Directive
}

// Options tune a speaker; zero values get sensible defaults.
type Options struct {
	Buffer    *pipeline.ResponseBuffer
	Wait      time.Duration
	SessionID string
}

// Speaker produces turns for a single cast member.
type Speaker struct {
	member    cast.Member
	other     cast.Member
	gen       Generator
	buffer    *pipeline.ResponseBuffer
	wait      time.Duration
	sessionID string
}

func New(member, other cast.Member, gen Generator, opts Options) *Speaker {
	buffer := opts.Buffer
	if buffer == nil {
		buffer = pipeline.NewResponseBuffer(member.Name, pipeline.DefaultCapacity)
	}
	wait := opts.Wait
	if wait <= 0 {
		wait = defaultWait
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = strings.ToLower(member.Name)
	}
	return &Speaker{
		member:    member,
		other:     other,
		gen:       gen,
		buffer:    buffer,
		wait:      wait,
		sessionID: sessionID,
	}
}

func (s *Speaker) Name() string { return s.member.Name }

// Buffer exposes the staged-response buffer for tests and stats.
func (s *Speaker) Buffer() *pipeline.ResponseBuffer { return s.buffer }

// Speak produces this host's next line. It prefers a staged response,
// generates live on a miss, and never fails: a generation error turns
// into an on-air stumble. When the buffer runs low a background
// restage starts with the fresh line as the predicted reply target.
func (s *Speaker) Speak(ctx context.Context, req Request) string {
	message, staged := s.buffer.Take(s.wait)
	if staged {
		log.Printf("[speaker] %s served from staged buffer", s.member.Name)
	} else {
		log.Printf("[speaker] %s generating live", s.member.Name)
		message = s.generate(ctx, req)
	}

	if s.buffer.ShouldPrebuffer() {
		s.prebuffer(ctx, req, message)
	}
	return message
}

// generate runs one live completion, handing back a stumble line when
// the model call fails or returns nothing.
func (s *Speaker) generate(ctx context.Context, req Request) string {
	prompt := s.BuildPrompt(req)
	if req.Directive != nil {
		log.Printf("[speaker] %s producer note: %s", s.member.Name, req.Directive.Command())
	}

	text, err := s.gen.Generate(ctx, s.member.Name, prompt, s.sessionID)
	if err != nil {
		log.Printf("[speaker] %s generation failed: %v", s.member.Name, err)
		return fmt.Sprintf("[%s lost track of the thought...]", s.member.Name)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Printf("[speaker] %s generation returned nothing", s.member.Name)
		return fmt.Sprintf("[%s lost track of the thought...]", s.member.Name)
	}
	return text
}

// prebuffer stages a likely next response in the background. The line
// just spoken stands in as the message to react to; no directive is
// applied since the director has not seen the exchange yet.
func (s *Speaker) prebuffer(ctx context.Context, req Request, justSaid string) {
	log.Printf("[speaker] %s staging a response in the background", s.member.Name)
	predicted := req
	predicted.Other = justSaid
	predicted.Directive = nil

	go func() {
		text := s.generate(ctx, predicted)
		s.buffer.Queue(text)
	}()
}

// BuildPrompt assembles the per-exchange prompt: subject, recent flow,
// the co-host's line with its warnings, the director command, and the
// intern's findings.
func (s *Speaker) BuildPrompt(req Request) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Topic: %s\n\n", req.Subject)

	if req.Summary != "" {
		fmt.Fprintf(&sb, "Conversation so far:\n%s\n", req.Summary)
	}

	if flow := recentFlow(req.Window, 2); len(flow) > 0 {
		sb.WriteString("=== RECENT CONVERSATION FLOW ===\n")
		for _, turn := range flow {
			fmt.Fprintf(&sb, "%s: %s\n", turn.Speaker, turn.Text)
		}
		sb.WriteString("\n")
	}

	if req.Other != "" {
		fmt.Fprintf(&sb, "=== %s JUST SAID ===\n%s\n\n", strings.ToUpper(s.other.Name), req.Other)

		if strings.Contains(req.Other, "?") {
			fmt.Fprintf(&sb, "CRITICAL: %s asked you a QUESTION. Answer it directly first, then add your thoughts.\n", s.other.Name)
			sb.WriteString("Don't deflect. Don't philosophize instead. Give a clear answer.\n\n")
		}
		if callsBack(req.Other) {
			fmt.Fprintf(&sb, "%s is referencing something YOU said. Acknowledge what they're building on.\n\n", s.other.Name)
		}

		fmt.Fprintf(&sb, "Respond DIRECTLY to what %s said. Don't just acknowledge, engage with their specific ideas.\n", s.other.Name)
		sb.WriteString("DO NOT start with 'That's interesting/fascinating because...' and vary your openings.\n\n")
	}

	if req.Directive != nil {
		sb.WriteString("=== DIRECTOR COMMAND ===\n")
		fmt.Fprintf(&sb, "%s\n", req.Directive.Command())
		fmt.Fprintf(&sb, "%s\n\n", req.Directive.Instruction)
		sb.WriteString("CRITICAL: This is a direct command from the director. Follow it precisely. This is not optional.\n\n")
	}

	if req.Brief != nil && len(req.Brief.Findings) > 0 {
		fmt.Fprintf(&sb, "=== YOUR INTERN %s FOUND ===\n", strings.ToUpper(s.member.Intern))
		for _, finding := range req.Brief.Findings {
			fmt.Fprintf(&sb, "- %s\n", finding)
		}
		sb.WriteString("\n")
	}

	if req.Other != "" {
		fmt.Fprintf(&sb, "NOW: Continue the conversation naturally. Listen to %s. Respond to what THEY said, not what you want to say.", s.other.Name)
	} else {
		sb.WriteString("NOW: Open the conversation naturally. Share your initial perspective on the topic.")
	}

	return sb.String()
}

func recentFlow(window []bus.Turn, n int) []bus.Turn {
	if len(window) <= n {
		return window
	}
	return window[len(window)-n:]
}

func callsBack(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range referencePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
