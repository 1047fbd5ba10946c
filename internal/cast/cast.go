// Package cast defines who is on air: two hosts, each with a persona
// and a named research intern. Sheets live as YAML files so a show can
// be recast without touching code.
package cast

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/duskline/crosstalk/internal/research"
)

// Member is one on-air host.
type Member struct {
	Name    string `yaml:"name"`
	Persona string `yaml:"persona"`
	Voice   string `yaml:"voice"`
	Intern  string `yaml:"intern"`
}

// Intern is a research assistant assigned to one host. Style picks the
// angle rotation used once a subject's basics are covered.
type Intern struct {
	Name  string `yaml:"name"`
	Style string `yaml:"style"`
}

// Sheet is a full cast: the host pair plus their interns.
type Sheet struct {
	Hosts   []Member `yaml:"hosts"`
	Interns []Intern `yaml:"interns"`
}

// Default returns the built-in cast used when no sheet file exists.
func Default() *Sheet {
	return &Sheet{
		Hosts: []Member{
			{
				Name:    "Vera",
				Persona: "A warm synthesist who connects ideas across fields and gets genuinely excited when two threads turn out to be the same thread.",
				Voice:   "Curious and generous. Asks real questions, quotes the other host back, laughs easily.",
				Intern:  "Pip",
			},
			{
				Name:    "Moss",
				Persona: "A dry skeptic who trusts numbers over narratives and enjoys finding the load-bearing assumption in any claim.",
				Voice:   "Deadpan and precise. Short sentences. Concedes points gracefully when the evidence lands.",
				Intern:  "Juno",
			},
		},
		Interns: []Intern{
			{Name: "Pip", Style: research.StyleForward},
			{Name: "Juno", Style: research.StyleCritical},
		},
	}
}

// Load reads a cast sheet from path. An empty path or a missing file
// falls back to the default cast; a malformed or invalid sheet is an
// error.
func Load(path string) (*Sheet, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[cast] no cast sheet at %s, using default cast", path)
			return Default(), nil
		}
		return nil, fmt.Errorf("read cast sheet: %w", err)
	}

	var sheet Sheet
	if err := yaml.Unmarshal(data, &sheet); err != nil {
		return nil, fmt.Errorf("parse cast sheet: %w", err)
	}
	if err := sheet.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cast sheet %s: %w", path, err)
	}
	return &sheet, nil
}

// WriteDefault writes the built-in cast to path for editing.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create cast dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal cast sheet: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the invariants the studio relies on: exactly two
// named hosts, and every host's intern resolving to a known style.
func (s *Sheet) Validate() error {
	if len(s.Hosts) != 2 {
		return fmt.Errorf("cast needs exactly 2 hosts, got %d", len(s.Hosts))
	}

	seen := map[string]bool{}
	for _, host := range s.Hosts {
		if strings.TrimSpace(host.Name) == "" {
			return fmt.Errorf("host with empty name")
		}
		if seen[host.Name] {
			return fmt.Errorf("duplicate host name %q", host.Name)
		}
		seen[host.Name] = true
		if strings.TrimSpace(host.Persona) == "" {
			return fmt.Errorf("host %s has no persona", host.Name)
		}
		if _, err := s.InternFor(host.Name); err != nil {
			return err
		}
	}

	for _, intern := range s.Interns {
		if strings.TrimSpace(intern.Name) == "" {
			return fmt.Errorf("intern with empty name")
		}
		if intern.Style != research.StyleForward && intern.Style != research.StyleCritical {
			return fmt.Errorf("intern %s has unknown style %q", intern.Name, intern.Style)
		}
	}
	return nil
}

// Host returns the member with the given name.
func (s *Sheet) Host(name string) (Member, error) {
	for _, host := range s.Hosts {
		if host.Name == name {
			return host, nil
		}
	}
	return Member{}, fmt.Errorf("no host named %q", name)
}

// Other returns the co-host of the given member.
func (s *Sheet) Other(name string) (Member, error) {
	for _, host := range s.Hosts {
		if host.Name != name {
			return host, nil
		}
	}
	return Member{}, fmt.Errorf("no co-host for %q", name)
}

// InternFor returns the intern assigned to the named host.
func (s *Sheet) InternFor(hostName string) (Intern, error) {
	host, err := s.Host(hostName)
	if err != nil {
		return Intern{}, err
	}
	for _, intern := range s.Interns {
		if intern.Name == host.Intern {
			return intern, nil
		}
	}
	return Intern{}, fmt.Errorf("host %s references unknown intern %q", hostName, host.Intern)
}

// InternNames lists all intern names, host order preserved.
func (s *Sheet) InternNames() []string {
	names := make([]string, 0, len(s.Interns))
	for _, intern := range s.Interns {
		names = append(names, intern.Name)
	}
	return names
}

// SystemPrompt renders the persona and the standing conversation rules
// a host's runtime is created with.
func (m Member) SystemPrompt() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s, co-host of a two-person talk show.\n\n", m.Name)
	fmt.Fprintf(&sb, "Your essence: %s\n\n", m.Persona)
	if m.Voice != "" {
		fmt.Fprintf(&sb, "Your voice: %s\n\n", m.Voice)
	}

	sb.WriteString(`CONVERSATION RULES:

1. ANSWER QUESTIONS FIRST
   - If your co-host asks a question, answer it directly before adding your own thoughts
   - Don't deflect, don't pivot, don't philosophize instead of answering

2. VARY YOUR OPENINGS
   - Never start with "That's interesting/fascinating because..."
   - Never reuse an opening you've already used

3. ENGAGE WITH SPECIFICS
   - Quote the actual thing they said: "When you mentioned X..."
   - Respond to their point, not a related tangent

4. KEEP IT CONVERSATIONAL
   - 2-4 sentences unless you're deep in something
   - Leave room for back-and-forth; don't monologue

5. FOLLOW PRODUCER NOTES
   - A producer note in your prompt is a direct command; work it in naturally
   - Keep your own voice while doing what it says

6. CREDIT YOUR INTERN
   - When research arrives, say where it came from: "` + m.Intern + ` found that..."
   - Cite specifics, not vague "studies show"

7. NO ESSAY PHRASES
   - Never "It's important to note", "One could argue", "At the end of the day", "In conclusion"
   - Talk like a person, not a term paper

8. STAY CURIOUS
   - End with a question sometimes; invite their take
   - Show your reasoning, and say so when you're unsure

You're exploring this together. Listen, then respond.`)

	return sb.String()
}
