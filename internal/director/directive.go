package director

// Command grammar. A directive pairs one verb with one noun, plus a
// rendered instruction for the speaker's prompt.
const (
	VerbFocus = "FOCUS"
	VerbAvoid = "AVOID"

	NounIntern   = "INTERN"
	NounQuestion = "QUESTION"
)

// Directive is the director's order to the next speaker. A nil
// directive means carry on as you were.
type Directive struct {
	Verb        string
	Noun        string
	Instruction string
	Reason      string
	Rule        string
}

func (d *Directive) Command() string {
	return d.Verb + " " + d.Noun
}
