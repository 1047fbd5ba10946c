package bus

import (
	"time"
)

// Turn is one speaker's complete utterance in the dialogue sequence.
// Immutable once created; the show loop appends it to the session history
// and every analyzer reads it from there.
type Turn struct {
	Seq       int
	Speaker   string
	Text      string
	Research  string // one-line summary of the brief behind this turn, empty when none
	Timestamp time.Time
}

// TurnEvent is what delivery channels receive for each spoken turn.
type TurnEvent struct {
	SessionID string
	Subject   string
	Turn      Turn
}
