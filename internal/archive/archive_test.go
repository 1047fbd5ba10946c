package archive

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/duskline/crosstalk/internal/bus"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSessionLifecycle(t *testing.T) {
	a := openTestArchive(t)

	id, err := a.BeginSession("fusion power")
	if err != nil {
		t.Fatalf("BeginSession() error = %v", err)
	}
	if id == "" {
		t.Fatal("BeginSession() returned empty id")
	}

	turns := []bus.Turn{
		{Seq: 1, Speaker: "Vera", Text: "Opening thought on fusion."},
		{Seq: 2, Speaker: "Moss", Text: "Counterpoint on costs."},
	}
	for _, turn := range turns {
		if err := a.AppendTurn(id, "fusion power", turn); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	sessions, err := a.RecentSessions(5)
	if err != nil {
		t.Fatalf("RecentSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("RecentSessions() = %d sessions, want 1", len(sessions))
	}
	s := sessions[0]
	if s.ID != id || s.Subject != "fusion power" || s.Exchanges != 2 {
		t.Errorf("session = %+v, want id/subject/2 exchanges", s)
	}
	if s.StartedAt.IsZero() {
		t.Error("StartedAt is zero")
	}
	if !s.EndedAt.IsZero() {
		t.Error("EndedAt set before EndSession")
	}

	if err := a.EndSession(id); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	sessions, _ = a.RecentSessions(5)
	if sessions[0].EndedAt.IsZero() {
		t.Error("EndedAt still zero after EndSession")
	}
}

func TestSessionSummary(t *testing.T) {
	a := openTestArchive(t)

	id, err := a.BeginSession("fusion power")
	if err != nil {
		t.Fatalf("BeginSession() error = %v", err)
	}
	lines := []struct {
		speaker, text string
	}{
		{"Vera", "Opening thought."},
		{"Moss", "A counterpoint."},
		{"Vera", "And a closing synthesis."},
	}
	for i, line := range lines {
		turn := bus.Turn{Seq: i + 1, Speaker: line.speaker, Text: line.text}
		if err := a.AppendTurn(id, "fusion power", turn); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	sum, err := a.SessionSummary(id)
	if err != nil {
		t.Fatalf("SessionSummary() error = %v", err)
	}
	if sum.Session.Subject != "fusion power" || sum.Session.Exchanges != 3 {
		t.Errorf("session = %+v, want fusion power with 3 exchanges", sum.Session)
	}
	want := []string{"Moss: A counterpoint.", "Vera: And a closing synthesis."}
	if len(sum.Previews) != 2 || sum.Previews[0] != want[0] || sum.Previews[1] != want[1] {
		t.Errorf("previews = %v, want %v", sum.Previews, want)
	}
}

func TestSessionSummaryUnknownID(t *testing.T) {
	a := openTestArchive(t)
	if _, err := a.SessionSummary("no-such-session"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestTranscriptOrder(t *testing.T) {
	a := openTestArchive(t)

	id, err := a.BeginSession("fusion power")
	if err != nil {
		t.Fatalf("BeginSession() error = %v", err)
	}

	when := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lines := []string{"first line", "second line", "third line"}
	for i, text := range lines {
		turn := bus.Turn{
			Seq:       i + 1,
			Speaker:   "Vera",
			Text:      text,
			Research:  "brief",
			Timestamp: when.Add(time.Duration(i) * time.Minute),
		}
		if err := a.AppendTurn(id, "fusion power", turn); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	turns, err := a.Transcript(id)
	if err != nil {
		t.Fatalf("Transcript() error = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("Transcript() = %d turns, want 3", len(turns))
	}
	for i, turn := range turns {
		if turn.Text != lines[i] {
			t.Errorf("turn %d = %q, want %q", i, turn.Text, lines[i])
		}
	}
	if !turns[0].Timestamp.Equal(when) {
		t.Errorf("timestamp = %v, want %v", turns[0].Timestamp, when)
	}
	if turns[1].Research != "brief" {
		t.Errorf("research = %q, want brief", turns[1].Research)
	}
}

func TestRecentSessionsNewestFirst(t *testing.T) {
	a := openTestArchive(t)

	first, _ := a.BeginSession("older show")
	second, _ := a.BeginSession("newer show")

	sessions, err := a.RecentSessions(5)
	if err != nil {
		t.Fatalf("RecentSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("RecentSessions() = %d, want 2", len(sessions))
	}
	if sessions[0].ID != second || sessions[1].ID != first {
		t.Errorf("order = %s, %s, want newest first", sessions[0].Subject, sessions[1].Subject)
	}
}

func TestSearchFindsTurn(t *testing.T) {
	a := openTestArchive(t)

	id, _ := a.BeginSession("fusion power")
	a.AppendTurn(id, "fusion power", bus.Turn{Seq: 1, Speaker: "Vera", Text: "The tokamak ran for 45 seconds."})
	a.AppendTurn(id, "fusion power", bus.Turn{Seq: 2, Speaker: "Moss", Text: "Grid storage is the real bottleneck."})

	hits, err := a.Search("tokamak", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("Search() = %d hits, want 1", len(hits))
	}
	if hits[0].Speaker != "Vera" || hits[0].Subject != "fusion power" {
		t.Errorf("hit = %+v, want Vera on fusion power", hits[0])
	}

	hits, err = a.Search("zeppelin", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Search(zeppelin) = %d hits, want 0", len(hits))
	}
}

func TestSearchSanitizesQuery(t *testing.T) {
	a := openTestArchive(t)

	id, _ := a.BeginSession("fusion power")
	a.AppendTurn(id, "fusion power", bus.Turn{Seq: 1, Speaker: "Vera", Text: "tokamak progress"})

	if _, err := a.Search(`"tokamak" (progress)* NOT`, 10); err != nil {
		t.Errorf("Search() with FTS syntax error = %v", err)
	}

	hits, err := a.Search("AND OR NOT", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if hits != nil {
		t.Errorf("Search() of reserved words = %v, want nil", hits)
	}
}

func TestPruneBeforeRemovesOldSessions(t *testing.T) {
	a := openTestArchive(t)

	old, _ := a.BeginSession("ancient show")
	a.AppendTurn(old, "ancient show", bus.Turn{Seq: 1, Speaker: "Vera", Text: "archaeology of ideas"})
	fresh, _ := a.BeginSession("fresh show")
	a.AppendTurn(fresh, "fresh show", bus.Turn{Seq: 1, Speaker: "Moss", Text: "still relevant"})

	if _, err := a.db.Exec(`UPDATE sessions SET started_at = '2020-01-01T00:00:00Z' WHERE id = ?`, old); err != nil {
		t.Fatal(err)
	}

	pruned, err := a.PruneBefore(time.Now().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("PruneBefore() error = %v", err)
	}
	if pruned != 1 {
		t.Errorf("PruneBefore() = %d, want 1", pruned)
	}

	stats, err := a.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Sessions != 1 || stats.Turns != 1 {
		t.Errorf("stats after prune = %+v, want 1 session, 1 turn", stats)
	}

	hits, _ := a.Search("archaeology", 10)
	if len(hits) != 0 {
		t.Errorf("pruned turn still searchable: %v", hits)
	}

	if err := a.Vacuum(); err != nil {
		t.Errorf("Vacuum() error = %v", err)
	}
}

func TestRecordFromBusEvent(t *testing.T) {
	a := openTestArchive(t)

	id, _ := a.BeginSession("fusion power")
	event := bus.TurnEvent{
		SessionID: id,
		Subject:   "fusion power",
		Turn:      bus.Turn{Seq: 1, Speaker: "Vera", Text: "straight off the bus"},
	}
	if err := a.Record(event); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	turns, err := a.Transcript(id)
	if err != nil {
		t.Fatalf("Transcript() error = %v", err)
	}
	if len(turns) != 1 || turns[0].Text != "straight off the bus" {
		t.Errorf("transcript = %+v, want the recorded turn", turns)
	}
}

func TestStatsEmptyArchive(t *testing.T) {
	a := openTestArchive(t)

	stats, err := a.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Sessions != 0 || stats.Turns != 0 {
		t.Errorf("stats = %+v, want zeros", stats)
	}
	if !stats.Earliest.IsZero() || !stats.Latest.IsZero() {
		t.Errorf("empty archive has time bounds: %+v", stats)
	}
}
