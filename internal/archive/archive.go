// Package archive persists broadcast transcripts in SQLite. Every
// delivered turn lands here so past shows can be listed, replayed, and
// searched full-text after the fact.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/duskline/crosstalk/internal/bus"
)

const maxFTSTokens = 8

// Session is one archived broadcast.
type Session struct {
	ID        string
	Subject   string
	StartedAt time.Time
	EndedAt   time.Time // zero while the session is still open
	Exchanges int
}

// Hit is one full-text search match.
type Hit struct {
	SessionID string
	Subject   string
	Speaker   string
	Text      string
	SpokenAt  time.Time
}

// Stats summarizes the archive contents.
type Stats struct {
	Sessions int
	Turns    int
	Earliest time.Time
	Latest   time.Time
}

// Summary is one session plus previews of its closing turns, for
// listings that need more than a row count.
type Summary struct {
	Session  Session
	Previews []string
}

type Archive struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(dbPath string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	a := &Archive{db: db}
	if err := a.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := a.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := a.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (a *Archive) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			exchanges INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			seq INTEGER NOT NULL,
			speaker TEXT NOT NULL,
			message TEXT NOT NULL,
			research TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS turns_fts USING fts5(
			message,
			content='turns',
			content_rowid='id',
			tokenize='unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS turns_ai AFTER INSERT ON turns BEGIN
			INSERT INTO turns_fts(rowid, message) VALUES (new.id, new.message);
		END`,
		`CREATE TRIGGER IF NOT EXISTS turns_ad AFTER DELETE ON turns BEGIN
			INSERT INTO turns_fts(turns_fts, rowid, message) VALUES('delete', old.id, old.message);
		END`,
		`CREATE TRIGGER IF NOT EXISTS turns_au AFTER UPDATE ON turns BEGIN
			INSERT INTO turns_fts(turns_fts, rowid, message) VALUES('delete', old.id, old.message);
			INSERT INTO turns_fts(rowid, message) VALUES (new.id, new.message);
		END`,
	}

	for _, stmt := range stmts {
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// BeginSession opens a new archived session and returns its ID.
func (a *Archive) BeginSession(subject string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := uuid.NewString()
	_, err := a.db.Exec(`
		INSERT INTO sessions (id, subject, started_at)
		VALUES (?, ?, ?)
	`, id, subject, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("begin session: %w", err)
	}
	return id, nil
}

// AppendTurn stores one delivered turn and bumps the session's
// exchange count.
func (a *Archive) AppendTurn(sessionID, subject string, turn bus.Turn) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	when := turn.Timestamp
	if when.IsZero() {
		when = time.Now()
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO turns (session_id, seq, speaker, message, research, subject, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sessionID, turn.Seq, turn.Speaker, turn.Text, turn.Research, subject, when.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	if _, err := tx.Exec(`UPDATE sessions SET exchanges = exchanges + 1 WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("count exchange: %w", err)
	}
	return tx.Commit()
}

// Record stores a turn event straight off the bus.
func (a *Archive) Record(event bus.TurnEvent) error {
	return a.AppendTurn(event.SessionID, event.Subject, event.Turn)
}

// EndSession stamps the session's end time.
func (a *Archive) EndSession(sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(`
		UPDATE sessions SET ended_at = ? WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// RecentSessions lists sessions newest first.
func (a *Archive) RecentSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := a.db.Query(`
		SELECT id, subject, started_at, ended_at, exchanges
		FROM sessions
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var started string
		var ended sql.NullString
		if err := rows.Scan(&s.ID, &s.Subject, &started, &ended, &s.Exchanges); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.StartedAt = parseStamp(started)
		if ended.Valid {
			s.EndedAt = parseStamp(ended.String)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Transcript returns a session's turns in broadcast order.
func (a *Archive) Transcript(sessionID string) ([]bus.Turn, error) {
	rows, err := a.db.Query(`
		SELECT seq, speaker, message, research, created_at
		FROM turns
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	var turns []bus.Turn
	for rows.Next() {
		var turn bus.Turn
		var created string
		if err := rows.Scan(&turn.Seq, &turn.Speaker, &turn.Text, &turn.Research, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Timestamp = parseStamp(created)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	return turns, nil
}

// SessionSummary returns the session and the last two turns as
// "Speaker: preview" lines in broadcast order.
func (a *Archive) SessionSummary(sessionID string) (Summary, error) {
	var s Session
	var started string
	var ended sql.NullString
	err := a.db.QueryRow(`
		SELECT id, subject, started_at, ended_at, exchanges
		FROM sessions WHERE id = ?
	`, sessionID).Scan(&s.ID, &s.Subject, &started, &ended, &s.Exchanges)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("load session: %w", err)
	}
	s.StartedAt = parseStamp(started)
	if ended.Valid {
		s.EndedAt = parseStamp(ended.String)
	}

	rows, err := a.db.Query(`
		SELECT speaker, message FROM turns
		WHERE session_id = ?
		ORDER BY seq DESC LIMIT 2
	`, sessionID)
	if err != nil {
		return Summary{}, fmt.Errorf("load previews: %w", err)
	}
	defer rows.Close()

	var previews []string
	for rows.Next() {
		var speaker, message string
		if err := rows.Scan(&speaker, &message); err != nil {
			return Summary{}, fmt.Errorf("scan preview: %w", err)
		}
		if len(message) > 80 {
			message = message[:80] + "..."
		}
		previews = append(previews, fmt.Sprintf("%s: %s", speaker, message))
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate previews: %w", err)
	}
	for i, j := 0, len(previews)-1; i < j; i, j = i+1, j-1 {
		previews[i], previews[j] = previews[j], previews[i]
	}

	return Summary{Session: s, Previews: previews}, nil
}

// Search runs a full-text query over all archived turns.
func (a *Archive) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	match := buildMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := a.db.Query(`
		SELECT t.session_id, s.subject, t.speaker, t.message, t.created_at
		FROM turns t
		JOIN turns_fts f ON t.id = f.rowid
		JOIN sessions s ON s.id = t.session_id
		WHERE turns_fts MATCH ?
		ORDER BY bm25(turns_fts)
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search turns: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var created string
		if err := rows.Scan(&h.SessionID, &h.Subject, &h.Speaker, &h.Text, &created); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		h.SpokenAt = parseStamp(created)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return hits, nil
}

// PruneBefore deletes sessions started before the cutoff, along with
// their turns. It returns the number of sessions removed.
func (a *Archive) PruneBefore(cutoff time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	boundary := cutoff.UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`
		DELETE FROM turns
		WHERE session_id IN (SELECT id FROM sessions WHERE started_at < ?)
	`, boundary); err != nil {
		return 0, fmt.Errorf("prune turns: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM sessions WHERE started_at < ?`, boundary)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	pruned, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return pruned, nil
}

// Vacuum reclaims space after pruning.
func (a *Archive) Vacuum() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.db.Exec(`VACUUM`); err != nil {
		return fmt.Errorf("vacuum archive: %w", err)
	}
	return nil
}

func (a *Archive) Stats() (Stats, error) {
	var stats Stats
	var earliest, latest sql.NullString

	err := a.db.QueryRow(`
		SELECT COUNT(*), MIN(started_at), MAX(started_at) FROM sessions
	`).Scan(&stats.Sessions, &earliest, &latest)
	if err != nil {
		return Stats{}, fmt.Errorf("session stats: %w", err)
	}
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM turns`).Scan(&stats.Turns); err != nil {
		return Stats{}, fmt.Errorf("turn stats: %w", err)
	}

	if earliest.Valid {
		stats.Earliest = parseStamp(earliest.String)
	}
	if latest.Valid {
		stats.Latest = parseStamp(latest.String)
	}
	return stats, nil
}

// buildMatchQuery quotes each token and joins them with OR, dropping
// FTS5 reserved words so user input cannot break the MATCH syntax.
func buildMatchQuery(query string) string {
	reserved := map[string]bool{"and": true, "or": true, "not": true, "near": true}

	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		token := strings.Trim(field, `"'()*^`)
		if token == "" || reserved[token] {
			continue
		}
		tokens = append(tokens, `"`+token+`"`)
		if len(tokens) == maxFTSTokens {
			break
		}
	}
	return strings.Join(tokens, " OR ")
}

func parseStamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
