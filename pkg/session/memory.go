// Package session keeps short-horizon conversational memory.
//
// It records the raw turns of each room, a weighted topic map distilled
// from user messages, and per-exchange quality scores. Unlike the
// lifelog, everything here is disposable: the upkeep worker prunes old
// turns and decays topic weights on a schedule.
package session

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const timeFmt = "2006-01-02 15:04:05"

// Memory provides access to the session tables. It shares the lifelog's
// SQLite handle rather than opening a second database.
type Memory struct {
	db *sql.DB
}

// Turn is one recorded message in a room.
type Turn struct {
	ID        string
	RoomID    string
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// Topic is a recurring conversational theme with an interest weight.
type Topic struct {
	Topic     string
	Weight    float64
	UpdatedAt time.Time
}

// New prepares the session tables on the given database.
func New(db *sql.DB) (*Memory, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_turns (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_turns_room ON session_turns(room_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS session_topics (
			topic TEXT PRIMARY KEY,
			weight REAL NOT NULL DEFAULT 1.0,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS exchange_scores (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			score INTEGER NOT NULL,
			rationale TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("migrate session tables: %w", err)
		}
	}
	return &Memory{db: db}, nil
}

// AppendTurn records one message and returns its ID.
func (m *Memory) AppendTurn(roomID, role, content string) (string, error) {
	id := uuid.NewString()
	_, err := m.db.Exec(
		`INSERT INTO session_turns (id, room_id, role, content) VALUES (?, ?, ?, ?)`,
		id, roomID, role, content)
	if err != nil {
		return "", fmt.Errorf("append turn: %w", err)
	}
	return id, nil
}

// RecentTurns returns up to n turns for a room, oldest first.
func (m *Memory) RecentTurns(roomID string, n int) ([]Turn, error) {
	rows, err := m.db.Query(`
		SELECT id, room_id, role, content, created_at FROM session_turns
		WHERE room_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
	`, roomID, n)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var created string
		if err := rows.Scan(&t.ID, &t.RoomID, &t.Role, &t.Content, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.CreatedAt = parseTime(created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse into chronological order
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// SummaryFragment renders the current session state for the prompt:
// turn count plus the strongest standing topics.
func (m *Memory) SummaryFragment(roomID string) (string, error) {
	var count int
	err := m.db.QueryRow(
		`SELECT COUNT(*) FROM session_turns WHERE room_id = ?`, roomID).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("count turns: %w", err)
	}

	topics, err := m.TopTopics(5)
	if err != nil {
		return "", err
	}
	if count == 0 && len(topics) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("## Session Memory\n")
	if count > 0 {
		sb.WriteString(fmt.Sprintf("- %d messages recorded in this conversation\n", count))
	}
	if len(topics) > 0 {
		names := make([]string, len(topics))
		for i, t := range topics {
			names[i] = t.Topic
		}
		sb.WriteString("- Recurring topics: " + strings.Join(names, ", ") + "\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// topicStopwords are tokens too generic to count as topics.
var topicStopwords = map[string]bool{
	"the": true, "and": true, "that": true, "this": true, "with": true,
	"have": true, "just": true, "like": true, "about": true, "what": true,
	"when": true, "your": true, "from": true, "been": true, "some": true,
	"really": true, "there": true, "because": true, "going": true,
	"would": true, "could": true, "should": true, "them": true,
	"then": true, "than": true, "were": true, "will": true, "dont": true,
	"cant": true, "into": true, "over": true, "very": true, "more": true,
	"feel": true, "feeling": true, "today": true, "know": true,
}

// ExtractTopics pulls candidate topic words out of a user message.
// Deliberately crude: lowercase words of five or more letters that
// aren't stopwords, deduplicated in order of first appearance.
func ExtractTopics(text string) []string {
	var topics []string
	seen := make(map[string]bool)
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(raw, ".,!?;:'\"()")
		if len(word) < 5 || topicStopwords[word] || seen[word] {
			continue
		}
		for _, r := range word {
			if r < 'a' || r > 'z' {
				word = ""
				break
			}
		}
		if word == "" {
			continue
		}
		seen[word] = true
		topics = append(topics, word)
	}
	return topics
}

// MergeTopics bumps the weight of each topic, inserting new ones at 1.0.
func (m *Memory) MergeTopics(topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin topic merge: %w", err)
	}
	defer tx.Rollback()

	for _, topic := range topics {
		_, err := tx.Exec(`
			INSERT INTO session_topics (topic, weight, updated_at) VALUES (?, 1.0, datetime('now'))
			ON CONFLICT(topic) DO UPDATE SET weight = weight + 0.5, updated_at = datetime('now')
		`, topic)
		if err != nil {
			return fmt.Errorf("merge topic %q: %w", topic, err)
		}
	}
	return tx.Commit()
}

// TopTopics returns up to n topics by descending weight.
func (m *Memory) TopTopics(n int) ([]Topic, error) {
	rows, err := m.db.Query(`
		SELECT topic, weight, updated_at FROM session_topics
		ORDER BY weight DESC, topic ASC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var t Topic
		var updated string
		if err := rows.Scan(&t.Topic, &t.Weight, &updated); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		t.UpdatedAt = parseTime(updated)
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// RecordScore stores one exchange quality score (1..5).
func (m *Memory) RecordScore(roomID string, score int, rationale string) error {
	if score < 1 {
		score = 1
	} else if score > 5 {
		score = 5
	}
	_, err := m.db.Exec(
		`INSERT INTO exchange_scores (id, room_id, score, rationale) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), roomID, score, rationale)
	if err != nil {
		return fmt.Errorf("record score: %w", err)
	}
	return nil
}

// AverageScore returns the mean exchange score for a room, with the
// number of scored exchanges. Returns (0, 0) when nothing is scored.
func (m *Memory) AverageScore(roomID string) (float64, int, error) {
	var avg sql.NullFloat64
	var n int
	err := m.db.QueryRow(
		`SELECT AVG(score), COUNT(*) FROM exchange_scores WHERE room_id = ?`,
		roomID).Scan(&avg, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("average score: %w", err)
	}
	return avg.Float64, n, nil
}

// PruneBefore deletes turns and scores older than the cutoff.
func (m *Memory) PruneBefore(cutoff time.Time) (int64, error) {
	ts := cutoff.UTC().Format(timeFmt)
	var total int64
	for _, table := range []string{"session_turns", "exchange_scores"} {
		res, err := m.db.Exec(
			fmt.Sprintf(`DELETE FROM %s WHERE created_at < ?`, table), ts)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// DecayTopics multiplies every topic weight by factor and drops topics
// that fall below the floor. Returns the number of topics dropped.
func (m *Memory) DecayTopics(factor, floor float64) (int64, error) {
	if _, err := m.db.Exec(`UPDATE session_topics SET weight = weight * ?`, factor); err != nil {
		return 0, fmt.Errorf("decay topics: %w", err)
	}
	res, err := m.db.Exec(`DELETE FROM session_topics WHERE weight < ?`, floor)
	if err != nil {
		return 0, fmt.Errorf("drop faded topics: %w", err)
	}
	return res.RowsAffected()
}

// parseTime handles the datetime formats SQLite hands back.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeFmt, time.RFC3339, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
