// Package lifelog provides Solace's durable user-state store.
//
// It backs the simple record-keeping modules (moods, sleep, journal,
// calendar, tracking logs, exposure ladder, preferences, profile) that
// the turn pipeline consumes only as context providers: each exposes a
// "give me a text fragment, or nothing" view over this store.
package lifelog

import (
	"crypto/md5"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// timeFmt is the SQLite datetime layout used for all stored timestamps.
const timeFmt = "2006-01-02 15:04:05"

// Store provides access to the lifelog database.
type Store struct {
	db   *sql.DB
	path string // root data directory
}

// Mood is a single mood check-in.
type Mood struct {
	ID        int
	Mood      string
	Intensity int // 1..10
	Note      string
	CreatedAt time.Time
}

// SleepEntry is one night's sleep record, keyed by date.
type SleepEntry struct {
	Date    string // YYYY-MM-DD
	Hours   float64
	Quality int // 1..5, 0 if unrated
}

// JournalEntry is a free-form journal record.
type JournalEntry struct {
	ID        int64
	Content   string
	CreatedAt time.Time
}

// Event is a calendar entry.
type Event struct {
	ID       int
	Title    string
	StartsAt time.Time
	Location string
}

// LogEntry is a detailed tracking record (water, caffeine, exercise, ...).
type LogEntry struct {
	ID        int
	Kind      string
	Value     float64
	Unit      string
	Note      string
	CreatedAt time.Time
}

// ExposureStep is one rung of the user's exposure ladder.
type ExposureStep struct {
	Rung        int
	Description string
	Status      string // planned, attempted, completed
	AttemptedAt *time.Time
}

// Open opens (creating if necessary) the lifelog database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dir, "solace.db")

	// WAL for concurrent reads, busy timeout for the background workers
	// _txlock=immediate takes the write lock at BEGIN, so concurrent
	// write transactions queue on busy_timeout instead of failing the
	// deferred-to-write upgrade with SQLITE_BUSY.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open lifelog db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping lifelog db: %w", err)
	}

	s := &Store{db: db, path: dir}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("lifelog opened", "path", dbPath)
	return s, nil
}

// migrate creates the schema if it doesn't exist.
func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS moods (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mood TEXT NOT NULL,
			intensity INTEGER NOT NULL,
			note TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sleep (
			date TEXT PRIMARY KEY,
			hours REAL NOT NULL,
			quality INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS journal_fts USING fts5(content, content='journal', content_rowid='id')`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			starts_at TEXT NOT NULL,
			location TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			value REAL NOT NULL DEFAULT 0,
			unit TEXT,
			note TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS exposure (
			rung INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'planned',
			attempted_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate lifelog: %w", err)
		}
	}
	return nil
}

// Close closes the lifelog database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so sibling stores (session memory,
// cost ledger) can share one database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the data directory.
func (s *Store) Path() string {
	return s.path
}

// --- Write Operations ---

// AddMood records a mood check-in.
func (s *Store) AddMood(mood string, intensity int, note string) error {
	now := time.Now().UTC().Format(timeFmt)
	_, err := s.db.Exec(
		`INSERT INTO moods (mood, intensity, note, created_at) VALUES (?, ?, ?, ?)`,
		mood, intensity, note, now,
	)
	if err != nil {
		return fmt.Errorf("add mood: %w", err)
	}
	return nil
}

// AddSleep records (or replaces) one night's sleep.
func (s *Store) AddSleep(date string, hours float64, quality int) error {
	_, err := s.db.Exec(
		`INSERT INTO sleep (date, hours, quality) VALUES (?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET hours = excluded.hours, quality = excluded.quality`,
		date, hours, quality,
	)
	if err != nil {
		return fmt.Errorf("add sleep: %w", err)
	}
	return nil
}

// AddJournal stores a journal entry and indexes it for search.
func (s *Store) AddJournal(content string) (int64, error) {
	now := time.Now().UTC().Format(timeFmt)
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin journal tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`INSERT INTO journal (content, created_at) VALUES (?, ?)`, content, now)
	if err != nil {
		return 0, fmt.Errorf("add journal: %w", err)
	}
	id, _ := result.LastInsertId()
	if _, err := tx.Exec(`INSERT INTO journal_fts (rowid, content) VALUES (?, ?)`, id, content); err != nil {
		return 0, fmt.Errorf("index journal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit journal tx: %w", err)
	}
	return id, nil
}

// AddEvent records a calendar entry.
func (s *Store) AddEvent(title string, startsAt time.Time, location string) error {
	_, err := s.db.Exec(
		`INSERT INTO events (title, starts_at, location) VALUES (?, ?, ?)`,
		title, startsAt.UTC().Format(timeFmt), location,
	)
	if err != nil {
		return fmt.Errorf("add event: %w", err)
	}
	return nil
}

// AddLog records a detailed tracking entry.
func (s *Store) AddLog(kind string, value float64, unit, note string) error {
	now := time.Now().UTC().Format(timeFmt)
	_, err := s.db.Exec(
		`INSERT INTO logs (kind, value, unit, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		kind, value, unit, note, now,
	)
	if err != nil {
		return fmt.Errorf("add log: %w", err)
	}
	return nil
}

// SetExposureStep creates or updates a ladder rung.
func (s *Store) SetExposureStep(rung int, description string) error {
	_, err := s.db.Exec(
		`INSERT INTO exposure (rung, description) VALUES (?, ?)
		 ON CONFLICT(rung) DO UPDATE SET description = excluded.description`,
		rung, description,
	)
	if err != nil {
		return fmt.Errorf("set exposure step: %w", err)
	}
	return nil
}

// MarkExposure records an attempt or completion for a ladder rung.
func (s *Store) MarkExposure(rung int, status string) error {
	now := time.Now().UTC().Format(timeFmt)
	_, err := s.db.Exec(
		`UPDATE exposure SET status = ?, attempted_at = ? WHERE rung = ?`,
		status, now, rung,
	)
	if err != nil {
		return fmt.Errorf("mark exposure: %w", err)
	}
	return nil
}

// SetPreference stores a user preference.
func (s *Store) SetPreference(key, value string) error {
	return s.kvSet("pref:"+key, value)
}

// Preference retrieves a user preference (empty string when unset).
func (s *Store) Preference(key string) (string, error) {
	return s.kvGet("pref:" + key)
}

// SetProfile stores a profile field (overview, psych, chronotype, travel).
func (s *Store) SetProfile(field, text string) error {
	return s.kvSet("profile:"+field, text)
}

// Profile retrieves a profile field (empty string when unset).
func (s *Store) Profile(field string) (string, error) {
	return s.kvGet("profile:" + field)
}

func (s *Store) kvSet(key, value string) error {
	now := time.Now().UTC().Format(timeFmt)
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now,
	)
	return err
}

func (s *Store) kvGet(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// --- Read Operations ---

// LatestMood returns the most recent mood check-in, or nil.
func (s *Store) LatestMood() (*Mood, error) {
	var m Mood
	var note sql.NullString
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, mood, intensity, note, created_at FROM moods
		ORDER BY id DESC LIMIT 1
	`).Scan(&m.ID, &m.Mood, &m.Intensity, &note, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest mood: %w", err)
	}
	m.Note = note.String
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

// LastSleep returns the most recent sleep record, or nil.
func (s *Store) LastSleep() (*SleepEntry, error) {
	var e SleepEntry
	err := s.db.QueryRow(`
		SELECT date, hours, quality FROM sleep ORDER BY date DESC LIMIT 1
	`).Scan(&e.Date, &e.Hours, &e.Quality)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last sleep: %w", err)
	}
	return &e, nil
}

// NextEvent returns the next upcoming calendar entry after now, or nil.
func (s *Store) NextEvent(now time.Time) (*Event, error) {
	var e Event
	var startsAt string
	var location sql.NullString
	err := s.db.QueryRow(`
		SELECT id, title, starts_at, location FROM events
		WHERE starts_at >= ? ORDER BY starts_at ASC LIMIT 1
	`, now.UTC().Format(timeFmt)).Scan(&e.ID, &e.Title, &startsAt, &location)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next event: %w", err)
	}
	e.StartsAt = parseTime(startsAt)
	e.Location = location.String
	return &e, nil
}

// UpcomingEvents returns events starting within the given window.
func (s *Store) UpcomingEvents(now time.Time, window time.Duration) ([]Event, error) {
	rows, err := s.db.Query(`
		SELECT id, title, starts_at, location FROM events
		WHERE starts_at >= ? AND starts_at < ?
		ORDER BY starts_at ASC
	`, now.UTC().Format(timeFmt), now.Add(window).UTC().Format(timeFmt))
	if err != nil {
		return nil, fmt.Errorf("upcoming events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var startsAt string
		var location sql.NullString
		if err := rows.Scan(&e.ID, &e.Title, &startsAt, &location); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.StartsAt = parseTime(startsAt)
		e.Location = location.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentJournal returns the n most recent journal entries, newest first.
func (s *Store) RecentJournal(n int) ([]JournalEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, content, created_at FROM journal ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("recent journal: %w", err)
	}
	defer rows.Close()
	return scanJournal(rows)
}

// SearchJournal runs an FTS5 keyword search over journal entries.
func (s *Store) SearchJournal(query string, limit int) ([]JournalEntry, error) {
	rows, err := s.db.Query(`
		SELECT j.id, j.content, j.created_at
		FROM journal j JOIN journal_fts fts ON j.id = fts.rowid
		WHERE journal_fts MATCH ?
		ORDER BY j.id DESC LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search journal: %w", err)
	}
	defer rows.Close()
	return scanJournal(rows)
}

// JournalByIDs fetches journal entries for a list of IDs.
func (s *Store) JournalByIDs(ids []int64) ([]JournalEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT id, content, created_at FROM journal WHERE id IN (%s)`, string(placeholders)), args...)
	if err != nil {
		return nil, fmt.Errorf("journal by ids: %w", err)
	}
	defer rows.Close()
	return scanJournal(rows)
}

func scanJournal(rows *sql.Rows) ([]JournalEntry, error) {
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// JournalRef is a lightweight reference for the semantic sync worker.
type JournalRef struct {
	ID          int64
	ContentHash string // MD5 of content for staleness detection
}

// JournalRefs returns all journal IDs with content hashes.
func (s *Store) JournalRefs() ([]JournalRef, error) {
	rows, err := s.db.Query(`SELECT id, content FROM journal`)
	if err != nil {
		return nil, fmt.Errorf("journal refs: %w", err)
	}
	defer rows.Close()

	var refs []JournalRef
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, fmt.Errorf("scan journal ref: %w", err)
		}
		refs = append(refs, JournalRef{
			ID:          id,
			ContentHash: fmt.Sprintf("%x", md5.Sum([]byte(content))),
		})
	}
	return refs, rows.Err()
}

// RecentLogs returns the n most recent tracking entries, newest first.
func (s *Store) RecentLogs(n int) ([]LogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, value, unit, note, created_at FROM logs
		ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var unit, note sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Value, &unit, &note, &createdAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Unit = unit.String
		e.Note = note.String
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ExposureSteps returns the full exposure ladder ordered by rung.
func (s *Store) ExposureSteps() ([]ExposureStep, error) {
	rows, err := s.db.Query(`
		SELECT rung, description, status, attempted_at FROM exposure ORDER BY rung ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("exposure steps: %w", err)
	}
	defer rows.Close()

	var steps []ExposureStep
	for rows.Next() {
		var st ExposureStep
		var attemptedAt sql.NullString
		if err := rows.Scan(&st.Rung, &st.Description, &st.Status, &attemptedAt); err != nil {
			return nil, fmt.Errorf("scan exposure: %w", err)
		}
		if attemptedAt.Valid {
			t := parseTime(attemptedAt.String)
			st.AttemptedAt = &t
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// Preferences returns all stored preferences keyed without the prefix.
func (s *Store) Preferences() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM kv WHERE key LIKE 'pref:%' ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs[strings.TrimPrefix(k, "pref:")] = v
	}
	return prefs, rows.Err()
}

// parseTime parses a datetime string from SQLite, handling the formats
// different writers may have used.
func parseTime(s string) time.Time {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z07:00",
		timeFmt,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
