// Package cost tracks model spend.
//
// A single-row ledger carries the running monthly and lifetime totals;
// individual calls are also appended to an entries table for the API's
// breakdown view. The monthly counters roll over on the calendar month
// boundary, checked inside the same transaction that records usage so a
// rollover can never race a concurrent write.
//
// Concurrent recordings serialize on the database write lock: the
// handle must be opened with _txlock=immediate so each Record takes the
// lock at BEGIN and queued writers wait on busy_timeout. A deferred
// transaction would instead fail its read-to-write upgrade with
// SQLITE_BUSY and lose the recording.
package cost

import (
	"database/sql"
	"fmt"
	"time"
)

// Ledger persists usage totals. It shares the lifelog's SQLite handle.
type Ledger struct {
	db    *sql.DB
	rates Rates
}

// Totals is a snapshot of the ledger.
type Totals struct {
	Month          string  `json:"month"` // YYYY-MM
	MonthUSD       float64 `json:"month_usd"`
	MonthInTokens  int64   `json:"month_input_tokens"`
	MonthOutTokens int64   `json:"month_output_tokens"`
	LifeUSD        float64 `json:"lifetime_usd"`
	LifeInTokens   int64   `json:"lifetime_input_tokens"`
	LifeOutTokens  int64   `json:"lifetime_output_tokens"`
}

// Entry is one recorded model call.
type Entry struct {
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	USD          float64   `json:"usd"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewLedger prepares the cost tables on the given database.
func NewLedger(db *sql.DB, rates Rates) (*Ledger, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cost_ledger (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			month TEXT NOT NULL,
			month_usd REAL NOT NULL DEFAULT 0,
			month_input_tokens INTEGER NOT NULL DEFAULT 0,
			month_output_tokens INTEGER NOT NULL DEFAULT 0,
			lifetime_usd REAL NOT NULL DEFAULT 0,
			lifetime_input_tokens INTEGER NOT NULL DEFAULT 0,
			lifetime_output_tokens INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS cost_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			model TEXT NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			usd REAL NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("migrate cost tables: %w", err)
		}
	}
	if rates == nil {
		rates = DefaultRates()
	}
	return &Ledger{db: db, rates: rates}, nil
}

// Compute prices one model call without recording it.
func (l *Ledger) Compute(model string, inputTokens, outputTokens int) float64 {
	return l.rates.Compute(model, inputTokens, outputTokens)
}

// Record prices the call and folds it into the ledger. The month
// rollover check and the update happen in one write-locked transaction;
// concurrent recordings queue rather than fail.
func (l *Ledger) Record(model string, inputTokens, outputTokens int, now time.Time) (float64, error) {
	usd := l.rates.Compute(model, inputTokens, outputTokens)
	month := now.Format("2006-01")

	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback()

	var stored Totals
	err = tx.QueryRow(`
		SELECT month, month_usd, month_input_tokens, month_output_tokens,
			lifetime_usd, lifetime_input_tokens, lifetime_output_tokens
		FROM cost_ledger WHERE id = 1
	`).Scan(&stored.Month, &stored.MonthUSD, &stored.MonthInTokens, &stored.MonthOutTokens,
		&stored.LifeUSD, &stored.LifeInTokens, &stored.LifeOutTokens)
	switch {
	case err == sql.ErrNoRows:
		stored = Totals{Month: month}
	case err != nil:
		return 0, fmt.Errorf("read ledger: %w", err)
	}

	// Calendar rollover: a new month resets the monthly counters before
	// this call is added. Lifetime totals are never reset.
	if stored.Month != month {
		stored.Month = month
		stored.MonthUSD = 0
		stored.MonthInTokens = 0
		stored.MonthOutTokens = 0
	}

	stored.MonthUSD += usd
	stored.MonthInTokens += int64(inputTokens)
	stored.MonthOutTokens += int64(outputTokens)
	stored.LifeUSD += usd
	stored.LifeInTokens += int64(inputTokens)
	stored.LifeOutTokens += int64(outputTokens)

	_, err = tx.Exec(`
		INSERT INTO cost_ledger (id, month, month_usd, month_input_tokens, month_output_tokens,
			lifetime_usd, lifetime_input_tokens, lifetime_output_tokens, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			month = excluded.month,
			month_usd = excluded.month_usd,
			month_input_tokens = excluded.month_input_tokens,
			month_output_tokens = excluded.month_output_tokens,
			lifetime_usd = excluded.lifetime_usd,
			lifetime_input_tokens = excluded.lifetime_input_tokens,
			lifetime_output_tokens = excluded.lifetime_output_tokens,
			updated_at = excluded.updated_at
	`, stored.Month, stored.MonthUSD, stored.MonthInTokens, stored.MonthOutTokens,
		stored.LifeUSD, stored.LifeInTokens, stored.LifeOutTokens)
	if err != nil {
		return 0, fmt.Errorf("write ledger: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO cost_entries (model, input_tokens, output_tokens, usd) VALUES (?, ?, ?, ?)
	`, model, inputTokens, outputTokens, usd)
	if err != nil {
		return 0, fmt.Errorf("write ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ledger tx: %w", err)
	}
	return usd, nil
}

// Totals returns the current ledger snapshot. A ledger that has never
// recorded anything reports the current month with zero totals.
func (l *Ledger) Totals(now time.Time) (Totals, error) {
	month := now.Format("2006-01")
	var t Totals
	err := l.db.QueryRow(`
		SELECT month, month_usd, month_input_tokens, month_output_tokens,
			lifetime_usd, lifetime_input_tokens, lifetime_output_tokens
		FROM cost_ledger WHERE id = 1
	`).Scan(&t.Month, &t.MonthUSD, &t.MonthInTokens, &t.MonthOutTokens,
		&t.LifeUSD, &t.LifeInTokens, &t.LifeOutTokens)
	if err == sql.ErrNoRows {
		return Totals{Month: month}, nil
	}
	if err != nil {
		return Totals{}, fmt.Errorf("read ledger: %w", err)
	}

	// A stale month in storage reads as zero monthly spend. The stored
	// row is corrected lazily on the next Record.
	if t.Month != month {
		t.Month = month
		t.MonthUSD = 0
		t.MonthInTokens = 0
		t.MonthOutTokens = 0
	}
	return t, nil
}

// RecentEntries returns the n most recent recorded calls, newest first.
func (l *Ledger) RecentEntries(n int) ([]Entry, error) {
	rows, err := l.db.Query(`
		SELECT model, input_tokens, output_tokens, usd, created_at
		FROM cost_entries ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.Model, &e.InputTokens, &e.OutputTokens, &e.USD, &created); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if t, perr := time.Parse("2006-01-02 15:04:05", created); perr == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
