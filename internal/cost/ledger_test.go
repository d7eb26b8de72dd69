package cost

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cost.db")
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	l, err := NewLedger(db, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeKnownAndUnknownModel(t *testing.T) {
	r := DefaultRates()

	// 1000 in + 1000 out at sonnet rates
	if got := r.Compute("claude-sonnet-4-5", 1000, 1000); !approx(got, 0.018) {
		t.Errorf("sonnet cost = %v, want 0.018", got)
	}
	if got := r.Compute("claude-haiku-4-5", 2000, 500); !approx(got, 0.0045) {
		t.Errorf("haiku cost = %v, want 0.0045", got)
	}
	// Unknown model falls back to default rates, never zero.
	if got := r.Compute("mystery-model", 1000, 0); !approx(got, 0.003) {
		t.Errorf("unknown model cost = %v, want default 0.003", got)
	}
	if got := r.Compute("claude-sonnet-4-5", 0, 0); got != 0 {
		t.Errorf("zero tokens cost = %v, want 0", got)
	}
}

func TestRecordAccumulates(t *testing.T) {
	l := openTestLedger(t)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	usd1, err := l.Record("claude-sonnet-4-5", 1000, 1000, now)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !approx(usd1, 0.018) {
		t.Errorf("first record usd = %v", usd1)
	}
	if _, err := l.Record("claude-haiku-4-5", 2000, 500, now.Add(time.Hour)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	tot, err := l.Totals(now)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if tot.Month != "2026-08" {
		t.Errorf("month = %q", tot.Month)
	}
	if !approx(tot.MonthUSD, 0.0225) || !approx(tot.LifeUSD, 0.0225) {
		t.Errorf("totals = %+v, want 0.0225 month and lifetime", tot)
	}
	if tot.MonthInTokens != 3000 || tot.MonthOutTokens != 1500 {
		t.Errorf("token totals = %+v", tot)
	}
}

func TestRecordConcurrent(t *testing.T) {
	l := openTestLedger(t)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	const workers = 4
	const perWorker = 25

	errCh := make(chan error, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := l.Record("claude-sonnet-4-5", 1000, 1000, now); err != nil {
					errCh <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent Record failed: %v", err)
	}

	tot, err := l.Totals(now)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	want := float64(workers*perWorker) * 0.018
	if !approx(tot.LifeUSD, want) {
		t.Errorf("lifetime usd = %v, want %v (no recording may be lost)", tot.LifeUSD, want)
	}
	if tot.LifeInTokens != int64(workers*perWorker*1000) {
		t.Errorf("lifetime input tokens = %d", tot.LifeInTokens)
	}

	entries, err := l.RecentEntries(workers*perWorker + 1)
	if err != nil {
		t.Fatalf("RecentEntries: %v", err)
	}
	if len(entries) != workers*perWorker {
		t.Errorf("entries = %d, want %d", len(entries), workers*perWorker)
	}
}

func TestMonthRollover(t *testing.T) {
	l := openTestLedger(t)
	aug := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	sep := time.Date(2026, 9, 1, 1, 0, 0, 0, time.UTC)

	if _, err := l.Record("claude-sonnet-4-5", 1000, 1000, aug); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Record("claude-sonnet-4-5", 1000, 1000, sep); err != nil {
		t.Fatal(err)
	}

	tot, err := l.Totals(sep)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if tot.Month != "2026-09" {
		t.Errorf("month = %q, want 2026-09", tot.Month)
	}
	// Monthly counters restart; lifetime keeps both calls.
	if !approx(tot.MonthUSD, 0.018) {
		t.Errorf("month usd after rollover = %v, want 0.018", tot.MonthUSD)
	}
	if !approx(tot.LifeUSD, 0.036) {
		t.Errorf("lifetime usd = %v, want 0.036", tot.LifeUSD)
	}
}

func TestTotalsStaleMonthReadsZero(t *testing.T) {
	l := openTestLedger(t)
	aug := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	oct := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)

	if _, err := l.Record("claude-sonnet-4-5", 1000, 0, aug); err != nil {
		t.Fatal(err)
	}

	tot, err := l.Totals(oct)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if tot.Month != "2026-10" || tot.MonthUSD != 0 {
		t.Errorf("stale month should read as zero: %+v", tot)
	}
	if !approx(tot.LifeUSD, 0.003) {
		t.Errorf("lifetime usd = %v", tot.LifeUSD)
	}
}

func TestTotalsEmptyLedger(t *testing.T) {
	l := openTestLedger(t)
	now := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	tot, err := l.Totals(now)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if tot.Month != "2026-08" || tot.MonthUSD != 0 || tot.LifeUSD != 0 {
		t.Errorf("empty ledger totals = %+v", tot)
	}
}

func TestRecentEntries(t *testing.T) {
	l := openTestLedger(t)
	now := time.Now()

	if _, err := l.Record("claude-sonnet-4-5", 100, 50, now); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Record("claude-haiku-4-5", 200, 80, now); err != nil {
		t.Fatal(err)
	}

	entries, err := l.RecentEntries(10)
	if err != nil {
		t.Fatalf("RecentEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Model != "claude-haiku-4-5" {
		t.Errorf("newest entry first, got %+v", entries[0])
	}
}

func TestLoadRatesOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rates.json")
	if err := os.WriteFile(path, []byte(`{"custom-model": {"in": 0.01, "out": 0.02}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRates(path)
	if err != nil {
		t.Fatalf("LoadRates: %v", err)
	}
	if got := r.Compute("custom-model", 1000, 1000); !approx(got, 0.03) {
		t.Errorf("custom model cost = %v, want 0.03", got)
	}
	// Defaults survive the merge.
	if got := r.Compute("claude-sonnet-4-5", 1000, 0); !approx(got, 0.003) {
		t.Errorf("default rate lost after override: %v", got)
	}
}
