// Package upkeep implements Solace's background session maintenance.
//
// The worker runs as a goroutine, periodically pruning old session
// turns and exchange scores and decaying topic weights so stale themes
// fade out of the prompt. It never touches the lifelog: durable user
// data is not maintenance material.
package upkeep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/solace-labs/solace/pkg/session"
)

// EventFunc is a callback for publishing upkeep events.
type EventFunc func(typ, message string)

// Report holds the results of one upkeep cycle.
type Report struct {
	CycleNumber   int       `json:"cycle_number"`
	StartedAt     time.Time `json:"started_at"`
	Duration      string    `json:"duration"`
	TurnsPruned   int64     `json:"turns_pruned"`
	TopicsDropped int64     `json:"topics_dropped"`
	Errors        []string  `json:"errors,omitempty"`
}

// Config holds upkeep worker settings.
type Config struct {
	Interval    time.Duration // how often to run (default 6h)
	Retention   time.Duration // how long session turns live (default 7 days)
	DecayFactor float64       // topic weight multiplier per cycle (default 0.9)
	DecayFloor  float64       // topics below this weight are dropped (default 0.2)
}

// DefaultConfig returns sensible defaults for the upkeep worker.
func DefaultConfig() Config {
	return Config{
		Interval:    6 * time.Hour,
		Retention:   7 * 24 * time.Hour,
		DecayFactor: 0.9,
		DecayFloor:  0.2,
	}
}

// Worker is the background maintenance worker.
type Worker struct {
	memory  *session.Memory
	onEvent EventFunc
	cfg     Config

	mu         sync.RWMutex
	lastReport *Report
	cycleCount int
}

// NewWorker creates an upkeep worker.
func NewWorker(memory *session.Memory, onEvent EventFunc, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor >= 1 {
		cfg.DecayFactor = 0.9
	}
	if cfg.DecayFloor <= 0 {
		cfg.DecayFloor = 0.2
	}
	return &Worker{memory: memory, onEvent: onEvent, cfg: cfg}
}

// Run starts the upkeep loop. Blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("upkeep worker started",
		"interval", w.cfg.Interval,
		"retention", w.cfg.Retention,
		"decay_factor", w.cfg.DecayFactor,
	)
	w.emit("status", "Upkeep worker started")

	// Short startup delay so the rest of the daemon settles first.
	select {
	case <-ctx.Done():
		return
	case <-time.After(30 * time.Second):
	}

	w.logReport(w.CycleOnce())

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("upkeep worker stopping")
			w.emit("status", "Upkeep worker stopped")
			return
		case <-ticker.C:
			w.logReport(w.CycleOnce())
		}
	}
}

// CycleOnce runs a single maintenance cycle and returns the report.
func (w *Worker) CycleOnce() *Report {
	w.mu.Lock()
	w.cycleCount++
	cycle := w.cycleCount
	w.mu.Unlock()

	start := time.Now()
	report := &Report{CycleNumber: cycle, StartedAt: start}

	pruned, err := w.memory.PruneBefore(start.Add(-w.cfg.Retention))
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("prune: %v", err))
		slog.Warn("upkeep: prune failed", "error", err)
	} else {
		report.TurnsPruned = pruned
	}

	dropped, err := w.memory.DecayTopics(w.cfg.DecayFactor, w.cfg.DecayFloor)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("decay: %v", err))
		slog.Warn("upkeep: topic decay failed", "error", err)
	} else {
		report.TopicsDropped = dropped
	}

	report.Duration = time.Since(start).Round(time.Millisecond).String()

	w.mu.Lock()
	w.lastReport = report
	w.mu.Unlock()

	return report
}

// LastReport returns the most recent upkeep report.
func (w *Worker) LastReport() *Report {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastReport
}

func (w *Worker) logReport(report *Report) {
	summary := fmt.Sprintf(
		"Upkeep cycle %d complete (%s): %d turns pruned, %d topics dropped",
		report.CycleNumber, report.Duration, report.TurnsPruned, report.TopicsDropped,
	)
	if len(report.Errors) > 0 {
		summary += fmt.Sprintf(", %d errors", len(report.Errors))
	}

	slog.Info("upkeep: cycle complete", "summary", summary)
	w.emit("status", summary)
}

func (w *Worker) emit(typ, message string) {
	if w.onEvent != nil {
		w.onEvent(typ, message)
	}
}
