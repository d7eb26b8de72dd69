package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// serveAPI runs the local observability API until ctx is cancelled.
func (d *Daemon) serveAPI(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", d.handleHealth)
	mux.HandleFunc("/v1/ledger", d.handleLedger)
	mux.HandleFunc("/v1/upkeep", d.handleUpkeep)
	mux.HandleFunc("/v1/events", d.handleEvents)

	srv := &http.Server{
		Addr:              d.cfg.APIAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	slog.Info("api listening", "addr", d.cfg.APIAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "error", err)
	}
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":      "ok",
		"name":        d.cfg.Name,
		"credential":  d.creds.Has(),
		"semantic":    d.semWorker != nil,
		"subscribers": d.bus.SubscriberCount(),
	})
}

func (d *Daemon) handleLedger(w http.ResponseWriter, r *http.Request) {
	tot, err := d.ledger.Totals(time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	entries, err := d.ledger.RecentEntries(20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"totals": tot,
		"recent": entries,
	})
}

func (d *Daemon) handleUpkeep(w http.ResponseWriter, r *http.Request) {
	if d.upkeep == nil {
		http.Error(w, "upkeep disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, d.upkeep.LastReport())
}

// handleEvents streams the event bus over SSE, starting with the
// recent-event backlog.
func (d *Daemon) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, done := d.bus.Subscribe()
	defer d.bus.Unsubscribe(done)

	for _, e := range d.bus.Recent(50) {
		fmt.Fprintf(w, "data: %s\n\n", e.MarshalEvent())
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", e.MarshalEvent())
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api encode failed", "error", err)
	}
}
