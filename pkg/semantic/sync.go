package semantic

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"
	"time"

	"github.com/solace-labs/solace/pkg/lifelog"
)

// SyncWorker keeps pgvector embeddings in sync with the SQLite journal.
// It polls for un-embedded or stale entries and embeds them in batches.
type SyncWorker struct {
	lifelog   *lifelog.Store
	store     *Store
	tei       *TEIClient
	interval  time.Duration
	batchSize int
}

// NewSyncWorker creates a background sync worker.
func NewSyncWorker(ll *lifelog.Store, store *Store, tei *TEIClient, interval time.Duration, batchSize int) *SyncWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &SyncWorker{
		lifelog:   ll,
		store:     store,
		tei:       tei,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run starts the sync loop. Blocks until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context) {
	slog.Info("semantic sync worker started",
		"interval", w.interval,
		"batch_size", w.batchSize,
	)

	// Backfill on startup
	if embedded, err := w.SyncOnce(ctx); err != nil {
		slog.Warn("initial semantic sync failed", "error", err)
	} else if embedded > 0 {
		slog.Info("initial semantic sync complete", "embedded", embedded)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("semantic sync worker stopping")
			return
		case <-ticker.C:
			if embedded, err := w.SyncOnce(ctx); err != nil {
				slog.Warn("semantic sync cycle failed", "error", err)
			} else if embedded > 0 {
				slog.Info("semantic sync cycle", "embedded", embedded)
			}
		}
	}
}

// SyncOnce runs a single sync cycle: diff journal refs against the
// embedded set, then embed and store the new or stale entries.
func (w *SyncWorker) SyncOnce(ctx context.Context) (int, error) {
	refs, err := w.lifelog.JournalRefs()
	if err != nil {
		return 0, fmt.Errorf("get journal refs: %w", err)
	}

	embedded, err := w.store.GetEmbedded(ctx)
	if err != nil {
		return 0, fmt.Errorf("get embedded: %w", err)
	}

	var toEmbed []lifelog.JournalRef
	for _, ref := range refs {
		existingHash, exists := embedded[ref.ID]
		if !exists || existingHash != ref.ContentHash {
			toEmbed = append(toEmbed, ref)
		}
	}
	if len(toEmbed) == 0 {
		return 0, nil
	}

	slog.Info("journal entries need embedding",
		"total", len(refs),
		"already_embedded", len(embedded),
		"to_embed", len(toEmbed),
	)

	totalEmbedded := 0
	for i := 0; i < len(toEmbed); i += w.batchSize {
		end := i + w.batchSize
		if end > len(toEmbed) {
			end = len(toEmbed)
		}
		batch := toEmbed[i:end]

		ids := make([]int64, len(batch))
		for j, ref := range batch {
			ids[j] = ref.ID
		}
		entries, err := w.lifelog.JournalByIDs(ids)
		if err != nil {
			slog.Warn("fetch batch entries failed", "error", err, "batch_start", i)
			continue
		}

		texts := make([]string, len(entries))
		entryIDs := make([]int64, len(entries))
		hashes := make([]string, len(entries))
		for j, e := range entries {
			texts[j] = e.Content
			entryIDs[j] = e.ID
			hashes[j] = ContentHash(e.Content)
		}

		embeddings, err := w.tei.EmbedDocuments(ctx, texts)
		if err != nil {
			slog.Warn("embed batch failed", "error", err, "batch_start", i, "batch_size", len(texts))
			continue
		}

		if err := w.store.InsertBatch(ctx, entryIDs, embeddings, hashes); err != nil {
			slog.Warn("store batch failed", "error", err, "batch_start", i)
			continue
		}

		totalEmbedded += len(embeddings)
	}
	return totalEmbedded, nil
}

// Recall embeds the query and returns the most similar journal entries.
func (w *SyncWorker) Recall(ctx context.Context, query string, limit int) ([]lifelog.JournalEntry, error) {
	vec, err := w.tei.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := w.store.Search(ctx, vec, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.JournalID
	}
	return w.lifelog.JournalByIDs(ids)
}

// ContentHash computes the staleness-detection hash for journal content.
func ContentHash(content string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(content)))
}
