package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/commercekit/intent-engine/pkg/apperrors"
	"github.com/commercekit/intent-engine/pkg/embedding"
)

// MaxExampleBytes is the maximum length of a single catalog example.
const MaxExampleBytes = 512

var intentCodePattern = regexp.MustCompile(`^[A-Z_]+\.[A-Z_]+$`)

// Loader populates the catalog from seed files: a JSON object mapping
// intent codes to example utterances.
type Loader struct {
	store    *Store
	embedder embedding.Embedder
}

// NewLoader creates a catalog loader.
func NewLoader(store *Store, embedder embedding.Embedder) *Loader {
	return &Loader{store: store, embedder: embedder}
}

// seedFile is the on-disk format: {"CATEGORY.INTENT": ["example", ...]}.
type seedFile map[string][]string

func parseSeedFile(path string) (seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "reading catalog seed file", err)
	}
	var data seedFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "parsing catalog seed file", err)
	}
	for code, examples := range data {
		if !intentCodePattern.MatchString(code) {
			return nil, apperrors.Newf(apperrors.KindValidation, "invalid intent code %q in seed file", code)
		}
		for _, ex := range examples {
			if len(ex) > MaxExampleBytes {
				return nil, apperrors.Newf(apperrors.KindValidation,
					"example for %s exceeds %d bytes", code, MaxExampleBytes)
			}
		}
	}
	return data, nil
}

// Load reads the seed file, embeds every example, and batch-inserts the
// entries. Returns the number of examples loaded per intent code.
func (l *Loader) Load(ctx context.Context, path string) (map[string]int, error) {
	return l.loadInto(ctx, l.store, path)
}

func (l *Loader) loadInto(ctx context.Context, store *Store, path string) (map[string]int, error) {
	data, err := parseSeedFile(path)
	if err != nil {
		return nil, err
	}

	// Deterministic insert order keeps ids stable across reloads.
	codes := make([]string, 0, len(data))
	for code := range data {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	counts := make(map[string]int, len(codes))
	for _, code := range codes {
		examples := data[code]
		if len(examples) == 0 {
			counts[code] = 0
			continue
		}
		vectors, err := l.embedder.EmbedBatch(ctx, examples)
		if err != nil {
			return nil, fmt.Errorf("embedding examples for %s: %w", code, err)
		}
		category, _, _ := strings.Cut(code, ".")
		entries := make([]Entry, len(examples))
		for i, ex := range examples {
			entries[i] = Entry{
				IntentCode:  code,
				Category:    category,
				ExampleText: ex,
				Embedding:   vectors[i],
			}
		}
		if _, err := store.InsertBatch(ctx, entries); err != nil {
			return nil, err
		}
		counts[code] = len(examples)
	}

	slog.Info("Catalog seed loaded", "path", path, "intents", len(counts))
	return counts, nil
}

// Refresh atomically replaces the catalog contents with the seed file.
// The new set is built in a staging table and swapped into place inside a
// single transaction, so concurrent readers see either the old catalog or
// the new one, never a partial load.
func (l *Loader) Refresh(ctx context.Context, path string) (map[string]int, error) {
	staging := l.store.table + "_staging"
	db := l.store.db

	// Build the staging table from scratch.
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", staging)); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "dropping stale staging table", err)
	}
	createStmt := fmt.Sprintf(
		"CREATE TABLE %s (LIKE %s INCLUDING DEFAULTS INCLUDING IDENTITY)", staging, l.store.table)
	if _, err := db.ExecContext(ctx, createStmt); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "creating staging table", err)
	}

	counts, err := l.loadInto(ctx, l.store.withTable(staging), path)
	if err != nil {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", staging))
		return nil, err
	}

	// Shadow index before the swap so search latency holds immediately.
	indexStmt := fmt.Sprintf(
		"CREATE INDEX %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)", staging, staging)
	if _, err := db.ExecContext(ctx, indexStmt); err != nil {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", staging))
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "indexing staging table", err)
	}

	// Atomic swap. DDL is transactional in PostgreSQL.
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "beginning catalog swap", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", l.store.table)); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "dropping old catalog", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", staging, l.store.table)); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "renaming staging catalog", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"ALTER INDEX %s_embedding_idx RENAME TO %s_embedding_idx", staging, l.store.table)); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "renaming staging index", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "committing catalog swap", err)
	}

	slog.Info("Catalog refreshed", "path", path, "intents", len(counts))
	return counts, nil
}
