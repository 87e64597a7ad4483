// Package catalog persists intent examples with their embeddings and
// serves top-k cosine similarity searches via pgvector.
package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/commercekit/intent-engine/pkg/apperrors"
)

// DefaultTable is the catalog table name. Refresh swaps a fully loaded
// staging table into this name so readers never observe a partial set.
const DefaultTable = "intent_catalog"

// Entry is one persisted catalog row.
type Entry struct {
	ID          int64     `db:"id"`
	IntentCode  string    `db:"intent_code"`
	Category    string    `db:"category"`
	ExampleText string    `db:"example_text"`
	Embedding   []float32 `db:"-"`
}

// Match is one similarity-search hit, ordered by similarity descending.
type Match struct {
	ID          int64   `db:"id"`
	IntentCode  string  `db:"intent_code"`
	Category    string  `db:"category"`
	ExampleText string  `db:"example_text"`
	Similarity  float64 `db:"similarity"`
}

// Store provides catalog persistence over PostgreSQL with the pgvector
// extension. Cosine distance (`<=>`) over unit vectors makes similarity
// equal to 1 - distance.
type Store struct {
	db    *sqlx.DB
	table string
}

// NewStore creates a catalog store over db using the default table.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, table: DefaultTable}
}

func (s *Store) withTable(table string) *Store {
	return &Store{db: s.db, table: table}
}

// Insert persists one entry and returns its id.
func (s *Store) Insert(ctx context.Context, e Entry) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (intent_code, category, example_text, embedding)
		VALUES ($1, $2, $3, $4::vector)
		RETURNING id`, s.table)

	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		e.IntentCode, e.Category, e.ExampleText, formatVector(e.Embedding),
	).Scan(&id)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "inserting catalog entry", err)
	}
	return id, nil
}

// InsertBatch persists entries inside one transaction and returns the
// number inserted.
func (s *Store) InsertBatch(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "beginning catalog transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`
		INSERT INTO %s (intent_code, category, example_text, embedding)
		VALUES ($1, $2, $3, $4::vector)`, s.table)

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query,
			e.IntentCode, e.Category, e.ExampleText, formatVector(e.Embedding)); err != nil {
			return 0, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "inserting catalog batch", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "committing catalog batch", err)
	}
	return len(entries), nil
}

// Search returns up to topK entries with similarity >= minSimilarity,
// ordered by similarity descending.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, minSimilarity float64) ([]Match, error) {
	query := fmt.Sprintf(`
		SELECT id, intent_code, category, example_text,
		       1 - (embedding <=> $1::vector) AS similarity
		FROM %s
		WHERE 1 - (embedding <=> $1::vector) >= $3
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, s.table)

	var matches []Match
	if err := s.db.SelectContext(ctx, &matches, query, formatVector(embedding), topK, minSimilarity); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "similarity search", err)
	}
	return matches, nil
}

// CountsByIntent returns the number of examples per intent code.
func (s *Store) CountsByIntent(ctx context.Context) (map[string]int, error) {
	query := fmt.Sprintf(`
		SELECT intent_code, COUNT(*) AS count
		FROM %s
		GROUP BY intent_code
		ORDER BY intent_code`, s.table)

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "counting catalog entries", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var code string
		var count int
		if err := rows.Scan(&code, &count); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "scanning catalog counts", err)
		}
		counts[code] = count
	}
	return counts, rows.Err()
}

// DeleteByIntent removes all examples for one intent code and returns the
// number of rows deleted.
func (s *Store) DeleteByIntent(ctx context.Context, intentCode string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE intent_code = $1", s.table)
	res, err := s.db.ExecContext(ctx, query, intentCode)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "deleting intent examples", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Clear removes every catalog entry and resets the id sequence.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE %s RESTART IDENTITY", s.table)); err != nil {
		return apperrors.Wrap(apperrors.KindUpstreamUnavailable, "clearing catalog", err)
	}
	return nil
}

// Ping reports whether the backing store is reachable.
func (s *Store) Ping(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

// Stats summarizes catalog contents for admin surfaces.
type Stats struct {
	TotalExamples int            `json:"total_examples"`
	NumIntents    int            `json:"num_intents"`
	ByIntent      map[string]int `json:"by_intent"`
	ByCategory    map[string]int `json:"by_category"`
}

// GetStats returns total, per-intent, and per-category histograms.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	counts, err := s.CountsByIntent(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		ByIntent:   counts,
		ByCategory: make(map[string]int),
		NumIntents: len(counts),
	}
	for code, count := range counts {
		stats.TotalExamples += count
		category, _, found := strings.Cut(code, ".")
		if found {
			stats.ByCategory[category] += count
		}
	}
	return stats, nil
}

// formatVector renders a float32 slice in pgvector literal syntax,
// e.g. "[0.1,0.2,0.3]".
func formatVector(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
