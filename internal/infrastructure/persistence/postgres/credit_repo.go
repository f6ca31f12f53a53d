package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/pkg/circuitbreaker"
	"github.com/ipu-results/result-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREDIT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CreditRepository implements credit.Repository for PostgreSQL.
type CreditRepository struct {
	conn    *Connection
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
}

var _ credit.Repository = (*CreditRepository)(nil)

// NewCreditRepository creates a new CreditRepository.
func NewCreditRepository(conn *Connection, onStateChange func(name string, from, to circuitbreaker.State)) *CreditRepository {
	return &CreditRepository{
		conn:    conn,
		breaker: circuitbreaker.CatalogStoreBreaker(onStateChange),
		retrier: retry.StoreRetrier(),
	}
}

// Lookup returns catalog entries for the given normalized codes.
func (r *CreditRepository) Lookup(ctx context.Context, codes []shared.PaperCode) (credit.Catalog, error) {
	if len(codes) == 0 {
		return credit.Catalog{}, nil
	}

	keys := make([]string, len(codes))
	for i, c := range codes {
		keys[i] = c.String()
	}

	const query = `
		SELECT paper_code, theory::float8, practical::float8
		FROM subject_credits
		WHERE paper_code = ANY($1)
	`

	return retry.Value(ctx, r.retrier, func(ctx context.Context) (credit.Catalog, error) {
		return circuitbreaker.Call(ctx, r.breaker, func(ctx context.Context) (credit.Catalog, error) {
			rows, err := r.conn.Query(ctx, query, keys)
			if err != nil {
				return nil, fmt.Errorf("failed to query subject credits: %w", err)
			}
			defer rows.Close()

			out := make(credit.Catalog, len(keys))
			for rows.Next() {
				var (
					code      string
					theory    float64
					practical *float64
				)
				if err := rows.Scan(&code, &theory, &practical); err != nil {
					return nil, fmt.Errorf("failed to scan subject credit: %w", err)
				}
				out[shared.PaperCode(code)] = credit.NewEntry(theory, practical)
			}
			return out, rows.Err()
		})
	})
}

// Upsert inserts or replaces catalog items in one batch and returns the
// number written. Every item is validated before anything is sent.
func (r *CreditRepository) Upsert(ctx context.Context, items []credit.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	for i := range items {
		items[i].PaperCode = shared.NormalizePaperCode(items[i].PaperCode.String())
		if err := items[i].Validate(); err != nil {
			return 0, fmt.Errorf("item %d: %w", i, err)
		}
	}

	const query = `
		INSERT INTO subject_credits (paper_code, paper_name, theory, practical)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (paper_code) DO UPDATE SET
			paper_name = CASE WHEN EXCLUDED.paper_name = '' THEN subject_credits.paper_name ELSE EXCLUDED.paper_name END,
			theory = EXCLUDED.theory,
			practical = EXCLUDED.practical
	`

	written := 0
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, it := range items {
			batch.Queue(query, it.PaperCode.String(), it.PaperName, it.Theory, it.Practical)
		}

		results := tx.SendBatch(ctx, batch)
		for range items {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				if IsCheckViolation(err) {
					return shared.WrapError("credit", "Upsert", shared.ErrValueOutOfRange, "catalog item rejected", err)
				}
				return fmt.Errorf("failed to upsert subject credit: %w", err)
			}
			written += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// List returns catalog items ordered by paper code.
func (r *CreditRepository) List(ctx context.Context, limit, offset int) ([]credit.Item, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT paper_code, paper_name, theory::float8, practical::float8
		FROM subject_credits
		ORDER BY paper_code
		LIMIT $1 OFFSET $2
	`

	rows, err := r.conn.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list subject credits: %w", err)
	}
	defer rows.Close()

	var out []credit.Item
	for rows.Next() {
		var (
			it   credit.Item
			code string
		)
		if err := rows.Scan(&code, &it.PaperName, &it.Theory, &it.Practical); err != nil {
			return nil, fmt.Errorf("failed to scan subject credit: %w", err)
		}
		it.PaperCode = shared.PaperCode(code)
		out = append(out, it)
	}
	return out, rows.Err()
}

// Count returns the number of catalog entries.
func (r *CreditRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, "SELECT count(*) FROM subject_credits").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count subject credits: %w", err)
	}
	return n, nil
}

// RecordImport appends an import audit row.
func (r *CreditRepository) RecordImport(ctx context.Context, source string, items int) error {
	_, err := r.conn.Exec(ctx, "INSERT INTO credit_imports (source, items) VALUES ($1, $2)", source, items)
	if err != nil {
		return fmt.Errorf("failed to record credit import: %w", err)
	}
	return nil
}
