package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bluelime/bluesender/internal/domain"
)

// ResultRepo reads and deletes stored validation results. Results are
// written exclusively through ListRepo.CompleteWithResults so ingestion
// stays transactional with the list's counters.
type ResultRepo struct{ db *sql.DB }

// NewResultRepo creates a Postgres-backed result repository.
func NewResultRepo(db *sql.DB) *ResultRepo { return &ResultRepo{db: db} }

func (r *ResultRepo) ByList(ctx context.Context, listID string) ([]domain.ValidationResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, validation_list_id, email, result, format_valid, domain_valid,
		       smtp_valid, catch_all, disposable, free_email, COALESCE(reason, ''),
		       deliverable, COALESCE(full_response, 'null'), created_at
		FROM validation_results
		WHERE validation_list_id = $1
		ORDER BY email ASC
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("results by list: %w", err)
	}
	defer rows.Close()

	var out []domain.ValidationResult
	for rows.Next() {
		var v domain.ValidationResult
		var raw []byte
		if err := rows.Scan(
			&v.ID, &v.ListID, &v.Email, &v.Result, &v.FormatValid, &v.DomainValid,
			&v.SMTPValid, &v.CatchAll, &v.Disposable, &v.FreeEmail, &v.Reason,
			&v.Deliverable, &raw, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		v.FullResponse = raw
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountByList returns the number of stored results for a list. Used by
// tests and the reconciler's no-op verification.
func (r *ResultRepo) CountByList(ctx context.Context, listID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM validation_results WHERE validation_list_id = $1
	`, listID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}

// Get returns a single result row by ID.
func (r *ResultRepo) Get(ctx context.Context, id string) (*domain.ValidationResult, error) {
	var v domain.ValidationResult
	var raw []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, validation_list_id, email, result, format_valid, domain_valid,
		       smtp_valid, catch_all, disposable, free_email, COALESCE(reason, ''),
		       deliverable, COALESCE(full_response, 'null'), created_at
		FROM validation_results
		WHERE id = $1
	`, id).Scan(
		&v.ID, &v.ListID, &v.Email, &v.Result, &v.FormatValid, &v.DomainValid,
		&v.SMTPValid, &v.CatchAll, &v.Disposable, &v.FreeEmail, &v.Reason,
		&v.Deliverable, &raw, &v.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	v.FullResponse = raw
	return &v, nil
}

// Delete removes a single result row (explicit user action).
func (r *ResultRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM validation_results WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
