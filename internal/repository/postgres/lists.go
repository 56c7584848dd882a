package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/bluelime/bluesender/internal/domain"
)

// ListRepo persists validation lists.
type ListRepo struct{ db *sql.DB }

// NewListRepo creates a Postgres-backed list repository.
func NewListRepo(db *sql.DB) *ListRepo { return &ListRepo{db: db} }

const listColumns = `id, user_id, name, total_emails, processed_emails,
	       deliverable_count, undeliverable_count, risky_count, unknown_count,
	       status, created_at, updated_at`

func scanList(row interface{ Scan(...any) error }) (*domain.ValidationList, error) {
	l := &domain.ValidationList{}
	err := row.Scan(
		&l.ID, &l.UserID, &l.Name, &l.TotalEmails, &l.ProcessedEmails,
		&l.DeliverableCount, &l.UndeliverableCount, &l.RiskyCount, &l.UnknownCount,
		&l.Status, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *ListRepo) Get(ctx context.Context, id string) (*domain.ValidationList, error) {
	l, err := scanList(r.db.QueryRowContext(ctx, `
		SELECT `+listColumns+`
		FROM validation_lists
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	return l, nil
}

func (r *ListRepo) ByUser(ctx context.Context, userID string) ([]domain.ValidationList, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+listColumns+`
		FROM validation_lists
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	var out []domain.ValidationList
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// ByStatus returns every list currently in the given status. The
// reconciler uses this to find in-flight batches.
func (r *ListRepo) ByStatus(ctx context.Context, status domain.ListStatus) ([]domain.ValidationList, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+listColumns+`
		FROM validation_lists
		WHERE status = $1
		ORDER BY created_at ASC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("lists by status: %w", err)
	}
	defer rows.Close()

	var out []domain.ValidationList
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// CreateWithContacts creates the list row and its contacts in one
// transaction. Contacts are inserted in sub-batches; any failure rolls the
// whole creation back so no partial list is ever visible.
func (r *ListRepo) CreateWithContacts(ctx context.Context, l *domain.ValidationList, emails []string) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO validation_lists
			(id, user_id, name, total_emails, processed_emails, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, NOW(), NOW())
	`, l.ID, l.UserID, l.Name, len(emails), l.Status)
	if err != nil {
		return fmt.Errorf("create list: %w", err)
	}

	const batchSize = 1000
	for start := 0; start < len(emails); start += batchSize {
		end := start + batchSize
		if end > len(emails) {
			end = len(emails)
		}
		if err := insertContactBatch(ctx, tx, l.ID, emails[start:end]); err != nil {
			return fmt.Errorf("insert contacts [%d:%d]: %w", start, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	l.TotalEmails = len(emails)
	return nil
}

// UpdateStatus moves a list to a new status, enforcing the lifecycle
// state machine at the SQL level: the update only applies when the
// current status actually allows the transition.
func (r *ListRepo) UpdateStatus(ctx context.Context, id string, from, to domain.ListStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE validation_lists SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RevertToUnvalidated compensates a failed dispatch: the list was moved to
// processing optimistically, but the provider never accepted the batch, so
// it goes back to unvalidated for a later retry. Only applies while the
// list is still in processing.
func (r *ListRepo) RevertToUnvalidated(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE validation_lists SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, domain.ListUnvalidated, id, domain.ListProcessing)
	if err != nil {
		return fmt.Errorf("revert list: %w", err)
	}
	return nil
}

// CompleteWithResults ingests provider results for a list: upserts one
// result row per address, recomputes the outcome counts, and transitions
// the list to completed, all in one transaction. The status is re-checked
// inside the transaction so re-running on an already-completed list is a
// no-op.
func (r *ListRepo) CompleteWithResults(ctx context.Context, listID string, results []domain.ValidationResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var status domain.ListStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM validation_lists WHERE id = $1 FOR UPDATE
	`, listID).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock list: %w", err)
	}
	if status != domain.ListProcessing {
		// Already reconciled (or never dispatched): nothing to do.
		return nil
	}

	// A misbehaving provider can report the same address twice; the
	// upsert keeps one row per address, so the counts must too. Last
	// entry wins, matching what the upsert leaves in place.
	seen := map[string]int{}
	deduped := make([]domain.ValidationResult, 0, len(results))
	for _, res := range results {
		if i, ok := seen[res.Email]; ok {
			deduped[i] = res
			continue
		}
		seen[res.Email] = len(deduped)
		deduped = append(deduped, res)
	}

	counts := map[domain.ResultClass]int{}
	for _, res := range deduped {
		counts[res.Result]++
		_, err = tx.ExecContext(ctx, `
			INSERT INTO validation_results
				(id, validation_list_id, email, result, format_valid, domain_valid,
				 smtp_valid, catch_all, disposable, free_email, reason, deliverable,
				 full_response, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
			ON CONFLICT (validation_list_id, email) DO UPDATE SET
				result = EXCLUDED.result,
				format_valid = EXCLUDED.format_valid,
				domain_valid = EXCLUDED.domain_valid,
				smtp_valid = EXCLUDED.smtp_valid,
				catch_all = EXCLUDED.catch_all,
				disposable = EXCLUDED.disposable,
				free_email = EXCLUDED.free_email,
				reason = EXCLUDED.reason,
				deliverable = EXCLUDED.deliverable,
				full_response = EXCLUDED.full_response
		`, uuid.New().String(), listID, res.Email, res.Result, res.FormatValid,
			res.DomainValid, res.SMTPValid, res.CatchAll, res.Disposable,
			res.FreeEmail, res.Reason, res.Deliverable, []byte(res.FullResponse))
		if err != nil {
			return fmt.Errorf("upsert result for %s: %w", res.Email, err)
		}
	}

	processed := len(deduped)
	_, err = tx.ExecContext(ctx, `
		UPDATE validation_lists SET
			processed_emails = $2,
			deliverable_count = $3,
			undeliverable_count = $4,
			risky_count = $5,
			unknown_count = $6,
			status = $7,
			updated_at = NOW()
		WHERE id = $1
	`, listID, processed,
		counts[domain.ResultDeliverable], counts[domain.ResultUndeliverable],
		counts[domain.ResultRisky], counts[domain.ResultUnknown],
		domain.ListCompleted)
	if err != nil {
		return fmt.Errorf("update counts: %w", err)
	}

	return tx.Commit()
}

// MarkFailed transitions a processing list to failed with no result
// ingestion. Idempotent: terminal lists are left untouched.
func (r *ListRepo) MarkFailed(ctx context.Context, listID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE validation_lists SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, domain.ListFailed, listID, domain.ListProcessing)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Delete removes a list together with its contacts and results. Deletion
// is an explicit user action; nothing in the pipeline deletes lists.
func (r *ListRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM validation_results WHERE validation_list_id = $1`, id); err != nil {
		return fmt.Errorf("delete results: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE list_id = $1`, id); err != nil {
		return fmt.Errorf("delete contacts: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM validation_lists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
