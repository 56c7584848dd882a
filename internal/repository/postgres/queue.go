package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/bluelime/bluesender/internal/domain"
)

// QueueRepo persists the outbound email queue. Claiming is a single
// atomic UPDATE (pending -> sending) guarded by FOR UPDATE SKIP LOCKED,
// so multiple worker instances can drain the same queue without
// double-sending a row.
type QueueRepo struct{ db *sql.DB }

// NewQueueRepo creates a Postgres-backed queue repository.
func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

func (r *QueueRepo) Enqueue(ctx context.Context, e *domain.OutboundEmail) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.Status = domain.QueuePending
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_queue
			(id, mailbox_id, to_email, subject, body_html, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, e.ID, e.MailboxID, e.ToEmail, e.Subject, e.BodyHTML, e.Status)
	if err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// ClaimBatch atomically claims up to limit pending rows, transitioning
// them to sending and returning them for delivery.
func (r *QueueRepo) ClaimBatch(ctx context.Context, limit int) ([]domain.OutboundEmail, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE email_queue
		SET status = $1
		WHERE id IN (
			SELECT id FROM email_queue
			WHERE status = $2
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, mailbox_id, to_email, subject, body_html, status, created_at
	`, domain.QueueSending, domain.QueuePending, limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboundEmail
	for rows.Next() {
		var e domain.OutboundEmail
		if err := rows.Scan(&e.ID, &e.MailboxID, &e.ToEmail, &e.Subject,
			&e.BodyHTML, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkSent finishes a claimed row as sent.
func (r *QueueRepo) MarkSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_queue
		SET status = $1, sent_at = NOW(), error_message = NULL
		WHERE id = $2
	`, domain.QueueSent, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// MarkFailed finishes a claimed row as failed with the error text for
// operator inspection. Failed rows stay failed until re-enqueued
// externally; the worker never retries them.
func (r *QueueRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_queue
		SET status = $1, error_message = $2
		WHERE id = $3
	`, domain.QueueFailed, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Get fetches one queue row by ID.
func (r *QueueRepo) Get(ctx context.Context, id string) (*domain.OutboundEmail, error) {
	var e domain.OutboundEmail
	var sentAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, mailbox_id, to_email, subject, body_html, status,
		       COALESCE(error_message, ''), created_at, sent_at
		FROM email_queue
		WHERE id = $1
	`, id).Scan(&e.ID, &e.MailboxID, &e.ToEmail, &e.Subject, &e.BodyHTML,
		&e.Status, &e.ErrorMessage, &e.CreatedAt, &sentAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue row: %w", err)
	}
	if sentAt.Valid {
		e.SentAt = &sentAt.Time
	}
	return &e, nil
}

// ByStatusForMailboxes lists queue rows for inspection, newest first,
// scoped to the given sender mailboxes so one tenant's traffic never
// crowds another's view.
func (r *QueueRepo) ByStatusForMailboxes(ctx context.Context, status domain.QueueStatus, mailboxIDs []string, limit int) ([]domain.OutboundEmail, error) {
	if len(mailboxIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, mailbox_id, to_email, subject, body_html, status,
		       COALESCE(error_message, ''), created_at, sent_at
		FROM email_queue
		WHERE status = $1 AND mailbox_id = ANY($2)
		ORDER BY created_at DESC
		LIMIT $3
	`, status, pq.Array(mailboxIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("queue by status: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboundEmail
	for rows.Next() {
		var e domain.OutboundEmail
		var sentAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.MailboxID, &e.ToEmail, &e.Subject, &e.BodyHTML,
			&e.Status, &e.ErrorMessage, &e.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		if sentAt.Valid {
			e.SentAt = &sentAt.Time
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
