package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/bluelime/bluesender/internal/domain"
)

// MailboxRepo persists provisioned sending identities. Only the
// provisioning flow writes these rows; the send worker and webmail API
// read them for credentials.
type MailboxRepo struct{ db *sql.DB }

// NewMailboxRepo creates a Postgres-backed mailbox repository.
func NewMailboxRepo(db *sql.DB) *MailboxRepo { return &MailboxRepo{db: db} }

func (r *MailboxRepo) Create(ctx context.Context, m *domain.Mailbox) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mailboxes
			(id, user_id, email, name, smtp_host, smtp_port, smtp_user, smtp_pass, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`, m.ID, m.UserID, m.Email, m.Name, m.SMTPHost, m.SMTPPort, m.SMTPUser, m.SMTPPass, m.Active)
	if err != nil {
		return fmt.Errorf("create mailbox: %w", err)
	}
	return nil
}

func (r *MailboxRepo) Get(ctx context.Context, id string) (*domain.Mailbox, error) {
	m := &domain.Mailbox{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, email, name, smtp_host, smtp_port, smtp_user, smtp_pass, active, created_at
		FROM mailboxes
		WHERE id = $1
	`, id).Scan(&m.ID, &m.UserID, &m.Email, &m.Name, &m.SMTPHost, &m.SMTPPort,
		&m.SMTPUser, &m.SMTPPass, &m.Active, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mailbox: %w", err)
	}
	return m, nil
}

func (r *MailboxRepo) ByUser(ctx context.Context, userID string) ([]domain.Mailbox, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, email, name, smtp_host, smtp_port, smtp_user, smtp_pass, active, created_at
		FROM mailboxes
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}
	defer rows.Close()

	var out []domain.Mailbox
	for rows.Next() {
		var m domain.Mailbox
		if err := rows.Scan(&m.ID, &m.UserID, &m.Email, &m.Name, &m.SMTPHost, &m.SMTPPort,
			&m.SMTPUser, &m.SMTPPass, &m.Active, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mailbox: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
