package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bluelime/bluesender/internal/domain"
)

// insertContactBatch inserts one sub-batch of contacts inside an existing
// transaction using a single multi-row statement. The contact name defaults
// to the address's local part.
func insertContactBatch(ctx context.Context, tx *sql.Tx, listID string, emails []string) error {
	if len(emails) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(emails))
	args := make([]any, 0, len(emails)*4)
	for i, email := range emails {
		base := i * 4
		placeholders = append(placeholders,
			fmt.Sprintf("($%d, $%d, $%d, $%d, NOW())", base+1, base+2, base+3, base+4))
		name := email
		if at := strings.Index(email, "@"); at > 0 {
			name = email[:at]
		}
		args = append(args, uuid.New().String(), listID, email, name)
	}

	q := `INSERT INTO contacts (id, list_id, email, name, created_at) VALUES ` +
		strings.Join(placeholders, ", ")
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert contacts: %w", err)
	}
	return nil
}

// ContactRepo reads contacts for display and dispatch.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

func (r *ContactRepo) ByList(ctx context.Context, listID string) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, list_id, email, name, created_at
		FROM contacts
		WHERE list_id = $1
		ORDER BY created_at ASC
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("contacts by list: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.ID, &c.ListID, &c.Email, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EmailsByList returns just the addresses of a list, in insertion order.
// Used when re-dispatching an existing list to the provider.
func (r *ContactRepo) EmailsByList(ctx context.Context, listID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT email FROM contacts WHERE list_id = $1 ORDER BY created_at ASC
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("emails by list: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out = append(out, email)
	}
	return out, rows.Err()
}
