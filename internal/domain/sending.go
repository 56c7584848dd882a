package domain

import (
	"strings"
	"time"
)

// Mailbox is a provisioned sending identity: an address plus the SMTP
// credentials the send worker uses for delivery. Created by the provisioning
// gateway after the mail server confirms the mailbox exists; only the
// gateway writes these rows.
type Mailbox struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	SMTPHost  string    `json:"smtp_host" db:"smtp_host"`
	SMTPPort  int       `json:"smtp_port" db:"smtp_port"`
	SMTPUser  string    `json:"-" db:"smtp_user"`
	SMTPPass  string    `json:"-" db:"smtp_pass"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SplitAddress separates an email address into local part and domain.
// Returns ok=false when the address does not contain exactly one "@".
func SplitAddress(addr string) (localPart, dom string, ok bool) {
	parts := strings.Split(strings.TrimSpace(addr), "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// QueueStatus is the state of an outbound email queue row.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueSending QueueStatus = "sending"
	QueueSent    QueueStatus = "sent"
	QueueFailed  QueueStatus = "failed"
)

// Terminal reports whether a queue row has reached its final state.
// Sent and failed rows never transition again without external re-enqueue.
func (s QueueStatus) Terminal() bool {
	return s == QueueSent || s == QueueFailed
}

// OutboundEmail is one queued send job. Rows are created with status
// pending, claimed by the send worker (pending -> sending atomically), and
// finish in exactly one of sent or failed.
type OutboundEmail struct {
	ID           string      `json:"id" db:"id"`
	MailboxID    string      `json:"mailbox_id" db:"mailbox_id"`
	ToEmail      string      `json:"to_email" db:"to_email"`
	Subject      string      `json:"subject" db:"subject"`
	BodyHTML     string      `json:"body_html" db:"body_html"`
	Status       QueueStatus `json:"status" db:"status"`
	ErrorMessage string      `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	SentAt       *time.Time  `json:"sent_at,omitempty" db:"sent_at"`
}
