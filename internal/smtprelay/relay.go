// Package smtprelay delivers queued messages through a mailbox's SMTP
// endpoint. Port 465 gets an implicit TLS dial; anything else dials in
// the clear and upgrades via STARTTLS when the server offers it.
package smtprelay

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/google/uuid"

	"github.com/bluelime/bluesender/internal/domain"
)

// Relay opens per-send SMTP connections using the sender mailbox's stored
// credentials. AllowSelfSigned skips certificate verification, which
// self-hosted mail relays with self-signed certificates require; strict
// environments leave it off.
type Relay struct {
	allowSelfSigned bool
	timeout         time.Duration
}

// New creates a relay transport.
func New(allowSelfSigned bool, timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Relay{allowSelfSigned: allowSelfSigned, timeout: timeout}
}

// Send delivers one HTML message from the given mailbox. Any failure is
// returned verbatim so the queue row can record the exact cause.
func (r *Relay) Send(ctx context.Context, mbox *domain.Mailbox, toEmail, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%d", mbox.SMTPHost, mbox.SMTPPort)
	msg := buildMessage(mbox, toEmail, subject, htmlBody)

	client, err := r.dial(ctx, addr, mbox.SMTPHost, mbox.SMTPPort)
	if err != nil {
		return err
	}
	defer client.Close()

	if mbox.SMTPUser != "" {
		if err := client.Auth(&relayPlainAuth{user: mbox.SMTPUser, pass: mbox.SMTPPass}); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}
	if err := client.Mail(mbox.Email); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(toEmail); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("DATA close: %w", err)
	}
	return client.Quit()
}

// dial establishes the SMTP session: implicit TLS on 465, otherwise a
// plain connection with an opportunistic STARTTLS upgrade.
func (r *Relay) dial(ctx context.Context, addr, host string, port int) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: r.timeout}
	tlsCfg := &tls.Config{ServerName: host, InsecureSkipVerify: r.allowSelfSigned}

	var conn net.Conn
	var err error
	if port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("SMTP connect to %s: %w", addr, err)
	}

	// The deadline bounds the whole session, not just the dial: a server
	// that accepts the connection and then stalls must fail the row
	// instead of hanging the worker.
	if err := conn.SetDeadline(time.Now().Add(r.timeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP client: %w", err)
	}

	if port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsCfg); err != nil {
				client.Close()
				return nil, fmt.Errorf("STARTTLS: %w", err)
			}
		}
	}
	return client, nil
}

// buildMessage assembles the RFC 5322 message bytes for one HTML email.
func buildMessage(mbox *domain.Mailbox, toEmail, subject, htmlBody string) []byte {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("From: %q <%s>\r\n", mbox.Name, mbox.Email))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", toEmail))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	buf.WriteString(fmt.Sprintf("Message-ID: <%s@%s>\r\n", uuid.New().String(), mbox.SMTPHost))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(htmlBody)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// relayPlainAuth implements smtp.Auth without the TLS requirement that
// stdlib's PlainAuth enforces. Submission ports on private relays often
// accept PLAIN before the STARTTLS upgrade completes.
type relayPlainAuth struct {
	user, pass string
}

func (a *relayPlainAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return "PLAIN", []byte("\x00" + a.user + "\x00" + a.pass), nil
}

func (a *relayPlainAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	return nil, nil
}
