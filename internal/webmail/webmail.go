// Package webmail reads provisioned mailboxes over IMAP. Each operation
// opens a fresh connection with the mailbox's own credentials, does its
// work, and logs out; there is no connection pooling because webmail
// traffic is interactive and sparse.
package webmail

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/bluelime/bluesender/internal/pkg/logger"
)

// DefaultTimeout bounds every IMAP command so a stalled server cannot
// hang an API request.
const DefaultTimeout = 10 * time.Second

// Credentials identify one IMAP account for a single operation.
type Credentials struct {
	Host            string
	Port            int
	Email           string
	Password        string
	AllowSelfSigned bool
}

// Folder is one mailbox folder as reported by LIST.
type Folder struct {
	Name       string   `json:"name"`
	Delimiter  string   `json:"delimiter"`
	Attributes []string `json:"attributes"`
}

// MessageSummary is a headers-only listing entry. Bodies are fetched
// separately so folder views stay cheap.
type MessageSummary struct {
	UID     uint32    `json:"uid"`
	Subject string    `json:"subject"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Date    time.Time `json:"date"`
	Seen    bool      `json:"seen"`
	Size    uint32    `json:"size"`
}

// Attachment describes an attachment part without its content.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Message is a fully fetched message.
type Message struct {
	UID         uint32       `json:"uid"`
	Subject     string       `json:"subject"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Date        time.Time    `json:"date"`
	HTML        string       `json:"html,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments"`
}

// Client performs IMAP operations. The zero timeout falls back to
// DefaultTimeout.
type Client struct {
	timeout time.Duration
}

// New creates a webmail client.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{timeout: timeout}
}

// connect dials TLS on the IMAP port and logs in. Callers must Logout.
func (c *Client) connect(ctx context.Context, creds Credentials) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("%s:%d", creds.Host, creds.Port)
	tlsCfg := &tls.Config{ServerName: creds.Host, InsecureSkipVerify: creds.AllowSelfSigned}

	ic, err := imapclient.DialTLS(addr, tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("IMAP connect to %s: %w", addr, err)
	}
	ic.Timeout = c.timeout

	if err := ic.Login(creds.Email, creds.Password); err != nil {
		ic.Logout()
		return nil, fmt.Errorf("IMAP login for %s: %w", logger.RedactEmail(creds.Email), err)
	}
	return ic, nil
}

// ListFolders returns every folder visible to the account.
func (c *Client) ListFolders(ctx context.Context, creds Credentials) ([]Folder, error) {
	ic, err := c.connect(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer ic.Logout()

	boxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- ic.List("", "*", boxes)
	}()

	var folders []Folder
	for m := range boxes {
		folders = append(folders, Folder{
			Name:       m.Name,
			Delimiter:  m.Delimiter,
			Attributes: m.Attributes,
		})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("LIST: %w", err)
	}
	return folders, nil
}

// ListMessages returns up to limit summaries from folder, newest first.
// Only envelopes, flags and sizes are fetched.
func (c *Client) ListMessages(ctx context.Context, creds Credentials, folder string, limit int) ([]MessageSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	ic, err := c.connect(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer ic.Logout()

	mbox, err := ic.Select(folder, true)
	if err != nil {
		return nil, fmt.Errorf("SELECT %s: %w", folder, err)
	}
	if mbox.Messages == 0 {
		return []MessageSummary{}, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(limit) {
		from = mbox.Messages - uint32(limit) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, imap.FetchRFC822Size}
	messages := make(chan *imap.Message, limit)
	done := make(chan error, 1)
	go func() {
		done <- ic.Fetch(seqset, items, messages)
	}()

	var out []MessageSummary
	for msg := range messages {
		out = append(out, summarize(msg))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("FETCH: %w", err)
	}

	// Servers return ascending sequence order; callers want newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// FetchMessage downloads and parses one message by UID.
func (c *Client) FetchMessage(ctx context.Context, creds Credentials, folder string, uid uint32) (*Message, error) {
	ic, err := c.connect(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer ic.Logout()

	if _, err := ic.Select(folder, true); err != nil {
		return nil, fmt.Errorf("SELECT %s: %w", folder, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- ic.UidFetch(seqset, items, messages)
	}()

	raw := <-messages
	if err := <-done; err != nil {
		return nil, fmt.Errorf("UID FETCH %d: %w", uid, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("message %d not found in %s", uid, folder)
	}

	out := &Message{UID: raw.Uid, Attachments: []Attachment{}}
	if raw.Envelope != nil {
		out.Subject = raw.Envelope.Subject
		out.From = formatAddresses(raw.Envelope.From)
		out.To = formatAddresses(raw.Envelope.To)
		out.Date = raw.Envelope.Date
	}

	body := raw.GetBody(section)
	if body == nil {
		return out, nil
	}
	if err := parseBody(body, out); err != nil {
		logger.Warn("message body parse failed", "uid", uid, "error", err.Error())
	}
	return out, nil
}

// DeleteMessage moves a message to the trash folder. Messages already in
// trash are flagged deleted and expunged instead.
func (c *Client) DeleteMessage(ctx context.Context, creds Credentials, folder string, uid uint32) error {
	ic, err := c.connect(ctx, creds)
	if err != nil {
		return err
	}
	defer ic.Logout()

	trash, err := findTrash(ic)
	if err != nil {
		return err
	}

	if _, err := ic.Select(folder, false); err != nil {
		return fmt.Errorf("SELECT %s: %w", folder, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	if folder == trash {
		return expungeSet(ic, seqset)
	}
	if err := ic.UidMove(seqset, trash); err != nil {
		return fmt.Errorf("UID MOVE to %s: %w", trash, err)
	}
	return nil
}

// EmptyTrash permanently deletes everything in the trash folder and
// returns the number of messages removed.
func (c *Client) EmptyTrash(ctx context.Context, creds Credentials) (int, error) {
	ic, err := c.connect(ctx, creds)
	if err != nil {
		return 0, err
	}
	defer ic.Logout()

	trash, err := findTrash(ic)
	if err != nil {
		return 0, err
	}

	mbox, err := ic.Select(trash, false)
	if err != nil {
		return 0, fmt.Errorf("SELECT %s: %w", trash, err)
	}
	if mbox.Messages == 0 {
		return 0, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddRange(1, mbox.Messages)
	if err := expungeSet(ic, seqset); err != nil {
		return 0, err
	}
	return int(mbox.Messages), nil
}

// expungeSet flags the set deleted and expunges the selected folder.
func expungeSet(ic *imapclient.Client, seqset *imap.SeqSet) error {
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := ic.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("STORE deleted flag: %w", err)
	}
	if err := ic.Expunge(nil); err != nil {
		return fmt.Errorf("EXPUNGE: %w", err)
	}
	return nil
}

// findTrash locates the special-use trash folder, falling back to the
// conventional "Trash" name when the server does not advertise one.
func findTrash(ic *imapclient.Client) (string, error) {
	boxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- ic.List("", "*", boxes)
	}()

	trash := ""
	for m := range boxes {
		for _, attr := range m.Attributes {
			if attr == imap.TrashAttr {
				trash = m.Name
			}
		}
	}
	if err := <-done; err != nil {
		return "", fmt.Errorf("LIST: %w", err)
	}
	if trash == "" {
		trash = "Trash"
	}
	return trash, nil
}

func summarize(msg *imap.Message) MessageSummary {
	s := MessageSummary{UID: msg.Uid, Size: msg.Size}
	for _, f := range msg.Flags {
		if f == imap.SeenFlag {
			s.Seen = true
		}
	}
	if msg.Envelope != nil {
		s.Subject = msg.Envelope.Subject
		s.From = formatAddresses(msg.Envelope.From)
		s.To = formatAddresses(msg.Envelope.To)
		s.Date = msg.Envelope.Date
	}
	return s
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, a.Address()))
		} else {
			parts = append(parts, a.Address())
		}
	}
	return strings.Join(parts, ", ")
}

// parseBody walks the MIME tree collecting text alternatives and
// attachment metadata. Attachment bodies are skipped, not downloaded.
func parseBody(r io.Reader, out *Message) error {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return err
	}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return err
			}
			switch {
			case strings.HasPrefix(ct, "text/html"):
				out.HTML = string(b)
			case strings.HasPrefix(ct, "text/plain"):
				out.Text = string(b)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ct, _, _ := h.ContentType()
			n, _ := io.Copy(io.Discard, p.Body)
			out.Attachments = append(out.Attachments, Attachment{
				Filename:    filename,
				ContentType: ct,
				Size:        int(n),
			})
		}
	}
	return nil
}
