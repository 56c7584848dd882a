package webmail

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAddresses(t *testing.T) {
	addrs := []*imap.Address{
		{PersonalName: "Ana Silva", MailboxName: "ana", HostName: "example.com"},
		{MailboxName: "ops", HostName: "example.com"},
	}
	assert.Equal(t, "Ana Silva <ana@example.com>, ops@example.com", formatAddresses(addrs))
	assert.Equal(t, "", formatAddresses(nil))
}

func TestSummarize(t *testing.T) {
	msg := &imap.Message{
		Uid:   42,
		Size:  1234,
		Flags: []string{imap.SeenFlag, imap.AnsweredFlag},
		Envelope: &imap.Envelope{
			Subject: "Weekly report",
			Date:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			From:    []*imap.Address{{MailboxName: "ana", HostName: "example.com"}},
			To:      []*imap.Address{{MailboxName: "ops", HostName: "example.com"}},
		},
	}

	s := summarize(msg)
	assert.Equal(t, uint32(42), s.UID)
	assert.Equal(t, "Weekly report", s.Subject)
	assert.Equal(t, "ana@example.com", s.From)
	assert.Equal(t, "ops@example.com", s.To)
	assert.True(t, s.Seen)
	assert.Equal(t, uint32(1234), s.Size)
}

func TestSummarizeNoEnvelope(t *testing.T) {
	s := summarize(&imap.Message{Uid: 7})
	assert.Equal(t, uint32(7), s.UID)
	assert.False(t, s.Seen)
	assert.Empty(t, s.Subject)
}

const multipartMessage = "From: Ana <ana@example.com>\r\n" +
	"To: ops@example.com\r\n" +
	"Subject: report\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"plain body\r\n" +
	"--outer\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>html body</p>\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=report.pdf\r\n" +
	"\r\n" +
	"%PDF-fake-content\r\n" +
	"--outer--\r\n"

func TestParseBodyMultipart(t *testing.T) {
	var out Message
	require.NoError(t, parseBody(strings.NewReader(multipartMessage), &out))

	assert.Equal(t, "plain body", strings.TrimSpace(out.Text))
	assert.Equal(t, "<p>html body</p>", strings.TrimSpace(out.HTML))
	require.Len(t, out.Attachments, 1)
	assert.Equal(t, "report.pdf", out.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", out.Attachments[0].ContentType)
	assert.Greater(t, out.Attachments[0].Size, 0)
}

func TestParseBodyPlainOnly(t *testing.T) {
	raw := "From: ana@example.com\r\n" +
		"To: ops@example.com\r\n" +
		"Subject: hi\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"hello\r\n"

	var out Message
	require.NoError(t, parseBody(strings.NewReader(raw), &out))
	assert.Equal(t, "hello", strings.TrimSpace(out.Text))
	assert.Empty(t, out.HTML)
	assert.Empty(t, out.Attachments)
}
