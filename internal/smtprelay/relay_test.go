package smtprelay

import (
	"context"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelime/bluesender/internal/domain"
)

func TestBuildMessage(t *testing.T) {
	mbox := &domain.Mailbox{
		Name:     "Sales Team",
		Email:    "sales@bluelime.pro",
		SMTPHost: "mail.bluelime.pro",
	}
	msg := string(buildMessage(mbox, "dest@example.com", "Welcome aboard", "<p>Hello</p>"))

	assert.Contains(t, msg, "From: \"Sales Team\" <sales@bluelime.pro>\r\n")
	assert.Contains(t, msg, "To: dest@example.com\r\n")
	assert.Contains(t, msg, "Subject: Welcome aboard\r\n")
	assert.Contains(t, msg, "MIME-Version: 1.0\r\n")
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.Contains(t, msg, "@mail.bluelime.pro>")
	assert.True(t, strings.HasSuffix(msg, "<p>Hello</p>\r\n"))

	// Headers and body are separated by exactly one blank line.
	parts := strings.SplitN(msg, "\r\n\r\n", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "<p>Hello</p>\r\n", parts[1])
}

func TestRelayPlainAuth(t *testing.T) {
	a := &relayPlainAuth{user: "sales@bluelime.pro", pass: "secret"}

	// PLAIN must be offered even before a TLS upgrade completes.
	proto, resp, err := a.Start(&smtp.ServerInfo{Name: "mail.bluelime.pro", TLS: false})
	require.NoError(t, err)
	assert.Equal(t, "PLAIN", proto)
	assert.Equal(t, []byte("\x00sales@bluelime.pro\x00secret"), resp)

	next, err := a.Next([]byte("ignored"), true)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNewDefaultsTimeout(t *testing.T) {
	r := New(false, 0)
	assert.Greater(t, int64(r.timeout), int64(0))
}

func TestSendTimesOutOnStalledServer(t *testing.T) {
	// Accepts connections but never sends a greeting.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	mbox := &domain.Mailbox{
		Email:    "sales@bluelime.pro",
		SMTPHost: host,
		SMTPPort: port,
	}

	r := New(false, 200*time.Millisecond)
	start := time.Now()
	err = r.Send(context.Background(), mbox, "dest@example.com", "hi", "<p>hi</p>")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
