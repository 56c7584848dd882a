package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelime/bluesender/internal/domain"
)

type fakeQueue struct {
	mu      sync.Mutex
	pending []domain.OutboundEmail
	sent    []string
	failed  map[string]string
}

func newFakeQueue(pending ...domain.OutboundEmail) *fakeQueue {
	return &fakeQueue{pending: pending, failed: map[string]string{}}
}

func (f *fakeQueue) ClaimBatch(ctx context.Context, limit int) ([]domain.OutboundEmail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := limit
	if n > len(f.pending) {
		n = len(f.pending)
	}
	batch := f.pending[:n]
	f.pending = f.pending[n:]
	out := make([]domain.OutboundEmail, n)
	copy(out, batch)
	for i := range out {
		out[i].Status = domain.QueueSending
	}
	return out, nil
}

func (f *fakeQueue) MarkSent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeQueue) MarkFailed(ctx context.Context, id, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = errMsg
	return nil
}

type fakeMailboxes struct {
	boxes map[string]*domain.Mailbox
}

func (f *fakeMailboxes) Get(ctx context.Context, id string) (*domain.Mailbox, error) {
	m, ok := f.boxes[id]
	if !ok {
		return nil, errors.New("mailbox not found")
	}
	return m, nil
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []string
	failTo map[string]error
}

func (f *fakeSender) Send(ctx context.Context, mbox *domain.Mailbox, toEmail, subject, htmlBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTo[toEmail]; ok {
		return err
	}
	f.sent = append(f.sent, toEmail)
	return nil
}

func testWorker(q *fakeQueue, m *fakeMailboxes, s *fakeSender) *SendWorker {
	w := NewSendWorker(q, m, s, "", 5, time.Minute)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w
}

func TestDrainSendsClaimedBatch(t *testing.T) {
	queue := newFakeQueue(
		domain.OutboundEmail{ID: "e1", MailboxID: "mbox-1", ToEmail: "a@example.com", Subject: "s"},
		domain.OutboundEmail{ID: "e2", MailboxID: "mbox-1", ToEmail: "b@example.com", Subject: "s"},
	)
	boxes := &fakeMailboxes{boxes: map[string]*domain.Mailbox{
		"mbox-1": {ID: "mbox-1", Email: "sender@bluelime.pro"},
	}}
	sender := &fakeSender{}

	w := testWorker(queue, boxes, sender)
	w.drain()

	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, sender.sent)
	assert.ElementsMatch(t, []string{"e1", "e2"}, queue.sent)
	assert.Empty(t, queue.failed)

	stats := w.Stats()
	assert.Equal(t, int64(2), stats.Claimed)
	assert.Equal(t, int64(2), stats.Sent)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestDrainMissingMailboxFailsRow(t *testing.T) {
	queue := newFakeQueue(
		domain.OutboundEmail{ID: "e1", MailboxID: "gone", ToEmail: "a@example.com"},
	)
	sender := &fakeSender{}

	w := testWorker(queue, &fakeMailboxes{boxes: map[string]*domain.Mailbox{}}, sender)
	w.drain()

	assert.Empty(t, sender.sent)
	require.Contains(t, queue.failed, "e1")
	assert.Contains(t, queue.failed["e1"], "missing sender mailbox")
}

func TestDrainIsolatesRowFailures(t *testing.T) {
	queue := newFakeQueue(
		domain.OutboundEmail{ID: "e1", MailboxID: "mbox-1", ToEmail: "bad@example.com"},
		domain.OutboundEmail{ID: "e2", MailboxID: "mbox-1", ToEmail: "good@example.com"},
	)
	boxes := &fakeMailboxes{boxes: map[string]*domain.Mailbox{
		"mbox-1": {ID: "mbox-1", Email: "sender@bluelime.pro"},
	}}
	sender := &fakeSender{failTo: map[string]error{
		"bad@example.com": errors.New("550 mailbox unavailable"),
	}}

	w := testWorker(queue, boxes, sender)
	w.drain()

	// The failed row records its error; the rest of the batch still sends.
	assert.Equal(t, []string{"good@example.com"}, sender.sent)
	assert.Equal(t, []string{"e2"}, queue.sent)
	assert.Contains(t, queue.failed["e1"], "550")

	stats := w.Stats()
	assert.Equal(t, int64(1), stats.Sent)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestDrainRecordsDialErrorVerbatim(t *testing.T) {
	queue := newFakeQueue(
		domain.OutboundEmail{ID: "e1", MailboxID: "mbox-1", ToEmail: "a@example.com"},
		domain.OutboundEmail{ID: "e2", MailboxID: "mbox-1", ToEmail: "b@example.com"},
	)
	boxes := &fakeMailboxes{boxes: map[string]*domain.Mailbox{
		"mbox-1": {ID: "mbox-1", Email: "sender@bluelime.pro", SMTPHost: "mail.example.com", SMTPPort: 587},
	}}
	sender := &fakeSender{failTo: map[string]error{
		"a@example.com": errors.New("dial tcp 10.0.0.5:587: connect: connection refused"),
	}}

	w := testWorker(queue, boxes, sender)
	w.drain()

	assert.Contains(t, queue.failed["e1"], "connection refused")
	assert.Equal(t, []string{"e2"}, queue.sent)
}

func TestDrainKeepsClaimingFullBatches(t *testing.T) {
	var pending []domain.OutboundEmail
	for i := 0; i < 12; i++ {
		pending = append(pending, domain.OutboundEmail{
			ID: string(rune('a' + i)), MailboxID: "mbox-1", ToEmail: "x@example.com",
		})
	}
	queue := newFakeQueue(pending...)
	boxes := &fakeMailboxes{boxes: map[string]*domain.Mailbox{
		"mbox-1": {ID: "mbox-1", Email: "sender@bluelime.pro"},
	}}
	sender := &fakeSender{}

	w := testWorker(queue, boxes, sender)
	w.drain()

	assert.Equal(t, int64(12), w.Stats().Sent)
	assert.Empty(t, queue.pending)
}

func TestStartRunsStartupSweep(t *testing.T) {
	queue := newFakeQueue(
		domain.OutboundEmail{ID: "e1", MailboxID: "mbox-1", ToEmail: "a@example.com"},
	)
	boxes := &fakeMailboxes{boxes: map[string]*domain.Mailbox{
		"mbox-1": {ID: "mbox-1", Email: "sender@bluelime.pro"},
	}}
	sender := &fakeSender{}

	w := NewSendWorker(queue, boxes, sender, "", 5, time.Hour)
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		return w.Stats().Sent == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	w := NewSendWorker(newFakeQueue(), &fakeMailboxes{}, &fakeSender{}, "", 5, time.Hour)
	w.Start()
	w.Stop()
	w.Stop()
	w.Start()
	w.Stop()
}
