// Package worker runs the background send loop that drains the outbound
// email queue.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"

	"github.com/bluelime/bluesender/internal/domain"
	"github.com/bluelime/bluesender/internal/pkg/logger"
)

// NotifyChannel is the pg_notify channel fired by the insert trigger on
// the outbound queue table. A notification wakes the worker immediately
// instead of waiting for the next poll tick.
const NotifyChannel = "outbound_email_inserted"

// QueueStore is the queue access the worker needs. ClaimBatch must flip
// rows pending -> sending atomically so concurrent workers never claim
// the same row twice.
type QueueStore interface {
	ClaimBatch(ctx context.Context, limit int) ([]domain.OutboundEmail, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
}

// MailboxStore resolves the sender mailbox for a claimed row.
type MailboxStore interface {
	Get(ctx context.Context, id string) (*domain.Mailbox, error)
}

// Sender delivers one message over SMTP.
type Sender interface {
	Send(ctx context.Context, mbox *domain.Mailbox, toEmail, subject, htmlBody string) error
}

// SendStats are cumulative counters for one worker lifetime.
type SendStats struct {
	Claimed int64 `json:"claimed"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
}

// SendWorker drains the outbound queue in batches. It wakes on pg_notify
// events when a database connection string is configured and always keeps
// a fallback poll ticker, so a missed notification delays a send by at
// most one poll interval.
type SendWorker struct {
	queue     QueueStore
	mailboxes MailboxStore
	sender    Sender

	connStr      string
	batchSize    int
	pollInterval time.Duration

	claimed int64
	sent    int64
	failed  int64

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	wake    chan struct{}
}

// NewSendWorker creates a send worker. connStr may be empty, which
// disables the pg_notify listener and leaves polling only.
func NewSendWorker(queue QueueStore, mailboxes MailboxStore, sender Sender, connStr string, batchSize int, pollInterval time.Duration) *SendWorker {
	if batchSize <= 0 {
		batchSize = 5
	}
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &SendWorker{
		queue:        queue,
		mailboxes:    mailboxes,
		sender:       sender,
		connStr:      connStr,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		wake:         make(chan struct{}, 1),
	}
}

// Start launches the worker loop. Safe to call once; subsequent calls
// while running are no-ops.
func (w *SendWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())

	if w.connStr != "" {
		w.wg.Add(1)
		go w.listenLoop()
	}

	w.wg.Add(1)
	go w.run()
	logger.Info("send worker started",
		"batch_size", w.batchSize,
		"poll_interval", w.pollInterval.String(),
		"notify", w.connStr != "")
}

// Stop cancels the loops and waits for in-flight sends to finish.
func (w *SendWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	logger.Info("send worker stopped",
		"claimed", atomic.LoadInt64(&w.claimed),
		"sent", atomic.LoadInt64(&w.sent),
		"failed", atomic.LoadInt64(&w.failed))
}

// Stats returns a snapshot of the worker counters.
func (w *SendWorker) Stats() SendStats {
	return SendStats{
		Claimed: atomic.LoadInt64(&w.claimed),
		Sent:    atomic.LoadInt64(&w.sent),
		Failed:  atomic.LoadInt64(&w.failed),
	}
}

func (w *SendWorker) run() {
	defer w.wg.Done()

	// Startup sweep picks up rows queued while no worker was running.
	w.drain()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.drain()
		case <-w.wake:
			w.drain()
		}
	}
}

// listenLoop relays pg_notify events into the wake channel. The listener
// reconnects on its own; a dropped notification only costs poll latency.
func (w *SendWorker) listenLoop() {
	defer w.wg.Done()

	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("queue listener event", "error", err.Error())
		}
	}
	listener := pq.NewListener(w.connStr, 10*time.Second, time.Minute, reportProblem)
	defer listener.Close()

	if err := listener.Listen(NotifyChannel); err != nil {
		logger.Error("queue listener failed, polling only", "channel", NotifyChannel, "error", err.Error())
		return
	}
	logger.Info("queue listener active", "channel", NotifyChannel)

	for {
		select {
		case <-w.ctx.Done():
			return
		case n := <-listener.Notify:
			if n != nil {
				select {
				case w.wake <- struct{}{}:
				default:
				}
			}
		case <-time.After(90 * time.Second):
			go listener.Ping()
		}
	}
}

// drain claims and processes batches until the queue has no pending rows
// or the worker is stopped.
func (w *SendWorker) drain() {
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		batch, err := w.queue.ClaimBatch(w.ctx, w.batchSize)
		if err != nil {
			logger.Error("queue claim failed", "error", err.Error())
			return
		}
		if len(batch) == 0 {
			return
		}
		atomic.AddInt64(&w.claimed, int64(len(batch)))

		for i := range batch {
			w.process(&batch[i])
		}
		if len(batch) < w.batchSize {
			return
		}
	}
}

// process delivers one claimed row and records the outcome. A failure on
// one row never stops the rest of the batch.
func (w *SendWorker) process(e *domain.OutboundEmail) {
	mbox, err := w.mailboxes.Get(w.ctx, e.MailboxID)
	if err != nil {
		w.fail(e, fmt.Sprintf("missing sender mailbox: %v", err))
		return
	}

	if err := w.sender.Send(w.ctx, mbox, e.ToEmail, e.Subject, e.BodyHTML); err != nil {
		w.fail(e, err.Error())
		return
	}

	if err := w.queue.MarkSent(w.ctx, e.ID); err != nil {
		logger.Error("mark sent failed", "email_id", e.ID, "error", err.Error())
		return
	}
	atomic.AddInt64(&w.sent, 1)
	logger.Info("email sent", "email_id", e.ID, "to", logger.RedactEmail(e.ToEmail))
}

func (w *SendWorker) fail(e *domain.OutboundEmail, reason string) {
	atomic.AddInt64(&w.failed, 1)
	logger.Warn("email send failed", "email_id", e.ID, "to", logger.RedactEmail(e.ToEmail), "reason", reason)
	if err := w.queue.MarkFailed(w.ctx, e.ID, reason); err != nil {
		logger.Error("mark failed errored", "email_id", e.ID, "error", err.Error())
	}
}
