package validation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bluelime/bluesender/internal/domain"
	"github.com/bluelime/bluesender/internal/pkg/logger"
	"github.com/bluelime/bluesender/internal/truelist"
)

// DefaultReconcileInterval is how often the reconciler re-polls the
// provider for in-flight lists.
const DefaultReconcileInterval = 5 * time.Second

// Locker guards a reconcile pass so only one instance runs it at a time.
// distlock.RedisLock satisfies it; a nil Locker means single-instance
// deployment and no locking.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Reconciler is the durability backstop for provider webhooks: it
// periodically re-polls the provider for every list stuck in processing
// and ingests results when they arrive. Webhooks may be dropped or
// delayed; this loop guarantees the "batch finished" signal lands
// at least once.
type Reconciler struct {
	lists    ListStore
	provider Provider
	locker   Locker
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	running   bool
	lastRunAt time.Time
}

// NewReconciler creates a reconciler. locker may be nil.
func NewReconciler(lists ListStore, provider Provider, locker Locker, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		lists:    lists,
		provider: provider,
		locker:   locker,
		interval: interval,
	}
}

// Start begins the periodic reconcile loop. The loop is process-wide and
// independent of any client connection; per-list work stops naturally
// once the list leaves processing.
func (r *Reconciler) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		logger.Info("validation reconciler started", "interval", r.interval.String())

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				logger.Info("validation reconciler stopped")
				return
			case <-ticker.C:
				if err := r.ReconcileNow(r.ctx); err != nil {
					logger.Error("reconcile pass failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}

// LastRunAt returns when the last pass started (health endpoint).
func (r *Reconciler) LastRunAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRunAt
}

// ReconcileNow runs one reconcile pass immediately. Also exposed through
// the API for on-demand reconciliation. Safe to call concurrently with
// the loop: ingestion is transactional and idempotent.
func (r *Reconciler) ReconcileNow(ctx context.Context) error {
	r.mu.Lock()
	r.lastRunAt = time.Now()
	r.mu.Unlock()

	if r.locker != nil {
		ok, err := r.locker.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if !ok {
			// another instance owns this pass
			return nil
		}
		defer r.locker.Release(ctx)
	}

	inflight, err := r.lists.ByStatus(ctx, domain.ListProcessing)
	if err != nil {
		return fmt.Errorf("load processing lists: %w", err)
	}

	for _, list := range inflight {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.reconcileList(ctx, list); err != nil {
			// One stuck list must not starve the others.
			logger.Error("reconcile list failed", "list_id", list.ID, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) reconcileList(ctx context.Context, list domain.ValidationList) error {
	status, err := r.provider.BatchStatus(ctx, list.ID)
	if err != nil {
		return fmt.Errorf("poll provider: %w", err)
	}

	switch status.State {
	case truelist.BatchProcessing:
		return nil
	case truelist.BatchFailed:
		logger.Warn("provider reported batch failure",
			"list_id", list.ID, "message", status.Message)
		return r.lists.MarkFailed(ctx, list.ID)
	case truelist.BatchCompleted:
		results := make([]domain.ValidationResult, 0, len(status.Results))
		for _, res := range status.Results {
			results = append(results, toDomainResult(list.ID, res))
		}
		if err := r.lists.CompleteWithResults(ctx, list.ID, results); err != nil {
			return fmt.Errorf("ingest results: %w", err)
		}
		logger.Info("validation list completed",
			"list_id", list.ID, "results", len(results))
		return nil
	default:
		return fmt.Errorf("unknown provider batch state %q", status.State)
	}
}

// toDomainResult maps one provider verdict onto the stored result row.
func toDomainResult(listID string, res truelist.EmailResult) domain.ValidationResult {
	class := truelist.Classify(res.State)
	return domain.ValidationResult{
		ListID:       listID,
		Email:        res.Address,
		Result:       class,
		FormatValid:  res.FormatValid,
		DomainValid:  res.DomainValid,
		SMTPValid:    res.SMTPValid,
		CatchAll:     res.CatchAll,
		Disposable:   res.Disposable,
		FreeEmail:    res.FreeEmail,
		Reason:       res.SubState,
		Deliverable:  class == domain.ResultDeliverable,
		FullResponse: res.Raw,
	}
}
