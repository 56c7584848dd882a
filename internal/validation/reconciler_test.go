package validation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelime/bluesender/internal/domain"
	"github.com/bluelime/bluesender/internal/truelist"
)

type fakeLocker struct {
	acquired bool
	held     bool
	releases int
}

func (f *fakeLocker) Acquire(ctx context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLocker) Release(ctx context.Context) error {
	f.releases++
	return nil
}

func TestReconcileIngestsCompletedBatch(t *testing.T) {
	store := newFakeListStore()
	store.lists["list-1"] = &domain.ValidationList{ID: "list-1", Status: domain.ListProcessing, TotalEmails: 2}

	raw := json.RawMessage(`{"address":"a@example.com","state":"ok"}`)
	provider := &fakeProvider{statuses: map[string]*truelist.BatchStatus{
		"list-1": {
			ID:    "batch-1",
			State: truelist.BatchCompleted,
			Results: []truelist.EmailResult{
				{Address: "a@example.com", State: "ok", SubState: "email_ok", SMTPValid: true, Raw: raw},
				{Address: "b@example.com", State: "risky", SubState: "accept_all", CatchAll: true},
			},
		},
	}}

	rec := NewReconciler(store, provider, nil, time.Second)
	require.NoError(t, rec.ReconcileNow(context.Background()))

	results := store.completed["list-1"]
	require.Len(t, results, 2)
	assert.Equal(t, domain.ResultDeliverable, results[0].Result)
	assert.True(t, results[0].Deliverable)
	assert.Equal(t, "email_ok", results[0].Reason)
	assert.Equal(t, raw, results[0].FullResponse)
	assert.Equal(t, domain.ResultRisky, results[1].Result)
	assert.False(t, results[1].Deliverable)
	assert.Equal(t, domain.ListCompleted, store.lists["list-1"].Status)
}

func TestReconcileMarksFailedBatch(t *testing.T) {
	store := newFakeListStore()
	store.lists["list-1"] = &domain.ValidationList{ID: "list-1", Status: domain.ListProcessing}

	provider := &fakeProvider{statuses: map[string]*truelist.BatchStatus{
		"list-1": {State: truelist.BatchFailed, Message: "provider gave up"},
	}}

	rec := NewReconciler(store, provider, nil, time.Second)
	require.NoError(t, rec.ReconcileNow(context.Background()))

	assert.Equal(t, []string{"list-1"}, store.failed)
	assert.Empty(t, store.completed)
}

func TestReconcileSkipsInFlightBatch(t *testing.T) {
	store := newFakeListStore()
	store.lists["list-1"] = &domain.ValidationList{ID: "list-1", Status: domain.ListProcessing}

	provider := &fakeProvider{statuses: map[string]*truelist.BatchStatus{
		"list-1": {State: truelist.BatchProcessing},
	}}

	rec := NewReconciler(store, provider, nil, time.Second)
	require.NoError(t, rec.ReconcileNow(context.Background()))

	assert.Empty(t, store.completed)
	assert.Empty(t, store.failed)
	assert.Equal(t, domain.ListProcessing, store.lists["list-1"].Status)
}

func TestReconcileContinuesPastSingleListFailure(t *testing.T) {
	store := newFakeListStore()
	store.lists["bad"] = &domain.ValidationList{ID: "bad", Status: domain.ListProcessing}
	store.lists["good"] = &domain.ValidationList{ID: "good", Status: domain.ListProcessing}

	// "bad" has no provider batch, which errors; "good" must still land.
	provider := &fakeProvider{statuses: map[string]*truelist.BatchStatus{
		"good": {State: truelist.BatchCompleted, Results: []truelist.EmailResult{
			{Address: "a@example.com", State: "ok"},
		}},
	}}

	rec := NewReconciler(store, provider, nil, time.Second)
	require.NoError(t, rec.ReconcileNow(context.Background()))

	assert.Contains(t, store.completed, "good")
}

func TestReconcileSkipsWhenLockHeld(t *testing.T) {
	store := newFakeListStore()
	store.lists["list-1"] = &domain.ValidationList{ID: "list-1", Status: domain.ListProcessing}
	provider := &fakeProvider{statusErr: errors.New("must not be called")}
	locker := &fakeLocker{held: true}

	rec := NewReconciler(store, provider, locker, time.Second)
	require.NoError(t, rec.ReconcileNow(context.Background()))
	assert.Empty(t, store.completed)
}

func TestReconcileReleasesLock(t *testing.T) {
	store := newFakeListStore()
	locker := &fakeLocker{}

	rec := NewReconciler(store, &fakeProvider{}, locker, time.Second)
	require.NoError(t, rec.ReconcileNow(context.Background()))

	assert.True(t, locker.acquired)
	assert.Equal(t, 1, locker.releases)
}

func TestReconcileNowRecordsLastRun(t *testing.T) {
	rec := NewReconciler(newFakeListStore(), &fakeProvider{}, nil, time.Second)
	assert.True(t, rec.LastRunAt().IsZero())

	require.NoError(t, rec.ReconcileNow(context.Background()))
	assert.False(t, rec.LastRunAt().IsZero())
}

func TestReconcilerStartStop(t *testing.T) {
	store := newFakeListStore()
	rec := NewReconciler(store, &fakeProvider{}, nil, 10*time.Millisecond)

	rec.Start()
	time.Sleep(35 * time.Millisecond)
	rec.Stop()

	assert.False(t, rec.LastRunAt().IsZero())
}
