package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/anthropics/tgmod/internal/biz/domain"
)

func newTestLedger() (*LedgerUsecase, *Metrics, *mockStore) {
	store := newMockStore(domain.Config{ForwardTargetID: "-100999"})
	metrics := NewMetrics()
	return NewLedgerUsecase(store, metrics), metrics, store
}

func pendingReq(id string, createdAt time.Time) *domain.PendingRequest {
	return &domain.PendingRequest{
		ID:           id,
		SourceChatID: -100123,
		MessageID:    1,
		FromID:       42,
		FromName:     "tester",
		CreatedAt:    createdAt,
	}
}

func TestLedger_SubmitThenGet(t *testing.T) {
	ledger, metrics, _ := newTestLedger()
	ctx := context.Background()

	req := pendingReq("r1", time.Now())
	if err := ledger.Submit(ctx, req); err != nil {
		t.Fatal(err)
	}

	got, err := ledger.Get(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "r1" {
		t.Fatalf("Get = %+v, want r1", got)
	}
	if snap := metrics.Snapshot(); snap.Pending != 1 {
		t.Errorf("pending = %d, want 1", snap.Pending)
	}
}

func TestLedger_ApproveRemovesAndCounts(t *testing.T) {
	ledger, metrics, _ := newTestLedger()
	ctx := context.Background()

	if err := ledger.Submit(ctx, pendingReq("r1", time.Now())); err != nil {
		t.Fatal(err)
	}

	req, err := ledger.Resolve(ctx, "r1", true)
	if err != nil {
		t.Fatal(err)
	}
	if req == nil {
		t.Fatal("expected the resolved request back")
	}

	if got, _ := ledger.Get(ctx, "r1"); got != nil {
		t.Errorf("request still retrievable after approve: %+v", got)
	}
	snap := metrics.Snapshot()
	if snap.Pending != 0 || snap.Approved != 1 || snap.Rejected != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestLedger_RejectCounts(t *testing.T) {
	ledger, metrics, _ := newTestLedger()
	ctx := context.Background()

	if err := ledger.Submit(ctx, pendingReq("r1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Resolve(ctx, "r1", false); err != nil {
		t.Fatal(err)
	}

	snap := metrics.Snapshot()
	if snap.Pending != 0 || snap.Rejected != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestLedger_DoubleResolutionHarmless(t *testing.T) {
	ledger, metrics, _ := newTestLedger()
	ctx := context.Background()

	if err := ledger.Submit(ctx, pendingReq("r1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Resolve(ctx, "r1", true); err != nil {
		t.Fatal(err)
	}

	req, err := ledger.Resolve(ctx, "r1", true)
	if err != nil {
		t.Fatalf("double resolution errored: %v", err)
	}
	if req != nil {
		t.Errorf("double resolution returned %+v, want nil", req)
	}
	if snap := metrics.Snapshot(); snap.Approved != 1 {
		t.Errorf("approved counted twice: %+v", snap)
	}
}

func TestLedger_TakeClaimsOnce(t *testing.T) {
	ledger, metrics, _ := newTestLedger()
	ctx := context.Background()

	if err := ledger.Submit(ctx, pendingReq("r1", time.Now())); err != nil {
		t.Fatal(err)
	}

	req, err := ledger.Take(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if req == nil || req.ID != "r1" {
		t.Fatalf("Take = %+v, want r1", req)
	}
	// Claimed but not concluded: no outcome counted yet.
	snap := metrics.Snapshot()
	if snap.Approved != 0 || snap.Rejected != 0 {
		t.Errorf("snapshot = %+v", snap)
	}

	again, err := ledger.Take(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if again != nil {
		t.Errorf("second Take returned %+v, want nil", again)
	}
}

func TestLedger_RestoreUndoesTake(t *testing.T) {
	ledger, metrics, _ := newTestLedger()
	ctx := context.Background()

	if err := ledger.Submit(ctx, pendingReq("r1", time.Now())); err != nil {
		t.Fatal(err)
	}
	req, err := ledger.Take(ctx, "r1")
	if err != nil || req == nil {
		t.Fatalf("Take: req=%+v err=%v", req, err)
	}

	if err := ledger.Restore(ctx, req); err != nil {
		t.Fatal(err)
	}
	if got, _ := ledger.Get(ctx, "r1"); got == nil {
		t.Fatal("restored request not retrievable")
	}
	// Submit counted once; Take/Restore leave the pending gauge alone.
	if snap := metrics.Snapshot(); snap.Pending != 1 {
		t.Errorf("pending = %d, want 1", snap.Pending)
	}
}

func TestLedger_ResolveUnknownID(t *testing.T) {
	ledger, _, _ := newTestLedger()

	req, err := ledger.Resolve(context.Background(), "missing", true)
	if err != nil {
		t.Fatalf("unknown id errored: %v", err)
	}
	if req != nil {
		t.Errorf("got %+v, want nil", req)
	}
}

func TestLedger_ExpireBefore(t *testing.T) {
	ledger, metrics, _ := newTestLedger()
	ctx := context.Background()
	now := time.Now()

	if err := ledger.Submit(ctx, pendingReq("old", now.Add(-80*time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Submit(ctx, pendingReq("fresh", now)); err != nil {
		t.Fatal(err)
	}

	reaped, err := ledger.ExpireBefore(ctx, now.Add(-72*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if reaped != 1 {
		t.Fatalf("reaped = %d, want 1", reaped)
	}
	if got, _ := ledger.Get(ctx, "old"); got != nil {
		t.Error("expired request still present")
	}
	if got, _ := ledger.Get(ctx, "fresh"); got == nil {
		t.Error("fresh request was reaped")
	}
	if snap := metrics.Snapshot(); snap.Pending != 1 {
		t.Errorf("pending = %d, want 1", snap.Pending)
	}
}
