package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/tgmod/internal/biz/domain"
	"github.com/anthropics/tgmod/internal/biz/repo"
)

// LedgerUsecase drives the pending-request lifecycle: submitted requests
// wait in the store until an operator resolves them. Resolving an unknown
// or already-resolved id is a harmless "not found", never an error;
// concurrent double-resolution is expected.
type LedgerUsecase struct {
	store   repo.Store
	metrics *Metrics
}

// NewLedgerUsecase creates the ledger.
func NewLedgerUsecase(store repo.Store, metrics *Metrics) *LedgerUsecase {
	return &LedgerUsecase{store: store, metrics: metrics}
}

// Submit stores a new pending request and counts it.
func (uc *LedgerUsecase) Submit(ctx context.Context, req *domain.PendingRequest) error {
	if err := uc.store.SetPending(ctx, req); err != nil {
		return fmt.Errorf("store pending: %w", err)
	}
	uc.metrics.AddPending()
	return nil
}

// Get returns a pending request, or nil when unknown.
func (uc *LedgerUsecase) Get(ctx context.Context, id string) (*domain.PendingRequest, error) {
	return uc.store.GetPending(ctx, id)
}

// Resolve removes a resolved request and adjusts the counters. Returns the
// request, or nil when it was already gone. The store delete is the claim:
// of two concurrent resolvers only one gets the request back.
func (uc *LedgerUsecase) Resolve(ctx context.Context, id string, approved bool) (*domain.PendingRequest, error) {
	req, err := uc.Take(ctx, id)
	if err != nil || req == nil {
		return nil, err
	}
	uc.metrics.ResolvePending(approved)
	return req, nil
}

// Take atomically claims a pending request, removing it from the store
// without touching the outcome counters. Returns nil when another caller
// claimed it first. Pair with Restore when the follow-up work fails.
func (uc *LedgerUsecase) Take(ctx context.Context, id string) (*domain.PendingRequest, error) {
	req, err := uc.store.GetPending(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get pending: %w", err)
	}
	if req == nil {
		return nil, nil
	}
	claimed, err := uc.store.DelPending(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete pending: %w", err)
	}
	if !claimed {
		return nil, nil
	}
	return req, nil
}

// Restore puts a claimed request back, undoing Take.
func (uc *LedgerUsecase) Restore(ctx context.Context, req *domain.PendingRequest) error {
	if err := uc.store.SetPending(ctx, req); err != nil {
		return fmt.Errorf("restore pending: %w", err)
	}
	return nil
}

// Conclude counts the outcome of a previously claimed request.
func (uc *LedgerUsecase) Conclude(approved bool) {
	uc.metrics.ResolvePending(approved)
}

// ExpireBefore reaps requests created before the cutoff and fixes the
// pending counter. Returns how many were removed.
func (uc *LedgerUsecase) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	pending, err := uc.store.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	reaped := 0
	for _, req := range pending {
		if req.CreatedAt.Before(cutoff) {
			removed, err := uc.store.DelPending(ctx, req.ID)
			if err != nil {
				return reaped, fmt.Errorf("delete pending %s: %w", req.ID, err)
			}
			if removed {
				reaped++
			}
		}
	}
	if reaped > 0 {
		uc.metrics.DropPending(reaped)
	}
	return reaped, nil
}
