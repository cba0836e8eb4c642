package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/tgmod/internal/biz/usecase"
)

// Janitor runs the background maintenance loops: expiring stale pending
// requests and flushing the metrics snapshot into the config document.
type Janitor struct {
	state   *usecase.StateUsecase
	ledger  *usecase.LedgerUsecase
	metrics *usecase.Metrics

	pendingTTL time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates the maintenance runner.
func NewJanitor(
	state *usecase.StateUsecase,
	ledger *usecase.LedgerUsecase,
	metrics *usecase.Metrics,
	pendingTTL time.Duration,
) *Janitor {
	return &Janitor{
		state:      state,
		ledger:     ledger,
		metrics:    metrics,
		pendingTTL: pendingTTL,
	}
}

// Start launches the loops.
func (j *Janitor) Start(ctx context.Context) {
	j.ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(2)
	go j.expiryLoop()
	go j.flushLoop()

	fmt.Printf("[Janitor] Started with pending TTL %v\n", j.pendingTTL)
}

// Stop stops the loops and waits for them to exit.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
	fmt.Println("[Janitor] Stopped")
}

// expiryLoop reaps expired pending requests every hour.
func (j *Janitor) expiryLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.expire()
		}
	}
}

// flushLoop persists the metrics snapshot every 5 minutes.
func (j *Janitor) flushLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.flush()
		}
	}
}

func (j *Janitor) expire() {
	ctx := context.Background()

	reaped, err := j.ledger.ExpireBefore(ctx, time.Now().Add(-j.pendingTTL))
	if err != nil {
		fmt.Printf("[Janitor] Expiry error: %v\n", err)
		return
	}
	if reaped > 0 {
		fmt.Printf("[Janitor] Expired %d stale pending requests\n", reaped)
		j.flush()
	}
}

func (j *Janitor) flush() {
	if err := j.state.FlushMetrics(context.Background(), j.metrics.Snapshot()); err != nil {
		fmt.Printf("[Janitor] Failed to flush metrics: %v\n", err)
	}
}
