package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/tgmod/internal/biz/domain"
	"github.com/anthropics/tgmod/internal/biz/repo"
	"github.com/anthropics/tgmod/internal/biz/usecase"
)

// ReviewService executes review verdicts: approved requests are forwarded
// to the target chat, rejected ones are discarded. A forward that keeps
// failing escalates to every admin and leaves the request pending so it
// can be retried.
type ReviewService struct {
	state    *usecase.StateUsecase
	ledger   *usecase.LedgerUsecase
	metrics  *usecase.Metrics
	outbound repo.Outbound

	retries int
	backoff time.Duration
}

// NewReviewService creates the review executor.
func NewReviewService(
	state *usecase.StateUsecase,
	ledger *usecase.LedgerUsecase,
	metrics *usecase.Metrics,
	outbound repo.Outbound,
) *ReviewService {
	return &ReviewService{
		state:    state,
		ledger:   ledger,
		metrics:  metrics,
		outbound: outbound,
		retries:  3,
		backoff:  500 * time.Millisecond,
	}
}

// Approve forwards the pending request to the target chat and removes it.
// Returns the resolved request, or nil when the id is unknown or already
// handled. The request is claimed from the ledger BEFORE forwarding so
// two admins pressing approve at once cannot both forward; on forward
// failure the claim is undone and the request stays pending.
func (s *ReviewService) Approve(ctx context.Context, id, approver string) (*domain.PendingRequest, error) {
	target, err := s.forwardTarget()
	if err != nil {
		return nil, err
	}

	req, err := s.ledger.Take(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	if req == nil {
		return nil, nil
	}

	if err := s.forwardWithRetry(ctx, target, req.SourceChatID, req.MessageID); err != nil {
		if rerr := s.ledger.Restore(ctx, req); rerr != nil {
			fmt.Printf("[Review] Failed to restore %s after forward failure: %v\n", req.ID, rerr)
		}
		s.escalate(ctx, req, err)
		return nil, fmt.Errorf("forward approved message: %w", err)
	}
	s.metrics.CountForward()
	s.ledger.Conclude(true)
	s.annotate(ctx, target, req, approver)
	s.flushMetrics(ctx)

	fmt.Printf("[Review] Approved %s (chat %d msg %d)\n", req.ID, req.SourceChatID, req.MessageID)
	return req, nil
}

// Reject discards the pending request. Returns the resolved request, or
// nil when it was already gone.
func (s *ReviewService) Reject(ctx context.Context, id string) (*domain.PendingRequest, error) {
	req, err := s.ledger.Resolve(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, nil
	}
	s.flushMetrics(ctx)

	fmt.Printf("[Review] Rejected %s\n", req.ID)
	return req, nil
}

// Ban block-lists the sender and discards the pending request. The block
// does not depend on the ledger: it lands even when the request was
// already resolved or expired.
func (s *ReviewService) Ban(ctx context.Context, id string, fromID int64) (*domain.PendingRequest, error) {
	if fromID != 0 {
		if err := s.state.AddBlock(ctx, fromID); err != nil {
			return nil, fmt.Errorf("block sender: %w", err)
		}
		fmt.Printf("[Review] Banned sender %d\n", fromID)
	}
	req, err := s.ledger.Resolve(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if req != nil {
		s.flushMetrics(ctx)
		fmt.Printf("[Review] Rejected %s\n", req.ID)
	}
	return req, nil
}

// DirectForward sends an admin's post straight to the target chat,
// bypassing the review queue.
func (s *ReviewService) DirectForward(ctx context.Context, fromChatID int64, messageID int) error {
	target, err := s.forwardTarget()
	if err != nil {
		return err
	}
	if err := s.forwardWithRetry(ctx, target, fromChatID, messageID); err != nil {
		return fmt.Errorf("forward message: %w", err)
	}
	s.metrics.CountForward()
	s.annotate(ctx, target, nil, "")
	return nil
}

func (s *ReviewService) forwardTarget() (int64, error) {
	raw := s.state.Config().ForwardTargetID
	target, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid forward target %q: %w", raw, err)
	}
	return target, nil
}

func (s *ReviewService) forwardWithRetry(ctx context.Context, target, fromChatID int64, messageID int) error {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = s.outbound.Forward(ctx, target, fromChatID, messageID); lastErr == nil {
			return nil
		}
		fmt.Printf("[Review] Forward attempt %d/%d failed: %v\n", attempt+1, s.retries, lastErr)
	}
	return lastErr
}

// annotate posts the provenance card under the forwarded message when
// the feature is on: who sent it, who approved it, and the template it
// resembled, with the traffic buttons attached when any are configured.
// Failures are logged, never fatal: the forward itself already succeeded.
func (s *ReviewService) annotate(ctx context.Context, target int64, req *domain.PendingRequest, approver string) {
	cfg := s.state.Config()
	if !cfg.AttachButtons {
		return
	}

	text := "⬇️"
	if req != nil {
		var parts []string
		if req.FromName != "" {
			parts = append(parts, "via "+req.FromName)
		}
		if approver != "" {
			parts = append(parts, "approved by "+approver)
		}
		if req.Suspected != nil {
			parts = append(parts, fmt.Sprintf("resembled %q (score %.3f)", req.Suspected.Template, req.Suspected.Score))
		}
		if len(parts) > 0 {
			text = strings.Join(parts, ", ") + " ⬇️"
		}
	}
	if err := s.outbound.SendButtons(ctx, target, text, s.state.Buttons()); err != nil {
		fmt.Printf("[Review] Failed to attach buttons: %v\n", err)
	}
}

// escalate tells every admin that an approved message could not be
// delivered. The raw error is included so the operator can act on it.
func (s *ReviewService) escalate(ctx context.Context, req *domain.PendingRequest, cause error) {
	text := fmt.Sprintf("⚠️ Forward failed for request %s (from %s): %v", req.ID, req.FromName, cause)
	for _, raw := range s.state.Config().AdminIDs {
		adminID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if err := s.outbound.SendText(ctx, adminID, text); err != nil {
			fmt.Printf("[Review] Failed to notify admin %d: %v\n", adminID, err)
		}
	}
}

func (s *ReviewService) flushMetrics(ctx context.Context) {
	if err := s.state.FlushMetrics(ctx, s.metrics.Snapshot()); err != nil {
		fmt.Printf("[Review] Failed to flush metrics: %v\n", err)
	}
}
