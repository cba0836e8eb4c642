package usecase

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/anthropics/tgmod/internal/biz/domain"
)

// Action is what the admission pipeline decides to do with a post.
type Action int

const (
	// ActionDrop discards the post silently.
	ActionDrop Action = iota
	// ActionNotify discards the post and tells the sender why.
	ActionNotify
	// ActionForward forwards the post directly, skipping review (admins).
	ActionForward
	// ActionQueue creates a pending request for human review.
	ActionQueue
)

// Reason is the machine-readable cause behind a decision.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonLoopback
	ReasonSourceNotAllowed
	ReasonBlocked
	ReasonNotAllowlisted
	ReasonTooOld
	ReasonDuplicate
	ReasonCooldown
	ReasonNoTemplateMatch
	ReasonAdmin
)

// Decision is the outcome of running one post through the pipeline.
type Decision struct {
	Action     Action
	Reason     Reason
	RetryAfter time.Duration // set with ReasonCooldown
	Request    *domain.PendingRequest
	Match      MatchResult
}

// AdmissionConfig bundles the pipeline's tunable limits.
type AdmissionConfig struct {
	Cooldown       time.Duration // per-user spacing for non-admins
	MaxAge         time.Duration // posts older than this are dropped
	DedupWindow    time.Duration // repeat delivery suppression span
	DedupRetention time.Duration // lazy purge horizon for dedup entries
}

// DefaultAdmissionConfig returns the stock limits.
func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		Cooldown:       3 * time.Second,
		MaxAge:         24 * time.Hour,
		DedupWindow:    time.Second,
		DedupRetention: time.Minute,
	}
}

// AdmissionUsecase is the ordered filter chain deciding the fate of inbound
// posts. It owns the dedup cache and the per-user cooldown map; both live
// only for the process lifetime.
type AdmissionUsecase struct {
	state   *StateUsecase
	metrics *Metrics
	limits  AdmissionConfig

	mu       sync.Mutex
	dedup    map[string]time.Time
	cooldown map[int64]time.Time

	now func() time.Time
}

// NewAdmissionUsecase creates the pipeline.
func NewAdmissionUsecase(state *StateUsecase, metrics *Metrics, limits AdmissionConfig) *AdmissionUsecase {
	return &AdmissionUsecase{
		state:    state,
		metrics:  metrics,
		limits:   limits,
		dedup:    make(map[string]time.Time),
		cooldown: make(map[int64]time.Time),
		now:      time.Now,
	}
}

// Admit runs the post through the chain, short-circuiting on the first
// rejection. A dropped post is never re-evaluated.
func (uc *AdmissionUsecase) Admit(post domain.InboundPost) Decision {
	cfg := uc.state.Config()
	src := strconv.FormatInt(post.SourceChatID, 10)

	// Posts from the forward or review target are our own traffic echoing back.
	if src == cfg.ForwardTargetID || (cfg.ReviewTargetID != "" && src == cfg.ReviewTargetID) {
		return uc.drop(ReasonLoopback)
	}

	if !uc.state.SourceAllowed(post.SourceChatID) {
		return uc.drop(ReasonSourceNotAllowed)
	}
	uc.metrics.MarkSource(post.SourceChatID)

	if post.FromID != 0 && uc.state.IsBlocked(post.FromID) {
		return uc.drop(ReasonBlocked)
	}

	isAdmin := uc.state.IsAdmin(post.FromID)
	if cfg.AllowlistMode && post.FromID != 0 && !isAdmin && !uc.state.IsAllowed(post.FromID) {
		uc.metrics.CountDrop()
		return Decision{Action: ActionNotify, Reason: ReasonNotAllowlisted}
	}

	now := uc.now()
	if !post.SentAt.IsZero() && now.Sub(post.SentAt) > uc.limits.MaxAge {
		return uc.drop(ReasonTooOld)
	}

	if dup := uc.checkDedup(post, now); dup {
		return uc.drop(ReasonDuplicate)
	}

	if post.FromID != 0 && !isAdmin {
		if wait := uc.checkCooldown(post.FromID, now); wait > 0 {
			uc.metrics.CountDrop()
			return Decision{Action: ActionNotify, Reason: ReasonCooldown, RetryAfter: wait}
		}
	}

	if post.FromID != 0 && isAdmin {
		uc.metrics.CountForward()
		return Decision{Action: ActionForward, Reason: ReasonAdmin}
	}

	match := Detect(post.Text, uc.state.Templates(), cfg.DefaultThreshold)
	if cfg.StrictTemplate && !match.Matched {
		uc.metrics.CountDrop()
		if post.FromID != 0 {
			return Decision{Action: ActionNotify, Reason: ReasonNoTemplateMatch}
		}
		return Decision{Action: ActionDrop, Reason: ReasonNoTemplateMatch}
	}

	req := &domain.PendingRequest{
		ID:           domain.NewPendingID(now, post.SourceChatID, post.MessageID),
		SourceChatID: post.SourceChatID,
		MessageID:    post.MessageID,
		FromID:       post.FromID,
		FromName:     post.FromName,
		CreatedAt:    now,
	}
	if match.Matched {
		req.Suspected = &domain.Suspected{Template: match.Name, Score: match.Score}
	}
	return Decision{Action: ActionQueue, Request: req, Match: match}
}

func (uc *AdmissionUsecase) drop(reason Reason) Decision {
	uc.metrics.CountDrop()
	return Decision{Action: ActionDrop, Reason: reason}
}

// checkDedup suppresses re-delivery of the same (chat, message) within the
// dedup window, and purges entries past the retention horizon while here.
func (uc *AdmissionUsecase) checkDedup(post domain.InboundPost, now time.Time) bool {
	key := fmt.Sprintf("%d:%d", post.SourceChatID, post.MessageID)

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if last, ok := uc.dedup[key]; ok && now.Sub(last) < uc.limits.DedupWindow {
		return true
	}
	uc.dedup[key] = now

	for k, ts := range uc.dedup {
		if now.Sub(ts) > uc.limits.DedupRetention {
			delete(uc.dedup, k)
		}
	}
	return false
}

// checkCooldown returns the remaining wait for a throttled user, or zero
// and records the admission.
func (uc *AdmissionUsecase) checkCooldown(userID int64, now time.Time) time.Duration {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if last, ok := uc.cooldown[userID]; ok {
		if wait := uc.limits.Cooldown - now.Sub(last); wait > 0 {
			return wait
		}
	}
	uc.cooldown[userID] = now
	return 0
}
