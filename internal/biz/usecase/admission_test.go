package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/anthropics/tgmod/internal/biz/domain"
)

func newTestPipeline(t *testing.T, cfg domain.Config) (*AdmissionUsecase, *StateUsecase, *mockStore) {
	t.Helper()
	if cfg.ForwardTargetID == "" {
		cfg.ForwardTargetID = "-100999"
	}
	if cfg.DefaultThreshold == 0 {
		cfg.DefaultThreshold = 0.6
	}
	store := newMockStore(cfg)
	state := NewStateUsecase(store)
	if err := state.Load(context.Background()); err != nil {
		t.Fatalf("load state: %v", err)
	}
	return NewAdmissionUsecase(state, NewMetrics(), DefaultAdmissionConfig()), state, store
}

func testPost(chatID int64, msgID int, fromID int64) domain.InboundPost {
	return domain.InboundPost{
		SourceChatID: chatID,
		MessageID:    msgID,
		FromID:       fromID,
		FromName:     "tester",
		Text:         "hello there",
		SentAt:       time.Now(),
	}
}

func TestAdmit_LoopbackDropped(t *testing.T) {
	pipe, _, _ := newTestPipeline(t, domain.Config{ForwardTargetID: "-100999", ReviewTargetID: "-100888"})

	for _, chatID := range []int64{-100999, -100888} {
		d := pipe.Admit(testPost(chatID, 1, 42))
		if d.Action != ActionDrop || d.Reason != ReasonLoopback {
			t.Errorf("chat %d: got %+v, want silent loopback drop", chatID, d)
		}
	}
}

func TestAdmit_SourceAllowlist(t *testing.T) {
	pipe, _, _ := newTestPipeline(t, domain.Config{SourcesAllow: []string{"-100123"}})

	if d := pipe.Admit(testPost(-100123, 1, 42)); d.Action != ActionQueue {
		t.Errorf("allowed source: got %+v, want queue", d)
	}
	if d := pipe.Admit(testPost(-100777, 1, 42)); d.Action != ActionDrop || d.Reason != ReasonSourceNotAllowed {
		t.Errorf("foreign source: got %+v, want silent drop", d)
	}
}

func TestAdmit_BlockBeatsAllow(t *testing.T) {
	pipe, state, _ := newTestPipeline(t, domain.Config{AllowlistMode: true})
	ctx := context.Background()
	if err := state.AddAllow(ctx, 42); err != nil {
		t.Fatal(err)
	}
	if err := state.AddBlock(ctx, 42); err != nil {
		t.Fatal(err)
	}

	d := pipe.Admit(testPost(-100123, 1, 42))
	if d.Action != ActionDrop || d.Reason != ReasonBlocked {
		t.Errorf("got %+v, want silent block drop", d)
	}
}

func TestAdmit_AllowlistModeRejectsStrangers(t *testing.T) {
	pipe, _, _ := newTestPipeline(t, domain.Config{AllowlistMode: true})

	d := pipe.Admit(testPost(-100123, 1, 42))
	if d.Action != ActionNotify || d.Reason != ReasonNotAllowlisted {
		t.Errorf("got %+v, want notify rejection", d)
	}
	if d.Request != nil {
		t.Error("no pending request should be created")
	}
}

func TestAdmit_AllowlistModeAdmitsAllowedAndAdmins(t *testing.T) {
	pipe, state, _ := newTestPipeline(t, domain.Config{AllowlistMode: true, AdminIDs: []string{"77"}})
	if err := state.AddAllow(context.Background(), 42); err != nil {
		t.Fatal(err)
	}

	if d := pipe.Admit(testPost(-100123, 1, 42)); d.Action != ActionQueue {
		t.Errorf("allow-listed sender: got %+v, want queue", d)
	}
	if d := pipe.Admit(testPost(-100123, 2, 77)); d.Action != ActionForward {
		t.Errorf("admin sender: got %+v, want direct forward", d)
	}
}

func TestAdmit_OldPostDropped(t *testing.T) {
	pipe, _, _ := newTestPipeline(t, domain.Config{})

	post := testPost(-100123, 1, 42)
	post.SentAt = time.Now().Add(-25 * time.Hour)
	if d := pipe.Admit(post); d.Action != ActionDrop || d.Reason != ReasonTooOld {
		t.Errorf("got %+v, want silent age drop", d)
	}
}

func TestAdmit_DedupWindow(t *testing.T) {
	pipe, _, _ := newTestPipeline(t, domain.Config{})
	base := time.Now()
	clock := base
	pipe.now = func() time.Time { return clock }

	post := testPost(-100123, 7, 0) // channel post, no cooldown in play
	if d := pipe.Admit(post); d.Action != ActionQueue {
		t.Fatalf("first delivery: got %+v, want queue", d)
	}

	clock = base.Add(500 * time.Millisecond)
	if d := pipe.Admit(post); d.Action != ActionDrop || d.Reason != ReasonDuplicate {
		t.Errorf("re-delivery inside window: got %+v, want duplicate drop", d)
	}

	clock = base.Add(1500 * time.Millisecond)
	if d := pipe.Admit(post); d.Action != ActionQueue {
		t.Errorf("re-delivery after window: got %+v, want queue", d)
	}
}

func TestAdmit_DedupLazyPurge(t *testing.T) {
	pipe, _, _ := newTestPipeline(t, domain.Config{})
	base := time.Now()
	clock := base
	pipe.now = func() time.Time { return clock }

	pipe.Admit(testPost(-100123, 1, 0))
	pipe.Admit(testPost(-100123, 2, 0))

	clock = base.Add(2 * time.Minute)
	pipe.Admit(testPost(-100123, 3, 0))

	pipe.mu.Lock()
	n := len(pipe.dedup)
	pipe.mu.Unlock()
	if n != 1 {
		t.Errorf("dedup cache holds %d entries after purge, want 1", n)
	}
}

func TestAdmit_CooldownTiming(t *testing.T) {
	pipe, _, _ := newTestPipeline(t, domain.Config{})
	base := time.Now()
	clock := base
	pipe.now = func() time.Time { return clock }

	if d := pipe.Admit(testPost(-100123, 1, 42)); d.Action != ActionQueue {
		t.Fatalf("t0: got %+v, want queue", d)
	}

	clock = base.Add(time.Millisecond)
	d := pipe.Admit(testPost(-100123, 2, 42))
	if d.Action != ActionNotify || d.Reason != ReasonCooldown {
		t.Fatalf("t0+1ms: got %+v, want cooldown notice", d)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 3*time.Second {
		t.Errorf("RetryAfter = %v", d.RetryAfter)
	}

	clock = base.Add(3001 * time.Millisecond)
	if d := pipe.Admit(testPost(-100123, 3, 42)); d.Action != ActionQueue {
		t.Errorf("t0+3001ms: got %+v, want queue", d)
	}
}

func TestAdmit_AdminBypassesCooldown(t *testing.T) {
	pipe, _, _ := newTestPipeline(t, domain.Config{AdminIDs: []string{"77"}})
	base := time.Now()
	clock := base
	pipe.now = func() time.Time { return clock }

	if d := pipe.Admit(testPost(-100123, 1, 77)); d.Action != ActionForward {
		t.Fatalf("got %+v, want direct forward", d)
	}
	clock = base.Add(time.Millisecond)
	if d := pipe.Admit(testPost(-100123, 2, 77)); d.Action != ActionForward {
		t.Errorf("rapid admin post: got %+v, want direct forward", d)
	}
}

func TestAdmit_StrictModeDropsUnmatched(t *testing.T) {
	pipe, _, _ := newTestPipeline(t, domain.Config{StrictTemplate: true})

	// Empty catalog: nothing can match.
	d := pipe.Admit(testPost(-100123, 1, 42))
	if d.Action != ActionNotify || d.Reason != ReasonNoTemplateMatch {
		t.Errorf("user post: got %+v, want notify drop", d)
	}
	if d.Request != nil {
		t.Error("no pending request should be created")
	}

	// Channel post: same outcome, but silent.
	d = pipe.Admit(testPost(-100123, 2, 0))
	if d.Action != ActionDrop || d.Reason != ReasonNoTemplateMatch {
		t.Errorf("channel post: got %+v, want silent drop", d)
	}
}

func TestAdmit_QueueCarriesSuspectedEvidence(t *testing.T) {
	pipe, state, _ := newTestPipeline(t, domain.Config{})
	err := state.ReplaceTemplates(context.Background(), []domain.AdTemplate{
		{Name: "sale", Content: "price:\ncontact:", Threshold: 0.5},
	})
	if err != nil {
		t.Fatal(err)
	}

	post := testPost(-100123, 1, 42)
	post.Text = "price:100 contact:wx123"
	d := pipe.Admit(post)
	if d.Action != ActionQueue {
		t.Fatalf("got %+v, want queue", d)
	}
	if d.Request == nil || d.Request.Suspected == nil {
		t.Fatalf("expected suspected evidence on request: %+v", d.Request)
	}
	if d.Request.Suspected.Template != "sale" {
		t.Errorf("suspected template = %q", d.Request.Suspected.Template)
	}
	if d.Request.ID == "" || d.Request.SourceChatID != -100123 || d.Request.MessageID != 1 {
		t.Errorf("request coordinates wrong: %+v", d.Request)
	}
}
