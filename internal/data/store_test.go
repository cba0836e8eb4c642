package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropics/tgmod/internal/biz/domain"
	"github.com/anthropics/tgmod/internal/biz/repo"
)

func testStores(t *testing.T) map[string]repo.Store {
	t.Helper()
	seed := domain.Config{
		ForwardTargetID:  "-100999",
		DefaultThreshold: 0.6,
		AttachButtons:    true,
	}

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "bot.db"), seed)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	stores := map[string]repo.Store{
		"memory": NewMemoryStore(seed),
		"sqlite": sqliteStore,
	}
	for name, store := range stores {
		if err := store.Init(context.Background()); err != nil {
			t.Fatalf("%s init: %v", name, err)
		}
		t.Cleanup(func() { store.Close() })
	}
	return stores
}

func TestStore_ConfigSeedAndPatch(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			cfg, err := store.GetConfig(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if cfg.ForwardTargetID != "-100999" || cfg.DefaultThreshold != 0.6 {
				t.Fatalf("seed config = %+v", cfg)
			}

			welcome := "hello"
			strict := true
			err = store.SetConfig(ctx, domain.ConfigPatch{WelcomeText: &welcome, StrictTemplate: &strict})
			if err != nil {
				t.Fatal(err)
			}

			cfg, err = store.GetConfig(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if cfg.WelcomeText != "hello" || !cfg.StrictTemplate {
				t.Errorf("patched config = %+v", cfg)
			}
			// Untouched fields keep their seeded values.
			if cfg.ForwardTargetID != "-100999" || !cfg.AttachButtons {
				t.Errorf("patch clobbered unset fields: %+v", cfg)
			}
		})
	}
}

func TestStore_ButtonsRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := store.SetButtons(ctx, []domain.TrafficButton{
				{Text: "b", URL: "https://example.com/b", Order: 2},
				{Text: "a", URL: "https://example.com/a", Order: 1},
			})
			if err != nil {
				t.Fatal(err)
			}

			buttons, err := store.ListButtons(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(buttons) != 2 {
				t.Fatalf("buttons = %+v", buttons)
			}
			// Listed ascending by order regardless of insertion order.
			if buttons[0].Text != "a" || buttons[1].Text != "b" {
				t.Errorf("buttons out of order: %+v", buttons)
			}

			// Replacement drops the old set entirely.
			err = store.SetButtons(ctx, []domain.TrafficButton{
				{Text: "only", URL: "https://example.com/only", Order: 1},
			})
			if err != nil {
				t.Fatal(err)
			}
			buttons, err = store.ListButtons(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(buttons) != 1 || buttons[0].Text != "only" {
				t.Errorf("buttons after replace = %+v", buttons)
			}
		})
	}
}

func TestStore_ButtonsKeepDuplicateOrders(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := store.SetButtons(ctx, []domain.TrafficButton{
				{Text: "first", URL: "https://example.com/1", Order: 1},
				{Text: "second", URL: "https://example.com/2", Order: 1},
				{Text: "third", URL: "https://example.com/3", Order: 2},
			})
			if err != nil {
				t.Fatal(err)
			}

			buttons, err := store.ListButtons(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(buttons) != 3 {
				t.Fatalf("buttons sharing an order must all survive: %+v", buttons)
			}
			if buttons[2].Text != "third" {
				t.Errorf("buttons = %+v", buttons)
			}
		})
	}
}

func TestStore_TemplatesRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := store.SetTemplates(ctx, []domain.AdTemplate{
				{Name: "sale", Content: "price:\ncontact:", Threshold: 0.5},
				{Name: "promo", Content: "join now"},
			})
			if err != nil {
				t.Fatal(err)
			}

			templates, err := store.ListTemplates(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(templates) != 2 {
				t.Fatalf("templates = %+v", templates)
			}

			byName := map[string]domain.AdTemplate{}
			for _, tmpl := range templates {
				byName[tmpl.Name] = tmpl
			}
			if byName["sale"].Threshold != 0.5 || byName["sale"].Content != "price:\ncontact:" {
				t.Errorf("sale = %+v", byName["sale"])
			}
		})
	}
}

func TestStore_AllowBlockLists(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := store.AddAllow(ctx, 42); err != nil {
				t.Fatal(err)
			}
			if err := store.AddAllow(ctx, 42); err != nil { // idempotent
				t.Fatal(err)
			}
			if err := store.AddBlock(ctx, 43); err != nil {
				t.Fatal(err)
			}

			allow, err := store.ListAllow(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(allow) != 1 || allow[0] != 42 {
				t.Errorf("allow = %v", allow)
			}

			if err := store.RemoveAllow(ctx, 42); err != nil {
				t.Fatal(err)
			}
			if err := store.RemoveAllow(ctx, 42); err != nil { // already gone
				t.Fatal(err)
			}
			allow, _ = store.ListAllow(ctx)
			if len(allow) != 0 {
				t.Errorf("allow after removal = %v", allow)
			}

			block, err := store.ListBlock(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(block) != 1 || block[0] != 43 {
				t.Errorf("block = %v", block)
			}
		})
	}
}

func TestStore_PendingLifecycle(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := time.UnixMilli(1700000000000)

			req := &domain.PendingRequest{
				ID:           domain.NewPendingID(created, -100123, 7),
				SourceChatID: -100123,
				MessageID:    7,
				FromID:       42,
				FromName:     "tester",
				CreatedAt:    created,
				Suspected:    &domain.Suspected{Template: "sale", Score: 0.8},
			}
			if err := store.SetPending(ctx, req); err != nil {
				t.Fatal(err)
			}

			got, err := store.GetPending(ctx, req.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got == nil {
				t.Fatal("pending request not found")
			}
			if got.SourceChatID != -100123 || got.MessageID != 7 || got.FromName != "tester" {
				t.Errorf("got = %+v", got)
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("created_at = %v, want %v", got.CreatedAt, created)
			}
			if got.Suspected == nil || got.Suspected.Template != "sale" || got.Suspected.Score != 0.8 {
				t.Errorf("suspected = %+v", got.Suspected)
			}

			all, err := store.ListPending(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 1 {
				t.Errorf("list = %+v", all)
			}

			removed, err := store.DelPending(ctx, req.ID)
			if err != nil {
				t.Fatal(err)
			}
			if !removed {
				t.Error("delete of an existing request must report removal")
			}
			got, err = store.GetPending(ctx, req.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got != nil {
				t.Errorf("pending still present after delete: %+v", got)
			}

			// A second delete finds nothing; only one caller wins the claim.
			removed, err = store.DelPending(ctx, req.ID)
			if err != nil {
				t.Fatal(err)
			}
			if removed {
				t.Error("repeat delete must not report removal")
			}

			// Unknown ids are a nil result, not an error.
			got, err = store.GetPending(ctx, "missing")
			if err != nil || got != nil {
				t.Errorf("unknown id: got %+v, %v", got, err)
			}
		})
	}
}
