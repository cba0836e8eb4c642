package usecase

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/anthropics/tgmod/internal/biz/domain"
	"github.com/anthropics/tgmod/internal/biz/repo"
)

// StateUsecase owns the moderator's cached state: config, button and
// template catalogs, allow/block sets and the source allow-list. Everything
// loads from the Store at startup; every mutation writes back synchronously
// and then updates the cache.
type StateUsecase struct {
	store repo.Store

	mu        sync.RWMutex
	cfg       domain.Config
	buttons   []domain.TrafficButton
	templates []domain.AdTemplate
	allow     map[int64]struct{}
	block     map[int64]struct{}
	sources   map[string]struct{}
}

// NewStateUsecase creates an empty state bound to a store. Call Load before use.
func NewStateUsecase(store repo.Store) *StateUsecase {
	return &StateUsecase{
		store:   store,
		allow:   make(map[int64]struct{}),
		block:   make(map[int64]struct{}),
		sources: make(map[string]struct{}),
	}
}

// Load initializes the store and pulls config and catalogs into memory.
// A missing forward target is a fatal configuration error.
func (uc *StateUsecase) Load(ctx context.Context) error {
	if err := uc.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	cfg, err := uc.store.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.ForwardTargetID == "" {
		return fmt.Errorf("config missing forward target (FORWARD_TARGET_ID)")
	}
	cfg.DefaultThreshold = domain.ClampThreshold(cfg.DefaultThreshold)

	buttons, err := uc.store.ListButtons(ctx)
	if err != nil {
		return fmt.Errorf("load buttons: %w", err)
	}
	templates, err := uc.store.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	allow, err := uc.store.ListAllow(ctx)
	if err != nil {
		return fmt.Errorf("load allowlist: %w", err)
	}
	block, err := uc.store.ListBlock(ctx)
	if err != nil {
		return fmt.Errorf("load blocklist: %w", err)
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.cfg = cfg
	uc.buttons = buttons
	uc.templates = templates
	uc.allow = make(map[int64]struct{}, len(allow))
	for _, id := range allow {
		uc.allow[id] = struct{}{}
	}
	uc.block = make(map[int64]struct{}, len(block))
	for _, id := range block {
		uc.block[id] = struct{}{}
	}
	uc.sources = make(map[string]struct{}, len(cfg.SourcesAllow))
	for _, s := range cfg.SourcesAllow {
		uc.sources[s] = struct{}{}
	}
	return nil
}

// Config returns a copy of the cached config.
func (uc *StateUsecase) Config() domain.Config {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.cfg
}

// Buttons returns the cached button list.
func (uc *StateUsecase) Buttons() []domain.TrafficButton {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return append([]domain.TrafficButton(nil), uc.buttons...)
}

// Templates returns the cached template catalog.
func (uc *StateUsecase) Templates() []domain.AdTemplate {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return append([]domain.AdTemplate(nil), uc.templates...)
}

// IsAdmin reports whether the user id is a configured admin.
func (uc *StateUsecase) IsAdmin(userID int64) bool {
	if userID == 0 {
		return false
	}
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	idStr := strconv.FormatInt(userID, 10)
	for _, admin := range uc.cfg.AdminIDs {
		if admin == idStr {
			return true
		}
	}
	return false
}

// IsBlocked reports block-set membership.
func (uc *StateUsecase) IsBlocked(userID int64) bool {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	_, ok := uc.block[userID]
	return ok
}

// IsAllowed reports allow-set membership.
func (uc *StateUsecase) IsAllowed(userID int64) bool {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	_, ok := uc.allow[userID]
	return ok
}

// SourceAllowed reports whether a source chat passes the source allow-list.
// An empty list admits every source.
func (uc *StateUsecase) SourceAllowed(chatID int64) bool {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if len(uc.sources) == 0 {
		return true
	}
	_, ok := uc.sources[strconv.FormatInt(chatID, 10)]
	return ok
}

// AllowCount returns the allow-set size.
func (uc *StateUsecase) AllowCount() int {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return len(uc.allow)
}

// BlockCount returns the block-set size.
func (uc *StateUsecase) BlockCount() int {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return len(uc.block)
}

func (uc *StateUsecase) setConfig(ctx context.Context, patch domain.ConfigPatch) error {
	if err := uc.store.SetConfig(ctx, patch); err != nil {
		return err
	}
	uc.mu.Lock()
	uc.cfg = patch.Apply(uc.cfg)
	uc.mu.Unlock()
	return nil
}

// SetForwardTarget updates the forward destination id.
func (uc *StateUsecase) SetForwardTarget(ctx context.Context, id string) error {
	return uc.setConfig(ctx, domain.ConfigPatch{ForwardTargetID: &id})
}

// SetReviewTarget updates the review destination id. Empty disables the
// review channel and review cards go to each admin instead.
func (uc *StateUsecase) SetReviewTarget(ctx context.Context, id string) error {
	return uc.setConfig(ctx, domain.ConfigPatch{ReviewTargetID: &id})
}

// SetWelcomeText updates the welcome message.
func (uc *StateUsecase) SetWelcomeText(ctx context.Context, text string) error {
	return uc.setConfig(ctx, domain.ConfigPatch{WelcomeText: &text})
}

// SetDefaultThreshold updates the global detection threshold.
func (uc *StateUsecase) SetDefaultThreshold(ctx context.Context, v float64) error {
	v = domain.ClampThreshold(v)
	return uc.setConfig(ctx, domain.ConfigPatch{DefaultThreshold: &v})
}

// ToggleAllowlistMode flips allow-list mode and returns the new value.
func (uc *StateUsecase) ToggleAllowlistMode(ctx context.Context) (bool, error) {
	next := !uc.Config().AllowlistMode
	if err := uc.setConfig(ctx, domain.ConfigPatch{AllowlistMode: &next}); err != nil {
		return !next, err
	}
	return next, nil
}

// ToggleStrictTemplate flips strict mode and returns the new value.
func (uc *StateUsecase) ToggleStrictTemplate(ctx context.Context) (bool, error) {
	next := !uc.Config().StrictTemplate
	if err := uc.setConfig(ctx, domain.ConfigPatch{StrictTemplate: &next}); err != nil {
		return !next, err
	}
	return next, nil
}

// AddAdmin adds a user id to the admin list; idempotent.
func (uc *StateUsecase) AddAdmin(ctx context.Context, id string) error {
	cfg := uc.Config()
	for _, a := range cfg.AdminIDs {
		if a == id {
			return nil
		}
	}
	next := append(append([]string(nil), cfg.AdminIDs...), id)
	return uc.setConfig(ctx, domain.ConfigPatch{AdminIDs: &next})
}

// RemoveAdmin removes a user id from the admin list; no-op when absent.
func (uc *StateUsecase) RemoveAdmin(ctx context.Context, id string) error {
	cfg := uc.Config()
	next := make([]string, 0, len(cfg.AdminIDs))
	for _, a := range cfg.AdminIDs {
		if a != id {
			next = append(next, a)
		}
	}
	return uc.setConfig(ctx, domain.ConfigPatch{AdminIDs: &next})
}

// AddSource adds a chat id to the source allow-list.
func (uc *StateUsecase) AddSource(ctx context.Context, chatID string) error {
	uc.mu.RLock()
	next := make([]string, 0, len(uc.sources)+1)
	for s := range uc.sources {
		next = append(next, s)
	}
	uc.mu.RUnlock()
	for _, s := range next {
		if s == chatID {
			return nil
		}
	}
	next = append(next, chatID)
	if err := uc.setConfig(ctx, domain.ConfigPatch{SourcesAllow: &next}); err != nil {
		return err
	}
	uc.mu.Lock()
	uc.sources[chatID] = struct{}{}
	uc.mu.Unlock()
	return nil
}

// RemoveSource removes a chat id from the source allow-list.
func (uc *StateUsecase) RemoveSource(ctx context.Context, chatID string) error {
	uc.mu.RLock()
	next := make([]string, 0, len(uc.sources))
	for s := range uc.sources {
		if s != chatID {
			next = append(next, s)
		}
	}
	uc.mu.RUnlock()
	if err := uc.setConfig(ctx, domain.ConfigPatch{SourcesAllow: &next}); err != nil {
		return err
	}
	uc.mu.Lock()
	delete(uc.sources, chatID)
	uc.mu.Unlock()
	return nil
}

// ClearSources empties the source allow-list (no restriction).
func (uc *StateUsecase) ClearSources(ctx context.Context) error {
	empty := []string{}
	if err := uc.setConfig(ctx, domain.ConfigPatch{SourcesAllow: &empty}); err != nil {
		return err
	}
	uc.mu.Lock()
	uc.sources = make(map[string]struct{})
	uc.mu.Unlock()
	return nil
}

// Sources returns the source allow-list entries.
func (uc *StateUsecase) Sources() []string {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	out := make([]string, 0, len(uc.sources))
	for s := range uc.sources {
		out = append(out, s)
	}
	return out
}

// ReplaceButtons persists a whole new button list.
func (uc *StateUsecase) ReplaceButtons(ctx context.Context, buttons []domain.TrafficButton) error {
	if err := uc.store.SetButtons(ctx, buttons); err != nil {
		return err
	}
	uc.mu.Lock()
	uc.buttons = domain.SortButtons(buttons)
	uc.mu.Unlock()
	return nil
}

// ReplaceTemplates persists a whole new template catalog. Thresholds are
// clamped on write.
func (uc *StateUsecase) ReplaceTemplates(ctx context.Context, templates []domain.AdTemplate) error {
	clamped := make([]domain.AdTemplate, len(templates))
	for i, t := range templates {
		t.Threshold = domain.ClampThreshold(t.Threshold)
		clamped[i] = t
	}
	if err := uc.store.SetTemplates(ctx, clamped); err != nil {
		return err
	}
	uc.mu.Lock()
	uc.templates = clamped
	uc.mu.Unlock()
	return nil
}

// AddAllow adds a user to the allow set.
func (uc *StateUsecase) AddAllow(ctx context.Context, id int64) error {
	if err := uc.store.AddAllow(ctx, id); err != nil {
		return err
	}
	uc.mu.Lock()
	uc.allow[id] = struct{}{}
	uc.mu.Unlock()
	return nil
}

// RemoveAllow removes a user from the allow set.
func (uc *StateUsecase) RemoveAllow(ctx context.Context, id int64) error {
	if err := uc.store.RemoveAllow(ctx, id); err != nil {
		return err
	}
	uc.mu.Lock()
	delete(uc.allow, id)
	uc.mu.Unlock()
	return nil
}

// AddBlock adds a user to the block set. Block beats allow on admission.
func (uc *StateUsecase) AddBlock(ctx context.Context, id int64) error {
	if err := uc.store.AddBlock(ctx, id); err != nil {
		return err
	}
	uc.mu.Lock()
	uc.block[id] = struct{}{}
	uc.mu.Unlock()
	return nil
}

// RemoveBlock removes a user from the block set.
func (uc *StateUsecase) RemoveBlock(ctx context.Context, id int64) error {
	if err := uc.store.RemoveBlock(ctx, id); err != nil {
		return err
	}
	uc.mu.Lock()
	delete(uc.block, id)
	uc.mu.Unlock()
	return nil
}

// FlushMetrics writes a metrics snapshot into the config document.
func (uc *StateUsecase) FlushMetrics(ctx context.Context, snap domain.MetricsSnapshot) error {
	return uc.setConfig(ctx, domain.ConfigPatch{Metrics: &snap})
}
