package usecase

import (
	"context"

	"github.com/anthropics/tgmod/internal/biz/domain"
)

// mockStore is an in-memory Store for usecase tests.
type mockStore struct {
	cfg       domain.Config
	buttons   []domain.TrafficButton
	templates []domain.AdTemplate
	allow     map[int64]struct{}
	block     map[int64]struct{}
	pending   map[string]*domain.PendingRequest
}

func newMockStore(cfg domain.Config) *mockStore {
	return &mockStore{
		cfg:     cfg,
		allow:   make(map[int64]struct{}),
		block:   make(map[int64]struct{}),
		pending: make(map[string]*domain.PendingRequest),
	}
}

func (m *mockStore) Init(ctx context.Context) error { return nil }

func (m *mockStore) GetConfig(ctx context.Context) (domain.Config, error) {
	return m.cfg, nil
}

func (m *mockStore) SetConfig(ctx context.Context, patch domain.ConfigPatch) error {
	m.cfg = patch.Apply(m.cfg)
	return nil
}

func (m *mockStore) ListButtons(ctx context.Context) ([]domain.TrafficButton, error) {
	return domain.SortButtons(m.buttons), nil
}

func (m *mockStore) SetButtons(ctx context.Context, buttons []domain.TrafficButton) error {
	m.buttons = append([]domain.TrafficButton(nil), buttons...)
	return nil
}

func (m *mockStore) ListTemplates(ctx context.Context) ([]domain.AdTemplate, error) {
	return append([]domain.AdTemplate(nil), m.templates...), nil
}

func (m *mockStore) SetTemplates(ctx context.Context, templates []domain.AdTemplate) error {
	m.templates = append([]domain.AdTemplate(nil), templates...)
	return nil
}

func (m *mockStore) ListAllow(ctx context.Context) ([]int64, error) {
	return setToSlice(m.allow), nil
}

func (m *mockStore) AddAllow(ctx context.Context, id int64) error {
	m.allow[id] = struct{}{}
	return nil
}

func (m *mockStore) RemoveAllow(ctx context.Context, id int64) error {
	delete(m.allow, id)
	return nil
}

func (m *mockStore) ListBlock(ctx context.Context) ([]int64, error) {
	return setToSlice(m.block), nil
}

func (m *mockStore) AddBlock(ctx context.Context, id int64) error {
	m.block[id] = struct{}{}
	return nil
}

func (m *mockStore) RemoveBlock(ctx context.Context, id int64) error {
	delete(m.block, id)
	return nil
}

func (m *mockStore) GetPending(ctx context.Context, id string) (*domain.PendingRequest, error) {
	return m.pending[id], nil
}

func (m *mockStore) ListPending(ctx context.Context) ([]*domain.PendingRequest, error) {
	var out []*domain.PendingRequest
	for _, req := range m.pending {
		out = append(out, req)
	}
	return out, nil
}

func (m *mockStore) SetPending(ctx context.Context, req *domain.PendingRequest) error {
	m.pending[req.ID] = req
	return nil
}

func (m *mockStore) DelPending(ctx context.Context, id string) (bool, error) {
	_, ok := m.pending[id]
	delete(m.pending, id)
	return ok, nil
}

func (m *mockStore) Close() error { return nil }

func setToSlice(set map[int64]struct{}) []int64 {
	var out []int64
	for id := range set {
		out = append(out, id)
	}
	return out
}
