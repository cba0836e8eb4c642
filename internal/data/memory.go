package data

import (
	"context"
	"sync"

	"github.com/anthropics/tgmod/internal/biz/domain"
	"github.com/anthropics/tgmod/internal/biz/repo"
)

// memoryStore implements repo.Store entirely in memory. Nothing
// survives a restart; it exists for tests and local runs without
// Redis or a writable disk.
type memoryStore struct {
	mu        sync.Mutex
	cfg       domain.Config
	buttons   []domain.TrafficButton
	templates []domain.AdTemplate
	allow     map[int64]struct{}
	block     map[int64]struct{}
	pending   map[string]*domain.PendingRequest
}

// NewMemoryStore creates an empty in-memory store seeded with cfg.
func NewMemoryStore(seed domain.Config) repo.Store {
	return &memoryStore{
		cfg:     seed,
		allow:   make(map[int64]struct{}),
		block:   make(map[int64]struct{}),
		pending: make(map[string]*domain.PendingRequest),
	}
}

func (s *memoryStore) Init(ctx context.Context) error { return nil }

func (s *memoryStore) GetConfig(ctx context.Context) (domain.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, nil
}

func (s *memoryStore) SetConfig(ctx context.Context, patch domain.ConfigPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = patch.Apply(s.cfg)
	return nil
}

func (s *memoryStore) ListButtons(ctx context.Context) ([]domain.TrafficButton, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SortButtons(s.buttons), nil
}

func (s *memoryStore) SetButtons(ctx context.Context, buttons []domain.TrafficButton) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttons = append([]domain.TrafficButton(nil), buttons...)
	return nil
}

func (s *memoryStore) ListTemplates(ctx context.Context) ([]domain.AdTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AdTemplate(nil), s.templates...), nil
}

func (s *memoryStore) SetTemplates(ctx context.Context, templates []domain.AdTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append([]domain.AdTemplate(nil), templates...)
	return nil
}

func (s *memoryStore) ListAllow(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return idsOf(s.allow), nil
}

func (s *memoryStore) AddAllow(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allow[id] = struct{}{}
	return nil
}

func (s *memoryStore) RemoveAllow(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allow, id)
	return nil
}

func (s *memoryStore) ListBlock(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return idsOf(s.block), nil
}

func (s *memoryStore) AddBlock(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block[id] = struct{}{}
	return nil
}

func (s *memoryStore) RemoveBlock(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.block, id)
	return nil
}

func (s *memoryStore) GetPending(ctx context.Context, id string) (*domain.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pending[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (s *memoryStore) ListPending(ctx context.Context) ([]*domain.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.PendingRequest, 0, len(s.pending))
	for _, req := range s.pending {
		cp := *req
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memoryStore) SetPending(ctx context.Context, req *domain.PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.pending[req.ID] = &cp
	return nil
}

func (s *memoryStore) DelPending(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	delete(s.pending, id)
	return ok, nil
}

func (s *memoryStore) Close() error { return nil }

func idsOf(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
