package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/anthropics/tgmod/internal/biz/domain"
	"github.com/anthropics/tgmod/internal/biz/repo"
)

const redisKeyPrefix = "tgmod:"

// redisStore implements repo.Store on Redis. Config, buttons and
// templates are JSON blobs; allow/block lists are sets; pending
// requests live in a single hash keyed by request id.
type redisStore struct {
	client *redis.Client
	seed   domain.Config
}

// NewRedisStore connects to the Redis instance named by the URL
// (redis://[:password@]host:port/db).
func NewRedisStore(url string, seed domain.Config) (repo.Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &redisStore{client: redis.NewClient(opt), seed: seed}, nil
}

func (s *redisStore) key(name string) string {
	return redisKeyPrefix + name
}

// Init verifies connectivity and seeds the config blob on first run.
func (s *redisStore) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	raw, err := json.Marshal(s.seed)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := s.client.SetNX(ctx, s.key("config"), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to seed config: %w", err)
	}
	return nil
}

func (s *redisStore) GetConfig(ctx context.Context) (domain.Config, error) {
	raw, err := s.client.Get(ctx, s.key("config")).Result()
	if err == redis.Nil {
		return s.seed, nil
	}
	if err != nil {
		return domain.Config{}, fmt.Errorf("failed to get config: %w", err)
	}

	var cfg domain.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return domain.Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func (s *redisStore) SetConfig(ctx context.Context, patch domain.ConfigPatch) error {
	cur, err := s.GetConfig(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(patch.Apply(cur))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := s.client.Set(ctx, s.key("config"), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func (s *redisStore) ListButtons(ctx context.Context) ([]domain.TrafficButton, error) {
	var buttons []domain.TrafficButton
	if err := s.getJSON(ctx, "buttons", &buttons); err != nil {
		return nil, err
	}
	return domain.SortButtons(buttons), nil
}

func (s *redisStore) SetButtons(ctx context.Context, buttons []domain.TrafficButton) error {
	return s.setJSON(ctx, "buttons", buttons)
}

func (s *redisStore) ListTemplates(ctx context.Context) ([]domain.AdTemplate, error) {
	var templates []domain.AdTemplate
	if err := s.getJSON(ctx, "templates", &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *redisStore) SetTemplates(ctx context.Context, templates []domain.AdTemplate) error {
	return s.setJSON(ctx, "templates", templates)
}

func (s *redisStore) getJSON(ctx context.Context, name string, v any) error {
	raw, err := s.client.Get(ctx, s.key(name)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

func (s *redisStore) setJSON(ctx context.Context, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if err := s.client.Set(ctx, s.key(name), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}

func (s *redisStore) ListAllow(ctx context.Context) ([]int64, error) {
	return s.listSet(ctx, "allowlist")
}

func (s *redisStore) AddAllow(ctx context.Context, id int64) error {
	return s.addSet(ctx, "allowlist", id)
}

func (s *redisStore) RemoveAllow(ctx context.Context, id int64) error {
	return s.removeSet(ctx, "allowlist", id)
}

func (s *redisStore) ListBlock(ctx context.Context) ([]int64, error) {
	return s.listSet(ctx, "blocklist")
}

func (s *redisStore) AddBlock(ctx context.Context, id int64) error {
	return s.addSet(ctx, "blocklist", id)
}

func (s *redisStore) RemoveBlock(ctx context.Context, id int64) error {
	return s.removeSet(ctx, "blocklist", id)
}

func (s *redisStore) listSet(ctx context.Context, name string) ([]int64, error) {
	members, err := s.client.SMembers(ctx, s.key(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", name, err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *redisStore) addSet(ctx context.Context, name string, id int64) error {
	if err := s.client.SAdd(ctx, s.key(name), strconv.FormatInt(id, 10)).Err(); err != nil {
		return fmt.Errorf("failed to add to %s: %w", name, err)
	}
	return nil
}

func (s *redisStore) removeSet(ctx context.Context, name string, id int64) error {
	if err := s.client.SRem(ctx, s.key(name), strconv.FormatInt(id, 10)).Err(); err != nil {
		return fmt.Errorf("failed to remove from %s: %w", name, err)
	}
	return nil
}

func (s *redisStore) GetPending(ctx context.Context, id string) (*domain.PendingRequest, error) {
	raw, err := s.client.HGet(ctx, s.key("pending"), id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending: %w", err)
	}

	var req domain.PendingRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("failed to decode pending: %w", err)
	}
	return &req, nil
}

func (s *redisStore) ListPending(ctx context.Context) ([]*domain.PendingRequest, error) {
	all, err := s.client.HGetAll(ctx, s.key("pending")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending: %w", err)
	}

	out := make([]*domain.PendingRequest, 0, len(all))
	for id, raw := range all {
		var req domain.PendingRequest
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return nil, fmt.Errorf("failed to decode pending %s: %w", id, err)
		}
		out = append(out, &req)
	}
	return out, nil
}

func (s *redisStore) SetPending(ctx context.Context, req *domain.PendingRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal pending: %w", err)
	}
	if err := s.client.HSet(ctx, s.key("pending"), req.ID, raw).Err(); err != nil {
		return fmt.Errorf("failed to save pending: %w", err)
	}
	return nil
}

func (s *redisStore) DelPending(ctx context.Context, id string) (bool, error) {
	n, err := s.client.HDel(ctx, s.key("pending"), id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete pending: %w", err)
	}
	return n > 0, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
