package data

import (
	"fmt"

	"github.com/anthropics/tgmod/internal/biz/domain"
	"github.com/anthropics/tgmod/internal/biz/repo"
)

// Store backends selectable via configuration.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// NewStore creates the persistence backend named by backend. The seed
// config is used the first time a backend starts against empty storage.
func NewStore(backend, sqlitePath, redisURL string, seed domain.Config) (repo.Store, error) {
	switch backend {
	case BackendRedis:
		return NewRedisStore(redisURL, seed)
	case BackendSQLite:
		return NewSQLiteStore(sqlitePath, seed)
	case BackendMemory:
		return NewMemoryStore(seed), nil
	default:
		return nil, fmt.Errorf("unknown persistence backend: %q", backend)
	}
}
