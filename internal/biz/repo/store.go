package repo

import (
	"context"

	"github.com/anthropics/tgmod/internal/biz/domain"
)

// Store is the persistence interface behind the moderation gateway.
// Three interchangeable backends implement it: SQLite, Redis and an
// in-memory one for tests.
//
// Error policy: backend I/O failures surface to the caller untouched;
// the Store never retries. Not-found reads return (nil, nil).
type Store interface {
	// Init is idempotent: it creates the schema/namespace if absent and
	// seeds the config document from environment defaults exactly once.
	Init(ctx context.Context) error

	// GetConfig returns the persisted config, seeding defaults when the
	// document does not exist yet.
	GetConfig(ctx context.Context) (domain.Config, error)

	// SetConfig merges the patch over the current config and overwrites
	// the whole document. Never a field-level write.
	SetConfig(ctx context.Context, patch domain.ConfigPatch) error

	// ListButtons returns all traffic buttons sorted ascending by order.
	ListButtons(ctx context.Context) ([]domain.TrafficButton, error)

	// SetButtons replaces the whole button collection atomically.
	SetButtons(ctx context.Context, buttons []domain.TrafficButton) error

	// ListTemplates returns the ad-template catalog in insertion order.
	ListTemplates(ctx context.Context) ([]domain.AdTemplate, error)

	// SetTemplates replaces the whole template catalog atomically.
	SetTemplates(ctx context.Context, templates []domain.AdTemplate) error

	// Allow/Block sets. Add is idempotent, Remove is a no-op when absent.
	ListAllow(ctx context.Context) ([]int64, error)
	AddAllow(ctx context.Context, id int64) error
	RemoveAllow(ctx context.Context, id int64) error
	ListBlock(ctx context.Context) ([]int64, error)
	AddBlock(ctx context.Context, id int64) error
	RemoveBlock(ctx context.Context, id int64) error

	// GetPending returns nil (not an error) for an unknown id.
	GetPending(ctx context.Context, id string) (*domain.PendingRequest, error)

	// ListPending returns every unresolved request (used by the TTL sweep).
	ListPending(ctx context.Context) ([]*domain.PendingRequest, error)

	// SetPending upserts a pending request by id.
	SetPending(ctx context.Context, req *domain.PendingRequest) error

	// DelPending removes a pending request and reports whether it existed.
	// The returned flag is the atomic claim for concurrent resolution:
	// exactly one caller sees true.
	DelPending(ctx context.Context, id string) (bool, error)

	// Close releases the backend connection.
	Close() error
}
