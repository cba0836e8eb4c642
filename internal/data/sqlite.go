package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/tgmod/internal/biz/domain"
	"github.com/anthropics/tgmod/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// sqliteStore implements repo.Store on a single SQLite file.
type sqliteStore struct {
	db   *sql.DB
	seed domain.Config
}

// NewSQLiteStore opens (and creates if needed) the database file.
// The seed config is written once when no config row exists yet.
func NewSQLiteStore(dbPath string, seed domain.Config) (repo.Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &sqliteStore{db: db, seed: seed}, nil
}

// Init creates the schema and seeds the config row on first run.
func (s *sqliteStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create config table: %w", err)
	}

	// ord is deliberately not unique: buttons may share an order value.
	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS buttons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ord INTEGER NOT NULL,
			text TEXT NOT NULL,
			url TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create buttons table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS templates (
			name TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			threshold REAL NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create templates table: %w", err)
	}

	for _, table := range []string{"allowlist", "blocklist"} {
		_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				user_id INTEGER PRIMARY KEY
			)
		`, table))
		if err != nil {
			return fmt.Errorf("failed to create %s table: %w", table, err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pending (
			id TEXT PRIMARY KEY,
			source_chat_id INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			from_id INTEGER NOT NULL,
			from_name TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			suspected_template TEXT NOT NULL DEFAULT '',
			suspected_score REAL NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create pending table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_pending_created_at ON pending(created_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create pending index: %w", err)
	}

	return s.seedConfig(ctx)
}

func (s *sqliteStore) seedConfig(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM config WHERE key = 'config'`).Scan(&n); err != nil {
		return fmt.Errorf("failed to check config: %w", err)
	}
	if n > 0 {
		return nil
	}
	return s.writeConfig(ctx, s.seed)
}

func (s *sqliteStore) writeConfig(ctx context.Context, cfg domain.Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO config (key, value) VALUES ('config', ?)
	`, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// GetConfig returns the stored config, or the seed when nothing was
// persisted yet.
func (s *sqliteStore) GetConfig(ctx context.Context) (domain.Config, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = 'config'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return s.seed, nil
	}
	if err != nil {
		return domain.Config{}, fmt.Errorf("failed to query config: %w", err)
	}

	var cfg domain.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return domain.Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// SetConfig applies a partial update on top of the stored config.
func (s *sqliteStore) SetConfig(ctx context.Context, patch domain.ConfigPatch) error {
	cur, err := s.GetConfig(ctx)
	if err != nil {
		return err
	}
	return s.writeConfig(ctx, patch.Apply(cur))
}

func (s *sqliteStore) ListButtons(ctx context.Context) ([]domain.TrafficButton, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ord, text, url FROM buttons ORDER BY ord, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list buttons: %w", err)
	}
	defer rows.Close()

	var buttons []domain.TrafficButton
	for rows.Next() {
		var b domain.TrafficButton
		if err := rows.Scan(&b.Order, &b.Text, &b.URL); err != nil {
			return nil, fmt.Errorf("failed to scan button: %w", err)
		}
		buttons = append(buttons, b)
	}
	return buttons, rows.Err()
}

// SetButtons replaces the whole button set atomically.
func (s *sqliteStore) SetButtons(ctx context.Context, buttons []domain.TrafficButton) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM buttons`); err != nil {
		return fmt.Errorf("failed to clear buttons: %w", err)
	}
	for _, b := range buttons {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO buttons (ord, text, url) VALUES (?, ?, ?)
		`, b.Order, b.Text, b.URL)
		if err != nil {
			return fmt.Errorf("failed to save button: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ListTemplates(ctx context.Context) ([]domain.AdTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, content, threshold FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.AdTemplate
	for rows.Next() {
		var t domain.AdTemplate
		if err := rows.Scan(&t.Name, &t.Content, &t.Threshold); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// SetTemplates replaces the whole template catalog atomically.
func (s *sqliteStore) SetTemplates(ctx context.Context, templates []domain.AdTemplate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM templates`); err != nil {
		return fmt.Errorf("failed to clear templates: %w", err)
	}
	for _, t := range templates {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO templates (name, content, threshold) VALUES (?, ?, ?)
		`, t.Name, t.Content, t.Threshold)
		if err != nil {
			return fmt.Errorf("failed to save template: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ListAllow(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, "allowlist")
}

func (s *sqliteStore) AddAllow(ctx context.Context, id int64) error {
	return s.addID(ctx, "allowlist", id)
}

func (s *sqliteStore) RemoveAllow(ctx context.Context, id int64) error {
	return s.removeID(ctx, "allowlist", id)
}

func (s *sqliteStore) ListBlock(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, "blocklist")
}

func (s *sqliteStore) AddBlock(ctx context.Context, id int64) error {
	return s.addID(ctx, "blocklist", id)
}

func (s *sqliteStore) RemoveBlock(ctx context.Context, id int64) error {
	return s.removeID(ctx, "blocklist", id)
}

func (s *sqliteStore) listIDs(ctx context.Context, table string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT user_id FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) addID(ctx context.Context, table string, id int64) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (user_id) VALUES (?)
	`, table), id)
	if err != nil {
		return fmt.Errorf("failed to add to %s: %w", table, err)
	}
	return nil
}

func (s *sqliteStore) removeID(ctx context.Context, table string, id int64) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?`, table), id)
	if err != nil {
		return fmt.Errorf("failed to remove from %s: %w", table, err)
	}
	return nil
}

// GetPending returns a pending request, or nil when unknown.
func (s *sqliteStore) GetPending(ctx context.Context, id string) (*domain.PendingRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_chat_id, message_id, from_id, from_name, created_at, suspected_template, suspected_score
		FROM pending
		WHERE id = ?
	`, id)

	req, err := scanPending(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending: %w", err)
	}
	return req, nil
}

func (s *sqliteStore) ListPending(ctx context.Context) ([]*domain.PendingRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_chat_id, message_id, from_id, from_name, created_at, suspected_template, suspected_score
		FROM pending
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending: %w", err)
	}
	defer rows.Close()

	var out []*domain.PendingRequest
	for rows.Next() {
		req, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetPending(ctx context.Context, req *domain.PendingRequest) error {
	var tmpl string
	var score float64
	if req.Suspected != nil {
		tmpl = req.Suspected.Template
		score = req.Suspected.Score
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pending (id, source_chat_id, message_id, from_id, from_name, created_at, suspected_template, suspected_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		req.ID,
		req.SourceChatID,
		req.MessageID,
		req.FromID,
		req.FromName,
		req.CreatedAt.UnixMilli(),
		tmpl,
		score,
	)
	if err != nil {
		return fmt.Errorf("failed to save pending: %w", err)
	}
	return nil
}

func (s *sqliteStore) DelPending(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete pending: %w", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPending(row rowScanner) (*domain.PendingRequest, error) {
	var req domain.PendingRequest
	var createdAt int64
	var tmpl string
	var score float64
	err := row.Scan(&req.ID, &req.SourceChatID, &req.MessageID, &req.FromID, &req.FromName, &createdAt, &tmpl, &score)
	if err != nil {
		return nil, err
	}
	req.CreatedAt = time.UnixMilli(createdAt)
	if tmpl != "" || score != 0 {
		req.Suspected = &domain.Suspected{Template: tmpl, Score: score}
	}
	return &req, nil
}
