// Package sqlite stores tokens in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/metrics"
	"github.com/ebogdum/cloudbox/tokenstore"
)

const storeLabel = "sqlite"

type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS tokens (
    name TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    payload BLOB NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, name, kind string, payload []byte) error {
	if name == "" {
		return tokenstore.ErrInvalidName
	}
	metrics.TokenStoreOpsTotal.WithLabelValues(storeLabel, "put").Inc()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (name, kind, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		name, kind, payload, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	s.logger.Debug("Token stored", zap.String("name", name), zap.String("kind", kind))
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, name string) (*tokenstore.Record, error) {
	metrics.TokenStoreOpsTotal.WithLabelValues(storeLabel, "get").Inc()

	var rec tokenstore.Record
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, kind, payload, created_at, updated_at FROM tokens WHERE name = ?`, name,
	).Scan(&rec.Name, &rec.Kind, &rec.Payload, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tokenstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	metrics.TokenStoreOpsTotal.WithLabelValues(storeLabel, "delete").Inc()

	result, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return tokenstore.ErrNotFound
	}

	s.logger.Debug("Token deleted", zap.String("name", name))
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	metrics.TokenStoreOpsTotal.WithLabelValues(storeLabel, "list").Inc()

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM tokens ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan token name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
